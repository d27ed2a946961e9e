package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chain tries extractors in order. The first result is kept and later
// extractors only run to fill a missing duration or missing fields.
type Chain struct {
	extractors []Extractor
}

func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		names[i] = e.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Extract(ctx context.Context, src Source) (*Metadata, error) {
	var (
		result *Metadata
		errs   []error
	)
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		md, err := e.Extract(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if result == nil {
			result = md
		} else {
			result.merge(md)
		}
		if result.Duration > 0 {
			break
		}
	}

	if result == nil {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// New builds the extractor strategy named in configuration: none, native,
// ffprobe or auto. auto uses native parsing and falls back to ffprobe when
// it is installed.
func New(strategy, ffprobePath string) (Extractor, error) {
	switch strings.ToLower(strategy) {
	case "", "none":
		return Noop{}, nil
	case "native":
		return NewNative(), nil
	case "ffprobe":
		return NewFFprobe(ffprobePath)
	case "auto":
		if p, err := NewFFprobe(ffprobePath); err == nil {
			return NewChain(NewNative(), p), nil
		}
		return NewNative(), nil
	}
	return nil, fmt.Errorf("unknown metadata extractor %q", strategy)
}
