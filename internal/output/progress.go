package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

type Spinner struct {
	bar     *progressbar.ProgressBar
	out     io.Writer
	started time.Time
}

func NewSpinner(description string, quiet bool) *Spinner {
	return NewSpinnerWriter(os.Stderr, description, quiet)
}

func NewSpinnerWriter(out io.Writer, description string, quiet bool) *Spinner {
	s := &Spinner{
		out:     out,
		started: time.Now(),
	}
	if quiet {
		return s
	}

	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(s.out, "\n")
		}),
	)
	return s
}

func (s *Spinner) Update(description string) {
	if s.bar != nil {
		s.bar.Describe(description)
		_ = s.bar.Add(1)
	}
}

func (s *Spinner) Finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}

func (s *Spinner) Duration() time.Duration {
	return time.Since(s.started)
}

// ByteProgress is an io.Writer that advances a byte-count bar.
type ByteProgress struct {
	bar     *progressbar.ProgressBar
	out     io.Writer
	written int64
	started time.Time
}

func NewByteProgress(total int64, description string, quiet bool) *ByteProgress {
	return NewByteProgressWriter(os.Stderr, total, description, quiet)
}

func NewByteProgressWriter(out io.Writer, total int64, description string, quiet bool) *ByteProgress {
	p := &ByteProgress{
		out:     out,
		started: time.Now(),
	}
	if quiet {
		return p
	}

	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]=[reset]",
			SaucerHead:    "[cyan]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return p
}

func (p *ByteProgress) Write(b []byte) (int, error) {
	n := len(b)
	p.written += int64(n)
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
	return n, nil
}

// Written returns the number of bytes seen so far.
func (p *ByteProgress) Written() int64 {
	return p.written
}

func (p *ByteProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func (p *ByteProgress) Duration() time.Duration {
	return time.Since(p.started)
}
