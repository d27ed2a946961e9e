// Package webhook delivers signed upload lifecycle events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/version"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var ErrCircuitOpen = errors.New("webhook endpoint circuit open")

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.client = c
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(n *Notifier) {
		n.breaker = cb
	}
}

// Notifier posts events to one endpoint. Delivery is best effort: failures are
// logged and counted, never returned to the upload pipeline.
type Notifier struct {
	endpoint string
	secret   string
	client   *http.Client
	breaker  *CircuitBreaker
	now      func() time.Time
}

func NewNotifier(endpoint, secret string, timeout time.Duration, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &Notifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		breaker:  NewCircuitBreaker(5, 5*time.Minute),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) UploadCompleted(ctx context.Context, row db.Upload, track db.Track) {
	data := UploadCompletedData{
		UploadID:        row.UploadID,
		OwnerID:         uuidString(row.OwnerID),
		TrackID:         uuidString(track.ID),
		Title:           track.Title,
		AudioURL:        track.AudioURL,
		DurationSeconds: track.DurationSeconds,
		RetryCount:      row.RetryCount,
	}
	if track.CoverURL.Valid {
		data.CoverURL = track.CoverURL.String
	}
	n.notify(ctx, EventUploadCompleted, data)
}

func (n *Notifier) UploadFailed(ctx context.Context, row db.Upload, reason string) {
	n.notify(ctx, EventUploadFailed, UploadFailedData{
		UploadID:     row.UploadID,
		OwnerID:      uuidString(row.OwnerID),
		Error:        reason,
		RetryCount:   row.RetryCount,
		AttemptCount: row.AttemptCount,
	})
}

func (n *Notifier) notify(ctx context.Context, eventType string, data any) {
	log := logger.FromContext(ctx).With("event_type", eventType)

	event, err := NewEvent(eventType, data)
	if err == nil {
		err = n.Deliver(context.WithoutCancel(ctx), event)
	}
	outcome := "delivered"
	switch {
	case errors.Is(err, ErrCircuitOpen):
		outcome = "skipped"
		log.Warn("webhook endpoint unhealthy, event dropped")
	case err != nil:
		outcome = "failed"
		log.Warn("webhook delivery failed", "error", err)
	default:
		log.Debug("webhook delivered", "event_id", event.ID)
	}
	metrics.RecordWebhookDelivery(eventType, outcome)
}

// Deliver sends one signed event. A non-2xx response is an error.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if !n.breaker.Allow(n.endpoint) {
		return ErrCircuitOpen
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trackdrop-webhook/"+version.Short())
	req.Header.Set("Trackdrop-Event", event.Type)
	req.Header.Set("Trackdrop-Event-Id", event.ID)
	req.Header.Set(SignatureHeader, FormatHeader(payload, n.secret, n.now()))

	resp, err := n.client.Do(req)
	if err != nil {
		n.breaker.RecordFailure(n.endpoint)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.breaker.RecordFailure(n.endpoint)
		return fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	n.breaker.RecordSuccess(n.endpoint)
	return nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
