package client

import (
	"context"
	"time"
)

// API is the set of calls trackctl makes. *Client implements it.
type API interface {
	SetToken(token string)
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	GetStatus(ctx context.Context, uploadID string) (*UploadStatus, error)
	GetTrack(ctx context.Context, trackID string) (*Track, error)
	WaitForUpload(ctx context.Context, uploadID string, pollInterval, timeout time.Duration) (*UploadStatus, error)
}

var _ API = (*Client)(nil)
