package client

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of API.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SetToken(token string) {
	m.Called(token)
}

func (m *MockClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SubmitResponse), args.Error(1)
}

func (m *MockClient) GetStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	args := m.Called(ctx, uploadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadStatus), args.Error(1)
}

func (m *MockClient) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	args := m.Called(ctx, trackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Track), args.Error(1)
}

func (m *MockClient) WaitForUpload(ctx context.Context, uploadID string, pollInterval, timeout time.Duration) (*UploadStatus, error) {
	args := m.Called(ctx, uploadID, pollInterval, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadStatus), args.Error(1)
}

var _ API = (*MockClient)(nil)
