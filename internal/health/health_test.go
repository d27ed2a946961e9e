package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct{ err error }

func (s fakeStorage) HealthCheck(ctx context.Context) error { return s.err }

func TestChecker_CheckAll(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tests := []struct {
		name       string
		storageErr error
		want       Status
	}{
		{name: "all healthy", want: StatusHealthy},
		{name: "storage down", storageErr: errors.New("bucket missing"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil, rdb).WithStorage(fakeStorage{err: tt.storageErr})
			resp := c.CheckAll(context.Background())

			assert.Equal(t, tt.want, resp.Status)
			require.Len(t, resp.Components, 2)
			assert.Equal(t, "redis", resp.Components[0].Name)
			assert.Equal(t, StatusHealthy, resp.Components[0].Status)
			assert.Equal(t, "storage", resp.Components[1].Name)
			if tt.storageErr != nil {
				assert.Equal(t, "bucket missing", resp.Components[1].Error)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "ready", code: http.StatusOK},
		{name: "not ready", err: errors.New("connection refused"), code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil, nil).WithCheck("database", func(ctx context.Context) error { return tt.err })
			rec := httptest.NewRecorder()
			ReadinessHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.code, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Components, 1)
			assert.Equal(t, "database", resp.Components[0].Name)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
