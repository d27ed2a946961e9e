package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	ownerID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		name       string
		header     func(t *testing.T) string
		wantStatus int
	}{
		{
			name:       "valid token",
			header:     func(t *testing.T) string { return "Bearer " + signToken(t, ownerID.String(), testJWTSecret, time.Hour) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			header:     func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no bearer prefix",
			header:     func(t *testing.T) string { return signToken(t, ownerID.String(), testJWTSecret, time.Hour) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			header:     func(t *testing.T) string { return "Bearer " + signToken(t, ownerID.String(), "other-secret", time.Hour) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     func(t *testing.T) string { return "Bearer " + signToken(t, ownerID.String(), testJWTSecret, -time.Minute) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "subject is not a uuid",
			header:     func(t *testing.T) string { return "Bearer " + signToken(t, "alice", testJWTSecret, time.Hour) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unsigned token",
			header: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": ownerID.String()})
				s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return "Bearer " + s
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOwner uuid.UUID
			var gotLogOwner string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotOwner, _ = GetOwnerID(r.Context())
				gotLogOwner = logger.OwnerID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/v1/uploads/x/status", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(testJWTSecret)(next).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, ownerID, gotOwner)
				assert.Equal(t, ownerID.String(), gotLogOwner)
			} else {
				assert.Equal(t, uuid.Nil, gotOwner)
				assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("https://app.trackdrop.test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/uploads/x/status", nil)
		req.Header.Set("Origin", "https://app.trackdrop.test")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.trackdrop.test", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/uploads/x/status", nil)
		req.Header.Set("Origin", "https://evil.test")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/uploads", nil)
		req.Header.Set("Origin", "https://app.trackdrop.test")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
