package api

import (
	"encoding/json"
	"net/http"

	"github.com/abdul-hamid-achik/trackdrop/internal/health"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Orchestrator *upload.Orchestrator
	Status       *upload.StatusService
	Health       *health.Checker
	Limiter      Limiter
	JWTSecret    string
	BaseURL      string
	MaxAudioSize int64
	MaxCoverSize int64
}

func NewRouter(cfg *Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", health.LivenessHandler())
	if cfg.Health != nil {
		mux.HandleFunc("GET /health", health.HealthHandler(cfg.Health))
		mux.HandleFunc("GET /health/ready", health.ReadinessHandler(cfg.Health))
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	apiMux := http.NewServeMux()

	submit := http.Handler(submitHandler(cfg))
	if cfg.Limiter != nil {
		submit = RateLimit(cfg.Limiter, "submit_upload")(submit)
	}
	apiMux.Handle("POST /v1/uploads", submit)
	apiMux.HandleFunc("GET /v1/uploads/{uploadId}/status", statusHandler(cfg))
	apiMux.HandleFunc("GET /v1/tracks/{trackId}", trackHandler(cfg))

	mux.Handle("/v1/", AuthMiddleware(cfg.JWTSecret)(apiMux))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
