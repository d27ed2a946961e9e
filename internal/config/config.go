package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Port          int
	MetricsPort   int
	BaseURL       string
	Environment   string
	LogLevel      string
	MaxAudioSize  int64
	MaxCoverSize  int64
	RateLimitRPM  int
	JWTSecret     string
	PublicBaseURL string

	DatabaseURL string
	RedisURL    string

	StorageBackend string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string

	QueueBackend      string
	WorkerConcurrency int
	JobTimeout        time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	MetadataExtractor  string
	ExtractTimeout     time.Duration
	RejectZeroDuration bool

	SweepInterval        time.Duration
	SweepBatchSize       int
	StalePendingAfter    time.Duration
	StaleProcessingAfter time.Duration

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	OTelEnabled      bool
	OTelEndpoint     string
	OTelServiceName  string
	OTelSamplingRate float64
}

// Load reads configuration from the environment, an optional .env file and an
// optional trackdrop.yaml in the working directory or /etc/trackdrop.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("trackdrop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/trackdrop")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:          v.GetInt("port"),
		MetricsPort:   v.GetInt("metrics_port"),
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		Environment:   v.GetString("environment"),
		LogLevel:      v.GetString("log_level"),
		MaxAudioSize:  v.GetInt64("max_audio_size"),
		MaxCoverSize:  v.GetInt64("max_cover_size"),
		RateLimitRPM:  v.GetInt("rate_limit_per_minute"),
		JWTSecret:     v.GetString("jwt_secret"),
		PublicBaseURL: strings.TrimRight(v.GetString("public_base_url"), "/"),

		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),

		StorageBackend: strings.ToLower(v.GetString("storage_backend")),
		MinIOEndpoint:  v.GetString("minio_endpoint"),
		MinIOAccessKey: v.GetString("minio_access_key"),
		MinIOSecretKey: v.GetString("minio_secret_key"),
		MinIOBucket:    v.GetString("minio_bucket"),
		MinIOUseSSL:    v.GetBool("minio_use_ssl"),
		MinIORegion:    v.GetString("minio_region"),
		S3Endpoint:     v.GetString("s3_endpoint"),
		S3AccessKey:    v.GetString("s3_access_key"),
		S3SecretKey:    v.GetString("s3_secret_key"),
		S3Bucket:       v.GetString("s3_bucket"),
		S3Region:       v.GetString("s3_region"),

		QueueBackend:      strings.ToLower(v.GetString("queue_backend")),
		WorkerConcurrency: v.GetInt("worker_concurrency"),
		JobTimeout:        v.GetDuration("job_timeout"),
		MaxRetries:        v.GetInt("max_retries"),
		RetryBaseDelay:    v.GetDuration("retry_base_delay"),
		RetryMaxDelay:     v.GetDuration("retry_max_delay"),

		MetadataExtractor:  strings.ToLower(v.GetString("metadata_extractor")),
		ExtractTimeout:     v.GetDuration("extract_timeout"),
		RejectZeroDuration: v.GetBool("reject_zero_duration"),

		SweepInterval:        v.GetDuration("sweep_interval"),
		SweepBatchSize:       v.GetInt("sweep_batch_size"),
		StalePendingAfter:    v.GetDuration("stale_pending_after"),
		StaleProcessingAfter: v.GetDuration("stale_processing_after"),

		WebhookURL:     strings.TrimSpace(v.GetString("webhook_url")),
		WebhookSecret:  v.GetString("webhook_secret"),
		WebhookTimeout: v.GetDuration("webhook_timeout"),

		OTelEnabled:      v.GetBool("otel_enabled"),
		OTelEndpoint:     v.GetString("otel_exporter_otlp_endpoint"),
		OTelServiceName:  v.GetString("otel_service_name"),
		OTelSamplingRate: v.GetFloat64("otel_sampling_rate"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_audio_size", 100*1024*1024)
	v.SetDefault("max_cover_size", 10*1024*1024)
	v.SetDefault("rate_limit_per_minute", 30)
	v.SetDefault("jwt_secret", defaultJWTSecret)

	v.SetDefault("storage_backend", "minio")
	v.SetDefault("minio_bucket", "tracks")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_region", "us-east-1")
	v.SetDefault("s3_region", "auto")

	v.SetDefault("queue_backend", "streams")
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("job_timeout", "5m")
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay", "2s")
	v.SetDefault("retry_max_delay", "2m")

	v.SetDefault("metadata_extractor", "native")
	v.SetDefault("extract_timeout", "30s")
	v.SetDefault("reject_zero_duration", false)

	v.SetDefault("sweep_interval", "5m")
	v.SetDefault("sweep_batch_size", 100)
	v.SetDefault("stale_pending_after", "15m")
	v.SetDefault("stale_processing_after", "1h")

	v.SetDefault("webhook_timeout", "10s")

	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("otel_service_name", "trackdrop")
	v.SetDefault("otel_sampling_rate", 1.0)
}

// StorageConfig returns the connection settings of the selected backend.
func (c *Config) StorageConfig() *storage.Config {
	if c.StorageBackend == "s3" {
		return &storage.Config{
			Endpoint:      c.S3Endpoint,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Bucket:        c.S3Bucket,
			Region:        c.S3Region,
			PublicBaseURL: c.PublicBaseURL,
		}
	}
	return &storage.Config{
		Endpoint:      c.MinIOEndpoint,
		AccessKey:     c.MinIOAccessKey,
		SecretKey:     c.MinIOSecretKey,
		Bucket:        c.MinIOBucket,
		UseSSL:        c.MinIOUseSSL,
		Region:        c.MinIORegion,
		PublicBaseURL: c.PublicBaseURL,
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxAudioSize < 1 {
		return fmt.Errorf("invalid max audio size: %d", c.MaxAudioSize)
	}
	if c.MaxCoverSize < 1 {
		return fmt.Errorf("invalid max cover size: %d", c.MaxCoverSize)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.MaxRetries)
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("invalid extract timeout: %s", c.ExtractTimeout)
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("invalid retry delays: base=%s max=%s", c.RetryBaseDelay, c.RetryMaxDelay)
	}

	switch c.StorageBackend {
	case "minio":
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY are required")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.StorageBackend)
	}

	if c.WebhookURL != "" {
		if !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
			return fmt.Errorf("invalid webhook url: %q", c.WebhookURL)
		}
		if c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
		}
	}

	switch c.QueueBackend {
	case "streams", "asynq":
	default:
		return fmt.Errorf("unknown queue backend: %q", c.QueueBackend)
	}

	switch c.MetadataExtractor {
	case "none", "native", "ffprobe", "auto":
	default:
		return fmt.Errorf("unknown metadata extractor: %q", c.MetadataExtractor)
	}

	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}
