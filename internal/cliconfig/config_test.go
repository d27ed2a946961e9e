package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvToken, "")
	return dir
}

func TestLoadDefault(t *testing.T) {
	isolateHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.IsAuthenticated() {
		t.Error("default config should not be authenticated")
	}
}

func TestSaveAndLoad(t *testing.T) {
	home := isolateHome(t)

	cfg := &Config{BaseURL: "https://api.example.com", Token: "tok", ArtistID: "artist-1"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(home, ".config", "trackctl", "config.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.BaseURL != cfg.BaseURL || loaded.Token != cfg.Token || loaded.ArtistID != cfg.ArtistID {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateHome(t)
	if err := (&Config{BaseURL: "https://file.example.com", Token: "file-token"}).Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvToken, "env-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %s, want env override", cfg.BaseURL)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %s, want env override", cfg.Token)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".config", "trackctl")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("base_url: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() should fail on malformed yaml")
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
		check   func(*Config) bool
	}{
		{"base_url", "https://api.example.com/", false, func(c *Config) bool { return c.BaseURL == "https://api.example.com" }},
		{"base_url", "ftp://nope", true, nil},
		{"token", " abc ", false, func(c *Config) bool { return c.Token == "abc" }},
		{"artist_id", "a-1", false, func(c *Config) bool { return c.ArtistID == "a-1" }},
		{"timeouts.http", "30s", false, func(c *Config) bool { return c.Timeouts.HTTP == "30s" }},
		{"timeouts.watch", "soon", true, nil},
		{"parallel", "4", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := &Config{}
			err := cfg.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Set(%q, %q) produced %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestGetTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeouts TimeoutConfig
		op       string
		want     time.Duration
	}{
		{"http default", TimeoutConfig{}, "http", DefaultHTTPTimeout},
		{"watch default", TimeoutConfig{}, "watch", DefaultWatchTimeout},
		{"http configured", TimeoutConfig{HTTP: "45s"}, "http", 45 * time.Second},
		{"watch configured", TimeoutConfig{Watch: "2m"}, "watch", 2 * time.Minute},
		{"invalid falls back", TimeoutConfig{Watch: "bogus"}, "watch", DefaultWatchTimeout},
		{"negative falls back", TimeoutConfig{HTTP: "-1s"}, "http", DefaultHTTPTimeout},
		{"unknown op", TimeoutConfig{}, "other", DefaultHTTPTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Timeouts: tt.timeouts}
			if got := cfg.GetTimeout(tt.op); got != tt.want {
				t.Errorf("GetTimeout(%q) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestLoadFileIgnoresEnv(t *testing.T) {
	isolateHome(t)
	t.Setenv(EnvToken, "env-token")

	cfg, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Token != "" {
		t.Errorf("LoadFile() Token = %q, want empty", cfg.Token)
	}
}
