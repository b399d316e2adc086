package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.BaseURL == "" {
		t.Fatal("expected a default base URL")
	}
	if got := cfg.DefaultYears(); len(got) != 6 || got[0] != 2010 || got[5] != 2015 {
		t.Fatalf("expected default years 2010..2015, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
	if cfg.Fetch.MaxAttempts != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", cfg.Fetch.MaxAttempts)
	}
	if got := cfg.FetchBackoff(); got != 500*time.Millisecond {
		t.Fatalf("expected backoff base 500ms, got %v", got)
	}
	if cfg.Storage.Backend != StorageLocal {
		t.Fatalf("expected local storage default, got %q", cfg.Storage.Backend)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 30
auth:
  enabled: true
  api_key: secret
crawler:
  base_url: https://example.com/films/
  user_agent: films-agent
  default_year_start: 2012
  default_year_end: 2014
  workers: 4
  queue_depth: 128
fetch:
  timeout_seconds: 45
  max_attempts: 5
  backoff_ms: 250
headless:
  wait_timeout_seconds: 10
  session_timeout_seconds: 120
  max_parallel: 3
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: results
  content_type: application/json
db:
  dsn: postgres://localhost/oscars
  table: films
pubsub:
  project_id: my-project
  topic_name: crawl-events
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatal("expected auth enabled with secret key")
	}
	if cfg.Crawler.BaseURL != "https://example.com/films/" || cfg.Crawler.Workers != 4 {
		t.Fatal("expected crawler overrides to apply")
	}
	if got := cfg.DefaultYears(); len(got) != 3 || got[0] != 2012 {
		t.Fatalf("expected default years 2012..2014, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if cfg.Storage.Backend != StorageGCS || cfg.Storage.GCSBucket != "bucket" {
		t.Fatal("expected gcs storage configuration")
	}
	if cfg.DB.DSN == "" || cfg.DB.Table != "films" {
		t.Fatal("expected db overrides to apply")
	}
	if cfg.PubSub.TopicName != "crawl-events" {
		t.Fatal("expected pubsub overrides to apply")
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging to be disabled")
	}
	if got := cfg.HeadlessSessionTimeout(); got != 120*time.Second {
		t.Fatalf("expected session timeout 120s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{
			BaseURL:          "https://example.com/",
			DefaultYearStart: 2010,
			DefaultYearEnd:   2015,
			Workers:          2,
		},
		Fetch:   FetchConfig{TimeoutSeconds: 20, MaxAttempts: 3},
		Storage: StorageConfig{Backend: StorageLocal},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing base url",
			cfg: func() Config {
				c := base
				c.Crawler.BaseURL = ""
				return c
			}(),
			want: "crawler.base_url",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Crawler.Workers = 0
				return c
			}(),
			want: "crawler.workers",
		},
		{
			name: "inverted year range",
			cfg: func() Config {
				c := base
				c.Crawler.DefaultYearStart = 2016
				return c
			}(),
			want: "default_year_start",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = StorageGCS
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
