package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
	}{
		{
			name: "valid_full_configuration",
			yaml: `
server:
  listen_addr: ":9090"
  log_level: "debug"
  read_header_timeout: "5s"
github:
  api_base_url: "https://ghe.example.com/api/v3"
  graphql_url: "https://ghe.example.com/api/graphql"
  graphql_enabled: true
  request_timeout: "30s"
  user_agent: "branchscope-test"
  token_file: "/etc/branchscope/token"
  env_file: "/etc/branchscope/.env"
  secrets:
    enabled: true
    secret_id: "branchscope/github"
    region: "us-east-1"
  app:
    app_id: 111111
    installation_id: 222222
    private_key_path: "/etc/branchscope/app.pem"
rate_limit:
  min_remaining_threshold: 200
  min_reset_buffer: "10s"
  secondary_limit_backoff: "60s"
retry:
  max_attempts: 5
  initial_backoff: "2s"
  max_backoff: "2m"
limits:
  commit_pages: 20
  default_branch_pages: 20
  branch_pages: 10
  issue_pages: 4
  pull_pages: 4
  contributor_pages: 2
  milestone_pages: 2
  enrich_concurrency: 4
  weekly_activity_weeks: 26
cache:
  backend: "redis"
  ttl: "10m"
  commit_detail_ttl: "1d"
  redis_mode: "standalone"
  redis_addr: "redis:6379"
  redis_db: 2
  namespace: "bs"
state:
  backend: "mongo"
  mongo_uri: "mongodb://mongo:27017"
  mongo_database: "branchscope"
  mongo_collection: "projects"
gantt:
  gap: "2d"
  min_span: "6h"
telemetry:
  otel_enabled: true
  otel_exporter_otlp_endpoint: "http://collector:4318/v1/traces"
  otel_trace_mode: "detailed"
  otel_trace_sample_ratio: 0.5
`,
		},
		{
			name: "invalid_log_level",
			yaml: `
server:
  log_level: "verbose"
`,
			wantErr:    true,
			errSubstrs: []string{"server.log_level", "debug|info|warn|error"},
		},
		{
			name: "unknown_field_rejected",
			yaml: `
server:
  listen_addr: ":8080"
  tls: true
`,
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml", "tls"},
		},
		{
			name: "secrets_enabled_requires_secret_id",
			yaml: `
github:
  secrets:
    enabled: true
`,
			wantErr:    true,
			errSubstrs: []string{"github.secrets.secret_id", "required"},
		},
		{
			name: "app_requires_installation_and_key",
			yaml: `
github:
  app:
    app_id: 1
`,
			wantErr: true,
			errSubstrs: []string{
				"github.app.installation_id",
				"github.app.private_key_path",
			},
		},
		{
			name: "negative_page_caps",
			yaml: `
limits:
  commit_pages: -1
  enrich_concurrency: -2
`,
			wantErr: true,
			errSubstrs: []string{
				"limits.commit_pages must be > 0",
				"limits.enrich_concurrency must be > 0",
			},
		},
		{
			name: "unknown_cache_backend",
			yaml: `
cache:
  backend: "memcached"
`,
			wantErr:    true,
			errSubstrs: []string{"cache.backend", "memory or redis"},
		},
		{
			name: "sentinel_mode_requires_sentinel_addrs",
			yaml: `
cache:
  backend: "redis"
  redis_mode: "sentinel"
  redis_master_set: "mymaster"
  redis_sentinel_addrs: []
`,
			wantErr:    true,
			errSubstrs: []string{"cache.redis_sentinel_addrs", "required"},
		},
		{
			name: "standalone_redis_requires_addr",
			yaml: `
cache:
  backend: "redis"
`,
			wantErr:    true,
			errSubstrs: []string{"cache.redis_addr"},
		},
		{
			name: "mongo_state_requires_uri",
			yaml: `
state:
  backend: "mongo"
`,
			wantErr:    true,
			errSubstrs: []string{"state.mongo_uri"},
		},
		{
			name: "unknown_state_backend",
			yaml: `
state:
  backend: "postgres"
`,
			wantErr:    true,
			errSubstrs: []string{"state.backend", "sqlite|file|mongo"},
		},
		{
			name: "retry_backoff_order",
			yaml: `
retry:
  initial_backoff: "2m"
  max_backoff: "10s"
`,
			wantErr:    true,
			errSubstrs: []string{"retry.initial_backoff must be <= retry.max_backoff"},
		},
		{
			name: "invalid_sample_ratio",
			yaml: `
telemetry:
  otel_trace_sample_ratio: 1.5
`,
			wantErr:    true,
			errSubstrs: []string{"telemetry.otel_trace_sample_ratio"},
		},
		{
			name: "invalid_duration_unit",
			yaml: `
gantt:
  gap: "3y"
`,
			wantErr:    true,
			errSubstrs: []string{"invalid unit"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(strings.NewReader(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				for _, substr := range tc.errSubstrs {
					if !strings.Contains(err.Error(), substr) {
						t.Fatalf("Load() error = %q, missing substring %q", err.Error(), substr)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if cfg == nil {
				t.Fatalf("Load() returned nil config")
			}
		})
	}
}

func TestLoadAdditionalBehaviors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		reader      io.Reader
		wantErr     bool
		errContains string
		assert      func(t *testing.T, cfg *Config)
	}{
		{
			name:        "nil_reader_returns_error",
			reader:      nil,
			wantErr:     true,
			errContains: "config reader is nil",
		},
		{
			name:        "invalid_yaml_returns_parse_error",
			reader:      strings.NewReader("server: [oops"),
			wantErr:     true,
			errContains: "unmarshal yaml",
		},
		{
			name:   "empty_document_uses_defaults",
			reader: strings.NewReader(""),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				assertDefaults(t, cfg)
			},
		},
		{
			name: "applies_defaults_and_parses_day_duration",
			reader: strings.NewReader(`
server:
github:
cache:
  commit_detail_ttl: "2d"
state:
  backend: "file"
gantt:
  gap: "1w"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.LogLevel != "info" {
					t.Fatalf("Server.LogLevel = %q, want info", cfg.Server.LogLevel)
				}
				if cfg.Cache.CommitDetailTTL != 48*time.Hour {
					t.Fatalf("Cache.CommitDetailTTL = %s, want %s", cfg.Cache.CommitDetailTTL, 48*time.Hour)
				}
				if cfg.Gantt.Gap != 7*24*time.Hour {
					t.Fatalf("Gantt.Gap = %s, want %s", cfg.Gantt.Gap, 7*24*time.Hour)
				}
				if cfg.State.Path != "project_state.json" {
					t.Fatalf("State.Path = %q, want project_state.json", cfg.State.Path)
				}
			},
		},
		{
			name: "normalizes_case",
			reader: strings.NewReader(`
server:
  log_level: " WARN "
cache:
  backend: "Memory"
state:
  backend: "SQLite"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.LogLevel != "warn" {
					t.Fatalf("Server.LogLevel = %q, want warn", cfg.Server.LogLevel)
				}
				if cfg.Cache.Backend != "memory" {
					t.Fatalf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
				}
				if cfg.State.Backend != "sqlite" {
					t.Fatalf("State.Backend = %q, want sqlite", cfg.State.Backend)
				}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(tc.reader)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("Load() error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "branchscope.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	testCases := []struct {
		name       string
		path       string
		wantListen string
	}{
		{name: "existing_file", path: path, wantListen: ":9999"},
		{name: "missing_file_uses_defaults", path: filepath.Join(dir, "missing.yaml"), wantListen: ":8080"},
		{name: "empty_path_uses_defaults", path: "", wantListen: ":8080"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := LoadFile(tc.path)
			if err != nil {
				t.Fatalf("LoadFile() unexpected error: %v", err)
			}
			if cfg.Server.ListenAddr != tc.wantListen {
				t.Fatalf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, tc.wantListen)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() unexpected error: %v", err)
	}
	assertDefaults(t, cfg)
}

func TestAppConfigEnabled(t *testing.T) {
	t.Parallel()

	if (AppConfig{}).Enabled() {
		t.Fatalf("empty AppConfig reported enabled")
	}
	if !(AppConfig{AppID: 7}).Enabled() {
		t.Fatalf("AppConfig with app id reported disabled")
	}
}

func assertDefaults(t *testing.T, cfg *Config) {
	t.Helper()

	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("Server.ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.GitHub.APIBaseURL != "https://api.github.com" {
		t.Fatalf("GitHub.APIBaseURL = %q", cfg.GitHub.APIBaseURL)
	}
	if cfg.GitHub.EnvFile != ".env" {
		t.Fatalf("GitHub.EnvFile = %q, want .env", cfg.GitHub.EnvFile)
	}
	wantLimits := LimitsConfig{
		CommitPages:         10,
		DefaultBranchPages:  10,
		BranchPages:         5,
		IssuePages:          5,
		PullPages:           5,
		ContributorPages:    3,
		MilestonePages:      3,
		EnrichConcurrency:   8,
		WeeklyActivityWeeks: 16,
	}
	if cfg.Limits != wantLimits {
		t.Fatalf("Limits = %+v, want %+v", cfg.Limits, wantLimits)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 5*time.Minute || cfg.Cache.CommitDetailTTL != time.Hour {
		t.Fatalf("Cache = %+v", cfg.Cache)
	}
	if cfg.State.Backend != "sqlite" || cfg.State.Path != "branchscope.db" {
		t.Fatalf("State = %+v", cfg.State)
	}
	if cfg.Gantt.Gap != 48*time.Hour || cfg.Gantt.MinSpan != 4*time.Hour {
		t.Fatalf("Gantt = %+v", cfg.Gantt)
	}
}
