package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validCacheBackends = []string{"memory", "redis"}
	validStateBackends = []string{"sqlite", "file", "mongo"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Limits    LimitsConfig
	Cache     CacheConfig
	State     StateConfig
	Gantt     GanttConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr        string
	LogLevel          string
	ReadHeaderTimeout time.Duration
}

// GitHubConfig configures GitHub API access and token resolution.
type GitHubConfig struct {
	APIBaseURL     string
	GraphQLURL     string
	GraphQLEnabled bool
	RequestTimeout time.Duration
	UserAgent      string
	TokenFile      string
	EnvFile        string
	Secrets        SecretsConfig
	App            AppConfig
}

// SecretsConfig selects an AWS Secrets Manager token source.
type SecretsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SecretID string `yaml:"secret_id"`
	Region   string `yaml:"region"`
}

// AppConfig configures GitHub App installation auth. It takes priority over
// every token source when AppID is set.
type AppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Enabled reports whether installation auth is configured.
func (a AppConfig) Enabled() bool {
	return a.AppID > 0
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// LimitsConfig bounds pagination and fan-out.
type LimitsConfig struct {
	CommitPages         int `yaml:"commit_pages"`
	DefaultBranchPages  int `yaml:"default_branch_pages"`
	BranchPages         int `yaml:"branch_pages"`
	IssuePages          int `yaml:"issue_pages"`
	PullPages           int `yaml:"pull_pages"`
	ContributorPages    int `yaml:"contributor_pages"`
	MilestonePages      int `yaml:"milestone_pages"`
	EnrichConcurrency   int `yaml:"enrich_concurrency"`
	WeeklyActivityWeeks int `yaml:"weekly_activity_weeks"`
}

// CacheConfig selects the response cache.
type CacheConfig struct {
	Backend            string
	TTL                time.Duration
	CommitDetailTTL    time.Duration
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	Namespace          string
}

// StateConfig selects the project state store.
type StateConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// GanttConfig controls task segmentation.
type GanttConfig struct {
	Gap     time.Duration
	MinSpan time.Duration
}

// TelemetryConfig controls OpenTelemetry settings.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELExporterEndpoint string
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads the config at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Load(file)
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if c.GitHub.RequestTimeout < 0 {
		errs = append(errs, "github.request_timeout must be >= 0")
	}
	if c.GitHub.Secrets.Enabled && strings.TrimSpace(c.GitHub.Secrets.SecretID) == "" {
		errs = append(errs, "github.secrets.secret_id is required when github.secrets.enabled=true")
	}
	if c.GitHub.App.Enabled() {
		if c.GitHub.App.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0 when github.app.app_id is set")
		}
		if c.GitHub.App.PrivateKeyPath == "" {
			errs = append(errs, "github.app.private_key_path is required when github.app.app_id is set")
		}
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.InitialBackoff > c.Retry.MaxBackoff {
		errs = append(errs, "retry.initial_backoff must be <= retry.max_backoff")
	}

	pages := map[string]int{
		"limits.commit_pages":         c.Limits.CommitPages,
		"limits.default_branch_pages": c.Limits.DefaultBranchPages,
		"limits.branch_pages":         c.Limits.BranchPages,
		"limits.issue_pages":          c.Limits.IssuePages,
		"limits.pull_pages":           c.Limits.PullPages,
		"limits.contributor_pages":    c.Limits.ContributorPages,
		"limits.milestone_pages":      c.Limits.MilestonePages,
		"limits.enrich_concurrency":   c.Limits.EnrichConcurrency,
	}
	keys := make([]string, 0, len(pages))
	for key := range pages {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if pages[key] <= 0 {
			errs = append(errs, key+" must be > 0")
		}
	}
	if c.Limits.WeeklyActivityWeeks < 0 {
		errs = append(errs, "limits.weekly_activity_weeks must be >= 0")
	}

	if !slices.Contains(validCacheBackends, c.Cache.Backend) {
		errs = append(errs, "cache.backend must be memory or redis")
	}
	if c.Cache.Backend == "redis" {
		if c.Cache.RedisMode != "standalone" && c.Cache.RedisMode != "sentinel" {
			errs = append(errs, "cache.redis_mode must be standalone or sentinel")
		}
		if c.Cache.RedisMode == "sentinel" && len(c.Cache.RedisSentinelAddrs) == 0 {
			errs = append(errs, "cache.redis_sentinel_addrs is required when cache.redis_mode=sentinel")
		}
		if c.Cache.RedisMode == "standalone" && c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required when cache.backend=redis")
		}
	}

	if !slices.Contains(validStateBackends, c.State.Backend) {
		errs = append(errs, "state.backend must be one of sqlite|file|mongo")
	}
	if c.State.Backend == "mongo" && c.State.MongoURI == "" {
		errs = append(errs, "state.mongo_uri is required when state.backend=mongo")
	}

	if c.Gantt.Gap <= 0 {
		errs = append(errs, "gantt.gap must be > 0")
	}
	if c.Gantt.MinSpan <= 0 {
		errs = append(errs, "gantt.min_span must be > 0")
	}

	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}

	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = "https://api.github.com/graphql"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 20 * time.Second
	}
	if cfg.GitHub.UserAgent == "" {
		cfg.GitHub.UserAgent = "branchscope"
	}
	if cfg.GitHub.EnvFile == "" {
		cfg.GitHub.EnvFile = ".env"
	}
	if cfg.GitHub.TokenFile == "" {
		cfg.GitHub.TokenFile = "github_api.txt"
	}

	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 10 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = 60 * time.Second
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}

	setIntDefault(&cfg.Limits.CommitPages, 10)
	setIntDefault(&cfg.Limits.DefaultBranchPages, 10)
	setIntDefault(&cfg.Limits.BranchPages, 5)
	setIntDefault(&cfg.Limits.IssuePages, 5)
	setIntDefault(&cfg.Limits.PullPages, 5)
	setIntDefault(&cfg.Limits.ContributorPages, 3)
	setIntDefault(&cfg.Limits.MilestonePages, 3)
	setIntDefault(&cfg.Limits.EnrichConcurrency, 8)
	setIntDefault(&cfg.Limits.WeeklyActivityWeeks, 16)

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.CommitDetailTTL == 0 {
		cfg.Cache.CommitDetailTTL = time.Hour
	}
	if cfg.Cache.RedisMode == "" {
		cfg.Cache.RedisMode = "standalone"
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = "branchscope"
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = "sqlite"
	}
	if cfg.State.Path == "" {
		if cfg.State.Backend == "file" {
			cfg.State.Path = "project_state.json"
		} else {
			cfg.State.Path = "branchscope.db"
		}
	}
	if cfg.State.MongoDatabase == "" {
		cfg.State.MongoDatabase = "branchscope"
	}
	if cfg.State.MongoCollection == "" {
		cfg.State.MongoCollection = "project_state"
	}

	if cfg.Gantt.Gap == 0 {
		cfg.Gantt.Gap = 48 * time.Hour
	}
	if cfg.Gantt.MinSpan == 0 {
		cfg.Gantt.MinSpan = 4 * time.Hour
	}

	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
	}
	if cfg.Telemetry.OTELTraceSampleRatio == 0 {
		cfg.Telemetry.OTELTraceSampleRatio = 0.1
	}
}

func setIntDefault(value *int, fallback int) {
	if *value == 0 {
		*value = fallback
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Limits    LimitsConfig `yaml:"limits"`
	Cache     rawCache     `yaml:"cache"`
	State     StateConfig  `yaml:"state"`
	Gantt     rawGantt     `yaml:"gantt"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr        string   `yaml:"listen_addr"`
	LogLevel          string   `yaml:"log_level"`
	ReadHeaderTimeout duration `yaml:"read_header_timeout"`
}

type rawGitHub struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	GraphQLURL     string        `yaml:"graphql_url"`
	GraphQLEnabled bool          `yaml:"graphql_enabled"`
	RequestTimeout duration      `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
	TokenFile      string        `yaml:"token_file"`
	EnvFile        string        `yaml:"env_file"`
	Secrets        SecretsConfig `yaml:"secrets"`
	App            AppConfig     `yaml:"app"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawCache struct {
	Backend            string   `yaml:"backend"`
	TTL                duration `yaml:"ttl"`
	CommitDetailTTL    duration `yaml:"commit_detail_ttl"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	Namespace          string   `yaml:"namespace"`
}

type rawGantt struct {
	Gap     duration `yaml:"gap"`
	MinSpan duration `yaml:"min_span"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_otlp_endpoint"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        r.Server.ListenAddr,
			LogLevel:          strings.ToLower(strings.TrimSpace(r.Server.LogLevel)),
			ReadHeaderTimeout: r.Server.ReadHeaderTimeout.Duration,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			GraphQLURL:     r.GitHub.GraphQLURL,
			GraphQLEnabled: r.GitHub.GraphQLEnabled,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			UserAgent:      r.GitHub.UserAgent,
			TokenFile:      r.GitHub.TokenFile,
			EnvFile:        r.GitHub.EnvFile,
			Secrets:        r.GitHub.Secrets,
			App:            r.GitHub.App,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Limits: r.Limits,
		Cache: CacheConfig{
			Backend:            strings.ToLower(strings.TrimSpace(r.Cache.Backend)),
			TTL:                r.Cache.TTL.Duration,
			CommitDetailTTL:    r.Cache.CommitDetailTTL.Duration,
			RedisMode:          r.Cache.RedisMode,
			RedisAddr:          r.Cache.RedisAddr,
			RedisMasterSet:     r.Cache.RedisMasterSet,
			RedisSentinelAddrs: r.Cache.RedisSentinelAddrs,
			RedisPassword:      r.Cache.RedisPassword,
			RedisDB:            r.Cache.RedisDB,
			Namespace:          r.Cache.Namespace,
		},
		State: StateConfig{
			Backend:         strings.ToLower(strings.TrimSpace(r.State.Backend)),
			Path:            r.State.Path,
			MongoURI:        r.State.MongoURI,
			MongoDatabase:   r.State.MongoDatabase,
			MongoCollection: r.State.MongoCollection,
		},
		Gantt: GanttConfig{
			Gap:     r.Gantt.Gap.Duration,
			MinSpan: r.Gantt.MinSpan.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELExporterEndpoint: r.Telemetry.OTELExporterEndpoint,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
