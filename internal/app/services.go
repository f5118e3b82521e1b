package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/config"
	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/gantt"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/jobs"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"github.com/cam3ron2/branchscope/internal/store"
	"go.uber.org/zap"
)

// Services holds the wired domain components shared by the CLI and the HTTP API.
type Services struct {
	Config     *config.Config
	Logger     *zap.Logger
	Cache      store.Cache
	Metrics    *store.MemoryStore
	State      projectstate.Store
	Provider   *githubapi.Provider
	Data       *githubapi.DataClient
	REST       *githubapi.RESTClient
	Collector  *dashboard.Collector
	Enricher   authors.Enricher
	Jobs       *jobs.Manager
	AuthSource string

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewServices builds every backend from cfg. Close releases them.
func NewServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient, authSource, err := newGitHubHTTPClient(ctx, cfg.GitHub, logger)
	if err != nil {
		return nil, fmt.Errorf("github auth: %w", err)
	}
	cache := newCache(ctx, cfg.Cache, logger)

	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	})
	provider, err := githubapi.NewProvider(requestClient, githubapi.ProviderConfig{
		BaseURL:   cfg.GitHub.APIBaseURL,
		UserAgent: cfg.GitHub.UserAgent,
		Cache:     cache,
		CacheTTL:  cfg.Cache.TTL,
		Logger:    logger,
	})
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("github provider: %w", err)
	}
	rest, err := githubapi.NewGitHubRESTClient(httpClient, cfg.GitHub.APIBaseURL)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("github rest client: %w", err)
	}

	state, err := openStateStore(ctx, cfg.State, logger)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	services, err := newServicesFromParts(cfg, logger, cache, state, provider)
	if err != nil {
		_ = cache.Close()
		_ = state.Close()
		return nil, err
	}
	if cfg.GitHub.GraphQLEnabled {
		if err := services.useTotals(githubapi.NewGraphQLClient(cfg.GitHub.GraphQLURL, httpClient)); err != nil {
			_ = services.Close()
			return nil, err
		}
	}
	services.REST = rest
	services.AuthSource = authSource
	logger.Debug("services initialized",
		zap.String("cache", fmt.Sprintf("%T", cache)),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("auth_source", authSource),
		zap.Bool("graphql_totals", cfg.GitHub.GraphQLEnabled),
	)
	return services, nil
}

func newServicesFromParts(
	cfg *config.Config,
	logger *zap.Logger,
	cache store.Cache,
	state projectstate.Store,
	provider *githubapi.Provider,
) (*Services, error) {
	data, err := githubapi.NewDataClient(provider, githubapi.DataClientOptions{
		Limits: githubapi.PageLimits{
			Commits:       cfg.Limits.CommitPages,
			DefaultBranch: cfg.Limits.DefaultBranchPages,
			Branches:      cfg.Limits.BranchPages,
			Issues:        cfg.Limits.IssuePages,
			Pulls:         cfg.Limits.PullPages,
			Contributors:  cfg.Limits.ContributorPages,
			Milestones:    cfg.Limits.MilestonePages,
		},
		CommitDetailTTL: cfg.Cache.CommitDetailTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("github data client: %w", err)
	}

	s := &Services{
		Config:   cfg,
		Logger:   logger,
		Cache:    cache,
		Metrics:  store.NewMemoryStore(24*time.Hour, 0),
		State:    state,
		Provider: provider,
		Data:     data,
		Enricher: authors.Enricher{
			Fetcher:     data,
			Concurrency: cfg.Limits.EnrichConcurrency,
			Logger:      logger,
		},
		Now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.useTotals(nil); err != nil {
		return nil, err
	}
	return s, nil
}

// useTotals rebuilds the collector and job manager around an optional totals source.
func (s *Services) useTotals(totals *githubapi.GraphQLClient) error {
	cfg := dashboard.CollectorConfig{
		Source:              s.Data,
		Invalidator:         s.Provider,
		Metrics:             s.Metrics,
		WeeklyActivityWeeks: s.Config.Limits.WeeklyActivityWeeks,
		Logger:              s.Logger,
		Now:                 s.now,
	}
	if totals != nil {
		cfg.Totals = totals
	}
	collector, err := dashboard.NewCollector(cfg)
	if err != nil {
		return fmt.Errorf("dashboard collector: %w", err)
	}
	manager, err := jobs.NewManager(jobs.Config{
		Collector: collector,
		Enricher:  s.Enricher,
		Retention: time.Hour,
		Metrics:   s.Metrics,
		Logger:    s.Logger,
		Now:       s.now,
	})
	if err != nil {
		return fmt.Errorf("job manager: %w", err)
	}
	s.Collector = collector
	s.Jobs = manager
	return nil
}

func (s *Services) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Close releases the cache and the state store.
func (s *Services) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.State != nil {
		errs = append(errs, s.State.Close())
	}
	return errors.Join(errs...)
}

// AuthorReport is one author's enriched contribution on a branch.
type AuthorReport struct {
	Dashboard *dashboard.Dashboard
	Rollup    *authors.Rollup
	Analysis  authors.Analysis
}

// AnalyzeAuthor collects the branch and enriches every dated commit by author.
func (s *Services) AnalyzeAuthor(ctx context.Context, target dashboard.Target, author string, progress authors.ProgressFunc) (*AuthorReport, error) {
	d, err := s.Collector.Collect(ctx, target)
	if err != nil {
		return nil, err
	}
	rollup := d.Author(author)
	if rollup == nil {
		return nil, fmt.Errorf("%w: %q has no commits on %s@%s", jobs.ErrAuthorNotFound, author, d.Target.FullName(), d.Target.Branch)
	}
	enrichment, err := s.Enricher.Enrich(ctx, d.Target.Owner, d.Target.Repo, authors.ForAuthor(d.Commits, author), progress)
	if err != nil {
		return nil, err
	}
	return &AuthorReport{
		Dashboard: d,
		Rollup:    rollup,
		Analysis:  authors.Analyze(enrichment, rollup),
	}, nil
}

// Timeline is the annotated commit list and Gantt tasks for one branch.
type Timeline struct {
	Target    dashboard.Target               `json:"target"`
	Key       string                         `json:"key"`
	Record    projectstate.Record            `json:"record"`
	Stored    bool                           `json:"stored"`
	Commits   []projectstate.AnnotatedCommit `json:"commits"`
	Tasks     []gantt.Task                   `json:"tasks"`
	Orphans   []string                       `json:"orphans"`
	Dashboard *dashboard.Dashboard           `json:"-"`
}

// Timeline collects the branch and overlays its stored project record.
func (s *Services) Timeline(ctx context.Context, target dashboard.Target) (*Timeline, error) {
	d, err := s.Collector.Collect(ctx, target)
	if err != nil {
		return nil, err
	}
	key := d.Target.StateKey()
	record, stored := s.State.Load(ctx, key)
	refs := d.CommitRefs()
	annotated := projectstate.Overlay(record, refs)
	tasks := gantt.Build(projectstate.GanttRows(annotated), record.Window(), gantt.Options{
		Gap:     s.Config.Gantt.Gap,
		MinSpan: s.Config.Gantt.MinSpan,
	})
	return &Timeline{
		Target:    d.Target,
		Key:       key,
		Record:    record,
		Stored:    stored,
		Commits:   annotated,
		Tasks:     tasks,
		Orphans:   projectstate.Orphans(record, refs),
		Dashboard: d,
	}, nil
}

// ValidationError marks input that was rejected before anything was stored.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProjectUpdate is a partial change to a project record. Nil and empty fields
// leave the stored values alone.
type ProjectUpdate struct {
	Start           *projectstate.Date
	End             *projectstate.Date
	ClearExtensions bool
	Extend          []projectstate.Date
	Tags            map[string]string
	Descs           map[string]string
}

// Apply mutates record. Tags and descriptions are keyed by full commit SHA.
func (u ProjectUpdate) Apply(record *projectstate.Record) error {
	if u.Start != nil {
		record.ProjectStart = *u.Start
	}
	if u.End != nil {
		record.ProjectEnd = *u.End
	}
	if u.ClearExtensions {
		record.ClearExtensions()
	}
	for _, ext := range u.Extend {
		record.AddExtension(ext)
	}
	shas := map[string]struct{}{}
	for sha := range u.Tags {
		shas[sha] = struct{}{}
	}
	for sha := range u.Descs {
		shas[sha] = struct{}{}
	}
	for sha := range shas {
		current := record.CommitInputs[sha]
		if tag, ok := u.Tags[sha]; ok {
			current.Tag = tag
		}
		if desc, ok := u.Descs[sha]; ok {
			current.Desc = desc
		}
		if err := record.Annotate(sha, current); err != nil {
			return err
		}
	}
	return nil
}

// UpdateProject loads the record for key, applies update, validates and saves it.
func (s *Services) UpdateProject(ctx context.Context, key string, update ProjectUpdate) (projectstate.Record, error) {
	record, _ := s.State.Load(ctx, key)
	record = record.Clone()
	if err := update.Apply(&record); err != nil {
		return projectstate.Record{}, &ValidationError{Err: err}
	}
	return s.SaveProject(ctx, key, record)
}

// SaveProject validates and stores a full record.
func (s *Services) SaveProject(ctx context.Context, key string, record projectstate.Record) (projectstate.Record, error) {
	if err := record.Validate(); err != nil {
		return projectstate.Record{}, &ValidationError{Err: err}
	}
	record.Touch(s.now())
	if err := s.State.Save(ctx, key, record); err != nil {
		return projectstate.Record{}, fmt.Errorf("save project %s: %w", key, err)
	}
	return record, nil
}
