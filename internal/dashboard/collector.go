package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/classify"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/health"
	"github.com/cam3ron2/branchscope/internal/reconcile"
	"github.com/cam3ron2/branchscope/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "branchscope/internal/dashboard"

// DefaultWeeklyActivityWeeks is how many trailing weeks of activity are kept.
const DefaultWeeklyActivityWeeks = 16

// Source is the typed GitHub API surface the collector reads.
type Source interface {
	GetRepository(ctx context.Context, owner, repo string) (*githubapi.Repository, error)
	ListBranches(ctx context.Context, owner, repo string) ([]string, error)
	ListCommits(ctx context.Context, owner, repo, branch string, maxPages int) ([]githubapi.Commit, error)
	DefaultBranchSHAs(ctx context.Context, owner, repo, defaultBranch string) (map[string]struct{}, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string) (*githubapi.Comparison, error)
	ListIssues(ctx context.Context, owner, repo string) ([]githubapi.Issue, error)
	ListPullRequests(ctx context.Context, owner, repo string) ([]githubapi.PullRequest, error)
	ListContributors(ctx context.Context, owner, repo string) ([]githubapi.Contributor, error)
	GetLanguages(ctx context.Context, owner, repo string) (map[string]int64, error)
	GetTree(ctx context.Context, owner, repo, ref string) (githubapi.Tree, error)
	GetCommitActivity(ctx context.Context, owner, repo string, weeks int) (githubapi.CommitActivityResult, error)
	ListMilestones(ctx context.Context, owner, repo string) ([]githubapi.Milestone, error)
}

// TotalsSource supplies uncapped issue and pull request totals.
type TotalsSource interface {
	Totals(ctx context.Context, owner, repo, branch string) (*githubapi.RepoTotals, error)
}

// Invalidator drops cached responses for one repository.
type Invalidator interface {
	InvalidateRepo(ctx context.Context, owner, repo string) error
}

// MetricSink receives the gauges published after each collection.
type MetricSink interface {
	UpsertMetric(point store.MetricPoint) error
}

// CollectorConfig wires a Collector.
type CollectorConfig struct {
	Source      Source
	Totals      TotalsSource
	Invalidator Invalidator
	Metrics     MetricSink
	Activity    *githubapi.ActivityTracker
	// WeeklyActivityWeeks defaults to DefaultWeeklyActivityWeeks.
	WeeklyActivityWeeks int
	Logger              *zap.Logger
	Now                 func() time.Time
}

// Collector runs the fetch, reconcile and aggregate flow for one branch.
type Collector struct {
	source      Source
	totals      TotalsSource
	invalidator Invalidator
	metrics     MetricSink
	activity    *githubapi.ActivityTracker
	weeks       int
	logger      *zap.Logger
	now         func() time.Time
}

// NewCollector validates cfg and returns a collector.
func NewCollector(cfg CollectorConfig) (*Collector, error) {
	if cfg.Source == nil {
		return nil, errors.New("dashboard source is required")
	}
	weeks := cfg.WeeklyActivityWeeks
	if weeks <= 0 {
		weeks = DefaultWeeklyActivityWeeks
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	activity := cfg.Activity
	if activity == nil {
		activity = githubapi.NewActivityTracker(githubapi.ActivityStateMachine{StaleAfter: 10 * time.Minute})
	}
	return &Collector{
		source:      cfg.Source,
		totals:      cfg.Totals,
		invalidator: cfg.Invalidator,
		metrics:     cfg.Metrics,
		activity:    activity,
		weeks:       weeks,
		logger:      logger,
		now:         now,
	}, nil
}

// Collect builds the dashboard for target. A missing repository returns
// ErrRepositoryNotFound and an unknown branch returns reconcile.ErrBranchNotFound.
func (c *Collector) Collect(ctx context.Context, target Target) (*Dashboard, error) {
	target.Owner = strings.TrimSpace(target.Owner)
	target.Repo = strings.TrimSpace(target.Repo)
	target.Branch = strings.TrimSpace(target.Branch)
	if target.Owner == "" || target.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dashboard.collect")
	defer span.End()
	span.SetAttributes(attribute.String("github.repo", target.FullName()))

	repository, err := c.source.GetRepository(ctx, target.Owner, target.Repo)
	if err != nil {
		return nil, fmt.Errorf("fetch repository: %w", err)
	}
	if repository == nil {
		return nil, repositoryNotFound(target)
	}
	if target.Branch == "" {
		target.Branch = repository.DefaultBranch
	}
	span.SetAttributes(attribute.String("github.branch", target.Branch))

	branches, err := c.source.ListBranches(ctx, target.Owner, target.Repo)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	if err := reconcile.ValidateBranch(target.Owner, target.Repo, target.Branch, branches); err != nil {
		return nil, err
	}

	commits, err := c.source.ListCommits(ctx, target.Owner, target.Repo, target.Branch, 0)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	scope, err := reconcile.Reconcile(ctx, reconcile.Input{
		Owner:         target.Owner,
		Repo:          target.Repo,
		Commits:       commits,
		BranchNames:   branches,
		Branch:        target.Branch,
		DefaultBranch: repository.DefaultBranch,
		Compare: func(ctx context.Context, base, head string) (*githubapi.Comparison, error) {
			return c.source.CompareCommits(ctx, target.Owner, target.Repo, base, head)
		},
		DefaultHashes: func(ctx context.Context, defaultBranch string) (map[string]struct{}, error) {
			return c.source.DefaultBranchSHAs(ctx, target.Owner, target.Repo, defaultBranch)
		},
	})
	if err != nil {
		return nil, err
	}
	if scope.FallbackReason != "" {
		c.logger.Warn("compare unavailable, using hash exclusion",
			zap.String("repo", target.FullName()),
			zap.String("branch", target.Branch),
			zap.String("reason", scope.FallbackReason),
			zap.Error(scope.FallbackError),
		)
	}

	dashboard := &Dashboard{
		Target:         target,
		DefaultBranch:  repository.DefaultBranch,
		Repository:     *repository,
		Branches:       branches,
		Commits:        scope.Commits,
		Strategy:       scope.Strategy,
		AheadBy:        scope.AheadBy,
		FallbackReason: scope.FallbackReason,
		Authors:        authors.Aggregate(scope.Commits).Sorted(),
	}
	if err := c.collectDetails(ctx, dashboard); err != nil {
		return nil, err
	}

	if c.totals != nil {
		totals, err := c.totals.Totals(ctx, target.Owner, target.Repo, target.Branch)
		if err != nil {
			c.logger.Warn("graphql totals unavailable", zap.String("repo", target.FullName()), zap.Error(err))
		} else {
			dashboard.Totals = totals
		}
	}

	now := c.now()
	dashboard.FetchedAt = now
	score := health.Score(InputFrom(dashboard, now))
	dashboard.Health = Health{Score: score, Label: health.Label(score)}

	c.publish(dashboard)
	c.logger.Info("dashboard collected",
		zap.String("repo", target.FullName()),
		zap.String("branch", target.Branch),
		zap.String("strategy", string(dashboard.Strategy)),
		zap.Int("commits", len(dashboard.Commits)),
		zap.Int("health", score),
	)
	return dashboard, nil
}

// Refresh drops the repository's cached responses and collects again.
func (c *Collector) Refresh(ctx context.Context, target Target) (*Dashboard, error) {
	if c.invalidator != nil {
		if err := c.invalidator.InvalidateRepo(ctx, target.Owner, target.Repo); err != nil {
			return nil, fmt.Errorf("invalidate cache: %w", err)
		}
	}
	return c.Collect(ctx, target)
}

// ActivityState reports the statistics warm-up state for a repository.
func (c *Collector) ActivityState(target Target) githubapi.ActivityState {
	return c.activity.State(target.FullName())
}

// collectDetails fetches the branch-independent listings concurrently. Each
// goroutine writes a distinct field.
func (c *Collector) collectDetails(ctx context.Context, d *Dashboard) error {
	owner, repo, branch := d.Target.Owner, d.Target.Repo, d.Target.Branch
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	group.Go(func() error {
		issues, err := c.source.ListIssues(groupCtx, owner, repo)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		d.Issues = issues
		return nil
	})
	group.Go(func() error {
		pulls, err := c.source.ListPullRequests(groupCtx, owner, repo)
		if err != nil {
			return fmt.Errorf("list pull requests: %w", err)
		}
		d.Pulls = make([]PullRequest, 0, len(pulls))
		d.BranchPulls = []PullRequest{}
		for _, pull := range pulls {
			entry := PullRequest{PullRequest: pull, IsBranch: pull.Touches(branch)}
			d.Pulls = append(d.Pulls, entry)
			if entry.IsBranch {
				d.BranchPulls = append(d.BranchPulls, entry)
			}
		}
		return nil
	})
	group.Go(func() error {
		languages, err := c.source.GetLanguages(groupCtx, owner, repo)
		if err != nil {
			return fmt.Errorf("get languages: %w", err)
		}
		d.Languages = languages
		return nil
	})
	group.Go(func() error {
		tree, err := c.source.GetTree(groupCtx, owner, repo, branch)
		if err != nil {
			return fmt.Errorf("get tree: %w", err)
		}
		d.Files = make([]File, 0, len(tree.Entries))
		for _, entry := range tree.Entries {
			d.Files = append(d.Files, File{Path: entry.Path, Size: entry.Size, Classification: classify.Classify(entry.Path)})
		}
		d.FilesTruncated = tree.Truncated
		return nil
	})
	group.Go(func() error {
		contributors, err := c.source.ListContributors(groupCtx, owner, repo)
		if err != nil {
			return fmt.Errorf("list contributors: %w", err)
		}
		d.Contributors = contributors
		return nil
	})
	group.Go(func() error {
		activity, err := c.source.GetCommitActivity(groupCtx, owner, repo, c.weeks)
		if err != nil {
			return fmt.Errorf("get commit activity: %w", err)
		}
		d.WeeklyActivity = activity.Weeks
		state := c.activity.Observe(d.Target.FullName(), activity.Status.StatusCode(), c.now())
		d.ActivityStatus = state.Mode
		return nil
	})
	group.Go(func() error {
		milestones, err := c.source.ListMilestones(groupCtx, owner, repo)
		if err != nil {
			return fmt.Errorf("list milestones: %w", err)
		}
		d.Milestones = milestones
		return nil
	})
	return group.Wait()
}

func (c *Collector) publish(d *Dashboard) {
	if c.metrics == nil {
		return
	}
	labels := map[string]string{"repo": d.Target.FullName(), "branch": d.Target.Branch}
	closed := 0
	for _, issue := range d.Issues {
		if issue.State == "closed" {
			closed++
		}
	}
	merged := 0
	for _, pull := range d.BranchPulls {
		if pull.Merged() {
			merged++
		}
	}

	gauges := []struct {
		name  string
		value float64
		extra map[string]string
	}{
		{name: "branchscope_branch_commits", value: float64(len(d.Commits))},
		{name: "branchscope_branch_authors", value: float64(len(d.Authors))},
		{name: "branchscope_health_score", value: float64(d.Health.Score)},
		{name: "branchscope_issues", value: float64(len(d.Issues) - closed), extra: map[string]string{"state": "open"}},
		{name: "branchscope_issues", value: float64(closed), extra: map[string]string{"state": "closed"}},
		{name: "branchscope_branch_pull_requests", value: float64(len(d.BranchPulls) - merged), extra: map[string]string{"state": "unmerged"}},
		{name: "branchscope_branch_pull_requests", value: float64(merged), extra: map[string]string{"state": "merged"}},
		{name: "branchscope_branch_files", value: float64(len(d.Files))},
		{name: "branchscope_last_collect_timestamp_seconds", value: float64(d.FetchedAt.Unix())},
	}
	for _, gauge := range gauges {
		pointLabels := make(map[string]string, len(labels)+len(gauge.extra))
		for key, value := range labels {
			pointLabels[key] = value
		}
		for key, value := range gauge.extra {
			pointLabels[key] = value
		}
		err := c.metrics.UpsertMetric(store.MetricPoint{
			Name:      gauge.name,
			Labels:    pointLabels,
			Value:     gauge.value,
			UpdatedAt: d.FetchedAt,
		})
		if err != nil {
			c.logger.Warn("metric publish failed", zap.String("metric", gauge.name), zap.Error(err))
		}
	}
}
