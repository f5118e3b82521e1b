package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/branchscope/internal/exporter"
	"github.com/cam3ron2/branchscope/internal/health"
	"github.com/cam3ron2/branchscope/internal/store"
	"go.uber.org/zap"
)

const (
	defaultMaintenanceInterval = time.Minute
	githubFailureThreshold     = 3
	githubRecoverThreshold     = 1
	shutdownTimeout            = 15 * time.Second
)

type gcCache interface {
	GC()
}

type contextGCCache interface {
	GC(ctx context.Context)
}

// Runtime serves the HTTP API and runs background maintenance over Services.
type Runtime struct {
	services  *Services
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	mu                  sync.RWMutex
	cacheHealthy        bool
	stateHealthy        bool
	jobsRunning         bool
	githubHealthy       bool
	githubFailureStreak int
	githubRecoverStreak int

	// Interval between maintenance cycles. Zero uses one minute.
	Interval time.Duration
	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime around already-wired services.
func NewRuntime(services *Services) *Runtime {
	logger := services.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		services:      services,
		evaluator:     health.NewStatusEvaluator(),
		logger:        logger,
		cacheHealthy:  true,
		stateHealthy:  true,
		githubHealthy: true,
		Now:           services.now,
	}
}

// Handler returns the combined API, metrics and probe handler.
func (r *Runtime) Handler() http.Handler {
	return NewHTTPHandler(
		NewAPI(r.services),
		exporter.NewOpenMetricsHandler(r.services.Metrics),
		health.NewHandler(r),
	)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		CacheHealthy:  r.cacheHealthy,
		StateHealthy:  r.stateHealthy,
		JobsRunning:   r.jobsRunning,
		GitHubHealthy: r.githubHealthy,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// Run starts the job workers, the maintenance loop and the HTTP server, and
// shuts them down when ctx is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	cfg := r.services.Config.Server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.setJobsRunning(true)
		r.services.Jobs.Run(runCtx)
		r.setJobsRunning(false)
	}()
	go func() {
		defer wg.Done()
		r.runMaintenanceLoop(runCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		r.logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var resultErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown requested")
	case err, ok := <-serverErr:
		if ok && err != nil {
			resultErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http server shutdown failed", zap.Error(err))
		resultErr = errors.Join(resultErr, err)
	}
	cancel()
	wg.Wait()
	r.logger.Info("runtime stopped")
	return resultErr
}

// RunMaintenanceCycle probes dependencies, records their health and collects
// expired cache entries, jobs and metric series.
func (r *Runtime) RunMaintenanceCycle(ctx context.Context) {
	now := r.Now()
	cycleStart := time.Now()

	cacheErr := r.services.Cache.Ping(ctx)
	if cacheErr != nil {
		r.logger.Warn("cache ping failed", zap.Error(cacheErr))
	}
	stateErr := checkStateStore(ctx, r.services.State)
	if stateErr != nil {
		r.logger.Warn("state store check failed", zap.Error(stateErr))
	}
	githubErr := r.probeGitHub(ctx, now)
	if githubErr != nil {
		r.logger.Warn("github probe failed", zap.Error(githubErr))
	}

	r.mu.Lock()
	r.cacheHealthy = cacheErr == nil
	r.stateHealthy = stateErr == nil
	r.updateGitHubHealthLocked(githubErr == nil)
	githubHealthy := r.githubHealthy
	r.mu.Unlock()

	r.recordDependencyHealthMetrics(now)

	switch cache := r.services.Cache.(type) {
	case gcCache:
		cache.GC()
	case contextGCCache:
		cache.GC(ctx)
	}
	r.services.Jobs.GC()
	r.services.Metrics.GC(now)

	r.logger.Debug(
		"maintenance cycle completed",
		zap.Bool("cache_healthy", cacheErr == nil),
		zap.Bool("state_healthy", stateErr == nil),
		zap.Bool("github_healthy", githubHealthy),
		zap.Int("jobs", len(r.services.Jobs.List())),
		zap.Duration("duration", time.Since(cycleStart)),
	)
}

func (r *Runtime) runMaintenanceLoop(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunMaintenanceCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("maintenance loop stopped")
			return
		case <-ticker.C:
			r.RunMaintenanceCycle(ctx)
		}
	}
}

// probeGitHub reads the rate-limit budget, which does not count against it.
func (r *Runtime) probeGitHub(ctx context.Context, now time.Time) error {
	if r.services.REST == nil {
		return nil
	}
	limits, err := r.services.REST.RateLimits(ctx)
	if err != nil {
		return err
	}
	for _, limit := range limits {
		r.recordMetricBestEffort(store.MetricPoint{
			Name:      "branchscope_github_rate_limit_remaining",
			Labels:    map[string]string{"resource": limit.Resource},
			Value:     float64(limit.Remaining),
			UpdatedAt: now,
		})
	}
	return nil
}

func (r *Runtime) setJobsRunning(running bool) {
	r.mu.Lock()
	r.jobsRunning = running
	r.mu.Unlock()
}

func (r *Runtime) updateGitHubHealthLocked(probeSuccessful bool) {
	if probeSuccessful {
		r.githubFailureStreak = 0
		if r.githubHealthy {
			r.githubRecoverStreak = 0
			return
		}
		r.githubRecoverStreak++
		if r.githubRecoverStreak >= githubRecoverThreshold {
			r.githubHealthy = true
			r.githubRecoverStreak = 0
		}
		return
	}

	r.githubRecoverStreak = 0
	r.githubFailureStreak++
	if r.githubFailureStreak >= githubFailureThreshold {
		r.githubHealthy = false
	}
}

func (r *Runtime) recordDependencyHealthMetrics(now time.Time) {
	r.mu.RLock()
	components := map[string]bool{
		"cache":       r.cacheHealthy,
		"state_store": r.stateHealthy,
		"jobs":        r.jobsRunning,
		"github":      r.githubHealthy,
	}
	r.mu.RUnlock()

	for dependency, healthy := range components {
		value := 0.0
		if healthy {
			value = 1
		}
		r.recordMetricBestEffort(store.MetricPoint{
			Name:      "branchscope_dependency_health",
			Labels:    map[string]string{"dependency": dependency},
			Value:     value,
			UpdatedAt: now,
		})
	}
}

func (r *Runtime) recordMetricBestEffort(point store.MetricPoint) {
	if err := r.services.Metrics.UpsertMetric(point); err != nil {
		r.logger.Warn(
			"failed to persist operational metric",
			zap.String("metric", point.Name),
			zap.Error(err),
		)
	}
}
