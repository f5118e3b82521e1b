package authors

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cam3ron2/branchscope/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent commit detail fetches.
const DefaultConcurrency = 8

// DetailFetcher fetches one commit's diff statistics. A nil detail means the
// commit is unknown to the provider.
type DetailFetcher interface {
	GetCommitDetail(ctx context.Context, owner, repo, sha string) (*githubapi.CommitDetail, error)
}

// ProgressFunc receives the number of finished fetches out of total.
type ProgressFunc func(done, total int)

// CommitStats is one commit with its diff statistics.
type CommitStats struct {
	githubapi.Commit
	Additions    int                    `json:"additions"`
	Deletions    int                    `json:"deletions"`
	FilesChanged int                    `json:"files_changed"`
	Files        []githubapi.CommitFile `json:"files,omitempty"`
	// Failed marks a commit whose detail could not be fetched; its stats are zero.
	Failed bool `json:"failed,omitempty"`
}

// Churn is additions plus deletions.
func (c CommitStats) Churn() int {
	return c.Additions + c.Deletions
}

// Enrichment is the result of one enrichment pass.
type Enrichment struct {
	Commits   []CommitStats `json:"commits"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Additions int           `json:"additions"`
	Deletions int           `json:"deletions"`
	// Files is the number of file changes summed over commits.
	Files     int          `json:"files"`
	FileStats []FileRollup `json:"file_stats"`
}

// Enricher fetches commit details with bounded concurrency.
type Enricher struct {
	Fetcher     DetailFetcher
	Concurrency int
	Logger      *zap.Logger
}

// Enrich fetches details for every commit. A failed fetch contributes zero and
// is counted in Failed. Canceling ctx stops scheduling and returns ctx's error
// with the partial result. The result is sorted by commit date, then SHA.
func (e Enricher) Enrich(ctx context.Context, owner, repo string, commits []githubapi.Commit, progress ProgressFunc) (Enrichment, error) {
	if e.Fetcher == nil {
		return Enrichment{}, errors.New("detail fetcher is required")
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := e.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	total := len(commits)
	results := make([]CommitStats, total)
	fetched := make([]bool, total)

	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, commit := range commits {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			stats := CommitStats{Commit: commit}
			detail, err := e.Fetcher.GetCommitDetail(groupCtx, owner, repo, commit.SHA)
			if err != nil && groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			switch {
			case err != nil:
				stats.Failed = true
				logger.Debug("commit detail fetch failed", zap.String("sha", commit.SHA), zap.Error(err))
			case detail == nil:
				stats.Failed = true
				logger.Debug("commit detail not found", zap.String("sha", commit.SHA))
			default:
				stats.Additions = detail.Additions
				stats.Deletions = detail.Deletions
				stats.Files = detail.Files
				stats.FilesChanged = len(detail.Files)
			}
			results[i] = stats
			fetched[i] = true
			report()
			return nil
		})
	}
	waitErr := group.Wait()

	enrichment := summarize(results, fetched)
	if err := ctx.Err(); err != nil {
		return enrichment, err
	}
	return enrichment, waitErr
}

func summarize(results []CommitStats, fetched []bool) Enrichment {
	enrichment := Enrichment{Commits: make([]CommitStats, 0, len(results))}
	for i, stats := range results {
		if !fetched[i] {
			continue
		}
		enrichment.Commits = append(enrichment.Commits, stats)
		if stats.Failed {
			enrichment.Failed++
			continue
		}
		enrichment.Succeeded++
		enrichment.Additions += stats.Additions
		enrichment.Deletions += stats.Deletions
		enrichment.Files += stats.FilesChanged
	}
	sort.SliceStable(enrichment.Commits, func(i, j int) bool {
		a, b := enrichment.Commits[i], enrichment.Commits[j]
		switch {
		case a.Date == nil && b.Date != nil:
			return true
		case a.Date != nil && b.Date == nil:
			return false
		case a.Date != nil && b.Date != nil && !a.Date.Equal(*b.Date):
			return a.Date.Before(*b.Date)
		}
		return a.SHA < b.SHA
	})
	enrichment.FileStats = fileRollups(enrichment.Commits)
	return enrichment
}
