// Package dashboard collects everything the branch views need in one pass.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/classify"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/health"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"github.com/cam3ron2/branchscope/internal/reconcile"
)

// ErrRepositoryNotFound is matched by errors.Is when the repository is missing
// or hidden from the current credentials.
var ErrRepositoryNotFound = errors.New("repository not found")

// Target names one repository branch. An empty Branch means the default branch.
type Target struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// FullName is owner/repo.
func (t Target) FullName() string {
	return t.Owner + "/" + t.Repo
}

// StateKey is the project state key for the target.
func (t Target) StateKey() string {
	return projectstate.Key(t.Owner, t.Repo, t.Branch)
}

// URL is the branch page on GitHub.
func (t Target) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s/tree/%s", t.Owner, t.Repo, t.Branch)
}

func repositoryNotFound(t Target) error {
	return fmt.Errorf("%w: Repository '%s' not found or not accessible. Check the URL and ensure your token has access to this repository",
		ErrRepositoryNotFound, t.FullName())
}

// PullRequest is a pull request with its branch relation.
type PullRequest struct {
	githubapi.PullRequest
	IsBranch bool `json:"is_branch"`
}

// File is one blob of the branch tree.
type File struct {
	Path           string            `json:"path"`
	Size           int64             `json:"size"`
	Classification classify.Category `json:"classification"`
}

// Health is the scored branch health.
type Health struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

// Dashboard is the collected view of one branch.
type Dashboard struct {
	Target         Target                   `json:"target"`
	DefaultBranch  string                   `json:"default_branch"`
	Repository     githubapi.Repository     `json:"repository"`
	Branches       []string                 `json:"branches"`
	Commits        []githubapi.Commit       `json:"commits"`
	Strategy       reconcile.Strategy       `json:"strategy"`
	AheadBy        int                      `json:"ahead_by"`
	FallbackReason string                   `json:"fallback_reason,omitempty"`
	Authors        []*authors.Rollup        `json:"authors"`
	Issues         []githubapi.Issue        `json:"issues"`
	Pulls          []PullRequest            `json:"pulls"`
	BranchPulls    []PullRequest            `json:"branch_pulls"`
	Languages      map[string]int64         `json:"languages"`
	Files          []File                   `json:"files"`
	FilesTruncated bool                     `json:"files_truncated"`
	Contributors   []githubapi.Contributor  `json:"contributors"`
	WeeklyActivity []githubapi.WeekActivity `json:"weekly_activity"`
	ActivityStatus githubapi.ActivityMode   `json:"activity_status"`
	Milestones     []githubapi.Milestone    `json:"milestones"`
	Totals         *githubapi.RepoTotals    `json:"totals,omitempty"`
	Health         Health                   `json:"health"`
	FetchedAt      time.Time                `json:"fetched_at"`
}

// Author returns the rollup for one identity, or nil.
func (d *Dashboard) Author(id string) *authors.Rollup {
	for _, rollup := range d.Authors {
		if rollup.ID == id {
			return rollup
		}
	}
	return nil
}

// CommitRefs converts the branch commits for project state overlays.
func (d *Dashboard) CommitRefs() []projectstate.CommitRef {
	refs := make([]projectstate.CommitRef, 0, len(d.Commits))
	for _, commit := range d.Commits {
		refs = append(refs, projectstate.CommitRef{
			SHA:       commit.SHA,
			ShortSHA:  commit.ShortSHA,
			Message:   commit.Message,
			Author:    commit.AuthorID,
			Timestamp: commit.Date,
		})
	}
	return refs
}

// LatestCommit is the most recent dated branch commit, or nil.
func (d *Dashboard) LatestCommit() *time.Time {
	var latest *time.Time
	for _, commit := range d.Commits {
		if commit.Date != nil && (latest == nil || commit.Date.After(*latest)) {
			latest = commit.Date
		}
	}
	return latest
}

// InputFrom derives the health input from already-aggregated dashboard data.
func InputFrom(d *Dashboard, now time.Time) health.ScoreInput {
	input := health.ScoreInput{
		LatestCommit:   d.LatestCommit(),
		IssuesTotal:    len(d.Issues),
		BranchPRsTotal: len(d.BranchPulls),
		Authors:        len(d.Authors),
		Now:            now,
	}
	for _, issue := range d.Issues {
		if issue.State == "closed" {
			input.IssuesClosed++
		}
	}
	for _, pull := range d.BranchPulls {
		if pull.Merged() {
			input.BranchPRsMerged++
		}
	}
	return input
}
