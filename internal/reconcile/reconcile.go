// Package reconcile computes the commits that belong uniquely to a branch.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cam3ron2/branchscope/internal/githubapi"
)

// MaxListedBranches bounds the branch names quoted in a not-found error.
const MaxListedBranches = 15

// Strategy names how a branch's commit set was derived.
type Strategy string

const (
	// StrategyNone means the branch is the default branch and nothing was filtered.
	StrategyNone Strategy = "none"
	// StrategyCompare means the compare API supplied the exact ahead-of-default set.
	StrategyCompare Strategy = "compare"
	// StrategyHashExclusion means commits were filtered against the default branch history.
	StrategyHashExclusion Strategy = "hash_exclusion"
)

// Fallback reasons reported when the compare strategy was not used.
const (
	ReasonCompareUnavailable = "compare_unavailable"
	ReasonCompareFailed      = "compare_failed"
	ReasonCompareEmpty       = "compare_empty"
	ReasonCompareIncomplete  = "compare_incomplete"
)

// ErrBranchNotFound is matched by errors.Is on BranchNotFoundError.
var ErrBranchNotFound = errors.New("branch not found")

// BranchNotFoundError reports a requested branch missing from the repository.
type BranchNotFoundError struct {
	Owner     string
	Repo      string
	Branch    string
	Available []string
}

func (e *BranchNotFoundError) Error() string {
	listed := e.Available
	suffix := ""
	if len(listed) > MaxListedBranches {
		listed = listed[:MaxListedBranches]
		suffix = ", ..."
	}
	return fmt.Sprintf("branch '%s' not found in %s/%s, available: %s%s",
		e.Branch, e.Owner, e.Repo, strings.Join(listed, ", "), suffix)
}

// Unwrap lets callers match ErrBranchNotFound.
func (e *BranchNotFoundError) Unwrap() error {
	return ErrBranchNotFound
}

// CompareFunc compares base...head. A nil comparison means none is available.
type CompareFunc func(ctx context.Context, base, head string) (*githubapi.Comparison, error)

// DefaultHashesFunc returns the hashes in the capped default branch history.
type DefaultHashesFunc func(ctx context.Context, defaultBranch string) (map[string]struct{}, error)

// Input is everything Reconcile needs for one branch.
type Input struct {
	Owner         string
	Repo          string
	Commits       []githubapi.Commit
	BranchNames   []string
	Branch        string
	DefaultBranch string
	Compare       CompareFunc
	DefaultHashes DefaultHashesFunc
}

// Result is the branch scope of one reconciliation.
type Result struct {
	Commits        []githubapi.Commit `json:"commits"`
	Strategy       Strategy           `json:"strategy"`
	AheadBy        int                `json:"ahead_by"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	// FallbackError is the compare failure that forced hash exclusion.
	FallbackError error `json:"-"`
}

// ValidateBranch fails when names is non-empty and does not contain branch.
func ValidateBranch(owner, repo, branch string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		if name == branch {
			return nil
		}
	}
	return &BranchNotFoundError{
		Owner:     owner,
		Repo:      repo,
		Branch:    branch,
		Available: append([]string(nil), names...),
	}
}

// Reconcile returns the commits of in.Branch that are not reachable from the
// default branch. The compare API is preferred; any compare failure falls back
// to hash exclusion. Input order is preserved.
func Reconcile(ctx context.Context, in Input) (Result, error) {
	if err := ValidateBranch(in.Owner, in.Repo, in.Branch, in.BranchNames); err != nil {
		return Result{}, err
	}
	if in.Branch == "" || in.Branch == in.DefaultBranch {
		return Result{Commits: in.Commits, Strategy: StrategyNone}, nil
	}

	reason, fallbackErr := ReasonCompareUnavailable, error(nil)
	if in.Compare != nil {
		comparison, err := in.Compare(ctx, in.DefaultBranch, in.Branch)
		switch {
		case err != nil:
			reason, fallbackErr = ReasonCompareFailed, err
		case comparison == nil:
			reason = ReasonCompareUnavailable
		case len(comparison.SHAs) == 0:
			reason = ReasonCompareEmpty
		case len(comparison.SHAs) < comparison.AheadBy:
			reason = ReasonCompareIncomplete
		default:
			return Result{
				Commits:  Intersect(in.Commits, comparison.SHAs),
				Strategy: StrategyCompare,
				AheadBy:  comparison.AheadBy,
			}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if in.DefaultHashes == nil {
		return Result{}, fmt.Errorf("default branch history is required for hash exclusion")
	}
	hashes, err := in.DefaultHashes(ctx, in.DefaultBranch)
	if err != nil {
		return Result{}, fmt.Errorf("fetch default branch history: %w", err)
	}
	unique := ExcludeHashes(in.Commits, hashes)
	return Result{
		Commits:        unique,
		Strategy:       StrategyHashExclusion,
		AheadBy:        len(unique),
		FallbackReason: reason,
		FallbackError:  fallbackErr,
	}, nil
}

// Intersect keeps the commits whose SHA is in shas.
func Intersect(commits []githubapi.Commit, shas []string) []githubapi.Commit {
	keep := make(map[string]struct{}, len(shas))
	for _, sha := range shas {
		keep[sha] = struct{}{}
	}
	out := make([]githubapi.Commit, 0, len(shas))
	for _, commit := range commits {
		if _, ok := keep[commit.SHA]; ok {
			out = append(out, commit)
		}
	}
	return out
}

// ExcludeHashes drops the commits whose SHA is in hashes.
func ExcludeHashes(commits []githubapi.Commit, hashes map[string]struct{}) []githubapi.Commit {
	out := make([]githubapi.Commit, 0, len(commits))
	for _, commit := range commits {
		if _, ok := hashes[commit.SHA]; ok {
			continue
		}
		out = append(out, commit)
	}
	return out
}
