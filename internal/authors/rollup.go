// Package authors folds branch commits into per-author rollups and enriches an
// author's commits with diff statistics.
package authors

import (
	"sort"
	"time"

	"github.com/cam3ron2/branchscope/internal/githubapi"
)

// Rollup summarizes one author identity over a commit list.
type Rollup struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Login     string     `json:"login,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Commits   int        `json:"commits"`
	First     *time.Time `json:"first,omitempty"`
	Last      *time.Time `json:"last,omitempty"`
}

// Rollups maps author identity to its rollup.
type Rollups map[string]*Rollup

// Aggregate builds rollups in a single pass. Every commit is counted; only dated
// commits move the first and last timestamps.
func Aggregate(commits []githubapi.Commit) Rollups {
	rollups := make(Rollups)
	for _, commit := range commits {
		id := commit.AuthorID
		if id == "" {
			id = githubapi.UnknownAuthor
		}
		rollup, ok := rollups[id]
		if !ok {
			rollup = &Rollup{ID: id}
			rollups[id] = rollup
		}

		rollup.Commits++
		if commit.AuthorName != "" {
			rollup.Name = commit.AuthorName
		}
		if commit.AuthorLogin != "" {
			rollup.Login = commit.AuthorLogin
		}
		if commit.AvatarURL != "" {
			rollup.AvatarURL = commit.AvatarURL
		}
		if commit.Date == nil {
			continue
		}
		date := *commit.Date
		if rollup.First == nil || date.Before(*rollup.First) {
			rollup.First = &date
		}
		if rollup.Last == nil || date.After(*rollup.Last) {
			last := date
			rollup.Last = &last
		}
	}
	return rollups
}

// Sorted returns rollups by commit count descending, then identity.
func (r Rollups) Sorted() []*Rollup {
	out := make([]*Rollup, 0, len(r))
	for _, rollup := range r {
		out = append(out, rollup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ForAuthor returns the dated commits of one identity, oldest first. Undated
// commits cannot be placed on a timeline and are left out.
func ForAuthor(commits []githubapi.Commit, id string) []githubapi.Commit {
	var out []githubapi.Commit
	for _, commit := range commits {
		if commit.AuthorID == id && commit.Date != nil {
			out = append(out, commit)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(*out[j].Date)
	})
	return out
}
