package dashboard

import (
	"testing"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/health"
	"github.com/stretchr/testify/assert"
)

func TestInputFrom(t *testing.T) {
	t.Parallel()

	d := &Dashboard{
		Commits: []githubapi.Commit{commit("a", "alice", day(3)), commit("b", "bob", nil), commit("c", "alice", day(9))},
		Authors: []*authors.Rollup{{ID: "alice"}, {ID: "bob"}},
		Issues:  []githubapi.Issue{{State: "closed"}, {State: "closed"}, {State: "open"}},
		BranchPulls: []PullRequest{
			{PullRequest: githubapi.PullRequest{MergedAt: day(4)}},
			{PullRequest: githubapi.PullRequest{}},
		},
	}

	input := InputFrom(d, fixedNow)
	assert.Equal(t, health.ScoreInput{
		LatestCommit:    day(9),
		IssuesTotal:     3,
		IssuesClosed:    2,
		BranchPRsTotal:  2,
		BranchPRsMerged: 1,
		Authors:         2,
		Now:             fixedNow,
	}, input)
}

func TestInputFromEmptyDashboard(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 35, health.Score(InputFrom(&Dashboard{}, fixedNow)))
}

func TestDashboardHelpers(t *testing.T) {
	t.Parallel()

	d := &Dashboard{
		Target:  Target{Owner: "octo", Repo: "hello", Branch: "feature/x"},
		Commits: []githubapi.Commit{commit("a1", "alice", day(3))},
		Authors: []*authors.Rollup{{ID: "alice", Commits: 1}},
	}
	assert.Equal(t, "octo/hello@feature/x", d.Target.StateKey())
	assert.Equal(t, "https://github.com/octo/hello/tree/feature/x", d.Target.URL())
	assert.NotNil(t, d.Author("alice"))
	assert.Nil(t, d.Author("bob"))

	refs := d.CommitRefs()
	if assert.Len(t, refs, 1) {
		assert.Equal(t, "alice", refs[0].Author)
		assert.True(t, refs[0].Timestamp.Equal(time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)))
	}
}
