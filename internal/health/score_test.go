package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	testCases := []struct {
		name  string
		input ScoreInput
		want  int
	}{
		{
			name:  "empty_inputs_apply_no_commit_penalty",
			input: ScoreInput{Now: now},
			want:  35,
		},
		{
			name:  "recent_commit_within_week",
			input: ScoreInput{LatestCommit: ago(3 * 24 * time.Hour), Now: now},
			want:  70,
		},
		{
			name:  "boundary_seven_days",
			input: ScoreInput{LatestCommit: ago(7*24*time.Hour + time.Hour), Now: now},
			want:  70,
		},
		{
			name:  "within_month",
			input: ScoreInput{LatestCommit: ago(20 * 24 * time.Hour), Now: now},
			want:  62,
		},
		{
			name:  "within_quarter",
			input: ScoreInput{LatestCommit: ago(60 * 24 * time.Hour), Now: now},
			want:  55,
		},
		{
			name:  "stale",
			input: ScoreInput{LatestCommit: ago(200 * 24 * time.Hour), Now: now},
			want:  40,
		},
		{
			name: "ratios_truncate",
			input: ScoreInput{
				LatestCommit:    ago(time.Hour),
				IssuesTotal:     3,
				IssuesClosed:    2,
				BranchPRsTotal:  3,
				BranchPRsMerged: 1,
				Now:             now,
			},
			// 50 + 20 + int(10.0) + int(5.0)
			want: 85,
		},
		{
			name:  "two_authors",
			input: ScoreInput{LatestCommit: ago(time.Hour), Authors: 2, Now: now},
			want:  75,
		},
		{
			name: "clamped_to_hundred",
			input: ScoreInput{
				LatestCommit:    ago(time.Hour),
				IssuesTotal:     10,
				IssuesClosed:    10,
				BranchPRsTotal:  4,
				BranchPRsMerged: 4,
				Authors:         12,
				Now:             now,
			},
			want: 100,
		},
		{
			name:  "future_commit_counts_as_recent",
			input: ScoreInput{LatestCommit: ago(-48 * time.Hour), Now: now},
			want:  70,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tc.input)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestScoreAlwaysBounded(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(-5, 0, 0)
	for issues := 0; issues <= 4; issues++ {
		for closed := 0; closed <= issues; closed++ {
			for prs := 0; prs <= 3; prs++ {
				for merged := 0; merged <= prs; merged++ {
					for authors := 0; authors <= 4; authors++ {
						for _, latest := range []*time.Time{nil, &old, &now} {
							got := Score(ScoreInput{
								LatestCommit:    latest,
								IssuesTotal:     issues,
								IssuesClosed:    closed,
								BranchPRsTotal:  prs,
								BranchPRsMerged: merged,
								Authors:         authors,
								Now:             now,
							})
							assert.GreaterOrEqual(t, got, 0)
							assert.LessOrEqual(t, got, 100)
						}
					}
				}
			}
		}
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LabelHealthy, Label(70))
	assert.Equal(t, LabelFair, Label(69))
	assert.Equal(t, LabelFair, Label(40))
	assert.Equal(t, LabelNeedsAttention, Label(39))
	assert.Equal(t, LabelNeedsAttention, Label(0))
}
