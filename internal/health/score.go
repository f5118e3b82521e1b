package health

import "time"

// Baseline is the starting point before any adjustment.
const Baseline = 50

// Score labels.
const (
	LabelHealthy        = "Healthy"
	LabelFair           = "Fair"
	LabelNeedsAttention = "Needs Attention"
)

// ScoreInput carries already-aggregated branch data for scoring.
type ScoreInput struct {
	// LatestCommit is the most recent dated commit on the branch, nil when none is dated.
	LatestCommit    *time.Time
	IssuesTotal     int
	IssuesClosed    int
	BranchPRsTotal  int
	BranchPRsMerged int
	Authors         int
	Now             time.Time
}

// Score computes the bounded branch health heuristic in [0,100].
func Score(input ScoreInput) int {
	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	score := Baseline
	score += recencyPoints(input.LatestCommit, now)

	if input.IssuesTotal > 0 {
		score += int(float64(input.IssuesClosed) / float64(input.IssuesTotal) * 15)
	}
	if input.BranchPRsTotal > 0 {
		score += int(float64(input.BranchPRsMerged) / float64(input.BranchPRsTotal) * 15)
	}

	switch {
	case input.Authors >= 3:
		score += 10
	case input.Authors == 2:
		score += 5
	}

	return clampScore(score)
}

// Label maps a score to its display label.
func Label(score int) string {
	switch {
	case score >= 70:
		return LabelHealthy
	case score >= 40:
		return LabelFair
	default:
		return LabelNeedsAttention
	}
}

func recencyPoints(latest *time.Time, now time.Time) int {
	if latest == nil || latest.IsZero() {
		return -15
	}

	// Whole days, truncated like a timedelta's day component.
	days := int(now.Sub(*latest) / (24 * time.Hour))
	if now.Before(*latest) {
		days = -1
	}
	switch {
	case days <= 7:
		return 20
	case days <= 30:
		return 12
	case days <= 90:
		return 5
	default:
		return -10
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
