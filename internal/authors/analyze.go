package authors

import (
	"sort"
	"time"

	"github.com/cam3ron2/branchscope/internal/classify"
)

const (
	topFilesByCommits = 20
	topFilesByChurn   = 15
)

// SizeBuckets are the commit size histogram labels in display order.
var SizeBuckets = []string{"0", "1-10", "11-50", "51-200", "201-500", "500+"}

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// FileRollup aggregates one file over an author's enriched commits.
type FileRollup struct {
	Path           string            `json:"path"`
	Classification classify.Category `json:"classification"`
	Extension      string            `json:"extension"`
	Commits        int               `json:"commits"`
	Additions      int               `json:"additions"`
	Deletions      int               `json:"deletions"`
	Net            int               `json:"net"`
}

// Churn is additions plus deletions.
func (f FileRollup) Churn() int {
	return f.Additions + f.Deletions
}

// Count is one labeled tally.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CumulativePoint is a running total after one commit.
type CumulativePoint struct {
	Date      time.Time `json:"date"`
	SHA       string    `json:"sha"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
	Net       int       `json:"net"`
}

// Analysis holds the derived statistics of one author's enrichment.
type Analysis struct {
	Author            string            `json:"author"`
	Name              string            `json:"name"`
	Commits           int               `json:"commits"`
	Succeeded         int               `json:"succeeded"`
	Failed            int               `json:"failed"`
	Additions         int               `json:"additions"`
	Deletions         int               `json:"deletions"`
	Net               int               `json:"net"`
	FilesChanged      int               `json:"files_changed"`
	UniqueFiles       int               `json:"unique_files"`
	First             *time.Time        `json:"first,omitempty"`
	Last              *time.Time        `json:"last,omitempty"`
	DaysActive        int               `json:"days_active"`
	AvgCommitsPerDay  float64           `json:"avg_commits_per_day"`
	AvgFilesPerCommit float64           `json:"avg_files_per_commit"`
	Cumulative        []CumulativePoint `json:"cumulative"`
	Files             []FileRollup      `json:"files"`
	TopFiles          []FileRollup      `json:"top_files"`
	TopChurn          []FileRollup      `json:"top_churn"`
	Classifications   []Count           `json:"classifications"`
	Extensions        []Count           `json:"extensions"`
	Weekdays          []Count           `json:"weekdays"`
	Daily             []Count           `json:"daily"`
	SizeHistogram     []Count           `json:"size_histogram"`
	CommitDetails     []CommitStats     `json:"commit_details"`
}

// Analyze derives summary statistics from an enrichment. The rollup supplies
// the author's first and last dates; it may be nil.
func Analyze(enrichment Enrichment, rollup *Rollup) Analysis {
	analysis := Analysis{
		Commits:       len(enrichment.Commits),
		Succeeded:     enrichment.Succeeded,
		Failed:        enrichment.Failed,
		Additions:     enrichment.Additions,
		Deletions:     enrichment.Deletions,
		Net:           enrichment.Additions - enrichment.Deletions,
		FilesChanged:  enrichment.Files,
		CommitDetails: enrichment.Commits,
		Files:         enrichment.FileStats,
	}
	if analysis.Files == nil {
		analysis.Files = fileRollups(enrichment.Commits)
	}
	analysis.UniqueFiles = len(analysis.Files)

	if rollup != nil {
		analysis.Author = rollup.ID
		analysis.Name = rollup.Name
		analysis.First = rollup.First
		analysis.Last = rollup.Last
	}
	analysis.DaysActive = DaysActive(analysis.First, analysis.Last)
	analysis.AvgCommitsPerDay = float64(analysis.Commits) / float64(max(analysis.DaysActive, 1))
	analysis.AvgFilesPerCommit = float64(analysis.FilesChanged) / float64(max(analysis.Commits, 1))

	analysis.Cumulative = cumulative(enrichment.Commits)
	analysis.TopFiles = topFiles(analysis.Files, topFilesByCommits, func(f FileRollup) int { return f.Commits })
	analysis.TopChurn = topFiles(analysis.Files, topFilesByChurn, FileRollup.Churn)

	classifications := map[string]int{}
	extensions := map[string]int{}
	for _, file := range analysis.Files {
		classifications[string(file.Classification)]++
		extensions[file.Extension]++
	}
	analysis.Classifications = rankCounts(classifications)
	analysis.Extensions = rankCounts(extensions)

	analysis.Weekdays = weekdayCounts(enrichment.Commits)
	analysis.Daily = dailyCounts(enrichment.Commits)
	analysis.SizeHistogram = sizeHistogram(enrichment.Commits)
	return analysis
}

// DaysActive counts calendar days from first to last inclusive, or 0 when
// either is missing.
func DaysActive(first, last *time.Time) int {
	if first == nil || last == nil {
		return 0
	}
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// SizeBucket returns the histogram label for a commit's churn.
func SizeBucket(churn int) string {
	switch {
	case churn <= 0:
		return "0"
	case churn <= 10:
		return "1-10"
	case churn <= 50:
		return "11-50"
	case churn <= 200:
		return "51-200"
	case churn <= 500:
		return "201-500"
	}
	return "500+"
}

func fileRollups(commits []CommitStats) []FileRollup {
	byPath := map[string]*FileRollup{}
	for _, commit := range commits {
		for _, file := range commit.Files {
			if file.Filename == "" {
				continue
			}
			rollup, ok := byPath[file.Filename]
			if !ok {
				rollup = &FileRollup{
					Path:           file.Filename,
					Classification: classify.Classify(file.Filename),
					Extension:      classify.ExtensionLabel(file.Filename),
				}
				byPath[file.Filename] = rollup
			}
			rollup.Commits++
			rollup.Additions += file.Additions
			rollup.Deletions += file.Deletions
		}
	}

	out := make([]FileRollup, 0, len(byPath))
	for _, rollup := range byPath {
		rollup.Net = rollup.Additions - rollup.Deletions
		out = append(out, *rollup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func topFiles(files []FileRollup, limit int, by func(FileRollup) int) []FileRollup {
	out := append([]FileRollup(nil), files...)
	sort.SliceStable(out, func(i, j int) bool {
		return by(out[i]) > by(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rankCounts(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for label, count := range counts {
		out = append(out, Count{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func cumulative(commits []CommitStats) []CumulativePoint {
	var out []CumulativePoint
	additions, deletions := 0, 0
	for _, commit := range commits {
		if commit.Date == nil {
			continue
		}
		additions += commit.Additions
		deletions += commit.Deletions
		out = append(out, CumulativePoint{
			Date:      *commit.Date,
			SHA:       commit.SHA,
			Additions: additions,
			Deletions: deletions,
			Net:       additions - deletions,
		})
	}
	return out
}

func weekdayCounts(commits []CommitStats) []Count {
	counts := map[time.Weekday]int{}
	for _, commit := range commits {
		if commit.Date != nil {
			counts[commit.Date.Weekday()]++
		}
	}
	out := make([]Count, 0, len(weekdays))
	for _, day := range weekdays {
		out = append(out, Count{Label: day.String()[:3], Count: counts[day]})
	}
	return out
}

func dailyCounts(commits []CommitStats) []Count {
	counts := map[string]int{}
	for _, commit := range commits {
		if commit.Date != nil {
			counts[commit.Date.Format("2006-01-02")]++
		}
	}
	out := make([]Count, 0, len(counts))
	for day, count := range counts {
		out = append(out, Count{Label: day, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Label < out[j].Label
	})
	return out
}

func sizeHistogram(commits []CommitStats) []Count {
	counts := map[string]int{}
	for _, commit := range commits {
		if commit.Failed {
			continue
		}
		counts[SizeBucket(commit.Churn())]++
	}
	out := make([]Count, 0, len(SizeBuckets))
	for _, bucket := range SizeBuckets {
		out = append(out, Count{Label: bucket, Count: counts[bucket]})
	}
	return out
}
