// Package gantt derives per-author timeline tasks from annotated commits.
package gantt

import (
	"sort"
	"strings"
	"time"
)

const (
	// DefaultGap is the span given to an author's last task.
	DefaultGap = 48 * time.Hour
	// DefaultMinSpan is the span forced onto tasks that collapse after clamping.
	DefaultMinSpan = 4 * time.Hour

	// TagUncategorized replaces blank tags.
	TagUncategorized = "Uncategorized"
	// TagIdle marks the synthetic trailing task.
	TagIdle = "Idle"
	// IdleDescription describes the synthetic trailing task.
	IdleDescription = "No activity"
)

// Row is one annotated commit feeding the builder.
type Row struct {
	Author      string
	Tag         string
	Description string
	SHA         string
	Timestamp   time.Time
}

// Window is the project timeline bounds.
type Window struct {
	Start      time.Time
	End        time.Time
	Extensions []time.Time
}

// Options tunes task spans.
type Options struct {
	Gap     time.Duration
	MinSpan time.Duration
}

// Task is one derived timeline bar.
type Task struct {
	Author      string    `json:"author"`
	Tag         string    `json:"tag"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SHA         string    `json:"sha"`
	Description string    `json:"description"`
}

// Duration returns End minus Start.
func (t Task) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Bounds returns the effective window: start date at midnight through the latest
// extension (or end date) at 23:59:59, both in UTC.
func (w Window) Bounds() (time.Time, time.Time) {
	endDate := w.End
	for _, ext := range w.Extensions {
		if ext.IsZero() {
			continue
		}
		if endDate.IsZero() || dayOf(ext).After(dayOf(endDate)) {
			endDate = ext
		}
	}
	start := dayOf(w.Start)
	end := dayOf(endDate).Add(24*time.Hour - time.Second)
	return start, end
}

// Build synthesizes non-overlapping tasks per author. Rows without an author or a
// timestamp are skipped. Output is ordered by author, then start.
func Build(rows []Row, window Window, opts Options) []Task {
	if opts.Gap <= 0 {
		opts.Gap = DefaultGap
	}
	if opts.MinSpan <= 0 {
		opts.MinSpan = DefaultMinSpan
	}
	if window.Start.IsZero() || window.End.IsZero() {
		return []Task{}
	}

	windowStart, windowEnd := window.Bounds()
	if !windowEnd.After(windowStart) {
		return []Task{}
	}

	byAuthor := groupRows(rows)
	authors := make([]string, 0, len(byAuthor))
	for author := range byAuthor {
		authors = append(authors, author)
	}
	sort.Strings(authors)

	tasks := make([]Task, 0, len(rows))
	for _, author := range authors {
		tasks = append(tasks, buildAuthorTasks(author, byAuthor[author], windowStart, windowEnd, opts)...)
	}
	return tasks
}

func buildAuthorTasks(author string, rows []Row, windowStart, windowEnd time.Time, opts Options) []Task {
	tasks := make([]Task, 0, len(rows)+1)
	var lastEnd time.Time

	for i, row := range rows {
		start := clamp(row.Timestamp.UTC(), windowStart, windowEnd)
		if !lastEnd.IsZero() && start.Before(lastEnd) {
			start = lastEnd
		}

		var end time.Time
		if i < len(rows)-1 {
			end = clamp(rows[i+1].Timestamp.UTC(), windowStart, windowEnd)
		} else {
			end = start.Add(opts.Gap)
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		if !end.After(start) {
			end = start.Add(opts.MinSpan)
			if end.After(windowEnd) {
				end = windowEnd
			}
		}
		if !end.After(start) {
			continue
		}

		tag := strings.TrimSpace(row.Tag)
		if tag == "" {
			tag = TagUncategorized
		}
		tasks = append(tasks, Task{
			Author:      author,
			Tag:         tag,
			Start:       start,
			End:         end,
			SHA:         strings.TrimSpace(row.SHA),
			Description: strings.TrimSpace(row.Description),
		})
		lastEnd = end
	}

	if !lastEnd.IsZero() && lastEnd.Before(windowEnd) {
		tasks = append(tasks, Task{
			Author:      author,
			Tag:         TagIdle,
			Start:       lastEnd,
			End:         windowEnd,
			Description: IdleDescription,
		})
	}
	return tasks
}

func groupRows(rows []Row) map[string][]Row {
	grouped := make(map[string][]Row)
	for _, row := range rows {
		author := strings.TrimSpace(row.Author)
		if author == "" || row.Timestamp.IsZero() {
			continue
		}
		row.Author = author
		grouped[author] = append(grouped[author], row)
	}
	for author := range grouped {
		group := grouped[author]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
	}
	return grouped
}

func clamp(ts, lo, hi time.Time) time.Time {
	if ts.Before(lo) {
		return lo
	}
	if ts.After(hi) {
		return hi
	}
	return ts
}

func dayOf(ts time.Time) time.Time {
	utc := ts.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
