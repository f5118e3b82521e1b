package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/gantt"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/projectstate"
)

const (
	dashboardAuthorRows = 10
	timestampLayout     = "2006-01-02 15:04"
	dash                = "—"
)

// Section returns a styled header with a rule under it.
func Section(title string) string {
	return fmt.Sprintf("\n %s\n %s\n", StyleHeader.Render(title), StyleMuted.Render(strings.Repeat("─", 66)))
}

// HealthBar renders a 0-100 score as a bar, e.g. "████████░░ 80/100 Healthy".
func HealthBar(score, width int, label string) string {
	if width <= 0 {
		width = 20
	}
	filled := min(max(score*width/100, 0), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	text := fmt.Sprintf("%s %d/100", HealthStyle(score).Render(bar), score)
	if label != "" {
		text += " " + HealthStyle(score).Render(label)
	}
	return text
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Dashboard prints the branch summary.
func Dashboard(w io.Writer, d *dashboard.Dashboard) error {
	var sb strings.Builder
	sb.WriteString(Section(fmt.Sprintf("%s @ %s", d.Target.FullName(), d.Target.Branch)))

	summary := NewTable("Field", "Value")
	summary.AddRow("Description", orDash(d.Repository.Description))
	summary.AddRow("Default branch", d.DefaultBranch)
	summary.AddRow("Stars / forks", fmt.Sprintf("%d / %d", d.Repository.Stars, d.Repository.Forks))
	summary.AddRow("Open issues", strconv.Itoa(d.Repository.OpenIssues))
	summary.AddRow("Pushed", formatTime(d.Repository.PushedAt))
	summary.AddRow("Health", HealthBar(d.Health.Score, 20, d.Health.Label))
	summary.AddRow("Branch commits", strconv.Itoa(len(d.Commits)))
	summary.AddRow("Strategy", strategyText(d))
	summary.AddRow("Authors", strconv.Itoa(len(d.Authors)))
	summary.AddRow("Branch PRs", strconv.Itoa(len(d.BranchPulls)))
	summary.AddRow("Files", filesText(d))
	summary.AddRow("Stats", string(d.ActivityStatus))
	if d.Totals != nil {
		summary.AddRow("Issues (total)", fmt.Sprintf("%d open, %d closed", d.Totals.OpenIssues, d.Totals.ClosedIssues))
		summary.AddRow("PRs (total)", fmt.Sprintf("%d open, %d merged, %d closed", d.Totals.OpenPulls, d.Totals.MergedPulls, d.Totals.ClosedPulls))
	}
	sb.WriteString(summary.Render())

	sb.WriteString(Section("Top authors"))
	sb.WriteString(authorTable(d.Authors, dashboardAuthorRows).Render())
	if len(d.Authors) > dashboardAuthorRows {
		sb.WriteString(StyleMuted.Render(fmt.Sprintf("… %d more", len(d.Authors)-dashboardAuthorRows)) + "\n")
	}

	if len(d.Languages) > 0 {
		sb.WriteString(Section("Languages"))
		sb.WriteString(languageTable(d.Languages).Render())
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Authors prints every author rollup.
func Authors(w io.Writer, rollups []*authors.Rollup) error {
	_, err := authorTable(rollups, 0).WriteTo(w)
	return err
}

// Analysis prints one author's enrichment analysis.
func Analysis(w io.Writer, a authors.Analysis) error {
	var sb strings.Builder
	name := a.Name
	if name == "" {
		name = a.Author
	}
	sb.WriteString(Section("Contributor " + name))

	summary := NewTable("Metric", "Value")
	summary.AddRow("Commits", strconv.Itoa(a.Commits))
	summary.AddRow("Details fetched", fmt.Sprintf("%d (%d failed)", a.Succeeded, a.Failed))
	summary.AddRow("Lines added", StyleSuccess.Render("+"+strconv.Itoa(a.Additions)))
	summary.AddRow("Lines deleted", StyleError.Render("-"+strconv.Itoa(a.Deletions)))
	summary.AddRow("Net lines", strconv.Itoa(a.Net))
	summary.AddRow("Files changed", strconv.Itoa(a.FilesChanged))
	summary.AddRow("Unique files", strconv.Itoa(a.UniqueFiles))
	summary.AddRow("Active", fmt.Sprintf("%s to %s (%d days)", formatTime(a.First), formatTime(a.Last), a.DaysActive))
	summary.AddRow("Commits/day", fmt.Sprintf("%.2f", a.AvgCommitsPerDay))
	summary.AddRow("Files/commit", fmt.Sprintf("%.2f", a.AvgFilesPerCommit))
	sb.WriteString(summary.Render())

	if len(a.TopFiles) > 0 {
		sb.WriteString(Section("Most touched files"))
		files := NewTable("Path", "Class", "Commits", "+", "-", "Net")
		for _, file := range a.TopFiles {
			files.AddRow(file.Path, string(file.Classification), strconv.Itoa(file.Commits),
				strconv.Itoa(file.Additions), strconv.Itoa(file.Deletions), strconv.Itoa(file.Net))
		}
		sb.WriteString(files.Render())
	}

	if len(a.Classifications) > 0 {
		sb.WriteString(Section("File classes"))
		sb.WriteString(countTable("Classification", a.Classifications).Render())
	}
	sb.WriteString(Section("Commit sizes"))
	sb.WriteString(countTable("Lines changed", a.SizeHistogram).Render())
	sb.WriteString(Section("Weekdays"))
	sb.WriteString(countTable("Day", a.Weekdays).Render())

	_, err := io.WriteString(w, sb.String())
	return err
}

// Timeline prints the annotated commits and the derived tasks.
func Timeline(w io.Writer, annotated []projectstate.AnnotatedCommit, tasks []gantt.Task, orphans []string) error {
	var sb strings.Builder
	sb.WriteString(Section("Commits"))
	commits := NewTable("SHA", "Date", "Author", "Tag", "Description", "Message")
	for _, commit := range annotated {
		commits.AddRow(commit.ShortSHA, formatTime(commit.Timestamp), commit.Author, orDash(commit.Tag), orDash(commit.Desc), truncate(commit.Message, 50))
	}
	sb.WriteString(commits.Render())

	sb.WriteString(Section("Tasks"))
	taskTable := NewTable("Author", "Tag", "Start", "End", "Duration", "SHA", "Description")
	for _, task := range tasks {
		tag := task.Tag
		if tag == gantt.TagIdle {
			tag = StyleMuted.Render(tag)
		}
		taskTable.AddRow(task.Author, tag, task.Start.Format(timestampLayout), task.End.Format(timestampLayout), task.Duration().Round(time.Minute).String(), orDash(task.SHA), task.Description)
	}
	sb.WriteString(taskTable.Render())

	if len(orphans) > 0 {
		sb.WriteString(StyleWarning.Render(fmt.Sprintf("%d stored annotations match no fetched commit", len(orphans))) + "\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Record prints one stored project record.
func Record(w io.Writer, key string, record projectstate.Record) error {
	var sb strings.Builder
	sb.WriteString(Section(key))
	fields := NewTable("Field", "Value")
	fields.AddRow("Start", record.ProjectStart.String())
	fields.AddRow("End", record.ProjectEnd.String())
	extensions := make([]string, 0, len(record.Extensions))
	for _, ext := range record.Extensions {
		extensions = append(extensions, ext.String())
	}
	fields.AddRow("Extensions", orDash(strings.Join(extensions, ", ")))
	fields.AddRow("Effective end", record.EffectiveEnd().String())
	fields.AddRow("Annotations", strconv.Itoa(len(record.CommitInputs)))
	if !record.UpdatedAt.IsZero() {
		fields.AddRow("Updated", record.UpdatedAt.Format(timestampLayout))
	}
	sb.WriteString(fields.Render())

	if len(record.CommitInputs) > 0 {
		shas := make([]string, 0, len(record.CommitInputs))
		for sha := range record.CommitInputs {
			shas = append(shas, sha)
		}
		sort.Strings(shas)
		annotations := NewTable("SHA", "Tag", "Description")
		for _, sha := range shas {
			annotation := record.CommitInputs[sha]
			annotations.AddRow(sha, orDash(annotation.Tag), orDash(annotation.Desc))
		}
		sb.WriteString(annotations.Render())
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// RateLimits prints the rate-limit budgets.
func RateLimits(w io.Writer, limits []githubapi.RateLimitSummary, now time.Time) error {
	table := NewTable("Resource", "Remaining", "Limit", "Used", "Resets in")
	for _, limit := range limits {
		remaining := strconv.Itoa(limit.Remaining)
		if limit.Limit > 0 && limit.Remaining*10 < limit.Limit {
			remaining = StyleError.Render(remaining)
		}
		resetIn := limit.Reset.Sub(now).Round(time.Second)
		table.AddRow(limit.Resource, remaining, strconv.Itoa(limit.Limit), strconv.Itoa(limit.Used), max(resetIn, 0).String())
	}
	_, err := table.WriteTo(w)
	return err
}

// Progress returns an enrichment progress callback that rewrites one line on w.
func Progress(w io.Writer, label string) authors.ProgressFunc {
	var mu sync.Mutex
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "\r%s %d/%d", label, done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

func authorTable(rollups []*authors.Rollup, limit int) *Table {
	table := NewTable("Author", "Name", "Commits", "First", "Last")
	for i, rollup := range rollups {
		if limit > 0 && i == limit {
			break
		}
		table.AddRow(rollup.ID, orDash(rollup.Name), strconv.Itoa(rollup.Commits), formatTime(rollup.First), formatTime(rollup.Last))
	}
	return table
}

func languageTable(languages map[string]int64) *Table {
	type share struct {
		name  string
		bytes int64
	}
	var total int64
	shares := make([]share, 0, len(languages))
	for name, size := range languages {
		shares = append(shares, share{name: name, bytes: size})
		total += size
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].bytes != shares[j].bytes {
			return shares[i].bytes > shares[j].bytes
		}
		return shares[i].name < shares[j].name
	})
	table := NewTable("Language", "Bytes", "Share")
	for _, s := range shares {
		table.AddRow(s.name, strconv.FormatInt(s.bytes, 10), fmt.Sprintf("%.1f%%", float64(s.bytes)/float64(max(total, 1))*100))
	}
	return table
}

func countTable(label string, counts []authors.Count) *Table {
	table := NewTable(label, "Count")
	for _, count := range counts {
		table.AddRow(count.Label, strconv.Itoa(count.Count))
	}
	return table
}

func strategyText(d *dashboard.Dashboard) string {
	text := string(d.Strategy)
	if d.FallbackReason != "" {
		text += StyleMuted.Render(" (" + d.FallbackReason + ")")
	}
	return text
}

func filesText(d *dashboard.Dashboard) string {
	text := strconv.Itoa(len(d.Files))
	if d.FilesTruncated {
		text += StyleWarning.Render(" (tree truncated)")
	}
	return text
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return dash
	}
	return ts.Format(timestampLayout)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return dash
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
