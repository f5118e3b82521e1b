// Package report renders the compliance evidence document and the
// contributor workbook.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/githubapi"
)

// Section is one selectable part of the compliance report.
type Section string

// Report sections in document order.
const (
	SectionExecutiveSummary    Section = "Executive Summary"
	SectionAssetInventory      Section = "Asset Inventory (A.8)"
	SectionAccessControl       Section = "Access Control (A.9)"
	SectionChangeManagement    Section = "Change Management (A.12)"
	SectionDevelopmentSecurity Section = "Development Security (A.14)"
	SectionIncidentManagement  Section = "Incident Management (A.16)"
	SectionFullAuditTrail      Section = "Full Audit Trail"
)

const (
	maxReportCommits = 200
	maxAuditEntries  = 500
	placeholder      = "—"
	timestampLayout  = "2006-01-02 15:04"
	dateLayout       = "2006-01-02"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var complianceTemplate = template.Must(template.New("compliance.html.tmpl").
	Funcs(template.FuncMap{
		"percent": func(part, whole int) string {
			return fmt.Sprintf("%.1f", float64(part)/float64(max(whole, 1))*100)
		},
		"percent64": func(part, whole int64) string {
			return fmt.Sprintf("%.1f", float64(part)/float64(max(whole, 1))*100)
		},
	}).
	ParseFS(templateFS, "templates/compliance.html.tmpl"))

// AllSections lists every section in document order.
func AllSections() []Section {
	return []Section{
		SectionExecutiveSummary,
		SectionAssetInventory,
		SectionAccessControl,
		SectionChangeManagement,
		SectionDevelopmentSecurity,
		SectionIncidentManagement,
		SectionFullAuditTrail,
	}
}

// DefaultSections is every section except the full audit trail.
func DefaultSections() []Section {
	return AllSections()[:6]
}

// ParseSections resolves section names case-insensitively. The short control
// identifiers ("A.8") and "audit" are accepted too. Empty input selects the defaults.
func ParseSections(names []string) ([]Section, error) {
	if len(names) == 0 {
		return DefaultSections(), nil
	}
	selected := map[Section]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		var match Section
		for _, section := range AllSections() {
			full := strings.ToLower(string(section))
			if name == full || strings.Contains(full, "("+name+")") ||
				(name == "audit" && section == SectionFullAuditTrail) ||
				(name == "summary" && section == SectionExecutiveSummary) {
				match = section
				break
			}
		}
		if match == "" {
			return nil, fmt.Errorf("unknown report section %q", raw)
		}
		selected[match] = true
	}
	if len(selected) == 0 {
		return DefaultSections(), nil
	}
	out := make([]Section, 0, len(selected))
	for _, section := range AllSections() {
		if selected[section] {
			out = append(out, section)
		}
	}
	return out, nil
}

// Control is one Annex A control with its evidence availability.
type Control struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Evidence  string `json:"evidence"`
	Source    string `json:"source"`
	Available bool   `json:"available"`
}

// Controls maps the dashboard to the five evidence controls.
func Controls(d *dashboard.Dashboard) []Control {
	return []Control{
		{ID: "A.8", Name: "Asset Management", Evidence: "File inventory, language distribution, asset classification", Source: "Asset Inventory", Available: len(d.Files) > 0},
		{ID: "A.9", Name: "Access Control", Evidence: "Contributor registry, activity patterns, access levels", Source: "Access Registry", Available: len(d.Authors) > 0},
		{ID: "A.12", Name: "Operations Security", Evidence: "Complete change log, change frequency, author attribution", Source: "Change Ledger", Available: len(d.Commits) > 0},
		{ID: "A.14", Name: "System Development Security", Evidence: "PR lifecycle, code review coverage, merge history", Source: "Pull Requests", Available: len(d.Pulls) > 0},
		{ID: "A.16", Name: "Incident Management", Evidence: "Issue tracking, resolution times, severity categorization", Source: "Incident Log", Available: len(d.Issues) > 0},
	}
}

// Readiness is the share of controls with available evidence.
type Readiness struct {
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// ReadinessOf summarizes controls.
func ReadinessOf(controls []Control) Readiness {
	readiness := Readiness{Total: len(controls)}
	for _, control := range controls {
		if control.Available {
			readiness.Covered++
		}
	}
	if readiness.Total > 0 {
		readiness.Percent = float64(readiness.Covered) / float64(readiness.Total) * 100
	}
	return readiness
}

// ComplianceFilename is the default download name of the report.
func ComplianceFilename(target dashboard.Target, now time.Time) string {
	return fmt.Sprintf("ISO27001_%s_%s_%s.html", target.Repo, safeName(target.Branch), now.Format(dateLayout))
}

// Compliance renders the self-contained HTML evidence report.
func Compliance(d *dashboard.Dashboard, sections []Section, now time.Time) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("dashboard is required")
	}
	var buf bytes.Buffer
	if err := complianceTemplate.Execute(&buf, newComplianceView(d, sections, now)); err != nil {
		return nil, fmt.Errorf("render compliance report: %w", err)
	}
	return buf.Bytes(), nil
}

type labeledCount struct {
	Label string
	Count int
}

type languageShare struct {
	Name  string
	Bytes int64
}

type authorRow struct {
	ID, Name, First, Last string
	Commits, Days         int
}

type commitRow struct {
	SHA, Date, Author, Message string
}

type pullRow struct {
	Number                                            int
	Title, State, Author, Head, Base, Created, Merged string
}

type issueRow struct {
	Number                                                        int
	Title, State, Author, Assignee, Labels, Created, Closed, Days string
}

type auditEntry struct {
	at                            *time.Time
	Date, Type, Author, Ref, Desc string
}

type complianceView struct {
	Owner, Repo, Branch, Now string
	Sections                 map[string]bool
	Health                   int
	HealthLabel              string
	Commits, Authors, Files  int
	IssueCount, PullCount    int
	Classifications          []labeledCount
	Languages                []languageShare
	LanguageTotal            int64
	AuthorRows               []authorRow
	FirstDate, LastDate      string
	CommitRows               []commitRow
	CommitsTruncated         bool
	PullRows                 []pullRow
	IssueRows                []issueRow
	OpenIssues, ClosedIssues int
	AvgResolution            string
	Audit                    []auditEntry
	Controls                 []Control
	Readiness                Readiness
}

func newComplianceView(d *dashboard.Dashboard, sections []Section, now time.Time) complianceView {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	view := complianceView{
		Owner:       d.Target.Owner,
		Repo:        d.Target.Repo,
		Branch:      d.Target.Branch,
		Now:         now.Format(timestampLayout),
		Sections:    map[string]bool{},
		Health:      d.Health.Score,
		HealthLabel: d.Health.Label,
		Commits:     len(d.Commits),
		Authors:     len(d.Authors),
		Files:       len(d.Files),
		IssueCount:  len(d.Issues),
		PullCount:   len(d.BranchPulls),
		FirstDate:   placeholder,
		LastDate:    placeholder,
	}
	for _, section := range sections {
		view.Sections[string(section)] = true
	}
	view.Controls = Controls(d)
	view.Readiness = ReadinessOf(view.Controls)

	classifications := map[string]int{}
	for _, file := range d.Files {
		classifications[string(file.Classification)]++
	}
	for label, count := range classifications {
		view.Classifications = append(view.Classifications, labeledCount{Label: label, Count: count})
	}
	sort.Slice(view.Classifications, func(i, j int) bool {
		if view.Classifications[i].Count != view.Classifications[j].Count {
			return view.Classifications[i].Count > view.Classifications[j].Count
		}
		return view.Classifications[i].Label < view.Classifications[j].Label
	})

	for name, size := range d.Languages {
		view.Languages = append(view.Languages, languageShare{Name: name, Bytes: size})
		view.LanguageTotal += size
	}
	sort.Slice(view.Languages, func(i, j int) bool {
		if view.Languages[i].Bytes != view.Languages[j].Bytes {
			return view.Languages[i].Bytes > view.Languages[j].Bytes
		}
		return view.Languages[i].Name < view.Languages[j].Name
	})

	for _, rollup := range d.Authors {
		row := authorRow{
			ID:      rollup.ID,
			Name:    rollup.Name,
			Commits: rollup.Commits,
			First:   formatTime(rollup.First, dateLayout),
			Last:    formatTime(rollup.Last, dateLayout),
		}
		if rollup.First != nil && rollup.Last != nil {
			row.Days = int(dateOnly(*rollup.Last).Sub(dateOnly(*rollup.First)).Hours()/24) + 1
		}
		view.AuthorRows = append(view.AuthorRows, row)
	}

	var first, last *time.Time
	for _, commit := range d.Commits {
		if commit.Date == nil {
			continue
		}
		if first == nil || commit.Date.Before(*first) {
			first = commit.Date
		}
		if last == nil || commit.Date.After(*last) {
			last = commit.Date
		}
	}
	view.FirstDate = formatTime(first, dateLayout)
	view.LastDate = formatTime(last, dateLayout)

	for i, commit := range d.Commits {
		if i == maxReportCommits {
			view.CommitsTruncated = true
			break
		}
		view.CommitRows = append(view.CommitRows, commitRow{
			SHA:     commit.ShortSHA,
			Date:    formatTime(commit.Date, timestampLayout),
			Author:  commit.AuthorID,
			Message: commit.Message,
		})
	}

	for _, pull := range d.BranchPulls {
		view.PullRows = append(view.PullRows, pullRow{
			Number:  pull.Number,
			Title:   pull.Title,
			State:   pull.State,
			Author:  orPlaceholder(pull.Author),
			Head:    pull.Head,
			Base:    pull.Base,
			Created: formatTime(pull.CreatedAt, timestampLayout),
			Merged:  formatTime(pull.MergedAt, timestampLayout),
		})
	}

	resolutionTotal, resolutionCount := 0, 0
	for _, issue := range d.Issues {
		switch issue.State {
		case "open":
			view.OpenIssues++
		case "closed":
			view.ClosedIssues++
			if issue.ResolutionDays != nil {
				resolutionTotal += *issue.ResolutionDays
				resolutionCount++
			}
		}
		view.IssueRows = append(view.IssueRows, issueRowFor(issue))
	}
	view.AvgResolution = placeholder
	if resolutionCount > 0 {
		view.AvgResolution = fmt.Sprintf("%.0f days", float64(resolutionTotal)/float64(resolutionCount))
	}

	view.Audit = auditTrail(d)
	return view
}

func issueRowFor(issue githubapi.Issue) issueRow {
	row := issueRow{
		Number:   issue.Number,
		Title:    issue.Title,
		State:    issue.State,
		Author:   orPlaceholder(issue.Author),
		Assignee: orPlaceholder(issue.Assignee),
		Labels:   strings.Join(issue.Labels, ", "),
		Created:  formatTime(issue.CreatedAt, timestampLayout),
		Closed:   formatTime(issue.ClosedAt, timestampLayout),
		Days:     placeholder,
	}
	if issue.ResolutionDays != nil {
		row.Days = fmt.Sprintf("%d", *issue.ResolutionDays)
	}
	return row
}

// auditTrail merges commits, issues and branch pull requests, newest first.
// Undated events sort last.
func auditTrail(d *dashboard.Dashboard) []auditEntry {
	entries := make([]auditEntry, 0, len(d.Commits)+len(d.Issues)+len(d.BranchPulls))
	for _, commit := range d.Commits {
		entries = append(entries, auditEntry{at: commit.Date, Type: "Commit", Author: commit.AuthorID, Ref: commit.SHA, Desc: commit.Message})
	}
	for _, issue := range d.Issues {
		entries = append(entries, auditEntry{at: issue.CreatedAt, Type: "Issue", Author: orPlaceholder(issue.Author), Ref: fmt.Sprintf("#%d", issue.Number), Desc: issue.Title})
	}
	for _, pull := range d.BranchPulls {
		entries = append(entries, auditEntry{at: pull.CreatedAt, Type: "PR", Author: orPlaceholder(pull.Author), Ref: fmt.Sprintf("#%d", pull.Number), Desc: pull.Title})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].at, entries[j].at
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(entries) > maxAuditEntries {
		entries = entries[:maxAuditEntries]
	}
	for i := range entries {
		entries[i].Date = formatTime(entries[i].at, timestampLayout)
	}
	return entries
}

func formatTime(ts *time.Time, layout string) string {
	if ts == nil {
		return placeholder
	}
	return ts.Format(layout)
}

func orPlaceholder(value string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func dateOnly(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func safeName(value string) string {
	return strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(value)
}
