package projectstate

import (
	"sort"
	"time"

	"github.com/cam3ron2/branchscope/internal/gantt"
)

// CommitRef is the fetched commit data an annotation is layered onto.
type CommitRef struct {
	SHA       string     `json:"sha"`
	ShortSHA  string     `json:"short_sha"`
	Message   string     `json:"message"`
	Author    string     `json:"author"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AnnotatedCommit is a fetched commit joined with its stored annotation.
type AnnotatedCommit struct {
	CommitRef
	Tag  string `json:"tag"`
	Desc string `json:"desc"`
}

// Overlay joins stored annotations onto freshly fetched commits by full SHA.
// Commits without a stored annotation get blank fields. Stored annotations for
// commits missing from the fetch stay in the record and are not emitted.
func Overlay(record Record, commits []CommitRef) []AnnotatedCommit {
	out := make([]AnnotatedCommit, 0, len(commits))
	for _, commit := range commits {
		annotation := record.CommitInputs[commit.SHA]
		out = append(out, AnnotatedCommit{
			CommitRef: commit,
			Tag:       annotation.Tag,
			Desc:      annotation.Desc,
		})
	}
	return out
}

// Orphans lists annotated SHAs that are absent from commits.
func Orphans(record Record, commits []CommitRef) []string {
	present := make(map[string]struct{}, len(commits))
	for _, commit := range commits {
		present[commit.SHA] = struct{}{}
	}
	var orphans []string
	for sha := range record.CommitInputs {
		if _, ok := present[sha]; !ok {
			orphans = append(orphans, sha)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// GanttRows converts annotated commits into task builder rows.
func GanttRows(annotated []AnnotatedCommit) []gantt.Row {
	rows := make([]gantt.Row, 0, len(annotated))
	for _, commit := range annotated {
		if commit.Timestamp == nil {
			continue
		}
		rows = append(rows, gantt.Row{
			Author:      commit.Author,
			Tag:         commit.Tag,
			Description: commit.Desc,
			SHA:         commit.ShortSHA,
			Timestamp:   *commit.Timestamp,
		})
	}
	return rows
}

// Window returns the timeline window described by the record.
func (r Record) Window() gantt.Window {
	extensions := make([]time.Time, 0, len(r.Extensions))
	for _, ext := range r.Extensions {
		extensions = append(extensions, ext.Time)
	}
	return gantt.Window{
		Start:      r.ProjectStart.Time,
		End:        r.ProjectEnd.Time,
		Extensions: extensions,
	}
}
