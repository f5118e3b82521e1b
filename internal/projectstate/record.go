// Package projectstate persists per-branch project timeline records and their
// commit annotations.
package projectstate

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Default project window offsets from today.
const (
	DefaultLeadDays  = 30
	DefaultTrailDays = 30
)

// ActivityTags is the closed vocabulary for commit annotations.
var ActivityTags = []string{
	"Architecture", "Backend", "Frontend", "Database",
	"DevOps", "Security", "Testing", "Documentation",
	"Bug Fix", "Feature", "Refactor", "Config",
}

// ValidTag reports whether tag is blank or one of ActivityTags.
func ValidTag(tag string) bool {
	trimmed := strings.TrimSpace(tag)
	return trimmed == "" || slices.Contains(ActivityTags, trimmed)
}

// Key builds the composite record key "{owner}/{repo}@{branch}".
func Key(owner, repo, branch string) string {
	return fmt.Sprintf("%s/%s@%s", owner, repo, branch)
}

// Date is a calendar date at UTC midnight, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the date for year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates ts to its UTC calendar day.
func DateOf(ts time.Time) Date {
	utc := ts.UTC()
	return NewDate(utc.Year(), utc.Month(), utc.Day())
}

// ParseDate parses an ISO date. A datetime prefix is accepted.
func ParseDate(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > len(dateLayout) {
		trimmed = trimmed[:len(dateLayout)]
	}
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return Date{Time: parsed}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Annotation is the user-entered tag and description for one commit.
type Annotation struct {
	Tag  string `json:"tag"`
	Desc string `json:"desc"`
}

// IsBlank reports whether both fields are empty.
func (a Annotation) IsBlank() bool {
	return strings.TrimSpace(a.Tag) == "" && strings.TrimSpace(a.Desc) == ""
}

// Record is the persisted project state for one branch.
type Record struct {
	ProjectStart Date                  `json:"project_start"`
	ProjectEnd   Date                  `json:"project_end"`
	Extensions   []Date                `json:"extensions"`
	CommitInputs map[string]Annotation `json:"commit_inputs"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Default returns the record used when nothing is stored for a key.
func Default(now time.Time) Record {
	today := DateOf(now)
	return Record{
		ProjectStart: Date{Time: today.AddDate(0, 0, -DefaultLeadDays)},
		ProjectEnd:   Date{Time: today.AddDate(0, 0, DefaultTrailDays)},
		Extensions:   []Date{},
		CommitInputs: map[string]Annotation{},
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	cloned := r
	cloned.Extensions = slices.Clone(r.Extensions)
	cloned.CommitInputs = maps.Clone(r.CommitInputs)
	if cloned.CommitInputs == nil {
		cloned.CommitInputs = map[string]Annotation{}
	}
	if cloned.Extensions == nil {
		cloned.Extensions = []Date{}
	}
	return cloned
}

// Touch stamps UpdatedAt.
func (r *Record) Touch(now time.Time) {
	r.UpdatedAt = now.UTC()
}

// AddExtension appends a deadline extension date.
func (r *Record) AddExtension(d Date) {
	r.Extensions = append(r.Extensions, d)
}

// ClearExtensions removes all extension dates.
func (r *Record) ClearExtensions() {
	r.Extensions = []Date{}
}

// EffectiveEnd is the latest extension, or ProjectEnd when there are none.
func (r Record) EffectiveEnd() Date {
	end := r.ProjectEnd
	for _, ext := range r.Extensions {
		if ext.After(end.Time) {
			end = ext
		}
	}
	return end
}

// Annotate sets the annotation for a full commit SHA. Blank annotations remove the entry.
func (r *Record) Annotate(sha string, annotation Annotation) error {
	trimmedSHA := strings.TrimSpace(sha)
	if trimmedSHA == "" {
		return fmt.Errorf("sha is required")
	}
	annotation.Tag = strings.TrimSpace(annotation.Tag)
	annotation.Desc = strings.TrimSpace(annotation.Desc)
	if !ValidTag(annotation.Tag) {
		return fmt.Errorf("unknown activity tag %q", annotation.Tag)
	}
	if r.CommitInputs == nil {
		r.CommitInputs = map[string]Annotation{}
	}
	if annotation.IsBlank() {
		delete(r.CommitInputs, trimmedSHA)
		return nil
	}
	r.CommitInputs[trimmedSHA] = annotation
	return nil
}

// Validate checks window ordering and tags.
func (r Record) Validate() error {
	var errs []string
	if r.ProjectStart.IsZero() {
		errs = append(errs, "project_start is required")
	}
	if r.ProjectEnd.IsZero() {
		errs = append(errs, "project_end is required")
	}
	if !r.ProjectStart.IsZero() && !r.ProjectEnd.IsZero() && r.ProjectEnd.Before(r.ProjectStart.Time) {
		errs = append(errs, "project_end must not be before project_start")
	}
	shas := make([]string, 0, len(r.CommitInputs))
	for sha := range r.CommitInputs {
		shas = append(shas, sha)
	}
	sort.Strings(shas)
	for _, sha := range shas {
		if !ValidTag(r.CommitInputs[sha].Tag) {
			errs = append(errs, fmt.Sprintf("commit_inputs[%s].tag %q is not a known activity tag", sha, r.CommitInputs[sha].Tag))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid project record: %s", strings.Join(errs, "; "))
	}
	return nil
}

type rawRecord struct {
	ProjectStart string                `json:"project_start"`
	ProjectEnd   string                `json:"project_end"`
	Extensions   []string              `json:"extensions"`
	CommitInputs map[string]Annotation `json:"commit_inputs"`
	UpdatedAt    string                `json:"updated_at"`
}

// decodeRecord decodes a stored body leniently: unparsable dates fall back to the
// defaults and unparsable extensions are dropped.
func decodeRecord(data []byte, now time.Time) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default(now), fmt.Errorf("decode project record: %w", err)
	}

	record := Default(now)
	if start, err := ParseDate(raw.ProjectStart); err == nil {
		record.ProjectStart = start
	}
	if end, err := ParseDate(raw.ProjectEnd); err == nil {
		record.ProjectEnd = end
	}
	for _, ext := range raw.Extensions {
		if parsed, err := ParseDate(ext); err == nil {
			record.Extensions = append(record.Extensions, parsed)
		}
	}
	for sha, annotation := range raw.CommitInputs {
		record.CommitInputs[sha] = annotation
	}
	record.UpdatedAt = parseTimestamp(raw.UpdatedAt)
	return record, nil
}

func encodeRecord(record Record) ([]byte, error) {
	normalized := record.Clone()
	if !normalized.UpdatedAt.IsZero() {
		normalized.UpdatedAt = normalized.UpdatedAt.UTC()
	}
	body, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode project record: %w", err)
	}
	return body, nil
}

func parseTimestamp(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
