package report

import (
	"fmt"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names.
const (
	SheetSummary         = "Summary"
	SheetCommits         = "Commits"
	SheetFiles           = "Files"
	SheetClassifications = "Classifications"
	SheetTimeline        = "Timeline"
)

// ContributorFilename is the default download name of the contributor workbook.
func ContributorFilename(target dashboard.Target, author string, now time.Time) string {
	return fmt.Sprintf("Contributor_%s_%s_%s_%s.xlsx", target.Repo, safeName(target.Branch), safeName(author), now.Format(dateLayout))
}

// ContributorWorkbook builds the per-author XLSX report. The caller owns the
// returned file and must close it.
func ContributorWorkbook(target dashboard.Target, rollup *authors.Rollup, analysis authors.Analysis) (*excelize.File, error) {
	if rollup == nil {
		return nil, fmt.Errorf("author rollup is required")
	}
	book := excelize.NewFile()
	w := &sheetWriter{book: book}

	if err := book.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, closeOnError(book, fmt.Errorf("rename summary sheet: %w", err))
	}
	header, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"7C5CFC"}, Pattern: 1},
	})
	if err != nil {
		return nil, closeOnError(book, fmt.Errorf("create header style: %w", err))
	}
	w.header = header

	name := rollup.Name
	if name == "" {
		name = rollup.ID
	}
	w.table(SheetSummary, []any{"Field", "Value"}, [][]any{
		{"Repository", target.FullName()},
		{"Branch", target.Branch},
		{"Author", rollup.ID},
		{"Name", name},
		{"Login", rollup.Login},
		{"Commits", rollup.Commits},
		{"First Commit", formatTime(rollup.First, timestampLayout)},
		{"Last Commit", formatTime(rollup.Last, timestampLayout)},
		{"Days Active", analysis.DaysActive},
		{"Avg Commits/Day", analysis.AvgCommitsPerDay},
		{"Lines Added", analysis.Additions},
		{"Lines Deleted", analysis.Deletions},
		{"Net Lines", analysis.Net},
		{"Files Changed", analysis.FilesChanged},
		{"Unique Files", analysis.UniqueFiles},
		{"Avg Files/Commit", analysis.AvgFilesPerCommit},
		{"Details Fetched", analysis.Succeeded},
		{"Details Failed", analysis.Failed},
	})

	commits := make([][]any, 0, len(analysis.CommitDetails))
	for _, commit := range analysis.CommitDetails {
		status := "ok"
		if commit.Failed {
			status = "failed"
		}
		commits = append(commits, []any{
			commit.ShortSHA, formatTime(commit.Date, timestampLayout), commit.Message,
			commit.Additions, commit.Deletions, commit.FilesChanged, authors.SizeBucket(commit.Churn()), status,
		})
	}
	w.table(SheetCommits, []any{"SHA", "Date", "Message", "Additions", "Deletions", "Files", "Size", "Detail"}, commits)

	files := make([][]any, 0, len(analysis.Files))
	for _, file := range analysis.Files {
		files = append(files, []any{
			file.Path, string(file.Classification), file.Extension,
			file.Commits, file.Additions, file.Deletions, file.Net,
		})
	}
	w.table(SheetFiles, []any{"Path", "Classification", "Extension", "Commits", "Additions", "Deletions", "Net"}, files)

	classes := make([][]any, 0, len(analysis.Classifications))
	for _, count := range analysis.Classifications {
		classes = append(classes, []any{count.Label, count.Count})
	}
	w.table(SheetClassifications, []any{"Classification", "Files"}, classes)

	timeline := make([][]any, 0, len(analysis.Cumulative))
	for _, point := range analysis.Cumulative {
		timeline = append(timeline, []any{point.Date.Format(timestampLayout), point.SHA, point.Additions, point.Deletions, point.Net})
	}
	w.table(SheetTimeline, []any{"Date", "SHA", "Cumulative Additions", "Cumulative Deletions", "Cumulative Net"}, timeline)

	if w.err != nil {
		return nil, closeOnError(book, w.err)
	}
	book.SetActiveSheet(0)
	return book, nil
}

// sheetWriter keeps the first error so the sheet builders stay linear.
type sheetWriter struct {
	book   *excelize.File
	header int
	err    error
}

func (w *sheetWriter) table(sheet string, header []any, rows [][]any) {
	if w.err != nil {
		return
	}
	if idx, _ := w.book.GetSheetIndex(sheet); idx < 0 {
		if _, err := w.book.NewSheet(sheet); err != nil {
			w.err = fmt.Errorf("create sheet %s: %w", sheet, err)
			return
		}
	}
	if err := w.book.SetSheetRow(sheet, "A1", &header); err != nil {
		w.err = fmt.Errorf("write %s header: %w", sheet, err)
		return
	}
	if err := w.book.SetRowStyle(sheet, 1, 1, w.header); err != nil {
		w.err = fmt.Errorf("style %s header: %w", sheet, err)
		return
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			w.err = err
			return
		}
		if err := w.book.SetSheetRow(sheet, cell, &row); err != nil {
			w.err = fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
			return
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		w.err = err
		return
	}
	if err := w.book.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		w.err = fmt.Errorf("size %s columns: %w", sheet, err)
	}
}

func closeOnError(book *excelize.File, err error) error {
	_ = book.Close()
	return err
}
