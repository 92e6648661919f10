// Package report renders statistics overviews as spreadsheet workbooks.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/statistics"
)

// Sheet names of the exported workbook
const (
	SheetSummary   = "Summary"
	SheetTrend     = "Trend"
	SheetExecutors = "Executors"
)

// ContentType is the MIME type of the rendered workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkbookWriter renders an overview into .xlsx bytes
type WorkbookWriter struct {
	logger *zap.Logger
}

// NewWorkbookWriter creates a WorkbookWriter
func NewWorkbookWriter(logger *zap.Logger) *WorkbookWriter {
	return &WorkbookWriter{logger: logger}
}

// Render builds the workbook
func (w *WorkbookWriter) Render(o *statistics.Overview) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetTrend, SheetExecutors} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	w.writeSummary(f, o)
	w.writeRows(f, SheetTrend, []interface{}{"Month", "Documents"}, trendRows(o))
	w.writeRows(f, SheetExecutors, []interface{}{"Principal ID", "Name", "Completed"}, executorRows(o))
	for _, sheet := range []string{SheetSummary, SheetTrend, SheetExecutors} {
		if err := f.SetCellStyle(sheet, "A1", "C1", header); err != nil {
			w.logger.Warn("Failed to style header", zap.String("sheet", sheet), zap.Error(err))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *WorkbookWriter) writeSummary(f *excelize.File, o *statistics.Overview) {
	rows := [][]interface{}{
		{"Generated at", o.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total documents", o.TotalDocuments},
		{"Total assignments", o.TotalAssignments},
		{"Overdue documents", o.OverdueDocuments},
		{"Overdue assignments", o.OverdueAssignments},
		{"Documents this month", o.DocumentsThisMonth},
		{"Completion rate %", o.CompletionRate},
	}
	for _, status := range sortedKeys(o.DocumentsByStatus) {
		rows = append(rows, []interface{}{"Documents " + status, o.DocumentsByStatus[status]})
	}
	for _, t := range o.DocumentsByType {
		rows = append(rows, []interface{}{"Type " + t.Name, t.Count})
	}
	for _, status := range sortedKeys(o.AssignmentsByStatus) {
		rows = append(rows, []interface{}{"Assignments " + status, o.AssignmentsByStatus[status]})
	}
	for _, action := range sortedKeys(o.RecentActivity) {
		rows = append(rows, []interface{}{"Recent " + action, o.RecentActivity[action]})
	}
	w.writeRows(f, SheetSummary, []interface{}{"Metric", "Value"}, rows)
}

func (w *WorkbookWriter) writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) {
	w.setRow(f, sheet, 1, header)
	for i, row := range rows {
		w.setRow(f, sheet, i+2, row)
	}
}

func (w *WorkbookWriter) setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		w.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

func trendRows(o *statistics.Overview) [][]interface{} {
	rows := make([][]interface{}, 0, len(o.MonthlyTrend))
	for _, m := range o.MonthlyTrend {
		rows = append(rows, []interface{}{m.Month, m.Count})
	}
	return rows
}

func executorRows(o *statistics.Overview) [][]interface{} {
	rows := make([][]interface{}, 0, len(o.TopExecutors))
	for _, e := range o.TopExecutors {
		rows = append(rows, []interface{}{e.PrincipalID, e.Name, e.Completed})
	}
	return rows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
