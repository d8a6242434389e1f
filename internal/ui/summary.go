package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"medallion/internal/aggregate"
	"medallion/internal/ledger"
	"medallion/internal/merge"
)

// SummaryRenderer renders run results and derived views as tables
type SummaryRenderer struct {
	useColor bool
}

// NewSummaryRenderer creates a new summary renderer
func NewSummaryRenderer(useColor bool) *SummaryRenderer {
	return &SummaryRenderer{useColor: useColor}
}

// RenderMergeResult writes a merge run summary
func (r *SummaryRenderer) RenderMergeResult(w io.Writer, entity string, result merge.Result) {
	fmt.Fprintf(w, "\nMerge run for %s (%s)\n", entity, formatDuration(result.Duration))
	if result.FullScan {
		fmt.Fprintln(w, "  full history scan (empty target)")
	} else {
		fmt.Fprintf(w, "  scan floor %s\n", result.Floor.Format("2006-01-02 15:04:05"))
	}

	table := r.newTable(w)
	table.SetHeader([]string{"Metric", "Count"})

	rows := [][]string{
		{"Snapshots scanned", fmt.Sprintf("%d", result.Scanned)},
		{"After dedup", fmt.Sprintf("%d", result.Deduplicated)},
		{"Inserted", r.green(fmt.Sprintf("%d", result.Inserted))},
		{"Updated", fmt.Sprintf("%d", result.Updated)},
	}
	if result.Dropped > 0 {
		rows = append(rows, []string{"Dropped (no key)", r.red(fmt.Sprintf("%d", result.Dropped))})
	}
	if result.Corrupt > 0 {
		rows = append(rows, []string{"Dropped (corrupt payload)", r.red(fmt.Sprintf("%d", result.Corrupt))})
	}
	if result.CastFailures > 0 {
		rows = append(rows, []string{"Cast failures", r.yellow(fmt.Sprintf("%d", result.CastFailures))})
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// RenderCheckResult writes a history check summary
func (r *SummaryRenderer) RenderCheckResult(w io.Writer, entity string, result ledger.Result) {
	fmt.Fprintf(w, "\nHistory check for %s (%s)\n", entity, formatDuration(result.Duration))

	table := r.newTable(w)
	table.SetHeader([]string{"Metric", "Count"})

	rows := [][]string{
		{"Keys examined", fmt.Sprintf("%d", result.Keys)},
		{"Intervals opened", r.green(fmt.Sprintf("%d", result.Opened))},
		{"Intervals rotated", r.yellow(fmt.Sprintf("%d", result.Rotated))},
		{"Unchanged", fmt.Sprintf("%d", result.Unchanged)},
	}
	if result.Invalidated > 0 {
		rows = append(rows, []string{"Invalidated (hard delete)", r.red(fmt.Sprintf("%d", result.Invalidated))})
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// RenderGenreRollup writes the per-genre KPI table
func (r *SummaryRenderer) RenderGenreRollup(w io.Writer, stats []aggregate.GenreStats) {
	table := r.newTable(w)
	table.SetHeader([]string{"Genre", "Titles", "Revenue", "Avg Rating"})

	for _, s := range stats {
		table.Append([]string{
			s.Genre,
			fmt.Sprintf("%d", s.Titles),
			fmt.Sprintf("%d", s.TotalRevenue),
			fmt.Sprintf("%.2f", s.AverageRating),
		})
	}
	table.Render()
}

// RenderTopRevenue writes the revenue ranking table
func (r *SummaryRenderer) RenderTopRevenue(w io.Writer, entries []aggregate.RevenueEntry) {
	table := r.newTable(w)
	table.SetHeader([]string{"#", "Title", "Revenue"})

	for i, e := range entries {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Title,
			fmt.Sprintf("%d", e.Revenue),
		})
	}
	table.Render()
}

// RenderYearlyRollup writes the per-year release table
func (r *SummaryRenderer) RenderYearlyRollup(w io.Writer, stats []aggregate.YearStats) {
	table := r.newTable(w)
	table.SetHeader([]string{"Year", "Titles", "Revenue", "Budget", "Avg Rating"})

	for _, s := range stats {
		table.Append([]string{
			fmt.Sprintf("%d", s.Year),
			fmt.Sprintf("%d", s.Titles),
			fmt.Sprintf("%d", s.TotalRevenue),
			fmt.Sprintf("%d", s.TotalBudget),
			fmt.Sprintf("%.2f", s.AverageRating),
		})
	}
	table.Render()
}

// RenderROI writes the return-on-investment table
func (r *SummaryRenderer) RenderROI(w io.Writer, entries []aggregate.ROIEntry) {
	table := r.newTable(w)
	table.SetHeader([]string{"Title", "Budget", "Revenue", "ROI"})

	for _, e := range entries {
		roi := fmt.Sprintf("%.2f", e.ROI)
		if r.useColor {
			if e.ROI >= 0 {
				roi = color.GreenString(roi)
			} else {
				roi = color.RedString(roi)
			}
		}
		table.Append([]string{
			e.Title,
			fmt.Sprintf("%d", e.Budget),
			fmt.Sprintf("%d", e.Revenue),
			roi,
		})
	}
	table.Render()
}

// StatusRow describes one table in the status display
type StatusRow struct {
	Entity string
	Layer  string
	Table  string
	Rows   int64
	Cursor string
}

// RenderStatus writes the table inventory with row counts and cursors
func (r *SummaryRenderer) RenderStatus(w io.Writer, rows []StatusRow) {
	table := r.newTable(w)
	table.SetHeader([]string{"Entity", "Layer", "Table", "Rows", "Cursor"})

	for _, row := range rows {
		cursor := row.Cursor
		if cursor == "" {
			cursor = "-"
		}
		table.Append([]string{
			row.Entity,
			strings.ToLower(row.Layer),
			row.Table,
			fmt.Sprintf("%d", row.Rows),
			cursor,
		})
	}
	table.Render()
}

func (r *SummaryRenderer) newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func (r *SummaryRenderer) green(s string) string {
	if r.useColor {
		return color.GreenString(s)
	}
	return s
}

func (r *SummaryRenderer) red(s string) string {
	if r.useColor {
		return color.RedString(s)
	}
	return s
}

func (r *SummaryRenderer) yellow(s string) string {
	if r.useColor {
		return color.YellowString(s)
	}
	return s
}
