// Package report renders run reports and backup listings as text tables.
package report

import (
	"fmt"
	"strings"
	"time"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/backup"
	"GapSentinel/internal/timeframe"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// RenderSummary renders the cross-timeframe summary of a run.
func RenderSummary(rep *analyzer.Report) string {
	s := rep.Summary
	t := newTable(fmt.Sprintf("Gap repair %s", describeRun(rep)))
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Symbol", rep.Symbol},
		{"Strategy", string(rep.Strategy)},
		{"Timeframes", s.TotalTimeframes},
		{"Timeframes with gaps", s.TimeframesWithGaps},
		{"Gaps detected", s.GapsDetected},
		{"Missing points", s.MissingPoints},
		{"Gaps fixed", s.GapsFixed},
		{"Points added", s.PointsAdded},
		{"Timeframes fixed", s.TimeframesFixed},
		{"Fixing success rate", fmt.Sprintf("%.2f%%", s.FixingSuccessRate)},
		{"Total gap duration", fmt.Sprintf("%.2fh", s.TotalGapDurationHours)},
	})
	if rep.BackupCreated {
		t.AppendFooter(table.Row{"Backup", rep.BackupName})
	} else if rep.BackupError != "" {
		t.AppendFooter(table.Row{"Backup", "failed: " + rep.BackupError})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return t.Render()
}

// RenderTimeframes renders one row per timeframe with detection and fix details.
func RenderTimeframes(rep *analyzer.Report) string {
	labels := make([]string, 0, len(rep.Gaps))
	for tf := range rep.Gaps {
		labels = append(labels, tf)
	}
	timeframe.SortLabels(labels)

	t := newTable("Timeframes")
	t.AppendHeader(table.Row{"TF", "Rows", "Interval", "Gaps", "Missing", "Max size", "Strategy", "Added"})
	for _, tf := range labels {
		g := rep.Gaps[tf]
		interval := shortDuration(g.OperativeInterval)
		if g.IsIntervalMismatch {
			interval += " (mismatch)"
		}
		strat, added := "-", "-"
		if fix, ok := rep.Fixes[tf]; ok {
			strat = string(fix.Strategy)
			added = fmt.Sprint(fix.PointsAdded)
		}
		if msg, ok := rep.FixErrors[tf]; ok {
			strat = "error: " + truncate(msg, 40)
		}
		t.AppendRow(table.Row{
			tf, g.Rows, interval, g.Stats.TotalGaps, g.Stats.TotalMissingPoints,
			fmt.Sprintf("%.1f", g.Stats.MaxGapSize), strat, added,
		})
	}
	return t.Render()
}

// RenderBackups lists snapshot metadata.
func RenderBackups(list []backup.Metadata) string {
	t := newTable("Backups")
	t.AppendHeader(table.Row{"Name", "Tag", "Created", "Timeframes", "Rows", "Size"})
	for _, m := range list {
		t.AppendRow(table.Row{
			m.Name, m.Tag, m.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			strings.Join(m.Timeframes, ","), m.Rows, humanBytes(m.Size),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(list)})
	return t.Render()
}

// RenderHistory lists past runs, newest first.
func RenderHistory(runs []analyzer.RunRecord) string {
	t := newTable("Run history")
	t.AppendHeader(table.Row{"Started", "Symbol", "Strategy", "Status", "Gaps", "Added", "Rate"})
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		status := r.Status
		if r.Error != "" {
			status += ": " + truncate(r.Error, 30)
		}
		t.AppendRow(table.Row{
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Symbol, r.Strategy, status,
			r.Summary.GapsDetected, r.Summary.PointsAdded, fmt.Sprintf("%.2f%%", r.Summary.FixingSuccessRate),
		})
	}
	return t.Render()
}

func describeRun(rep *analyzer.Report) string {
	parts := []string{}
	if rep.Symbol != "" {
		parts = append(parts, rep.Symbol)
	}
	parts = append(parts, string(rep.Strategy))
	return strings.Join(parts, " / ")
}

func shortDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
