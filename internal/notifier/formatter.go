package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/backup"
	"GapSentinel/internal/timeframe"
)

// FormatRunSummary formats a finished run into a Telegram message.
func FormatRunSummary(rep *analyzer.Report) string {
	var b strings.Builder
	s := rep.Summary

	b.WriteString(fmt.Sprintf("🩹 <b>GapSentinel</b> | %s | %s\n\n",
		html.EscapeString(rep.Symbol), rep.FinishedAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Strategy: %s\n", rep.Strategy))
	b.WriteString(fmt.Sprintf("Timeframes: %d (%d with gaps)\n", s.TotalTimeframes, s.TimeframesWithGaps))
	b.WriteString(fmt.Sprintf("Gaps: %d | Missing: %d | %.2fh\n", s.GapsDetected, s.MissingPoints, s.TotalGapDurationHours))
	b.WriteString(fmt.Sprintf("Fixed: %d gaps, +%d points\n", s.GapsFixed, s.PointsAdded))
	b.WriteString(fmt.Sprintf("Success rate: %.2f%%\n", s.FixingSuccessRate))

	if s.TimeframesWithGaps > 0 {
		b.WriteString("\n📈 <b>Per timeframe:</b>\n")
		labels := make([]string, 0, len(rep.Gaps))
		for tf, g := range rep.Gaps {
			if g.HasGaps() {
				labels = append(labels, tf)
			}
		}
		timeframe.SortLabels(labels)
		for _, tf := range labels {
			g := rep.Gaps[tf]
			line := fmt.Sprintf("  %s: %d gaps, %d missing", html.EscapeString(tf), g.Stats.TotalGaps, g.Stats.TotalMissingPoints)
			if fix, ok := rep.Fixes[tf]; ok {
				line += fmt.Sprintf(" → %s (+%d)", fix.Strategy, fix.PointsAdded)
			} else if msg, ok := rep.FixErrors[tf]; ok {
				line += " ⚠️ " + html.EscapeString(msg)
			}
			b.WriteString(line + "\n")
		}
	}

	switch {
	case rep.BackupCreated:
		b.WriteString(fmt.Sprintf("\n💾 Backup: %s\n", html.EscapeString(rep.BackupName)))
	case rep.BackupError != "":
		b.WriteString(fmt.Sprintf("\n⚠️ Backup failed: %s\n", html.EscapeString(rep.BackupError)))
	}
	return b.String()
}

// FormatRunFailure formats a run that aborted.
func FormatRunFailure(symbol string, err error) string {
	return fmt.Sprintf("❌ <b>GapSentinel</b> | %s\n\nRepair failed: %s",
		html.EscapeString(symbol), html.EscapeString(err.Error()))
}

// FormatBackups lists the newest snapshots, at most limit of them.
func FormatBackups(list []backup.Metadata, limit int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Backups</b> (%d)\n\n", len(list)))
	if len(list) == 0 {
		b.WriteString("No backups stored.")
		return b.String()
	}
	list = append([]backup.Metadata(nil), list...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	for i, m := range list {
		if limit > 0 && i == limit {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(list)-limit))
			break
		}
		b.WriteString(fmt.Sprintf("%s · %d rows · %s\n",
			html.EscapeString(m.Name), m.Rows, m.CreatedAt.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatCleanup reports a backup pruning pass.
func FormatCleanup(deleted, keep int, err error) string {
	msg := fmt.Sprintf("🧹 Backup cleanup: %d removed, keeping newest %d", deleted, keep)
	if err != nil {
		msg += "\n⚠️ " + html.EscapeString(err.Error())
	}
	return msg
}

// FormatHistory summarizes recent runs, newest first.
func FormatHistory(runs []analyzer.RunRecord, limit int) string {
	var b strings.Builder
	b.WriteString("🕘 <b>Recent runs</b>\n\n")
	if len(runs) == 0 {
		b.WriteString("No runs yet.")
		return b.String()
	}
	shown := 0
	for i := len(runs) - 1; i >= 0 && (limit <= 0 || shown < limit); i-- {
		r := runs[i]
		icon := "✅"
		if r.Status != analyzer.StatusDone {
			icon = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s %s · %d gaps · +%d · %s\n", icon,
			r.StartedAt.UTC().Format("01-02 15:04"), html.EscapeString(r.Symbol),
			r.Summary.GapsDetected, r.Summary.PointsAdded, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))
		shown++
	}
	return b.String()
}
