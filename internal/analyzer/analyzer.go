// Package analyzer runs the backup, detect and fix phases over a dataset and exposes
// the maintenance operations around them.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"GapSentinel/internal/backup"
	"GapSentinel/internal/detector"
	"GapSentinel/internal/errs"
	"GapSentinel/internal/fixer"
	"GapSentinel/internal/history"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/model"
	"GapSentinel/internal/progress"
	"GapSentinel/internal/strategy"
	"GapSentinel/internal/timeframe"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	PhaseBackup = "backup"
	PhaseDetect = "detect"
	PhaseFix    = "fix"

	StatusDone   = "done"
	StatusFailed = "failed"
)

// Config configures an Analyzer.
type Config struct {
	Detector   detector.Config
	Thresholds strategy.Thresholds
	// History receives one record per run. When nil a log of HistorySize entries is
	// allocated for the Analyzer alone.
	History     *history.Log[RunRecord]
	HistorySize int
}

// Options control a single run.
type Options struct {
	Symbol            string
	Strategy          strategy.Strategy
	Backup            bool
	BackupTag         string
	BackupDescription string
	Progress          progress.Sink
}

// Summary is the cross-timeframe outcome of a run.
type Summary struct {
	TotalTimeframes       int     `json:"total_timeframes"`
	GapsDetected          int     `json:"gaps_detected"`
	MissingPoints         int     `json:"missing_points"`
	TimeframesWithGaps    int     `json:"timeframes_with_gaps"`
	GapsFixed             int     `json:"gaps_fixed"`
	PointsAdded           int     `json:"points_added"`
	TimeframesFixed       int     `json:"timeframes_fixed"`
	FixingSuccessRate     float64 `json:"fixing_success_rate"`
	TotalGapDurationHours float64 `json:"total_gap_duration_hours"`
}

// Report is everything a run produced apart from the repaired data.
type Report struct {
	RunID         string                      `json:"run_id"`
	Symbol        string                      `json:"symbol,omitempty"`
	Shape         string                      `json:"shape"`
	Strategy      strategy.Strategy           `json:"strategy"`
	Status        string                      `json:"status"`
	Error         string                      `json:"error,omitempty"`
	StartedAt     time.Time                   `json:"started_at"`
	FinishedAt    time.Time                   `json:"finished_at"`
	BackupCreated bool                        `json:"backup_created"`
	BackupName    string                      `json:"backup_name,omitempty"`
	BackupError   string                      `json:"backup_error,omitempty"`
	Gaps          map[string]*model.GapReport `json:"gaps"`
	Fixes         map[string]*fixer.Result    `json:"fixes"`
	FixErrors     map[string]string           `json:"fix_errors,omitempty"`
	Summary       Summary                     `json:"summary"`
	Phases        progress.Summary            `json:"phases"`
}

// Result is the repaired data, in the caller's shape and as a Dataset, plus the report.
type Result struct {
	Output  map[string]any
	Dataset model.Dataset
	Report  *Report
}

// RunRecord is the history entry kept for each run.
type RunRecord struct {
	RunID      string            `json:"run_id"`
	Symbol     string            `json:"symbol,omitempty"`
	Strategy   strategy.Strategy `json:"strategy"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	BackupName string            `json:"backup_name,omitempty"`
	Summary    Summary           `json:"summary"`
}

// Analyzer orchestrates gap repair. Runs for the same symbol must be serialized by the
// caller; independent symbols may run concurrently.
type Analyzer struct {
	detector *detector.Detector
	fixer    *fixer.Fixer
	backups  *backup.Manager
	history  *history.Log[RunRecord]
	logger   *logrus.Logger
	now      func() time.Time
}

// New builds an Analyzer. backups may be nil, in which case backup requests are
// recorded as failed and the backup maintenance calls return InvalidInput.
func New(cfg Config, backups *backup.Manager, logger *logrus.Logger) *Analyzer {
	logger = logging.OrDiscard(logger)
	runs := cfg.History
	if runs == nil {
		runs = history.New[RunRecord](cfg.HistorySize)
	}
	return &Analyzer{
		detector: detector.New(cfg.Detector, logger),
		fixer:    fixer.New(cfg.Thresholds, logger),
		backups:  backups,
		history:  runs,
		logger:   logger,
		now:      time.Now,
	}
}

// Run resolves the input shape, optionally snapshots it, detects gaps in every
// timeframe and fills them. Detection errors abort the run; backup and fix errors are
// recorded in the report. The input is never modified.
func (a *Analyzer) Run(ctx context.Context, input map[string]any, opts Options) (*Result, error) {
	st := opts.Strategy
	if st == "" {
		st = strategy.Auto
	}
	rep := &Report{
		RunID:     uuid.NewString(),
		Symbol:    opts.Symbol,
		Strategy:  st,
		StartedAt: a.now(),
		Gaps:      make(map[string]*model.GapReport),
		Fixes:     make(map[string]*fixer.Result),
		FixErrors: make(map[string]string),
	}
	log := a.logger.WithFields(logrus.Fields{"run": rep.RunID, "symbol": opts.Symbol})

	if !st.Valid() {
		return nil, a.fail(rep, errs.New(errs.UnknownStrategy, "unknown fix strategy %q", st))
	}
	shape, ds, err := Resolve(input)
	if err != nil {
		return nil, a.fail(rep, err)
	}
	rep.Shape = shape.Kind()
	labels := shape.Timeframes()
	timeframe.SortLabels(labels)

	sink := opts.Progress
	if sink == nil {
		sink = func(current, total int, msg string) {
			log.WithField("progress", fmt.Sprintf("%d/%d", current, total)).Debug(msg)
		}
	}
	phases := []string{PhaseDetect, PhaseFix}
	if opts.Backup {
		phases = append([]string{PhaseBackup}, phases...)
	}
	mp := progress.NewMultiPhase(phases, sink)

	if opts.Backup {
		mp.StartPhase(PhaseBackup, 1)
		a.backupPhase(ctx, ds, opts, rep, log)
		mp.FinishPhase("")
	}

	if err := ctx.Err(); err != nil {
		return nil, a.fail(rep, fmt.Errorf("run cancelled before detection: %w", err))
	}
	tr := mp.StartPhase(PhaseDetect, len(labels))
	for _, label := range labels {
		gr, err := a.detector.Detect(label, ds[label])
		if err != nil {
			mp.FinishAll("failed")
			return nil, a.fail(rep, err)
		}
		rep.Gaps[label] = gr
		tr.Increment(label)
	}
	mp.FinishPhase(fmt.Sprintf("%d timeframes scanned", len(labels)))

	if err := ctx.Err(); err != nil {
		return nil, a.fail(rep, fmt.Errorf("run cancelled before fixing: %w", err))
	}
	repaired := make(model.Dataset, len(ds))
	tr = mp.StartPhase(PhaseFix, len(labels))
	for _, label := range labels {
		series, gr := ds[label], rep.Gaps[label]
		repaired[label] = series
		if !gr.HasGaps() {
			tr.Increment(label)
			continue
		}
		res, err := a.fixer.Fix(series, gr, st)
		if err != nil {
			// keep the original series for this timeframe
			rep.FixErrors[label] = err.Error()
			log.WithError(err).WithField("timeframe", label).Warn("fix failed, keeping original series")
			tr.Increment(label)
			continue
		}
		rep.Fixes[label] = res
		repaired[label] = res.Series
		tr.Increment(label)
	}
	rep.Phases = mp.FinishAll("gap repair")

	rep.Summary = summarize(rep)
	rep.Status = StatusDone
	rep.FinishedAt = a.now()
	a.remember(rep)

	log.WithFields(logrus.Fields{
		"timeframes": rep.Summary.TotalTimeframes,
		"gaps":       rep.Summary.GapsDetected,
		"added":      rep.Summary.PointsAdded,
		"rate":       rep.Summary.FixingSuccessRate,
	}).Info("gap repair complete")

	return &Result{Output: shape.Reassemble(repaired), Dataset: repaired, Report: rep}, nil
}

func (a *Analyzer) backupPhase(ctx context.Context, ds model.Dataset, opts Options, rep *Report, log *logrus.Entry) {
	if a.backups == nil {
		rep.BackupError = "no backup store configured"
		log.Warn("backup requested but no backup store configured")
		return
	}
	tag := opts.BackupTag
	if tag == "" {
		tag = opts.Symbol
	}
	desc := opts.BackupDescription
	if desc == "" {
		desc = fmt.Sprintf("before gap repair, run %s", rep.RunID)
	}
	name, err := a.backups.Create(ctx, ds, tag, desc)
	if err != nil {
		rep.BackupError = err.Error()
		log.WithError(err).Warn("backup failed, continuing")
		return
	}
	rep.BackupCreated = true
	rep.BackupName = name
}

func (a *Analyzer) fail(rep *Report, err error) error {
	rep.Status = StatusFailed
	rep.Error = err.Error()
	rep.FinishedAt = a.now()
	a.remember(rep)
	a.logger.WithError(err).WithField("run", rep.RunID).Error("gap repair failed")
	return err
}

func (a *Analyzer) remember(rep *Report) {
	a.history.Append(RunRecord{
		RunID:      rep.RunID,
		Symbol:     rep.Symbol,
		Strategy:   rep.Strategy,
		Status:     rep.Status,
		Error:      rep.Error,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		BackupName: rep.BackupName,
		Summary:    rep.Summary,
	})
}

func summarize(rep *Report) Summary {
	tot := detector.Rollup(rep.Gaps)
	s := Summary{
		TotalTimeframes:    tot.TotalTimeframes,
		GapsDetected:       tot.TotalGaps,
		MissingPoints:      tot.TotalMissingPoints,
		TimeframesWithGaps: tot.TimeframesWithGaps,
	}
	for _, r := range rep.Fixes {
		s.GapsFixed += r.GapsFixed
		s.PointsAdded += r.PointsAdded
		if r.GapsFixed > 0 {
			s.TimeframesFixed++
		}
	}
	rate := 100.0
	if s.TimeframesWithGaps > 0 {
		rate = float64(s.TimeframesFixed) / float64(s.TimeframesWithGaps) * 100
	}
	s.FixingSuccessRate = round2(rate)
	s.TotalGapDurationHours = round2(tot.TotalGapDuration.Hours())
	return s
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// AvailableStrategies lists the strategies Run accepts.
func (a *Analyzer) AvailableStrategies() []strategy.Strategy {
	return strategy.Available()
}

// History returns past runs, oldest first.
func (a *Analyzer) History() []RunRecord {
	return a.history.Entries()
}

func (a *Analyzer) backupManager() (*backup.Manager, error) {
	if a.backups == nil {
		return nil, errs.New(errs.InvalidInput, "no backup store configured")
	}
	return a.backups, nil
}

// RestoreFromBackup returns the dataset stored under name.
func (a *Analyzer) RestoreFromBackup(ctx context.Context, name string) (model.Dataset, backup.Metadata, error) {
	m, err := a.backupManager()
	if err != nil {
		return nil, backup.Metadata{}, err
	}
	return m.Restore(ctx, name)
}

// ListBackups lists snapshots newest first, optionally filtered by tag.
func (a *Analyzer) ListBackups(ctx context.Context, tag string) ([]backup.Metadata, error) {
	m, err := a.backupManager()
	if err != nil {
		return nil, err
	}
	return m.List(ctx, tag)
}

// CleanupBackups keeps the newest keep snapshots.
func (a *Analyzer) CleanupBackups(ctx context.Context, keep int) (int, error) {
	m, err := a.backupManager()
	if err != nil {
		return 0, err
	}
	return m.Cleanup(ctx, keep)
}

// ValidateBackup checks a snapshot's integrity.
func (a *Analyzer) ValidateBackup(ctx context.Context, name string) (backup.Validation, error) {
	m, err := a.backupManager()
	if err != nil {
		return backup.Validation{}, err
	}
	return m.Validate(ctx, name)
}
