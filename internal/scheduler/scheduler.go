// Package scheduler runs periodic gap repair and backup cleanup, and answers chat
// commands against the same components.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/collector"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/notifier"
	"GapSentinel/internal/recorder"
	"GapSentinel/internal/report"
	"GapSentinel/internal/strategy"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configure the scheduled jobs.
type Options struct {
	Symbols     []string
	Strategy    strategy.Strategy
	Backup      bool
	Keep        int // snapshots kept by the cleanup job
	Concurrency int // symbols repaired in parallel; 0 means all at once
}

// SymbolResult is the outcome of repairing one symbol.
type SymbolResult struct {
	Symbol string
	Report *analyzer.Report
	Err    error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Analyzer *analyzer.Analyzer
	Source   collector.Source
	Writer   collector.Writer // optional
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Ctx      context.Context

	opts   Options
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScheduler creates a new Scheduler. A nil notifier or recorder disables that output.
func NewScheduler(ctx context.Context, an *analyzer.Analyzer, src collector.Source, w collector.Writer,
	n notifier.Notifier, rec recorder.Recorder, opts Options, logger *logrus.Logger) *Scheduler {
	if n == nil {
		n = notifier.Noop{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if opts.Strategy == "" {
		opts.Strategy = strategy.Auto
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Analyzer: an,
		Source:   src,
		Writer:   w,
		Notifier: n,
		Recorder: rec,
		Ctx:      ctx,
		opts:     opts,
		logger:   logging.OrDiscard(logger),
		locks:    make(map[string]*sync.Mutex),
	}
}

// RegisterAll registers the repair and cleanup jobs. An empty cleanup expression skips it.
func (s *Scheduler) RegisterAll(repairCron, cleanupCron string) error {
	if _, err := s.Cron.AddFunc(repairCron, s.repairTask); err != nil {
		return fmt.Errorf("register repair task: %w", err)
	}
	if cleanupCron != "" {
		if _, err := s.Cron.AddFunc(cleanupCron, s.cleanupTask); err != nil {
			return fmt.Errorf("register cleanup task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.WithField("symbols", s.opts.Symbols).Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes the repair job immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.repairTask()
}

func (s *Scheduler) repairTask() {
	s.logger.Info("running repair task")
	if _, err := s.RunRepair(s.Ctx, s.opts.Symbols...); err != nil {
		s.logger.WithError(err).Error("repair task finished with errors")
	}
}

func (s *Scheduler) cleanupTask() {
	s.logger.Info("running backup cleanup")
	deleted, err := s.Cleanup(s.Ctx)
	if err != nil || deleted > 0 {
		s.trySend(notifier.FormatCleanup(deleted, s.opts.Keep, err))
	}
}

// RunRepair repairs symbols in parallel. One symbol failing does not stop the others;
// the returned error joins every per-symbol failure.
func (s *Scheduler) RunRepair(ctx context.Context, symbols ...string) ([]SymbolResult, error) {
	results := make([]SymbolResult, len(symbols))
	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			rep, err := s.repairSymbol(ctx, sym)
			results[i] = SymbolResult{Symbol: sym, Report: rep, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", r.Symbol, r.Err))
		}
	}
	return results, errors.Join(failures...)
}

func (s *Scheduler) lockFor(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	return l
}

func (s *Scheduler) repairSymbol(ctx context.Context, symbol string) (*analyzer.Report, error) {
	l := s.lockFor(symbol)
	l.Lock()
	defer l.Unlock()

	log := s.logger.WithFields(logrus.Fields{"symbol": symbol, "source": s.Source.Name()})
	input, err := s.Source.Load(ctx, symbol)
	if err != nil {
		log.WithError(err).Error("load dataset failed")
		s.recordFailure(symbol, err)
		s.trySend(notifier.FormatRunFailure(symbol, err))
		return nil, fmt.Errorf("load: %w", err)
	}

	res, err := s.Analyzer.Run(ctx, input, analyzer.Options{
		Symbol:    symbol,
		Strategy:  s.opts.Strategy,
		Backup:    s.opts.Backup,
		BackupTag: symbol,
	})
	if err != nil {
		s.recordFailure(symbol, err)
		s.trySend(notifier.FormatRunFailure(symbol, err))
		return nil, err
	}
	rep := res.Report

	if s.Writer != nil && rep.Summary.PointsAdded > 0 {
		if err := s.Writer.Save(ctx, symbol, res.Output); err != nil {
			log.WithError(err).Error("write repaired dataset failed")
			s.recordFailure(symbol, err)
			s.trySend(notifier.FormatRunFailure(symbol, err))
			return rep, fmt.Errorf("save: %w", err)
		}
	}

	run, tfs := recorder.FromReport(rep)
	if err := s.Recorder.RecordRun(run); err != nil {
		log.WithError(err).Error("record run failed")
	}
	for _, tf := range tfs {
		if err := s.Recorder.RecordTimeframe(tf); err != nil {
			log.WithError(err).WithField("timeframe", tf.Timeframe).Error("record timeframe failed")
		}
	}

	log.Debug("\n" + report.RenderSummary(rep))
	if rep.Summary.GapsDetected > 0 || rep.BackupError != "" {
		s.trySend(notifier.FormatRunSummary(rep))
	}
	return rep, nil
}

func (s *Scheduler) recordFailure(symbol string, cause error) {
	evt := &recorder.RunEvent{
		Symbol:   symbol,
		Strategy: string(s.opts.Strategy),
		Status:   analyzer.StatusFailed,
		Error:    cause.Error(),
	}
	if err := s.Recorder.RecordRun(evt); err != nil {
		s.logger.WithError(err).Error("record failed run")
	}
}

// Cleanup prunes backups down to the configured keep count and records the pass.
func (s *Scheduler) Cleanup(ctx context.Context) (int, error) {
	deleted, err := s.Analyzer.CleanupBackups(ctx, s.opts.Keep)
	evt := &recorder.CleanupEvent{Kept: s.opts.Keep, Deleted: deleted}
	if err != nil {
		evt.Error = err.Error()
		s.logger.WithError(err).Warn("backup cleanup incomplete")
	}
	if rerr := s.Recorder.RecordCleanup(evt); rerr != nil {
		s.logger.WithError(rerr).Error("record cleanup failed")
	}
	return deleted, err
}

const helpText = "Available commands:\n" +
	"• /repair [SYMBOL] run gap repair now\n" +
	"• /status recent runs\n" +
	"• /backups stored snapshots\n" +
	"• /cleanup prune old snapshots\n" +
	"• /strategies fill strategies"

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/repair":
		symbols := s.opts.Symbols
		if len(fields) > 1 {
			symbols = fields[1:]
		}
		results, err := s.RunRepair(ctx, symbols...)
		if err != nil {
			return fmt.Sprintf("Repair finished with errors:\n%v", err)
		}
		added := 0
		for _, r := range results {
			added += r.Report.Summary.PointsAdded
		}
		return fmt.Sprintf("Repair finished: %d symbols, +%d points", len(results), added)
	case "/status":
		return notifier.FormatHistory(s.Analyzer.History(), 10)
	case "/backups":
		list, err := s.Analyzer.ListBackups(ctx, "")
		if err != nil {
			return "Listing backups failed: " + err.Error()
		}
		return notifier.FormatBackups(list, 10)
	case "/cleanup":
		deleted, err := s.Cleanup(ctx)
		return notifier.FormatCleanup(deleted, s.opts.Keep, err)
	case "/strategies":
		names := make([]string, 0, len(strategy.Available()))
		for _, st := range s.Analyzer.AvailableStrategies() {
			names = append(names, st.String())
		}
		return "Strategies: " + strings.Join(names, ", ")
	default:
		return helpText
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Notify(s.Ctx, text); err != nil {
		s.logger.WithError(err).Error("send notification failed")
	}
}
