package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/backup"
	"GapSentinel/internal/collector"
	"GapSentinel/internal/config"
	"GapSentinel/internal/detector"
	"GapSentinel/internal/history"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/notifier"
	"GapSentinel/internal/recorder"
	"GapSentinel/internal/report"
	"GapSentinel/internal/scheduler"
	"GapSentinel/internal/server"
	"GapSentinel/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	once := flag.Bool("once", false, "repair every configured symbol once, print the reports and exit")
	flag.Parse()

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config validation: %v", err)
	}

	logger := logging.New(cfg.Log.Level)
	logger.WithField("config", cfgPath).Info("GapSentinel starting...")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open backup store: %v", err)
	}
	defer store.Close()
	backups := backup.NewManager(store, logger)

	ceiling, _ := cfg.ClosureCeiling()
	runs := history.New[analyzer.RunRecord](cfg.Repair.HistorySize)
	an := analyzer.New(analyzer.Config{
		Detector: detector.Config{
			GapMultiplier:     cfg.Repair.GapMultiplier,
			IntervalTolerance: cfg.Repair.IntervalTolerance,
			ClosureCeiling:    ceiling,
		},
		Thresholds: strategy.Thresholds{
			Trend:        cfg.Repair.TrendThreshold,
			Volatility:   cfg.Repair.VolatilityThreshold,
			LowVariation: cfg.Repair.LowVariationThreshold,
		},
		History: runs,
	}, backups, logger)

	src, writer := openSource(cfg, logger)
	logger.WithField("source", src.Name()).Info("data source ready")

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.WithError(err).Warn("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		notify = tn
	}

	st, _ := strategy.Parse(cfg.Repair.Strategy)
	sched := scheduler.NewScheduler(ctx, an, src, writer, notify, rec, scheduler.Options{
		Symbols:  cfg.Symbols,
		Strategy: st,
		Backup:   cfg.Repair.Backup,
		Keep:     cfg.Backup.Keep,
	}, logger)

	if *once {
		code := runOnce(ctx, sched, cfg.Symbols)
		rec.Close()
		store.Close()
		os.Exit(code)
	}

	if err := sched.RegisterAll(cfg.Schedule.RepairCron, cfg.Schedule.CleanupCron); err != nil {
		logger.Fatalf("register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil && cfg.Telegram.Polling {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	var api *server.Server
	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		api = server.New(cfg.HTTP.Addr, &server.Config{
			GapHandler: server.NewGapHandler(an, cfg.Backup.Keep),
			Logger:     logger,
		})
		go func() {
			if err := api.Start(); err != nil {
				logger.WithError(err).Error("http api stopped")
			}
		}()
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, executing repair now")
		go sched.RunNow()
	}

	logger.Info("GapSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping...")
	cancel()
	if api != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("http shutdown")
		}
	}
	logger.Info("GapSentinel stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (backup.Store, error) {
	switch cfg.Backup.Store {
	case "sqlite":
		return backup.NewSQLiteStore(cfg.Backup.SQLitePath)
	case "redis":
		r := cfg.Backup.Redis
		return backup.NewRedisStore(ctx, r.Addr, r.Password, r.DB, r.Prefix)
	default:
		return backup.NewFileStore(cfg.Backup.Dir, logger)
	}
}

func openSource(cfg *config.Config, logger *logrus.Logger) (collector.Source, collector.Writer) {
	// repaired output always lands in files, whatever the source
	out := collector.NewFileSource(cfg.Data.OutputDir, cfg.Data.OutputDir, logger)
	switch cfg.Data.Source {
	case "mock":
		return &collector.MockSource{
			Price:      100,
			Bars:       cfg.Data.MockBars,
			Holes:      cfg.Data.MockHoles,
			Timeframes: cfg.Data.Timeframes,
		}, out
	case "yahoo":
		return collector.NewYahooSource(cfg.Data.Timeframes, cfg.Proxy, logger), out
	default:
		fs := collector.NewFileSource(cfg.Data.Dir, cfg.Data.OutputDir, logger)
		return fs, fs
	}
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler, symbols []string) int {
	results, err := sched.RunRepair(ctx, symbols...)
	for _, r := range results {
		if r.Report != nil {
			fmt.Println(report.RenderSummary(r.Report))
			fmt.Println(report.RenderTimeframes(r.Report))
		}
	}
	fmt.Println(report.RenderHistory(sched.Analyzer.History()))
	if list, lerr := sched.Analyzer.ListBackups(ctx, ""); lerr == nil && len(list) > 0 {
		fmt.Println(report.RenderBackups(list))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
