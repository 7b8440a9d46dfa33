package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"GapSentinel/internal/detector"
	"GapSentinel/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level string `yaml:"level" toml:"level"`
	} `yaml:"log" toml:"log"`
	Symbols []string `yaml:"symbols" toml:"symbols"`
	Data    struct {
		Source     string   `yaml:"source" toml:"source"` // "file", "mock" or "yahoo"
		Dir        string   `yaml:"dir" toml:"dir"`
		OutputDir  string   `yaml:"output_dir" toml:"output_dir"`
		Timeframes []string `yaml:"timeframes" toml:"timeframes"`
		MockBars   int      `yaml:"mock_bars" toml:"mock_bars"`
		MockHoles  int      `yaml:"mock_holes" toml:"mock_holes"`
	} `yaml:"data" toml:"data"`
	Repair struct {
		Strategy              string  `yaml:"strategy" toml:"strategy"`
		Backup                bool    `yaml:"backup" toml:"backup"`
		GapMultiplier         float64 `yaml:"gap_multiplier" toml:"gap_multiplier"`
		IntervalTolerance     float64 `yaml:"interval_tolerance" toml:"interval_tolerance"`
		ClosureCeiling        string  `yaml:"closure_ceiling" toml:"closure_ceiling"`
		TrendThreshold        float64 `yaml:"trend_threshold" toml:"trend_threshold"`
		VolatilityThreshold   float64 `yaml:"volatility_threshold" toml:"volatility_threshold"`
		LowVariationThreshold float64 `yaml:"low_variation_threshold" toml:"low_variation_threshold"`
		HistorySize           int     `yaml:"history_size" toml:"history_size"`
	} `yaml:"repair" toml:"repair"`
	Backup struct {
		Store      string `yaml:"store" toml:"store"` // "file", "sqlite" or "redis"
		Dir        string `yaml:"dir" toml:"dir"`
		SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
		Keep       int    `yaml:"keep" toml:"keep"`
		Redis      struct {
			Addr     string `yaml:"addr" toml:"addr"`
			Password string `yaml:"password" toml:"password"`
			DB       int    `yaml:"db" toml:"db"`
			Prefix   string `yaml:"prefix" toml:"prefix"`
		} `yaml:"redis" toml:"redis"`
	} `yaml:"backup" toml:"backup"`
	Schedule struct {
		RepairCron  string `yaml:"repair_cron" toml:"repair_cron"`
		CleanupCron string `yaml:"cleanup_cron" toml:"cleanup_cron"`
	} `yaml:"schedule" toml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token" toml:"bot_token"`
		ChatID   string `yaml:"chat_id" toml:"chat_id"`
		Polling  bool   `yaml:"polling" toml:"polling"`
	} `yaml:"telegram" toml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"http" toml:"http"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
	} `yaml:"database" toml:"database"`
	Proxy string `yaml:"proxy" toml:"proxy"`
}

// Load reads config from a YAML or TOML file (by extension), loads .env if present,
// then applies environment variable overrides and defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Data.OutputDir = v
	}
	if v := os.Getenv("FIX_STRATEGY"); v != "" {
		c.Repair.Strategy = v
	}
	if v, ok := envBool("REPAIR_BACKUP"); ok {
		c.Repair.Backup = v
	}
	if v := os.Getenv("BACKUP_STORE"); v != "" {
		c.Backup.Store = v
	}
	if v := os.Getenv("BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v, ok := envInt("BACKUP_KEEP"); ok {
		c.Backup.Keep = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Backup.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Backup.Redis.Password = v
	}
	if v := os.Getenv("CRON_REPAIR"); v != "" {
		c.Schedule.RepairCron = v
	}
	if v := os.Getenv("CRON_CLEANUP"); v != "" {
		c.Schedule.CleanupCron = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Data.Source == "" {
		c.Data.Source = "file"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data/series"
	}
	if c.Data.OutputDir == "" {
		c.Data.OutputDir = "data/repaired"
	}
	if len(c.Data.Timeframes) == 0 {
		c.Data.Timeframes = []string{"M15", "H1", "D1"}
	}
	if c.Data.MockBars == 0 {
		c.Data.MockBars = 500
	}
	if c.Repair.Strategy == "" {
		c.Repair.Strategy = string(strategy.Auto)
	}
	if c.Repair.ClosureCeiling == "" {
		c.Repair.ClosureCeiling = "24h"
	}
	if c.Repair.HistorySize == 0 {
		c.Repair.HistorySize = 100
	}
	if c.Backup.Store == "" {
		c.Backup.Store = "file"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "data/backups"
	}
	if c.Backup.SQLitePath == "" {
		c.Backup.SQLitePath = "data/backups.db"
	}
	if c.Backup.Keep == 0 {
		c.Backup.Keep = 10
	}
	if c.Backup.Redis.Prefix == "" {
		c.Backup.Redis.Prefix = "gapsentinel"
	}
	if c.Schedule.RepairCron == "" {
		c.Schedule.RepairCron = "0 5 * * * *"
	}
	if c.Schedule.CleanupCron == "" {
		c.Schedule.CleanupCron = "0 30 3 * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/gap_sentinel.db"
	}
}

// Validate checks that all required fields are set and well-formed.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must list at least one symbol")
	}
	switch c.Data.Source {
	case "file", "mock", "yahoo":
	default:
		return fmt.Errorf("data.source must be file, mock or yahoo, got %q", c.Data.Source)
	}
	if _, err := strategy.Parse(c.Repair.Strategy); err != nil {
		return fmt.Errorf("repair.strategy: %w", err)
	}
	if _, err := c.ClosureCeiling(); err != nil {
		return err
	}
	if c.Repair.GapMultiplier != 0 && c.Repair.GapMultiplier < detector.MinGapMultiplier {
		return fmt.Errorf("repair.gap_multiplier must be at least %.0f, got %g", detector.MinGapMultiplier, c.Repair.GapMultiplier)
	}
	switch c.Backup.Store {
	case "file", "sqlite":
	case "redis":
		if c.Backup.Redis.Addr == "" {
			return fmt.Errorf("backup.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("backup.store must be file, sqlite or redis, got %q", c.Backup.Store)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must not be negative")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Schedule.RepairCron); err != nil {
		return fmt.Errorf("schedule.repair_cron: %w", err)
	}
	if _, err := parser.Parse(c.Schedule.CleanupCron); err != nil {
		return fmt.Errorf("schedule.cleanup_cron: %w", err)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}

// ClosureCeiling parses repair.closure_ceiling.
func (c *Config) ClosureCeiling() (time.Duration, error) {
	d, err := time.ParseDuration(c.Repair.ClosureCeiling)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("repair.closure_ceiling must be a positive duration, got %q", c.Repair.ClosureCeiling)
	}
	return d, nil
}

// TelegramEnabled reports whether notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
