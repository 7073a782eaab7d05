// Package config loads the engine knobs from an optional YAML file with
// environment-variable overrides, and resolves the tallerd home directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
)

// Config holds every tunable the engine reads. Zero values are replaced by
// defaults in Load; the defaults match the shop's production settings.
type Config struct {
	// Store selection.
	DBDriver string `yaml:"db_driver"` // "sqlite" (default) or "postgres"
	DBURL    string `yaml:"db_url"`    // postgres DSN, or env DATABASE_URL

	// Estimator bounds and history thresholds.
	MinEstimateSec      int64 `yaml:"min_estimate_sec"`
	MaxEstimateSec      int64 `yaml:"max_estimate_sec"`
	HistorySamePriority int   `yaml:"history_same_priority"` // N1
	HistoryAnyPriority  int   `yaml:"history_any_priority"`  // N2, >= N1

	// Training.
	TrainRidgeLambda  float64 `yaml:"train_ridge_lambda"`
	TrainSeed         int64   `yaml:"train_seed"`
	TrainAnchorBelow  int     `yaml:"train_anchor_below"` // inject anchors when samples < this
	TrainRecordLimit  int     `yaml:"train_record_limit"`
	TrainCronSchedule string  `yaml:"train_cron_schedule"` // optional, e.g. "0 2 * * *"

	// Ranking.
	WIPMax int `yaml:"wip_max"`

	// Risk thresholds per priority class.
	RiskYellow     float64       `yaml:"risk_yellow"`
	RiskRed        float64       `yaml:"risk_red"`
	RiskYellowHigh float64       `yaml:"risk_yellow_high"`
	RiskRedHigh    float64       `yaml:"risk_red_high"`
	AlertCooldown  time.Duration `yaml:"alert_cooldown"`

	// Assignment controller.
	AutoAssignEnabled   bool          `yaml:"auto_assign_enabled"`
	ReassignCooldown    time.Duration `yaml:"reassign_cooldown"`
	ReassignGrace       time.Duration `yaml:"reassign_grace"`
	ReassignMinDelta    float64       `yaml:"reassign_min_delta"`
	ForceOnDelay        bool          `yaml:"force_on_delay"`
	ForceWorseTolerance float64       `yaml:"force_worse_tolerance"`
	AutoUpdateDueDate   bool          `yaml:"auto_update_due_date"`

	// Daemon.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	MetricsAddr   string        `yaml:"metrics_addr"`

	// Business calendar.
	ShopUTCOffsetMin int    `yaml:"shop_utc_offset_min"` // shop wall clock = UTC + offset
	Workdays         string `yaml:"workdays"`            // e.g. "1-6" (0=Sunday)
	Shifts           string `yaml:"shifts"`              // e.g. "08:00-12:30,14:00-18:00"
	ShiftsSaturday   string `yaml:"shifts_saturday"`     // optional override for day 6
	MaxDailyWorkSec  int64  `yaml:"max_daily_work_sec"`
}

// Load reads config.yaml (or CONFIG_PATH) if present, applies env overrides,
// then fills defaults. It never fails on a missing file.
func Load() (Config, error) {
	var cfg Config

	path := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		path = envPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	envOverride(&cfg.DBDriver, "DB_DRIVER")
	envOverride(&cfg.DBURL, "DATABASE_URL")
	envOverrideInt64(&cfg.MinEstimateSec, "ML_MIN_SECONDS")
	envOverrideInt64(&cfg.MaxEstimateSec, "ML_MAX_SECONDS")
	envOverrideInt(&cfg.HistorySamePriority, "HISTORY_SAME_PRIORITY")
	envOverrideInt(&cfg.HistoryAnyPriority, "HISTORY_ANY_PRIORITY")
	envOverrideFloat(&cfg.TrainRidgeLambda, "ML_RIDGE_LAMBDA")
	envOverrideInt64(&cfg.TrainSeed, "ML_SEED")
	envOverrideInt(&cfg.WIPMax, "WIP_MAX")
	envOverrideFloat(&cfg.RiskYellow, "SEMAFORO_RATIO_YELLOW")
	envOverrideFloat(&cfg.RiskRed, "SEMAFORO_RATIO_RED")
	envOverrideFloat(&cfg.RiskYellowHigh, "SEMAFORO_RATIO_YELLOW_HIGH")
	envOverrideFloat(&cfg.RiskRedHigh, "SEMAFORO_RATIO_RED_HIGH")
	envOverrideBool(&cfg.AutoAssignEnabled, "AUTO_ASSIGN_ENABLED")
	envOverrideFloat(&cfg.ReassignMinDelta, "AUTO_REASSIGN_MIN_DELTA")
	envOverrideBool(&cfg.ForceOnDelay, "AUTO_REASSIGN_FORCE_ON_DELAY")
	envOverrideBool(&cfg.AutoUpdateDueDate, "AUTO_UPDATE_DUE_DATE")
	envOverrideDuration(&cfg.SweepInterval, "SWEEP_INTERVAL")
	envOverrideDuration(&cfg.ReassignCooldown, "AUTO_REASSIGN_COOLDOWN")
	envOverrideDuration(&cfg.ReassignGrace, "AUTO_REASSIGN_GRACE")
	envOverride(&cfg.Workdays, "WORKDAYS")
	envOverride(&cfg.Shifts, "WORKDAY_SHIFTS")
	envOverride(&cfg.ShiftsSaturday, "WORKDAY_SHIFTS_SAT")
	envOverrideInt(&cfg.ShopUTCOffsetMin, "SHOP_UTC_OFFSET_MIN")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")

	cfg.applyDefaults()
	if cfg.HistoryAnyPriority < cfg.HistorySamePriority {
		return Config{}, fmt.Errorf("history_any_priority (%d) must be >= history_same_priority (%d)",
			cfg.HistoryAnyPriority, cfg.HistorySamePriority)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.MinEstimateSec == 0 {
		c.MinEstimateSec = 900
	}
	if c.MaxEstimateSec == 0 {
		c.MaxEstimateSec = 172800
	}
	if c.HistorySamePriority == 0 {
		c.HistorySamePriority = 5
	}
	if c.HistoryAnyPriority == 0 {
		c.HistoryAnyPriority = 8
	}
	if c.TrainRidgeLambda == 0 {
		c.TrainRidgeLambda = 1.0
	}
	if c.TrainSeed == 0 {
		c.TrainSeed = 42
	}
	if c.TrainAnchorBelow == 0 {
		c.TrainAnchorBelow = 60
	}
	if c.TrainRecordLimit == 0 {
		c.TrainRecordLimit = 1000
	}
	if c.WIPMax == 0 {
		c.WIPMax = 5
	}
	if c.RiskYellow == 0 {
		c.RiskYellow = 0.7
	}
	if c.RiskRed == 0 {
		c.RiskRed = 1.0
	}
	if c.RiskYellowHigh == 0 {
		c.RiskYellowHigh = 0.6
	}
	if c.RiskRedHigh == 0 {
		c.RiskRedHigh = 0.9
	}
	if c.AlertCooldown == 0 {
		c.AlertCooldown = 30 * time.Minute
	}
	if c.ReassignCooldown == 0 {
		c.ReassignCooldown = 60 * time.Minute
	}
	if c.ReassignGrace == 0 {
		c.ReassignGrace = 15 * time.Minute
	}
	if c.ReassignMinDelta == 0 {
		c.ReassignMinDelta = 0.1
	}
	if c.ForceWorseTolerance == 0 {
		c.ForceWorseTolerance = 0.05
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 300 * time.Second
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9464"
	}
	if c.Workdays == "" {
		c.Workdays = "1-6"
	}
	if c.Shifts == "" {
		c.Shifts = "08:00-12:30,14:00-18:00"
	}
	if c.ShiftsSaturday == "" {
		c.ShiftsSaturday = "08:00-12:00"
	}
	if c.MaxDailyWorkSec == 0 {
		c.MaxDailyWorkSec = 10 * 3600
	}
	if c.ShopUTCOffsetMin == 0 {
		c.ShopUTCOffsetMin = -240 // UTC-4, shop local time
	}
}

// Schedule builds the global business calendar from the configured workdays,
// shift strings, and Saturday override.
func (c Config) Schedule() calendar.Schedule {
	s := calendar.Schedule{
		Workdays:     calendar.ParseWorkdays(c.Workdays),
		Shifts:       calendar.ParseShifts(c.Shifts),
		MaxDailySec:  c.MaxDailyWorkSec,
		UTCOffsetMin: c.ShopUTCOffsetMin,
	}
	if c.ShiftsSaturday != "" && s.Workdays[6] {
		s.DayShifts = map[int][]calendar.Shift{6: calendar.ParseShifts(c.ShiftsSaturday)}
	}
	return s
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envOverrideInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			*dst = n
		}
	}
}

func envOverrideFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func envOverrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
