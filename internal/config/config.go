// Package config loads and validates the session configuration. The
// core consumes configuration; it does not own loading. An invalid
// combination is fatal at session start.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tablerun/tablerun/internal/bankroll"
	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/montecarlo"
	"github.com/tablerun/tablerun/internal/notify"
	"github.com/tablerun/tablerun/internal/signal"
)

// ConfigurationError reports a fatal startup misconfiguration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config is the full yaml configuration surface.
type Config struct {
	Window struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"window"`

	Models struct {
		Weights       map[string]float64 `yaml:"weights"`
		BaseDragon    float64            `yaml:"base_dragon"`
		BaseTiger     float64            `yaml:"base_tiger"`
		BaseTie       float64            `yaml:"base_tie"`
		PriorStrength float64            `yaml:"prior_strength"`
	} `yaml:"models"`

	Blend struct {
		Alpha         float64 `yaml:"alpha"`
		PriorStrength float64 `yaml:"prior_strength"`
		ResetAfter    int     `yaml:"reset_after"`
	} `yaml:"blend"`

	MonteCarlo struct {
		Simulations int     `yaml:"simulations"`
		Horizon     int     `yaml:"horizon"`
		Confidence  float64 `yaml:"confidence"`
		Seed        int64   `yaml:"seed"`
	} `yaml:"monte_carlo"`

	Signals struct {
		HighThreshold    float64 `yaml:"high_threshold"`
		MediumThreshold  float64 `yaml:"medium_threshold"`
		SuppressFloor    float64 `yaml:"suppress_floor"`
		MaxIntervalWidth float64 `yaml:"max_interval_width"`
		MinHandsBetween  int     `yaml:"min_hands_between"`
		MaxPerHour       int     `yaml:"max_per_hour"`
		TTLSeconds       int     `yaml:"ttl_seconds"`
	} `yaml:"signals"`

	Bankroll struct {
		InitialBalance    float64 `yaml:"initial_balance"`
		UnitSize          float64 `yaml:"unit_size"`
		MinBetUnits       int     `yaml:"min_bet_units"`
		MaxBetUnits       int     `yaml:"max_bet_units"`
		FractionalKelly   float64 `yaml:"fractional_kelly"`
		VolatilityWindow  int     `yaml:"volatility_window"`
		PayoutDragon      float64 `yaml:"payout_dragon"`
		PayoutTiger       float64 `yaml:"payout_tiger"`
		PayoutTie         float64 `yaml:"payout_tie"`
		MaxDailyLoss      float64 `yaml:"max_daily_loss"`
		MaxDrawdown       float64 `yaml:"max_drawdown_fraction"`
		SessionMaxMinutes int     `yaml:"session_max_minutes"`
		PostgresDSN       string  `yaml:"postgres_dsn"`
	} `yaml:"bankroll"`

	Telegram struct {
		Enabled        bool    `yaml:"enabled"`
		BotToken       string  `yaml:"bot_token"`
		ChatID         int64   `yaml:"chat_id"`
		ReportMinutes  int     `yaml:"report_minutes"`
		QueueSize      int     `yaml:"queue_size"`
		MaxAttempts    int     `yaml:"max_attempts"`
		BackoffMillis  int     `yaml:"backoff_millis"`
		SendRatePerSec float64 `yaml:"send_rate_per_sec"`
		SendBurst      int     `yaml:"send_burst"`
	} `yaml:"telegram"`

	Ops struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"ops"`
}

// Default returns the production defaults, matching the original
// system's tuning.
func Default() *Config {
	cfg := &Config{}

	cfg.Window.Capacity = 20

	cfg.Models.Weights = map[string]float64{
		"frequency": 0.35,
		"markov":    0.40,
		"streak":    0.25,
	}
	cfg.Models.BaseDragon = 0.446
	cfg.Models.BaseTiger = 0.446
	cfg.Models.BaseTie = 0.108
	cfg.Models.PriorStrength = 3

	cfg.Blend.Alpha = 0.6
	cfg.Blend.PriorStrength = 0
	cfg.Blend.ResetAfter = 0

	cfg.MonteCarlo.Simulations = montecarlo.DefaultSimulations
	cfg.MonteCarlo.Horizon = montecarlo.DefaultHorizon
	cfg.MonteCarlo.Confidence = montecarlo.DefaultConfidence
	cfg.MonteCarlo.Seed = 1

	cfg.Signals.HighThreshold = 0.90
	cfg.Signals.MediumThreshold = 0.70
	cfg.Signals.SuppressFloor = 0.50
	cfg.Signals.MaxIntervalWidth = 0.25
	cfg.Signals.MinHandsBetween = 7
	cfg.Signals.MaxPerHour = 10
	cfg.Signals.TTLSeconds = 300

	cfg.Bankroll.InitialBalance = 1000
	cfg.Bankroll.UnitSize = 10
	cfg.Bankroll.MinBetUnits = 1
	cfg.Bankroll.MaxBetUnits = 7
	cfg.Bankroll.FractionalKelly = 0.25
	cfg.Bankroll.VolatilityWindow = 50
	cfg.Bankroll.PayoutDragon = 1.0
	cfg.Bankroll.PayoutTiger = 1.0
	cfg.Bankroll.PayoutTie = 11.0
	cfg.Bankroll.MaxDailyLoss = 100
	cfg.Bankroll.MaxDrawdown = 0.20
	cfg.Bankroll.SessionMaxMinutes = 120

	cfg.Telegram.ReportMinutes = 30

	cfg.Ops.ListenAddr = ":8090"
	return cfg
}

// Load reads a yaml file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects invalid combinations with a *ConfigurationError.
func (c *Config) Validate() error {
	if c.Window.Capacity <= 0 {
		return &ConfigurationError{Field: "window.capacity", Reason: "must be positive"}
	}
	if len(c.Models.Weights) == 0 {
		return &ConfigurationError{Field: "models.weights", Reason: "at least one model weight required"}
	}
	for name, w := range c.Models.Weights {
		if w <= 0 {
			return &ConfigurationError{Field: "models.weights." + name, Reason: "must be positive"}
		}
	}
	if !c.BaseProbabilities().Valid(1e-3) {
		return &ConfigurationError{Field: "models.base_*", Reason: "base probabilities must sum to 1"}
	}
	if c.Blend.Alpha < 0 || c.Blend.Alpha > 1 {
		return &ConfigurationError{Field: "blend.alpha", Reason: "must be in [0,1]"}
	}
	if c.MonteCarlo.Simulations <= 0 {
		return &ConfigurationError{Field: "monte_carlo.simulations", Reason: "must be positive"}
	}
	if c.MonteCarlo.Horizon <= 0 {
		return &ConfigurationError{Field: "monte_carlo.horizon", Reason: "must be positive"}
	}
	if c.MonteCarlo.Confidence <= 0 || c.MonteCarlo.Confidence >= 1 {
		return &ConfigurationError{Field: "monte_carlo.confidence", Reason: "must be in (0,1)"}
	}
	for field, v := range map[string]float64{
		"signals.high_threshold":     c.Signals.HighThreshold,
		"signals.medium_threshold":   c.Signals.MediumThreshold,
		"signals.suppress_floor":     c.Signals.SuppressFloor,
		"signals.max_interval_width": c.Signals.MaxIntervalWidth,
	} {
		if v < 0 || v > 1 {
			return &ConfigurationError{Field: field, Reason: "must be in [0,1]"}
		}
	}
	if c.Signals.MediumThreshold > c.Signals.HighThreshold {
		return &ConfigurationError{Field: "signals.medium_threshold", Reason: "must not exceed high_threshold"}
	}
	if c.Signals.MinHandsBetween < 0 {
		return &ConfigurationError{Field: "signals.min_hands_between", Reason: "must not be negative"}
	}
	if c.Signals.MaxPerHour <= 0 {
		return &ConfigurationError{Field: "signals.max_per_hour", Reason: "must be positive"}
	}
	if c.Bankroll.InitialBalance <= 0 {
		return &ConfigurationError{Field: "bankroll.initial_balance", Reason: "must be positive"}
	}
	if c.Bankroll.UnitSize <= 0 {
		return &ConfigurationError{Field: "bankroll.unit_size", Reason: "must be positive"}
	}
	if c.Bankroll.MaxDrawdown <= 0 || c.Bankroll.MaxDrawdown > 1 {
		return &ConfigurationError{Field: "bankroll.max_drawdown_fraction", Reason: "must be in (0,1]"}
	}
	if c.Bankroll.MaxDailyLoss <= 0 {
		return &ConfigurationError{Field: "bankroll.max_daily_loss", Reason: "must be positive"}
	}
	if c.Bankroll.SessionMaxMinutes <= 0 {
		return &ConfigurationError{Field: "bankroll.session_max_minutes", Reason: "must be positive"}
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return &ConfigurationError{Field: "telegram.bot_token", Reason: "required when telegram is enabled"}
	}
	return nil
}

// BaseProbabilities returns the configured long-run outcome
// distribution.
func (c *Config) BaseProbabilities() domain.Distribution {
	return domain.Distribution{
		Dragon: c.Models.BaseDragon,
		Tiger:  c.Models.BaseTiger,
		Tie:    c.Models.BaseTie,
	}
}

// ClassifierConfig maps the signals section onto the classifier.
func (c *Config) ClassifierConfig() signal.ClassifierConfig {
	return signal.ClassifierConfig{
		HighThreshold:    c.Signals.HighThreshold,
		MediumThreshold:  c.Signals.MediumThreshold,
		SuppressFloor:    c.Signals.SuppressFloor,
		MaxIntervalWidth: c.Signals.MaxIntervalWidth,
		MinHandsBetween:  c.Signals.MinHandsBetween,
		MaxPerHour:       c.Signals.MaxPerHour,
		SignalTTL:        time.Duration(c.Signals.TTLSeconds) * time.Second,
	}
}

// BankrollConfig maps the bankroll section onto the manager.
func (c *Config) BankrollConfig() bankroll.Config {
	return bankroll.Config{
		InitialBalance:   c.Bankroll.InitialBalance,
		UnitSize:         c.Bankroll.UnitSize,
		MinBetUnits:      c.Bankroll.MinBetUnits,
		MaxBetUnits:      c.Bankroll.MaxBetUnits,
		FractionalKelly:  c.Bankroll.FractionalKelly,
		VolatilityWindow: c.Bankroll.VolatilityWindow,
		Payouts: bankroll.Payouts{
			Dragon: c.Bankroll.PayoutDragon,
			Tiger:  c.Bankroll.PayoutTiger,
			Tie:    c.Bankroll.PayoutTie,
		},
		Limits: bankroll.Limits{
			MaxDailyLoss:        c.Bankroll.MaxDailyLoss,
			MaxDrawdownFraction: c.Bankroll.MaxDrawdown,
			SessionMaxDuration:  time.Duration(c.Bankroll.SessionMaxMinutes) * time.Minute,
		},
	}
}

// OutboxConfig maps the telegram delivery tuning onto the outbox.
func (c *Config) OutboxConfig() notify.OutboxConfig {
	cfg := notify.DefaultOutboxConfig()
	if c.Telegram.QueueSize > 0 {
		cfg.QueueSize = c.Telegram.QueueSize
	}
	if c.Telegram.MaxAttempts > 0 {
		cfg.MaxAttempts = c.Telegram.MaxAttempts
	}
	if c.Telegram.BackoffMillis > 0 {
		cfg.BaseBackoff = time.Duration(c.Telegram.BackoffMillis) * time.Millisecond
	}
	if c.Telegram.SendRatePerSec > 0 {
		cfg.SendRate = c.Telegram.SendRatePerSec
	}
	if c.Telegram.SendBurst > 0 {
		cfg.SendBurst = c.Telegram.SendBurst
	}
	return cfg
}
