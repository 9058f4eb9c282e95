// Package config provides configuration management for the scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"pivotscan/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan" json:"scan"`
	Regime  RegimeConfig  `mapstructure:"regime" yaml:"regime" json:"regime"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger" json:"ledger"`
	Data    DataConfig    `mapstructure:"data" yaml:"data" json:"data"`
	Log     LogSection    `mapstructure:"log" yaml:"log" json:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// ScanConfig holds scan orchestration settings.
type ScanConfig struct {
	SignalThreshold int    `mapstructure:"signal_threshold" yaml:"signal_threshold" json:"signal_threshold" default:"30" validate:"gte=0,lte=100"`
	WatchThreshold  int    `mapstructure:"watch_threshold" yaml:"watch_threshold" json:"watch_threshold" default:"10" validate:"gte=0,lte=100"`
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers" default:"4" validate:"gte=1,lte=64"`
	WindowLength    int    `mapstructure:"window_length" yaml:"window_length" json:"window_length" default:"252" validate:"gte=81"`
	IndexSymbol     string `mapstructure:"index_symbol" yaml:"index_symbol" json:"index_symbol" default:"SPY" validate:"required"`
}

// RegimeConfig holds market regime gate settings.
type RegimeConfig struct {
	SMAPeriod int  `mapstructure:"sma_period" yaml:"sma_period" json:"sma_period" default:"200" validate:"gte=2"`
	FailOpen  bool `mapstructure:"fail_open" yaml:"fail_open" json:"fail_open"`
}

// LedgerConfig holds position ledger and sizing settings.
type LedgerConfig struct {
	StopPct          float64 `mapstructure:"stop_pct" yaml:"stop_pct" json:"stop_pct" default:"0.10" validate:"gt=0,lt=1"`
	TargetPct        float64 `mapstructure:"target_pct" yaml:"target_pct" json:"target_pct" default:"0.20" validate:"gt=0"`
	MaxHoldDays      int     `mapstructure:"max_hold_days" yaml:"max_hold_days" json:"max_hold_days" default:"60" validate:"gte=1"`
	MaxOpenPositions int     `mapstructure:"max_open_positions" yaml:"max_open_positions" json:"max_open_positions" default:"5" validate:"gte=0"`
	SinglePosition   bool    `mapstructure:"single_position" yaml:"single_position" json:"single_position" default:"true"`
	AccountSize      float64 `mapstructure:"account_size" yaml:"account_size" json:"account_size" default:"100000" validate:"gt=0"`
	RiskPct          float64 `mapstructure:"risk_pct" yaml:"risk_pct" json:"risk_pct" default:"0.02" validate:"gt=0,lt=1"`
}

// DataConfig holds storage and input locations.
type DataConfig struct {
	DBPath   string `mapstructure:"db_path" yaml:"db_path" json:"db_path"`
	Universe string `mapstructure:"universe" yaml:"universe" json:"universe"`
	CSVDir   string `mapstructure:"csv_dir" yaml:"csv_dir" json:"csv_dir"`
}

// LogSection holds logging settings.
type LogSection struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level" default:"info" validate:"oneof=debug info warn error"`
	File       bool   `mapstructure:"file" yaml:"file" json:"file"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path" json:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size" json:"max_size" default:"50" validate:"gte=1"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups" default:"5" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age" json:"max_age" default:"30" validate:"gte=0"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TextFile string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
}

var validate = validator.New()

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/pivotscan"
	}
	return filepath.Join(home, ".config", "pivotscan")
}

// Default returns a configuration populated from struct defaults.
func Default() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, errors.Wrap(err, "loading config.toml")
	}

	if cfg.Data.DBPath == "" {
		cfg.Data.DBPath = filepath.Join(configDir, "pivotscan.db")
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = filepath.Join(configDir, "logs", "pivotscan.log")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PIVOTSCAN_DB"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("PIVOTSCAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate runs the struct tag rules and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
	}
	if c.Scan.WatchThreshold > c.Scan.SignalThreshold {
		return fmt.Errorf("%w: watch_threshold %d exceeds signal_threshold %d",
			errors.ErrConfigInvalid, c.Scan.WatchThreshold, c.Scan.SignalThreshold)
	}
	return nil
}

// ConfigFile returns the path of config.toml inside configDir.
func ConfigFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
