// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"algame/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Data    DataConfig    `mapstructure:"data"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig holds the recognized options for one backtest run.
type RunConfig struct {
	InitialCash    float64              `mapstructure:"initial_cash"`
	CommissionRate float64              `mapstructure:"commission_rate"`
	SlippageModel  models.SlippageModel `mapstructure:"slippage_model"`
	// SlippageValue is an absolute price offset for the fixed model and a
	// rate for the percentage model.
	SlippageValue float64 `mapstructure:"slippage_value"`
	AllowShort    bool    `mapstructure:"allow_short"`
	// MarginRatio is the required margin as a ratio of notional: 1.0 means
	// no leverage, 0.5 means 2x buying power.
	MarginRatio float64 `mapstructure:"margin_ratio"`
	// StrictData makes missing bars an error instead of non-trading steps.
	StrictData bool `mapstructure:"strict_data"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// DefaultRunConfig returns the run options used when nothing is configured.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		InitialCash:    100_000,
		CommissionRate: 0,
		SlippageModel:  models.SlippageNone,
		SlippageValue:  0,
		AllowShort:     false,
		MarginRatio:    1.0,
		StrictData:     false,
	}
}

// Validate checks run options before a simulation starts.
func (rc RunConfig) Validate() error {
	if rc.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %v", rc.InitialCash)
	}
	if rc.CommissionRate < 0 {
		return fmt.Errorf("commission_rate must not be negative, got %v", rc.CommissionRate)
	}
	if rc.MarginRatio <= 0 || rc.MarginRatio > 1 {
		return fmt.Errorf("margin_ratio must be in (0, 1], got %v", rc.MarginRatio)
	}
	switch rc.SlippageModel {
	case models.SlippageNone, models.SlippageFixed, models.SlippagePercentage, "":
	default:
		return fmt.Errorf("unknown slippage_model %q", rc.SlippageModel)
	}
	if rc.SlippageValue < 0 {
		return fmt.Errorf("slippage_value must not be negative, got %v", rc.SlippageValue)
	}
	return nil
}

// BuyingPower returns the notional purchasable with the given cash under the
// configured margin ratio.
func (rc RunConfig) BuyingPower(cash float64) float64 {
	if cash <= 0 {
		return 0
	}
	ratio := rc.MarginRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	return cash / ratio
}

// ConfigDir returns the directory holding the config file and database.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "algame")
}

// Load reads the configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ALGAME")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultRunConfig()
	v.SetDefault("run.initial_cash", def.InitialCash)
	v.SetDefault("run.commission_rate", def.CommissionRate)
	v.SetDefault("run.slippage_model", string(models.SlippageNone))
	v.SetDefault("run.slippage_value", def.SlippageValue)
	v.SetDefault("run.allow_short", def.AllowShort)
	v.SetDefault("run.margin_ratio", def.MarginRatio)
	v.SetDefault("run.strict_data", def.StrictData)
	v.SetDefault("data.db_path", filepath.Join(ConfigDir(), "bars.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", false)
}
