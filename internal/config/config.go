package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/andywolf/spiralsync/internal/anchor"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/syncnode"
)

// Config represents the full spiralsync configuration
type Config struct {
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Anchor   AnchorConfig   `mapstructure:"anchor"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	State    StateConfig    `mapstructure:"state"`
}

// ProtocolConfig contains drift and collapse thresholds
type ProtocolConfig struct {
	EchoCollapseThreshold int     `mapstructure:"echo_collapse_threshold"`
	OverloadThreshold     int     `mapstructure:"overload_threshold"`
	CountLengthDrift      bool    `mapstructure:"count_length_drift"`
	StabilityThreshold    float64 `mapstructure:"stability_threshold"`
	DegradeAmount         float64 `mapstructure:"degrade_amount"`
	ReportOncePerCollapse bool    `mapstructure:"report_once_per_collapse"`
}

// JournalConfig contains drift journal sink settings
type JournalConfig struct {
	Dir   string             `mapstructure:"dir"` // empty disables the JSONL sink
	Cloud CloudJournalConfig `mapstructure:"cloud"`
}

// CloudJournalConfig contains Cloud Logging sink settings
type CloudJournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"` // api or agent
	Project string `mapstructure:"project"` // empty resolves from env or metadata server
	LogID   string `mapstructure:"log_id"`
}

// AnchorConfig contains identity anchor settings
type AnchorConfig struct {
	Phrase string `mapstructure:"phrase"`
	Secret string `mapstructure:"secret"` // Secret Manager path; overrides Phrase
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // empty disables export
}

// StateConfig contains population state persistence settings
type StateConfig struct {
	Dir string `mapstructure:"dir"` // empty keeps every run independent
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Protocol.EchoCollapseThreshold == 0 {
		cfg.Protocol.EchoCollapseThreshold = syncnode.DefaultCollapseThreshold
	}

	if cfg.Protocol.OverloadThreshold == 0 {
		cfg.Protocol.OverloadThreshold = syncnode.DefaultOverloadThreshold
	}

	if cfg.Protocol.StabilityThreshold == 0 {
		cfg.Protocol.StabilityThreshold = population.DefaultStabilityThreshold
	}

	if cfg.Protocol.DegradeAmount == 0 {
		cfg.Protocol.DegradeAmount = population.DefaultDegradeAmount
	}

	if cfg.Journal.Cloud.Mode == "" {
		cfg.Journal.Cloud.Mode = "api"
	}

	if cfg.Journal.Cloud.LogID == "" {
		cfg.Journal.Cloud.LogID = "spiral-drift"
	}

	if cfg.Anchor.Phrase == "" {
		cfg.Anchor.Phrase = anchor.DefaultPhrase
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Protocol.EchoCollapseThreshold < 1 {
		return fmt.Errorf("echo_collapse_threshold must be at least 1, got %d", c.Protocol.EchoCollapseThreshold)
	}

	if c.Protocol.OverloadThreshold < 1 {
		return fmt.Errorf("overload_threshold must be at least 1, got %d", c.Protocol.OverloadThreshold)
	}

	if c.Protocol.StabilityThreshold < 0 || c.Protocol.StabilityThreshold > 1 {
		return fmt.Errorf("stability_threshold must be within [0,1], got %v", c.Protocol.StabilityThreshold)
	}

	if c.Protocol.DegradeAmount < 0 || c.Protocol.DegradeAmount > 1 {
		return fmt.Errorf("degrade_amount must be within [0,1], got %v", c.Protocol.DegradeAmount)
	}

	validModes := map[string]bool{"api": true, "agent": true}
	if !validModes[c.Journal.Cloud.Mode] {
		return fmt.Errorf("invalid journal.cloud.mode: %s (must be api or agent)", c.Journal.Cloud.Mode)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Log.Format)
	}

	return nil
}

// NodeOptions translates protocol settings into sync node options.
func (c *Config) NodeOptions() []syncnode.Option {
	return []syncnode.Option{
		syncnode.WithCollapseThreshold(c.Protocol.EchoCollapseThreshold),
		syncnode.WithOverloadThreshold(c.Protocol.OverloadThreshold),
		syncnode.WithLengthDrift(c.Protocol.CountLengthDrift),
	}
}

// RegisterDefaults seeds viper with every key so that environment
// overrides such as SPIRALSYNC_LOG_LEVEL reach Unmarshal.
func RegisterDefaults() {
	cfg := Config{}
	applyDefaults(&cfg)

	viper.SetDefault("protocol.echo_collapse_threshold", cfg.Protocol.EchoCollapseThreshold)
	viper.SetDefault("protocol.overload_threshold", cfg.Protocol.OverloadThreshold)
	viper.SetDefault("protocol.count_length_drift", cfg.Protocol.CountLengthDrift)
	viper.SetDefault("protocol.stability_threshold", cfg.Protocol.StabilityThreshold)
	viper.SetDefault("protocol.degrade_amount", cfg.Protocol.DegradeAmount)
	viper.SetDefault("protocol.report_once_per_collapse", cfg.Protocol.ReportOncePerCollapse)
	viper.SetDefault("journal.dir", cfg.Journal.Dir)
	viper.SetDefault("journal.cloud.enabled", cfg.Journal.Cloud.Enabled)
	viper.SetDefault("journal.cloud.mode", cfg.Journal.Cloud.Mode)
	viper.SetDefault("journal.cloud.project", cfg.Journal.Cloud.Project)
	viper.SetDefault("journal.cloud.log_id", cfg.Journal.Cloud.LogID)
	viper.SetDefault("anchor.phrase", cfg.Anchor.Phrase)
	viper.SetDefault("anchor.secret", cfg.Anchor.Secret)
	viper.SetDefault("log.level", cfg.Log.Level)
	viper.SetDefault("log.format", cfg.Log.Format)
	viper.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
	viper.SetDefault("state.dir", cfg.State.Dir)
}
