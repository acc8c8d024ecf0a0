// Package model defines the data structures shared across the relay's
// components: commands, queue entries, workflows, telemetry snapshots,
// alert rules, and configuration.
package model

type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Auth      AuthConfig      `yaml:"auth"`
	Queue     QueueConfig     `yaml:"queue"`
	Keys      KeysConfig      `yaml:"keys"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type BridgeConfig struct {
	URL              string `yaml:"url"`
	ReplyTimeoutSec  int    `yaml:"reply_timeout_sec"`
	ReconnectSec     int    `yaml:"reconnect_sec"`
	HandshakeTimeout int    `yaml:"handshake_timeout_sec"`
}

type AuthConfig struct {
	// Token is normally supplied via the JERRY_BRIDGE_TOKEN environment
	// variable; a value here overrides it.
	Token string `yaml:"token,omitempty"`
}

type QueueConfig struct {
	Capacity       int     `yaml:"capacity"`
	TokensPerSec   float64 `yaml:"tokens_per_sec"`
	BucketCapacity float64 `yaml:"bucket_capacity"`
	PacingMs       int     `yaml:"pacing_ms"`
	DefaultRetries int     `yaml:"default_retries"`
}

type KeysConfig struct {
	// Raw is normally supplied via JERRY_API_KEYS; a value here overrides it.
	Raw                 string `yaml:"raw,omitempty"`
	ShortCooldownSec    int    `yaml:"short_cooldown_sec"`
	LongCooldownSec     int    `yaml:"long_cooldown_sec"`
	EscalationThreshold int    `yaml:"escalation_threshold"`
}

type WorkflowConfig struct {
	CatalogPath     string `yaml:"catalog_path"`
	TickIntervalSec int    `yaml:"tick_interval_sec"`
	WatchCatalog    bool   `yaml:"watch_catalog"`
}

type TelemetryConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
	CacheTTLSec     int `yaml:"cache_ttl_sec"`
}

type LedgerConfig struct {
	Capacity int `yaml:"capacity"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ApplyDefaults fills zero-valued sections with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Bridge.URL == "" {
		c.Bridge.URL = "ws://127.0.0.1:8765"
	}
	if c.Bridge.ReplyTimeoutSec <= 0 {
		c.Bridge.ReplyTimeoutSec = 10
	}
	if c.Bridge.ReconnectSec <= 0 {
		c.Bridge.ReconnectSec = 5
	}
	if c.Bridge.HandshakeTimeout <= 0 {
		c.Bridge.HandshakeTimeout = 10
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 100
	}
	if c.Queue.TokensPerSec <= 0 {
		c.Queue.TokensPerSec = 10
	}
	if c.Queue.BucketCapacity <= 0 {
		c.Queue.BucketCapacity = 10
	}
	if c.Queue.PacingMs <= 0 {
		c.Queue.PacingMs = 100
	}
	if c.Queue.DefaultRetries <= 0 {
		c.Queue.DefaultRetries = 3
	}
	if c.Keys.ShortCooldownSec <= 0 {
		c.Keys.ShortCooldownSec = 60
	}
	if c.Keys.LongCooldownSec <= 0 {
		c.Keys.LongCooldownSec = 300
	}
	if c.Keys.EscalationThreshold <= 0 {
		c.Keys.EscalationThreshold = 3
	}
	if c.Workflow.TickIntervalSec <= 0 {
		c.Workflow.TickIntervalSec = 30
	}
	if c.Telemetry.HistoryCapacity <= 0 {
		c.Telemetry.HistoryCapacity = 120
	}
	if c.Telemetry.CacheTTLSec <= 0 {
		c.Telemetry.CacheTTLSec = 5
	}
	if c.Ledger.Capacity <= 0 {
		c.Ledger.Capacity = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
