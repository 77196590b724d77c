package config

import (
	"time"

	"github.com/yourusername/tmichat/internal/ratelimit"
)

// Config represents the complete client configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Channels ChannelsConfig `toml:"channels"`
	Throttle ThrottleConfig `toml:"throttle"`
	Database DatabaseConfig `toml:"database"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Logging  LoggingConfig  `toml:"logging"`
}

// Transport names accepted in server.transport
const (
	TransportWebSocket = "websocket"
	TransportTCP       = "tcp"
)

// ServerConfig contains chat server connection settings
type ServerConfig struct {
	Transport string `toml:"transport"`
	URL       string `toml:"url"`     // WebSocket endpoint
	Address   string `toml:"address"` // host:port for the tcp transport
	TLS       bool   `toml:"tls"`
}

// AuthConfig contains login credentials. An empty token logs in anonymously.
type AuthConfig struct {
	Nick         string   `toml:"nick"`
	OAuthToken   string   `toml:"oauth_token"`
	Capabilities []string `toml:"capabilities"`
}

// ChannelsConfig contains auto-join settings
type ChannelsConfig struct {
	AutoJoin       []string `toml:"auto_join"`
	JoinIntervalMS int      `toml:"join_interval_ms"`
}

// ThrottleConfig contains outbound rate limiting settings
type ThrottleConfig struct {
	SendsAllowedInPeriod    int `toml:"sends_allowed_in_period"`
	PeriodSeconds           int `toml:"period_seconds"`
	QueueCapacity           int `toml:"queue_capacity"`
	CacheItemTimeoutSeconds int `toml:"cache_item_timeout_seconds"`
	InterSendDelayMS        int `toml:"inter_send_delay_ms"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path                   string `toml:"path"`
	WALMode                bool   `toml:"wal_mode"`
	MaintenanceIntervalMin int    `toml:"maintenance_interval_min"`
	JoinHistoryDays        int    `toml:"join_history_days"`
}

// MetricsConfig contains the Prometheus endpoint settings. An empty address disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// KafkaConfig contains the inbound message sink settings. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	ErrorLogPath string `toml:"error_log_path"`
	MaxLogSizeMB int    `toml:"max_log_size_mb"`
	MaxLogFiles  int    `toml:"max_log_files"`
}

// GetJoinIntervalDuration returns the join pacing interval as a time.Duration
func (c *ChannelsConfig) GetJoinIntervalDuration() time.Duration {
	return time.Duration(c.JoinIntervalMS) * time.Millisecond
}

// GetMaintenanceIntervalDuration returns how often database maintenance runs
func (c *DatabaseConfig) GetMaintenanceIntervalDuration() time.Duration {
	return time.Duration(c.MaintenanceIntervalMin) * time.Minute
}

// GetJoinHistoryRetention returns how long join events are kept
func (c *DatabaseConfig) GetJoinHistoryRetention() time.Duration {
	return time.Duration(c.JoinHistoryDays) * 24 * time.Hour
}

// GetPeriodDuration returns the throttling period as a time.Duration
func (c *ThrottleConfig) GetPeriodDuration() time.Duration {
	return time.Duration(c.PeriodSeconds) * time.Second
}

// GetCacheItemTimeoutDuration returns how long a queued message stays valid
func (c *ThrottleConfig) GetCacheItemTimeoutDuration() time.Duration {
	return time.Duration(c.CacheItemTimeoutSeconds) * time.Second
}

// GetInterSendDelayDuration returns the pump tick as a time.Duration
func (c *ThrottleConfig) GetInterSendDelayDuration() time.Duration {
	return time.Duration(c.InterSendDelayMS) * time.Millisecond
}

// RateLimit converts the section into the throttling engine's config
func (c *ThrottleConfig) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		SendsAllowedInPeriod: c.SendsAllowedInPeriod,
		ThrottlingPeriod:     c.GetPeriodDuration(),
		QueueCapacity:        c.QueueCapacity,
		CacheItemTimeout:     c.GetCacheItemTimeoutDuration(),
		InterSendDelay:       c.GetInterSendDelayDuration(),
	}
}

// KafkaEnabled reports whether inbound messages should be published
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 && c.Kafka.Topic != ""
}
