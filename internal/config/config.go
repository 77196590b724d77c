package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/yourusername/tmichat/internal/errors"
)

const (
	defaultConfigPath = "config/tmichat.toml"
	defaultEnvPath    = ".env"
)

// Environment variables that override file values
const (
	EnvOAuthToken   = "TMI_OAUTH_TOKEN"
	EnvNick         = "TMI_NICK"
	EnvKafkaBrokers = "KAFKA_BROKERS"
)

// LoadEnv reads KEY=value pairs from path into the process environment.
// Variables already set are not overwritten. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = defaultEnvPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.NewConfigError("failed to load %s: %v", path, err)
	}
	return nil
}

// Load reads and parses the configuration file from the specified path.
// If path is empty, it uses the default path. Environment overrides are
// applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.NewConfigError("configuration file not found at %s", path)
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration file: %v", err)
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrCreate attempts to load the configuration file, and if it doesn't exist,
// creates a default configuration file and returns the default config.
func LoadOrCreate(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Configuration file not found. Creating default configuration at %s\n", path)

		defaultCfg := DefaultConfig()
		if err := CreateDefault(path, defaultCfg); err != nil {
			return nil, errors.NewConfigError("failed to create default configuration: %v", err)
		}

		applyEnv(defaultCfg)
		if err := validate(defaultCfg); err != nil {
			return nil, err
		}
		return defaultCfg, nil
	}

	return Load(path)
}

// CreateDefault creates a default configuration file at the specified path
func CreateDefault(path string, cfg *Config) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns an anonymous read-only configuration over WebSocket
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: TransportWebSocket,
			URL:       "wss://irc-ws.chat.twitch.tv:443",
			Address:   "irc.chat.twitch.tv:6697",
			TLS:       true,
		},
		Auth: AuthConfig{
			Capabilities: []string{"twitch.tv/tags", "twitch.tv/commands", "twitch.tv/membership"},
		},
		Channels: ChannelsConfig{
			AutoJoin:       []string{},
			JoinIntervalMS: 1000,
		},
		Throttle: ThrottleConfig{
			SendsAllowedInPeriod:    20,
			PeriodSeconds:           30,
			QueueCapacity:           10000,
			CacheItemTimeoutSeconds: 1800,
			InterSendDelayMS:        50,
		},
		Database: DatabaseConfig{
			Path:                   "data/tmichat.db",
			WALMode:                true,
			MaintenanceIntervalMin: 60,
			JoinHistoryDays:        30,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Kafka: KafkaConfig{
			Topic: "tmichat.messages",
		},
		Logging: LoggingConfig{
			ErrorLogPath: "data/error.log",
			MaxLogSizeMB: 10,
			MaxLogFiles:  5,
		},
	}
}

// applyEnv overrides file values with non-empty environment variables
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvOAuthToken); v != "" {
		cfg.Auth.OAuthToken = v
	}
	if v := os.Getenv(EnvNick); v != "" {
		cfg.Auth.Nick = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Kafka.Brokers = brokers
	}
}

// validate checks that all required configuration fields are present and valid
func validate(cfg *Config) error {
	switch cfg.Server.Transport {
	case TransportWebSocket:
		if cfg.Server.URL == "" {
			return errors.NewConfigError("server.url is required for the websocket transport")
		}
	case TransportTCP:
		if cfg.Server.Address == "" {
			return errors.NewConfigError("server.address is required for the tcp transport")
		}
	default:
		return errors.NewConfigError("server.transport must be %q or %q, got %q",
			TransportWebSocket, TransportTCP, cfg.Server.Transport)
	}

	if cfg.Auth.OAuthToken != "" && cfg.Auth.Nick == "" {
		return errors.NewConfigError("auth.nick is required when auth.oauth_token is set")
	}

	if cfg.Channels.JoinIntervalMS <= 0 {
		return errors.NewConfigError("channels.join_interval_ms must be positive, got %d", cfg.Channels.JoinIntervalMS)
	}

	if cfg.Throttle.SendsAllowedInPeriod < 0 {
		return errors.NewConfigError("throttle.sends_allowed_in_period must be non-negative, got %d", cfg.Throttle.SendsAllowedInPeriod)
	}
	if cfg.Throttle.PeriodSeconds <= 0 {
		return errors.NewConfigError("throttle.period_seconds must be positive, got %d", cfg.Throttle.PeriodSeconds)
	}
	if cfg.Throttle.QueueCapacity <= 0 {
		return errors.NewConfigError("throttle.queue_capacity must be positive, got %d", cfg.Throttle.QueueCapacity)
	}
	if cfg.Throttle.CacheItemTimeoutSeconds <= 0 {
		return errors.NewConfigError("throttle.cache_item_timeout_seconds must be positive, got %d", cfg.Throttle.CacheItemTimeoutSeconds)
	}
	if cfg.Throttle.InterSendDelayMS <= 0 {
		return errors.NewConfigError("throttle.inter_send_delay_ms must be positive, got %d", cfg.Throttle.InterSendDelayMS)
	}

	if cfg.Database.Path == "" {
		return errors.NewConfigError("database.path is required")
	}
	if cfg.Database.MaintenanceIntervalMin <= 0 {
		return errors.NewConfigError("database.maintenance_interval_min must be positive, got %d", cfg.Database.MaintenanceIntervalMin)
	}
	if cfg.Database.JoinHistoryDays <= 0 {
		return errors.NewConfigError("database.join_history_days must be positive, got %d", cfg.Database.JoinHistoryDays)
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.NewConfigError("kafka.topic is required when kafka.brokers is set")
	}

	if cfg.Logging.MaxLogSizeMB <= 0 {
		return errors.NewConfigError("logging.max_log_size_mb must be positive, got %d", cfg.Logging.MaxLogSizeMB)
	}
	if cfg.Logging.MaxLogFiles <= 0 {
		return errors.NewConfigError("logging.max_log_files must be positive, got %d", cfg.Logging.MaxLogFiles)
	}

	return nil
}
