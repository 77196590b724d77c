package ratelimit

import (
	"time"

	"github.com/yourusername/tmichat/internal/output"
)

// Config holds the throttling parameters
type Config struct {
	SendsAllowedInPeriod int           // sends admitted per window; 0 pauses sending
	ThrottlingPeriod     time.Duration // window length
	QueueCapacity        int           // maximum queued messages
	CacheItemTimeout     time.Duration // queued messages older than this are dropped unsent
	InterSendDelay       time.Duration // pump tick interval
}

// DefaultConfig returns the limits of a regular (non-moderator) chat account
func DefaultConfig() Config {
	return Config{
		SendsAllowedInPeriod: 20,
		ThrottlingPeriod:     30 * time.Second,
		QueueCapacity:        10000,
		CacheItemTimeout:     30 * time.Minute,
		InterSendDelay:       50 * time.Millisecond,
	}
}

// withDefaults fills zero durations and capacity from DefaultConfig.
// SendsAllowedInPeriod is left alone since zero is meaningful.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ThrottlingPeriod <= 0 {
		c.ThrottlingPeriod = def.ThrottlingPeriod
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.CacheItemTimeout <= 0 {
		c.CacheItemTimeout = def.CacheItemTimeout
	}
	if c.InterSendDelay <= 0 {
		c.InterSendDelay = def.InterSendDelay
	}
	return c
}

// New creates a throttled message queue from cfg
func New(cfg Config, sender Sender, logger output.Logger) *MessageQueue {
	cfg = cfg.withDefaults()
	limiter := NewFixedWindow(cfg.SendsAllowedInPeriod, cfg.ThrottlingPeriod)
	return NewMessageQueue(cfg, limiter, sender, logger)
}
