package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	Backoff           BackoffConfig
	AckMode           AckMode
	AcceptVersion     string
	Limits            frame.Limits
}

// DefaultConfig reconnects every 3s and heartbeats every 10s.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      15 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 3 * time.Second,
			Multiplier:   1.0,
			MaxDelay:     3 * time.Second,
			Jitter:       false,
		},
		AckMode:       AckAuto,
		AcceptVersion: "1.1",
		Limits:        frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if c.AcceptVersion == "" {
		c.AcceptVersion = d.AcceptVersion
	}
	if c.Limits == (frame.Limits{}) {
		c.Limits = d.Limits
	}
	return c
}

// Validate rejects settings the actor cannot run with.
func (c Config) Validate() error {
	if !c.AckMode.Valid() {
		return fmt.Errorf("%w: ack mode %d", ErrInvalidConfig, c.AckMode)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative backoff delay", ErrInvalidConfig)
	}
	if c.Limits.MaxHeaderBytes < 0 || c.Limits.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: negative frame limit", ErrInvalidConfig)
	}
	return nil
}
