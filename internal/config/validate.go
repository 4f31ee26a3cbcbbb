package config

import (
	"errors"
	"fmt"

	"paradexfeed/internal/model"
)

// Validate checks that all required fields are set and values are valid.
// A validation failure is a startup error; all other error classes are
// handled at runtime.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.WSURL == "" {
		return errors.New("feed.ws_url is required")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Reconnect.BaseWait <= 0 {
		return errors.New("reconnect.base_wait must be positive")
	}
	if c.Reconnect.MaxWait < c.Reconnect.BaseWait {
		return fmt.Errorf("reconnect.max_wait (%v) cannot be less than base_wait (%v)",
			c.Reconnect.MaxWait, c.Reconnect.BaseWait)
	}

	if len(c.Subscriptions) == 0 {
		return errors.New("subscriptions must not be empty")
	}
	for i, sub := range c.Subscriptions {
		if !model.KnownKind(model.ChannelKind(sub.Channel)) {
			return fmt.Errorf("subscriptions[%d].channel %q is not one of orderbook, trades, ticker", i, sub.Channel)
		}
		if len(sub.Markets) == 0 {
			return fmt.Errorf("subscriptions[%d].markets must not be empty", i)
		}
	}

	if c.Dispatch.QueueSize < 1 {
		return errors.New("dispatch.queue_size must be >= 1")
	}
	if c.Dispatch.Overflow != "drop_oldest" && c.Dispatch.Overflow != "block" {
		return fmt.Errorf("dispatch.overflow must be drop_oldest or block, got %q", c.Dispatch.Overflow)
	}

	if c.Simulation.Enabled {
		if c.Simulation.Events < 0 {
			return errors.New("simulation.events must be >= 0")
		}
		if c.Simulation.Interval <= 0 {
			return errors.New("simulation.interval must be positive")
		}
	}

	if c.Sink.Enabled {
		if c.Sink.BatchSize < 1 {
			return errors.New("sink.batch_size must be >= 1")
		}
		if err := c.Sink.Database.validate("sink.database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	return nil
}
