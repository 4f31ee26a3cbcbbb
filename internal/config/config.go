package config

import (
	"time"

	"paradexfeed/internal/model"
)

// Config is the root configuration for a monitor instance.
type Config struct {
	Instance      InstanceConfig       `yaml:"instance"`
	Feed          FeedConfig           `yaml:"feed"`
	Reconnect     ReconnectConfig      `yaml:"reconnect"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Dispatch      DispatchConfig       `yaml:"dispatch"`
	Simulation    SimulationConfig     `yaml:"simulation"`
	Sink          SinkConfig           `yaml:"sink"`
	Metrics       MetricsConfig        `yaml:"metrics"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds WebSocket feed settings.
type FeedConfig struct {
	WSURL            string        `yaml:"ws_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// ReconnectConfig holds backoff settings for reconnect waits.
type ReconnectConfig struct {
	BaseWait time.Duration `yaml:"base_wait"`
	MaxWait  time.Duration `yaml:"max_wait"`
	Jitter   float64       `yaml:"jitter"`
}

// SubscriptionConfig is one channel kind with its market symbols.
// "ALL" is a valid market wildcard understood by the feed.
type SubscriptionConfig struct {
	Channel string   `yaml:"channel"`
	Markets []string `yaml:"markets"`
}

// DispatchConfig holds consumer queue settings.
type DispatchConfig struct {
	QueueSize int    `yaml:"queue_size"`
	Overflow  string `yaml:"overflow"` // "drop_oldest" or "block"
}

// SimulationConfig selects the simulation source instead of a live
// connection.
type SimulationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Events   int           `yaml:"events"` // 0 loops forever
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
}

// SinkConfig holds the optional TimescaleDB sink.
type SinkConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Pairs expands the subscription list into (kind, market) pairs in
// declaration order, which the registry preserves.
func (c *Config) Pairs() []model.Pair {
	var pairs []model.Pair
	for _, sub := range c.Subscriptions {
		kind := model.ParseKind(sub.Channel)
		for _, market := range sub.Markets {
			pairs = append(pairs, model.Pair{Kind: kind, Market: market})
		}
	}
	return pairs
}
