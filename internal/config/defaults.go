package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL            = "wss://ws.api.prod.paradex.trade/v1"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultIdleTimeout      = 45 * time.Second
	DefaultBufferSize       = 4096
	DefaultReconnectBase    = 1 * time.Second
	DefaultReconnectMax     = 60 * time.Second
	DefaultReconnectJitter  = 0.2
	DefaultQueueSize        = 1024
	DefaultOverflow         = "drop_oldest"
	DefaultSimEvents        = 10
	DefaultSimInterval      = 2 * time.Second
	DefaultSinkBatchSize    = 100
	DefaultSinkFlush        = 5 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultDBMaxConns       = 4
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.IdleTimeout == 0 {
		c.Feed.IdleTimeout = DefaultIdleTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}

	// Reconnect defaults
	if c.Reconnect.BaseWait == 0 {
		c.Reconnect.BaseWait = DefaultReconnectBase
	}
	if c.Reconnect.MaxWait == 0 {
		c.Reconnect.MaxWait = DefaultReconnectMax
	}
	if c.Reconnect.Jitter == 0 {
		c.Reconnect.Jitter = DefaultReconnectJitter
	}

	// Dispatch defaults
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = DefaultQueueSize
	}
	if c.Dispatch.Overflow == "" {
		c.Dispatch.Overflow = DefaultOverflow
	}

	// Simulation defaults
	if c.Simulation.Interval == 0 {
		c.Simulation.Interval = DefaultSimInterval
	}

	// Sink defaults
	if c.Sink.BatchSize == 0 {
		c.Sink.BatchSize = DefaultSinkBatchSize
	}
	if c.Sink.FlushInterval == 0 {
		c.Sink.FlushInterval = DefaultSinkFlush
	}
	applyDBDefaults(&c.Sink.Database)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultDBMaxConns
	}
}
