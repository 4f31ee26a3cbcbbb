package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrIdleTimeout   = errors.New("idle timeout: no frame received")
	ErrStreamClosed  = errors.New("message stream closed")
	ErrRestart       = errors.New("restart requested")
)

// State is the connection state. Exactly one State exists per Manager,
// mutated only by the manager's own run loop; other goroutines may
// read it for observability.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribing  State = "subscribing"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
)

// gaugeValue maps a state to the numeric value exported as a metric.
func (s State) gaugeValue() float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateSubscribing:
		return 2
	case StateLive:
		return 3
	case StateReconnecting:
		return 4
	default:
		return 0
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL              string        // WebSocket URL
	HandshakeTimeout time.Duration // Transport handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping interval
	IdleTimeout      time.Duration // Max time without any inbound frame
	BufferSize       int           // Inbound frame channel capacity

	ReconnectBaseWait time.Duration // First backoff wait
	ReconnectMaxWait  time.Duration // Backoff cap
	ReconnectJitter   float64       // Randomization factor, 0 disables jitter
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		IdleTimeout:       45 * time.Second,
		BufferSize:        4096,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
		ReconnectJitter:   0.2,
	}
}

// Stats provides counters about the manager.
type Stats struct {
	State            State
	Attempts         int   // Consecutive failed attempts in the current outage
	Reconnects       int64 // Total reconnect waits performed
	FramesReceived   int64
	EventsDispatched int64
	DecodeErrors     int64
	Acks             int64
	ServerErrors     int64
}
