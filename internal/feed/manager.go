package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"paradexfeed/internal/codec"
	"paradexfeed/internal/dispatch"
	"paradexfeed/internal/metrics"
	"paradexfeed/internal/model"
	"paradexfeed/internal/registry"
)

// Manager owns the feed connection and its subscription lifecycle.
type Manager interface {
	// Start launches the connect/receive loop. Connection failures are
	// not startup errors; they feed the reconnect cycle.
	Start(ctx context.Context) error

	// Stop shuts the manager down. Idempotent; interrupts in-flight
	// connects and backoff waits within a bounded time.
	Stop(ctx context.Context) error

	// Restart tears down the current connection and reconnects,
	// without stopping the manager.
	Restart()

	// State returns the current connection state.
	State() State

	// Stats returns current counters.
	Stats() Stats
}

// manager implements the Manager interface. Its run goroutine is the
// sole reader of the transport and the sole writer of State.
type manager struct {
	cfg     ManagerConfig
	reg     *registry.Registry
	disp    *dispatch.Dispatcher
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	restart  chan struct{}

	reqID atomic.Int64

	mu    sync.RWMutex
	state State
	stats Stats
}

// NewManager creates a Connection Manager. logger and m may be nil.
func NewManager(cfg ManagerConfig, reg *registry.Registry, disp *dispatch.Dispatcher, logger *slog.Logger, m *metrics.Metrics) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &manager{
		cfg:     cfg,
		reg:     reg,
		disp:    disp,
		logger:  logger,
		metrics: m,
		restart: make(chan struct{}, 1),
		state:   StateDisconnected,
	}
}

// Start launches the run loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started", "url", m.cfg.URL)
	return nil
}

// Stop shuts down: cancels the run loop and waits for it, bounded by
// ctx. Repeated calls are no-ops.
func (m *manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.logger.Info("stopping connection manager")
		if m.cancel != nil {
			m.cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
		return ctx.Err()
	}
}

// Restart requests a stop-and-restart of the connection.
func (m *manager) Restart() {
	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (m *manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stats returns current counters.
func (m *manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.State = m.state
	return s
}

// run is the connect → subscribe → receive → reconnect cycle. It exits
// only on shutdown.
func (m *manager) run() {
	defer m.wg.Done()

	bo := m.newBackoff()

	for {
		if m.ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}

		m.setState(StateConnecting)
		client := NewClient(m.clientConfig(), m.logger)

		if err := client.Connect(m.ctx); err != nil {
			if m.ctx.Err() != nil {
				m.setState(StateDisconnected)
				return
			}
			m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
			if !m.waitBackoff(bo) {
				return
			}
			continue
		}

		m.setState(StateSubscribing)
		if err := m.replaySubscriptions(client); err != nil {
			m.logger.Warn("subscription replay failed", "error", err)
			client.Close()
			if !m.waitBackoff(bo) {
				return
			}
			continue
		}

		m.setState(StateLive)
		bo.Reset()
		m.resetAttempts()
		m.logger.Info("feed live", "subscriptions", m.reg.Len())

		err := m.receive(client)
		client.Close()

		if m.ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}

		m.logger.Warn("connection lost", "error", err)
		if !m.waitBackoff(bo) {
			return
		}
	}
}

// newBackoff builds the capped exponential wait policy.
func (m *manager) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectBaseWait
	bo.MaxInterval = m.cfg.ReconnectMaxWait
	bo.Multiplier = 2
	bo.RandomizationFactor = m.cfg.ReconnectJitter
	bo.Reset()
	return bo
}

// waitBackoff performs one reconnect wait. Returns false if shutdown
// interrupted the wait.
func (m *manager) waitBackoff(bo *backoff.ExponentialBackOff) bool {
	m.setState(StateReconnecting)

	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		wait = m.cfg.ReconnectMaxWait
	}

	m.mu.Lock()
	m.stats.Attempts++
	m.stats.Reconnects++
	attempt := m.stats.Attempts
	m.mu.Unlock()
	m.metrics.IncReconnect()

	m.logger.Info("waiting before reconnect", "attempt", attempt, "wait", wait)

	select {
	case <-m.ctx.Done():
		m.setState(StateDisconnected)
		return false
	case <-time.After(wait):
		return true
	}
}

// replaySubscriptions sends one subscribe request per registry pair.
// Requests are fire-and-forget: the feed's acks are informational and
// do not gate the transition to Live.
func (m *manager) replaySubscriptions(client Client) error {
	m.drainChanges()

	pairs := m.reg.Snapshot()
	frames, err := codec.EncodeSubscribe(pairs, m.nextIDs(len(pairs)))
	if err != nil {
		return err
	}

	for i, frame := range frames {
		if err := client.Send(frame); err != nil {
			return err
		}
		m.logger.Debug("subscribed", "channel", pairs[i].Topic())
	}
	return nil
}

// drainChanges discards stale registry notifications queued while
// disconnected; the full snapshot replay supersedes them.
func (m *manager) drainChanges() {
	for {
		select {
		case <-m.reg.Changes():
		default:
			return
		}
	}
}

// receive processes inbound frames until the connection fails, the
// idle timeout fires, or shutdown/restart is requested.
func (m *manager) receive(client Client) error {
	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case <-m.restart:
			return ErrRestart

		case err := <-client.Errors():
			return err

		case <-idle.C:
			return ErrIdleTimeout

		case change := <-m.reg.Changes():
			if err := m.applyChange(client, change); err != nil {
				return err
			}

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrStreamClosed
			}

			idle.Reset(m.cfg.IdleTimeout)

			m.handleFrame(msg)
		}
	}
}

// handleFrame decodes and routes one inbound frame. Decode failures
// skip the frame; they never affect connection health.
func (m *manager) handleFrame(msg TimestampedMessage) {
	m.mu.Lock()
	m.stats.FramesReceived++
	m.mu.Unlock()

	frame, err := codec.DecodeFrame(msg.Data, msg.ReceivedAt)
	if err != nil {
		m.mu.Lock()
		m.stats.DecodeErrors++
		m.mu.Unlock()
		m.metrics.IncDecodeError()
		m.logger.Warn("skipping malformed frame", "error", err)
		return
	}

	switch frame.Type {
	case codec.FrameAck:
		m.mu.Lock()
		m.stats.Acks++
		m.mu.Unlock()
		m.logger.Debug("request acknowledged", "id", frame.ReqID)

	case codec.FrameError:
		m.mu.Lock()
		m.stats.ServerErrors++
		m.mu.Unlock()
		m.logger.Warn("request rejected by server",
			"id", frame.ReqID,
			"code", frame.Err.Code,
			"message", frame.Err.Message,
		)

	case codec.FrameData:
		m.disp.Dispatch(frame.Event)
		m.mu.Lock()
		m.stats.EventsDispatched++
		m.mu.Unlock()
		m.metrics.IncEvent(string(frame.Event.Kind))
	}
}

// applyChange issues an incremental subscribe/unsubscribe for a
// registry mutation made while the connection is live. A write error
// surfaces to the caller and triggers a reconnect.
func (m *manager) applyChange(client Client, change registry.Change) error {
	pairs := []model.Pair{change.Pair}

	var frames [][]byte
	var err error
	switch change.Op {
	case registry.OpSubscribe:
		frames, err = codec.EncodeSubscribe(pairs, m.nextIDs(1))
	case registry.OpUnsubscribe:
		frames, err = codec.EncodeUnsubscribe(pairs, m.nextIDs(1))
	}
	if err != nil {
		return err
	}

	for _, frame := range frames {
		if err := client.Send(frame); err != nil {
			return err
		}
	}

	m.logger.Debug("applied registry change",
		"op", change.Op,
		"channel", change.Pair.Topic(),
	)
	return nil
}

// nextIDs reserves n sequential request ids and returns the first.
func (m *manager) nextIDs(n int) int64 {
	if n < 1 {
		n = 1
	}
	return m.reqID.Add(int64(n)) - int64(n) + 1
}

// clientConfig derives the transport configuration.
func (m *manager) clientConfig() ClientConfig {
	return ClientConfig{
		URL:              m.cfg.URL,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		PingInterval:     m.cfg.PingInterval,
		BufferSize:       m.cfg.BufferSize,
	}
}

// setState records a state transition; only the run loop calls this.
func (m *manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	m.metrics.SetConnectionState(s.gaugeValue())
	if prev != s {
		m.logger.Debug("connection state changed", "from", string(prev), "to", string(s))
	}
}

// resetAttempts clears the consecutive-failure counter on reaching Live.
func (m *manager) resetAttempts() {
	m.mu.Lock()
	m.stats.Attempts = 0
	m.mu.Unlock()
}
