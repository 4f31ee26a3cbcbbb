package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"paradexfeed/internal/metrics"
	"paradexfeed/internal/model"
)

// Errors
var (
	ErrClosed       = errors.New("dispatcher closed")
	ErrDuplicate    = errors.New("consumer name already registered")
	ErrEmptyName    = errors.New("consumer name is required")
	ErrNilConsumer  = errors.New("consumer callback is nil")
	ErrInvalidQueue = errors.New("queue size must be at least 1")
)

// Consumer receives decoded events. It runs on the consumer's own
// delivery goroutine, never on the receive loop.
type Consumer func(model.Event)

// Config configures consumer queues.
type Config struct {
	// QueueSize is the bounded per-consumer queue capacity.
	QueueSize int
	// Overflow selects the full-queue policy.
	Overflow OverflowPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize: 1024,
		Overflow:  DropOldest,
	}
}

// ConsumerStats holds per-consumer delivery counters.
type ConsumerStats struct {
	Name      string
	Queued    int
	Delivered int64
	Dropped   int64
	Panics    int64
}

// subscriber is one registered consumer with its queue and worker.
type subscriber struct {
	name string
	fn   Consumer
	q    *queue

	delivered atomic.Int64
	panics    atomic.Int64
}

// Dispatcher routes events to registered consumers, demultiplexed by
// channel kind, in registration order.
type Dispatcher struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	byKind map[model.ChannelKind][]*subscriber
	all    []*subscriber
	names  map[string]struct{}
	subs   []*subscriber // every subscriber, for shutdown and stats
	closed bool

	wg sync.WaitGroup
}

// New creates a Dispatcher. logger may be nil; m may be nil.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if !ValidPolicy(cfg.Overflow) {
		cfg.Overflow = DropOldest
	}
	return &Dispatcher{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		byKind:  make(map[model.ChannelKind][]*subscriber),
		names:   make(map[string]struct{}),
	}
}

// Register attaches a consumer for one channel kind.
func (d *Dispatcher) Register(kind model.ChannelKind, name string, fn Consumer) error {
	sub, err := d.addSubscriber(name, fn)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.byKind[kind] = append(d.byKind[kind], sub)
	d.mu.Unlock()
	return nil
}

// RegisterAll attaches a wildcard consumer receiving every event,
// unknown kinds included.
func (d *Dispatcher) RegisterAll(name string, fn Consumer) error {
	sub, err := d.addSubscriber(name, fn)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.all = append(d.all, sub)
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) addSubscriber(name string, fn Consumer) (*subscriber, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if fn == nil {
		return nil, ErrNilConsumer
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if _, ok := d.names[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	sub := &subscriber{
		name: name,
		fn:   fn,
		q:    newQueue(d.cfg.QueueSize, d.cfg.Overflow),
	}
	d.names[name] = struct{}{}
	d.subs = append(d.subs, sub)

	d.wg.Add(1)
	go d.deliverLoop(sub)

	return sub, nil
}

// Dispatch delivers an event to every matching consumer in
// registration order. The handoff is a bounded enqueue; with the
// DropOldest policy it never blocks.
func (d *Dispatcher) Dispatch(ev model.Event) {
	d.mu.RLock()
	kindSubs := d.byKind[ev.Kind]
	allSubs := d.all
	d.mu.RUnlock()

	for _, sub := range kindSubs {
		d.enqueue(sub, ev)
	}
	for _, sub := range allSubs {
		d.enqueue(sub, ev)
	}
}

func (d *Dispatcher) enqueue(sub *subscriber, ev model.Event) {
	before := sub.q.droppedCount()
	sub.q.push(ev)
	if dropped := sub.q.droppedCount() - before; dropped > 0 {
		d.metrics.IncDroppedEvent(sub.name)
		d.logger.Warn("consumer queue full, dropped oldest event",
			"consumer", sub.name,
		)
	}
}

// deliverLoop drains one consumer queue, isolating panics.
func (d *Dispatcher) deliverLoop(sub *subscriber) {
	defer d.wg.Done()

	for {
		ev, ok := sub.q.pop()
		if !ok {
			return
		}
		d.deliver(sub, ev)
	}
}

// deliver invokes the consumer callback, recovering panics so a broken
// consumer cannot affect other consumers or the connection.
func (d *Dispatcher) deliver(sub *subscriber, ev model.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			sub.panics.Add(1)
			d.metrics.IncConsumerPanic(sub.name)
			d.logger.Error("consumer panicked",
				"consumer", sub.name,
				"channel", string(ev.Kind),
				"panic", rec,
			)
		}
	}()

	sub.fn(ev)
	sub.delivered.Add(1)
}

// Close shuts down delivery: queues drain, workers exit, further
// Dispatch calls become no-ops. Blocks until all workers are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.byKind = make(map[model.ChannelKind][]*subscriber)
	d.all = nil
	d.mu.Unlock()

	for _, sub := range subs {
		sub.q.close()
	}
	d.wg.Wait()
}

// Stats returns per-consumer counters in registration order.
func (d *Dispatcher) Stats() []ConsumerStats {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	out := make([]ConsumerStats, 0, len(subs))
	for _, sub := range subs {
		out = append(out, ConsumerStats{
			Name:      sub.name,
			Queued:    sub.q.len(),
			Delivered: sub.delivered.Load(),
			Dropped:   sub.q.droppedCount(),
			Panics:    sub.panics.Load(),
		})
	}
	return out
}
