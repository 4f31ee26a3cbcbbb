package registry

import (
	"sync"

	"paradexfeed/internal/model"
)

// ChangeBufferSize is the capacity of the change notification channel.
const ChangeBufferSize = 256

// Op is a registry mutation kind.
type Op int

const (
	OpSubscribe Op = iota
	OpUnsubscribe
)

func (o Op) String() string {
	if o == OpUnsubscribe {
		return "unsubscribe"
	}
	return "subscribe"
}

// Change is one registry mutation, consumed by the Connection Manager
// while a connection is live.
type Change struct {
	Op   Op
	Pair model.Pair
}

// Stats holds registry counters.
type Stats struct {
	Pairs          int
	DroppedChanges int64
}

// Registry is the thread-safe subscription set. Add and Remove are
// idempotent; Snapshot preserves insertion order. It may be mutated
// from consumer goroutines while the Connection Manager reads it.
type Registry struct {
	mu      sync.Mutex
	order   []model.Pair
	members map[model.Pair]struct{}
	changes chan Change
	dropped int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		members: make(map[model.Pair]struct{}),
		changes: make(chan Change, ChangeBufferSize),
	}
}

// Add inserts a (kind, market) pair. Adding an existing pair is a
// no-op. Reports whether the set changed.
func (r *Registry) Add(kind model.ChannelKind, market string) bool {
	pair := model.Pair{Kind: kind, Market: market}

	r.mu.Lock()
	if _, ok := r.members[pair]; ok {
		r.mu.Unlock()
		return false
	}
	r.members[pair] = struct{}{}
	r.order = append(r.order, pair)
	r.notifyLocked(Change{Op: OpSubscribe, Pair: pair})
	r.mu.Unlock()

	return true
}

// Remove deletes a (kind, market) pair. Removing an absent pair is a
// no-op. Reports whether the set changed.
func (r *Registry) Remove(kind model.ChannelKind, market string) bool {
	pair := model.Pair{Kind: kind, Market: market}

	r.mu.Lock()
	if _, ok := r.members[pair]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, pair)
	for i, p := range r.order {
		if p == pair {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notifyLocked(Change{Op: OpUnsubscribe, Pair: pair})
	r.mu.Unlock()

	return true
}

// Contains reports membership of a pair.
func (r *Registry) Contains(kind model.ChannelKind, market string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[model.Pair{Kind: kind, Market: market}]
	return ok
}

// Snapshot returns a copy of the current pairs in insertion order,
// for replay as subscription requests.
func (r *Registry) Snapshot() []model.Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Pair, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered pairs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Changes returns the change notification channel. Notifications are
// best-effort: if the buffer overflows the oldest entry is dropped,
// and the divergence heals on the next full replay.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Pairs: len(r.order), DroppedChanges: r.dropped}
}

// notifyLocked sends a change without blocking; caller holds the lock.
func (r *Registry) notifyLocked(c Change) {
	select {
	case r.changes <- c:
	default:
		select {
		case <-r.changes:
			r.dropped++
		default:
		}
		select {
		case r.changes <- c:
		default:
			r.dropped++
		}
	}
}
