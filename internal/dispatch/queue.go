package dispatch

import (
	"sync"

	"paradexfeed/internal/model"
)

// OverflowPolicy determines what happens when a consumer queue is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued event to make room.
	DropOldest OverflowPolicy = "drop_oldest"
	// Block makes the enqueuing caller wait for free space.
	Block OverflowPolicy = "block"
)

// ValidPolicy reports whether p names a supported overflow policy.
func ValidPolicy(p OverflowPolicy) bool {
	return p == DropOldest || p == Block
}

// queue is a fixed-capacity ring buffer of events with an explicit
// overflow policy. One producer side (Dispatch) and one consumer
// goroutine per queue.
type queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []model.Event
	head   int
	tail   int
	count  int
	policy OverflowPolicy
	closed bool

	dropped int64
}

func newQueue(capacity int, policy OverflowPolicy) *queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &queue{
		buf:    make([]model.Event, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// push enqueues an event. With DropOldest a full queue evicts its
// oldest entry; with Block the caller waits for space. Returns false
// if the queue is closed.
func (q *queue) push(ev model.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.buf) {
		switch q.policy {
		case Block:
			for q.count == len(q.buf) && !q.closed {
				q.notFull.Wait()
			}
			if q.closed {
				return false
			}
		default: // DropOldest
			q.buf[q.head] = model.Event{}
			q.head = (q.head + 1) % len(q.buf)
			q.count--
			q.dropped++
		}
	}

	q.buf[q.tail] = ev
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.notEmpty.Signal()
	return true
}

// pop dequeues the next event, blocking until one is available or the
// queue is closed and drained.
func (q *queue) pop() (model.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		return model.Event{}, false
	}

	ev := q.buf[q.head]
	q.buf[q.head] = model.Event{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return ev, true
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *queue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
