// Package dispatch implements the Event Dispatcher. Decoded events are
// demultiplexed by channel kind to registered consumers, each of which
// owns a bounded queue and a delivery goroutine, so a slow or
// misbehaving consumer can never stall the receive loop or its
// siblings. The overflow policy for full queues is explicit
// configuration: drop the oldest entry (default) or block the
// enqueuing caller (backpressure).
package dispatch
