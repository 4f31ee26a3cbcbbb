// Package sink persists dispatched events to TimescaleDB.
//
// The sink is an ordinary dispatcher consumer: it registers as a
// wildcard subscriber, buffers trade and ticker rows, and batch-inserts
// them with ON CONFLICT DO NOTHING so trade id replays after a
// reconnect are harmless. Orderbook and unknown events are counted and
// skipped.
package sink
