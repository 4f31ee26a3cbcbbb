// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and reconnect counts
//   - Decoded event and decode error rates
//   - Per-consumer drop and panic counts
package metrics
