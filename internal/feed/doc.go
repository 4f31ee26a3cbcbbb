// Package feed implements the Connection Manager.
//
// The Connection Manager:
//   - Owns the WebSocket transport and its connect/receive loop
//   - Replays the Channel Registry as subscription requests after
//     every (re)connect, and applies registry changes incrementally
//     while live
//   - Detects failure via read/write errors and an idle timeout, and
//     reconnects with capped exponential backoff and jitter, forever,
//     until explicitly stopped
//   - Skips malformed frames without touching connection health
package feed
