// Package registry implements the Channel Registry: the desired set of
// (channel kind, market) subscriptions. It is the source of truth the
// Connection Manager replays after every reconnect, and it emits change
// notifications so subscriptions mutated mid-connection are resolved
// with incremental subscribe/unsubscribe requests.
package registry
