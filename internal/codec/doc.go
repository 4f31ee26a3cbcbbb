// Package codec implements the Frame Codec: it decodes raw inbound
// WebSocket frames into typed events and serializes subscription
// requests in the JSON-RPC 2.0 format the feed speaks.
//
// All functions are pure and safe for concurrent use.
package codec
