// Package model defines the shared data types of the feed client.
//
// Conventions:
//   - Prices and sizes: decimal.Decimal (the wire carries decimal strings)
//   - Exchange timestamps: int64 milliseconds since Unix epoch
//   - Local timestamps: time.Time, captured when the frame is read
package model
