package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChannelKind identifies a category of market data a client can
// subscribe to per market.
type ChannelKind string

const (
	KindOrderbook ChannelKind = "orderbook"
	KindTrades    ChannelKind = "trades"
	KindTicker    ChannelKind = "ticker"

	// KindUnknown marks events decoded from channels this client does
	// not understand. They are still dispatched so forward-compatible
	// consumers can inspect the raw payload.
	KindUnknown ChannelKind = "unknown"
)

// KnownKinds lists the channel kinds this client can decode, in a
// stable order.
var KnownKinds = []ChannelKind{KindOrderbook, KindTrades, KindTicker}

// KnownKind reports whether k is a channel kind this client can decode.
func KnownKind(k ChannelKind) bool {
	switch k {
	case KindOrderbook, KindTrades, KindTicker:
		return true
	}
	return false
}

// ParseKind maps a wire channel prefix to a ChannelKind.
// Unrecognized prefixes map to KindUnknown.
func ParseKind(s string) ChannelKind {
	k := ChannelKind(s)
	if KnownKind(k) {
		return k
	}
	return KindUnknown
}

// Pair is a (channel kind, market symbol) subscription key.
// The Channel Registry is a set keyed by this pair.
type Pair struct {
	Kind   ChannelKind
	Market string
}

// Topic returns the wire channel name for the pair, e.g.
// "trades.BTC-USD-PERP". "ALL" is a valid market wildcard on the wire
// and is treated as an ordinary symbol here.
func (p Pair) Topic() string {
	return fmt.Sprintf("%s.%s", p.Kind, p.Market)
}

// -----------------------------------------------------------------------------
// Event payloads
// -----------------------------------------------------------------------------

// PriceLevel is a single price level in an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Trade is a single trade print.
type Trade struct {
	ID         string          // Exchange trade id (may be empty)
	Market     string          // Market symbol
	Price      decimal.Decimal // Execution price
	Size       decimal.Decimal // Executed size
	Side       string          // "buy" or "sell" (taker side)
	ExchangeTS int64           // Exchange timestamp (ms since epoch)
}

// OrderbookUpdate is an order book snapshot or delta for one market.
type OrderbookUpdate struct {
	Market     string
	Seq        int64 // Exchange sequence number, 0 if not provided
	Bids       []PriceLevel
	Asks       []PriceLevel
	ExchangeTS int64 // Exchange timestamp (ms since epoch)
}

// Ticker is a market ticker snapshot.
type Ticker struct {
	Market     string
	Last       decimal.Decimal // Last trade price
	MarkPrice  decimal.Decimal // Mark price, zero if not provided
	Volume24h  decimal.Decimal // 24-hour volume
	ExchangeTS int64           // Exchange timestamp (ms since epoch)
}

// Event is one decoded unit of market data. It is immutable once
// constructed; ownership passes to the Dispatcher and then to
// consumers. Exactly one payload pointer matching Kind is non-nil;
// Unknown events instead carry the raw payload bytes.
type Event struct {
	Kind       ChannelKind
	Market     string    // Market symbol, empty if the payload had none
	ReceivedAt time.Time // Local receive timestamp

	Trade     *Trade
	Orderbook *OrderbookUpdate
	Ticker    *Ticker

	// Raw holds the undecoded payload for KindUnknown events.
	Raw []byte
}
