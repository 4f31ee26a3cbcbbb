package main

import (
	"log/slog"

	"paradexfeed/internal/dispatch"
	"paradexfeed/internal/model"
)

// consoleConsumer logs every event, one line per event.
func consoleConsumer(logger *slog.Logger) dispatch.Consumer {
	return func(ev model.Event) {
		switch {
		case ev.Trade != nil:
			logger.Info("trade",
				"market", ev.Trade.Market,
				"price", ev.Trade.Price,
				"size", ev.Trade.Size,
				"side", ev.Trade.Side,
			)

		case ev.Orderbook != nil:
			attrs := []any{
				"market", ev.Orderbook.Market,
				"seq", ev.Orderbook.Seq,
				"bids", len(ev.Orderbook.Bids),
				"asks", len(ev.Orderbook.Asks),
			}
			if len(ev.Orderbook.Bids) > 0 {
				attrs = append(attrs, "best_bid", ev.Orderbook.Bids[0].Price)
			}
			if len(ev.Orderbook.Asks) > 0 {
				attrs = append(attrs, "best_ask", ev.Orderbook.Asks[0].Price)
			}
			logger.Info("orderbook", attrs...)

		case ev.Ticker != nil:
			logger.Info("ticker",
				"market", ev.Ticker.Market,
				"last", ev.Ticker.Last,
				"mark", ev.Ticker.MarkPrice,
				"volume_24h", ev.Ticker.Volume24h,
			)

		default:
			logger.Info("unknown event",
				"kind", string(ev.Kind),
				"market", ev.Market,
				"raw_bytes", len(ev.Raw),
			)
		}
	}
}
