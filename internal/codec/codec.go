package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"paradexfeed/internal/model"
)

// FrameType classifies an inbound frame.
type FrameType int

const (
	// FrameData carries a decoded market-data event.
	FrameData FrameType = iota
	// FrameAck is a response to a subscribe/unsubscribe request.
	FrameAck
	// FrameError is a server-reported request error. It reflects a
	// rejected request, not a broken connection.
	FrameError
)

// Frame is one classified inbound frame.
type Frame struct {
	Type  FrameType
	Event model.Event // valid when Type == FrameData
	ReqID int64       // request id for ack/error frames
	Err   *ServerError
}

// ServerError is the error body of a JSON-RPC error response.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// DecodeError reports a single malformed frame. It never indicates a
// connection problem; callers skip the frame and continue.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Wire shapes
// -----------------------------------------------------------------------------

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ServerError    `json:"error"`
}

type subscriptionParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type tradeData struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      string          `json:"side"`
	CreatedAt int64           `json:"created_at"`
}

type orderbookData struct {
	Market        string              `json:"market"`
	SeqNo         int64               `json:"seq_no"`
	Bids          [][]decimal.Decimal `json:"bids"`
	Asks          [][]decimal.Decimal `json:"asks"`
	LastUpdatedAt int64               `json:"last_updated_at"`
}

type tickerData struct {
	Market    string          `json:"market"`
	Last      decimal.Decimal `json:"last"`
	MarkPrice decimal.Decimal `json:"mark_price"`
	Volume24h decimal.Decimal `json:"volume24h"`
	TS        int64           `json:"ts"`
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
	ID      int64         `json:"id"`
}

type requestParams struct {
	Channel string `json:"channel"`
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

// DecodeFrame parses one raw inbound frame. Data frames become typed
// events; frames on channels the client does not understand become
// KindUnknown events rather than errors (forward compatibility).
// Malformed frames return a *DecodeError.
func DecodeFrame(raw []byte, receivedAt time.Time) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, &DecodeError{Reason: "invalid json", Err: err}
	}

	if env.Error != nil {
		return Frame{Type: FrameError, ReqID: env.ID, Err: env.Error}, nil
	}

	if env.Method == "subscription" {
		return decodeData(env.Params, receivedAt)
	}

	if env.Result != nil {
		return Frame{Type: FrameAck, ReqID: env.ID}, nil
	}

	return Frame{}, &DecodeError{Reason: "unrecognized frame shape"}
}

// decodeData decodes the params of a "subscription" notification.
func decodeData(params json.RawMessage, receivedAt time.Time) (Frame, error) {
	var p subscriptionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Frame{}, &DecodeError{Reason: "invalid subscription params", Err: err}
	}
	if p.Channel == "" {
		return Frame{}, &DecodeError{Reason: "subscription without channel"}
	}

	// Channel names are "<kind>.<MARKET>"; a bare kind is also legal.
	kindStr, market, _ := strings.Cut(p.Channel, ".")
	kind := model.ParseKind(kindStr)

	ev := model.Event{
		Kind:       kind,
		Market:     market,
		ReceivedAt: receivedAt,
	}

	switch kind {
	case model.KindTrades:
		var d tradeData
		if err := json.Unmarshal(p.Data, &d); err != nil {
			return Frame{}, &DecodeError{Reason: "invalid trade payload", Err: err}
		}
		ev.Trade = &model.Trade{
			ID:         d.ID,
			Market:     d.Market,
			Price:      d.Price,
			Size:       d.Size,
			Side:       d.Side,
			ExchangeTS: d.CreatedAt,
		}
		if d.Market != "" {
			ev.Market = d.Market
		}

	case model.KindOrderbook:
		var d orderbookData
		if err := json.Unmarshal(p.Data, &d); err != nil {
			return Frame{}, &DecodeError{Reason: "invalid orderbook payload", Err: err}
		}
		bids, err := toLevels(d.Bids)
		if err != nil {
			return Frame{}, &DecodeError{Reason: "invalid bid level", Err: err}
		}
		asks, err := toLevels(d.Asks)
		if err != nil {
			return Frame{}, &DecodeError{Reason: "invalid ask level", Err: err}
		}
		ev.Orderbook = &model.OrderbookUpdate{
			Market:     d.Market,
			Seq:        d.SeqNo,
			Bids:       bids,
			Asks:       asks,
			ExchangeTS: d.LastUpdatedAt,
		}
		if d.Market != "" {
			ev.Market = d.Market
		}

	case model.KindTicker:
		var d tickerData
		if err := json.Unmarshal(p.Data, &d); err != nil {
			return Frame{}, &DecodeError{Reason: "invalid ticker payload", Err: err}
		}
		ev.Ticker = &model.Ticker{
			Market:     d.Market,
			Last:       d.Last,
			MarkPrice:  d.MarkPrice,
			Volume24h:  d.Volume24h,
			ExchangeTS: d.TS,
		}
		if d.Market != "" {
			ev.Market = d.Market
		}

	default:
		// Keep the raw payload so forward-compatible consumers can
		// decode it themselves.
		ev.Kind = model.KindUnknown
		ev.Market = ""
		ev.Raw = append([]byte(nil), p.Data...)
	}

	return Frame{Type: FrameData, Event: ev}, nil
}

// toLevels converts wire [price, size] tuples to price levels.
func toLevels(raw [][]decimal.Decimal) ([]model.PriceLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]model.PriceLevel, 0, len(raw))
	for _, tuple := range raw {
		if len(tuple) < 2 {
			return nil, fmt.Errorf("level has %d fields, want 2", len(tuple))
		}
		levels = append(levels, model.PriceLevel{Price: tuple[0], Size: tuple[1]})
	}
	return levels, nil
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

// EncodeSubscribe serializes one subscribe request per pair. Request
// ids are assigned sequentially starting at firstID; the caller owns
// the id counter so encoding stays stateless.
func EncodeSubscribe(pairs []model.Pair, firstID int64) ([][]byte, error) {
	return encodeRequests("subscribe", pairs, firstID)
}

// EncodeUnsubscribe serializes one unsubscribe request per pair.
func EncodeUnsubscribe(pairs []model.Pair, firstID int64) ([][]byte, error) {
	return encodeRequests("unsubscribe", pairs, firstID)
}

func encodeRequests(method string, pairs []model.Pair, firstID int64) ([][]byte, error) {
	frames := make([][]byte, 0, len(pairs))
	for i, p := range pairs {
		data, err := json.Marshal(request{
			JSONRPC: "2.0",
			Method:  method,
			Params:  requestParams{Channel: p.Topic()},
			ID:      firstID + int64(i),
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, p.Topic(), err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}
