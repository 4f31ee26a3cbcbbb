package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paradexfeed/internal/dispatch"
	"paradexfeed/internal/model"
)

// ConsumerName is the name the sink registers under on the dispatcher.
const ConsumerName = "timescale-sink"

// Config configures batching behavior.
type Config struct {
	// BatchSize triggers a flush once this many rows are pending.
	BatchSize int
	// FlushInterval flushes partial batches.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// tradeRow is the trades table shape. Prices travel as decimal strings
// and land in NUMERIC columns.
type tradeRow struct {
	TradeID    string
	Market     string
	Price      string
	Size       string
	Side       string
	ExchangeTS int64
	ReceivedAt int64 // micros since epoch
}

// tickerRow is the tickers table shape.
type tickerRow struct {
	Market     string
	Last       string
	MarkPrice  string
	Volume24h  string
	ExchangeTS int64
	ReceivedAt int64
}

// Stats holds sink counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Skipped   int64 // events with no persistable payload
}

// Sink is an example consumer: it receives every dispatched event and
// batch-inserts trades and tickers into TimescaleDB.
type Sink struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	mu      sync.Mutex
	trades  []tradeRow
	tickers []tickerRow
	stats   Stats

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	flushTicker *time.Ticker
}

// New creates a sink over an existing pool. logger may be nil.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Sink{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		trades:  make([]tradeRow, 0, cfg.BatchSize),
		tickers: make([]tickerRow, 0, cfg.BatchSize),
	}
}

// Start launches the periodic flush loop and registers the sink as a
// wildcard consumer on the dispatcher.
func (s *Sink) Start(ctx context.Context, disp *dispatch.Dispatcher) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	if err := disp.RegisterAll(ConsumerName, s.Consume); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("sink started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts the flush loop down and writes any pending rows.
func (s *Sink) Stop(ctx context.Context) error {
	s.logger.Info("stopping sink")

	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sink stop timed out")
		return ctx.Err()
	}

	// Final flush of whatever is still pending.
	s.flush(ctx)
	s.logger.Info("sink stopped")
	return nil
}

// Stats returns current counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Consume accepts one event. It runs on the sink's dispatcher delivery
// goroutine.
func (s *Sink) Consume(ev model.Event) {
	switch {
	case ev.Trade != nil:
		s.addTrade(tradeRow{
			TradeID:    ev.Trade.ID,
			Market:     ev.Trade.Market,
			Price:      ev.Trade.Price.String(),
			Size:       ev.Trade.Size.String(),
			Side:       ev.Trade.Side,
			ExchangeTS: ev.Trade.ExchangeTS,
			ReceivedAt: ev.ReceivedAt.UnixMicro(),
		})
	case ev.Ticker != nil:
		s.addTicker(tickerRow{
			Market:     ev.Ticker.Market,
			Last:       ev.Ticker.Last.String(),
			MarkPrice:  ev.Ticker.MarkPrice.String(),
			Volume24h:  ev.Ticker.Volume24h.String(),
			ExchangeTS: ev.Ticker.ExchangeTS,
			ReceivedAt: ev.ReceivedAt.UnixMicro(),
		})
	default:
		// Orderbook and unknown events are not persisted.
		s.mu.Lock()
		s.stats.Skipped++
		s.mu.Unlock()
	}
}

func (s *Sink) addTrade(row tradeRow) {
	s.mu.Lock()
	s.trades = append(s.trades, row)
	shouldFlush := len(s.trades) >= s.cfg.BatchSize
	s.mu.Unlock()

	if shouldFlush {
		s.flush(s.ctx)
	}
}

func (s *Sink) addTicker(row tickerRow) {
	s.mu.Lock()
	s.tickers = append(s.tickers, row)
	shouldFlush := len(s.tickers) >= s.cfg.BatchSize
	s.mu.Unlock()

	if shouldFlush {
		s.flush(s.ctx)
	}
}

// pending returns the number of buffered rows.
func (s *Sink) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades) + len(s.tickers)
}

// flushLoop periodically flushes partial batches.
func (s *Sink) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush(s.ctx)
		}
	}
}

// flush takes ownership of pending rows and writes them.
func (s *Sink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.trades) == 0 && len(s.tickers) == 0 {
		s.mu.Unlock()
		return
	}
	trades := s.trades
	tickers := s.tickers
	s.trades = make([]tradeRow, 0, s.cfg.BatchSize)
	s.tickers = make([]tickerRow, 0, s.cfg.BatchSize)
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	total := len(trades) + len(tickers)

	conflicts, err := s.batchInsert(ctx, trades, tickers)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", total)
		s.mu.Lock()
		s.stats.Errors++
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.stats.Inserts += int64(total - conflicts)
	s.stats.Conflicts += int64(conflicts)
	s.stats.Flushes++
	s.mu.Unlock()

	s.logger.Debug("flushed events",
		"trades", len(trades),
		"tickers", len(tickers),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert writes rows in one round trip with ON CONFLICT DO NOTHING
// for trade id replays.
func (s *Sink) batchInsert(ctx context.Context, trades []tradeRow, tickers []tickerRow) (conflicts int, err error) {
	batch := buildBatch(trades, tickers)

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// buildBatch queues one insert per row.
func buildBatch(trades []tradeRow, tickers []tickerRow) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range trades {
		batch.Queue(`
			INSERT INTO trades (trade_id, market, price, size, side, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (trade_id) DO NOTHING
		`, r.TradeID, r.Market, r.Price, r.Size, r.Side, r.ExchangeTS, r.ReceivedAt)
	}
	for _, r := range tickers {
		batch.Queue(`
			INSERT INTO tickers (market, last, mark_price, volume_24h, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.Market, r.Last, r.MarkPrice, r.Volume24h, r.ExchangeTS, r.ReceivedAt)
	}
	return batch
}
