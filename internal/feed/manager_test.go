package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"paradexfeed/internal/dispatch"
	"paradexfeed/internal/model"
	"paradexfeed/internal/registry"
)

// recordingServer is a WebSocket server that records inbound frames
// per connection and can drop the first N connections immediately.
type recordingServer struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	dropFirst   int
	connections int
	frames      [][]string // frames received, indexed by connection
	conns       []*websocket.Conn
}

func newRecordingServer(t *testing.T, dropFirst int) *recordingServer {
	rs := &recordingServer{t: t, dropFirst: dropFirst}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rs.t.Logf("upgrade error: %v", err)
			return
		}

		rs.mu.Lock()
		rs.connections++
		idx := rs.connections - 1
		rs.frames = append(rs.frames, nil)
		rs.conns = append(rs.conns, conn)
		drop := idx < rs.dropFirst
		rs.mu.Unlock()

		if drop {
			conn.Close()
			return
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			rs.mu.Lock()
			rs.frames[idx] = append(rs.frames[idx], string(msg))
			rs.mu.Unlock()
		}
	}))

	return rs
}

func (rs *recordingServer) url() string { return wsURL(rs.server) }

func (rs *recordingServer) close() { rs.server.Close() }

func (rs *recordingServer) connectionCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.connections
}

func (rs *recordingServer) framesOn(conn int) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if conn >= len(rs.frames) {
		return nil
	}
	out := make([]string, len(rs.frames[conn]))
	copy(out, rs.frames[conn])
	return out
}

// push sends a frame to the client over the latest live connection.
func (rs *recordingServer) push(raw string) error {
	rs.mu.Lock()
	conn := rs.conns[len(rs.conns)-1]
	rs.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.URL = url
	cfg.IdleTimeout = 5 * time.Second
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	cfg.ReconnectJitter = 0
	return cfg
}

func waitForState(t *testing.T, mgr Manager, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mgr.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", mgr.State(), want)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func subscribedChannels(frames []string) []string {
	var out []string
	for _, f := range frames {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Channel string `json:"channel"`
			} `json:"params"`
		}
		if err := json.Unmarshal([]byte(f), &req); err != nil {
			continue
		}
		if req.Method == "subscribe" {
			out = append(out, req.Params.Channel)
		}
	}
	return out
}

func TestManagerReachesLive(t *testing.T) {
	rs := newRecordingServer(t, 0)
	defer rs.close()

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")
	reg.Add(model.KindOrderbook, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(testManagerConfig(rs.url()), reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitForState(t, mgr, StateLive, 2*time.Second)

	waitUntil(t, time.Second, func() bool {
		return len(subscribedChannels(rs.framesOn(0))) == 2
	})

	channels := subscribedChannels(rs.framesOn(0))
	want := []string{"trades.BTC-USD-PERP", "orderbook.BTC-USD-PERP"}
	for i := range want {
		if channels[i] != want[i] {
			t.Errorf("subscribe[%d] = %q, want %q", i, channels[i], want[i])
		}
	}
}

// TestManagerReconnectsAfterFailures drops the first three connections
// and checks the manager reaches Live on the fourth, with one backoff
// wait per failure and the attempt counter reset at Live.
func TestManagerReconnectsAfterFailures(t *testing.T) {
	const failures = 3

	rs := newRecordingServer(t, failures)
	defer rs.close()

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(testManagerConfig(rs.url()), reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitForState(t, mgr, StateLive, 5*time.Second)
	waitUntil(t, time.Second, func() bool {
		return len(subscribedChannels(rs.framesOn(failures))) == 1
	})

	stats := mgr.Stats()
	if stats.Reconnects < failures {
		t.Errorf("Reconnects = %d, want >= %d", stats.Reconnects, failures)
	}
	if stats.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 after reaching Live", stats.Attempts)
	}
	if got := rs.connectionCount(); got < failures+1 {
		t.Errorf("connections = %d, want >= %d", got, failures+1)
	}
}

// TestMalformedFrameDoesNotReconnect injects garbage into a live
// stream and checks it produces exactly one decode error and no state
// transition.
func TestMalformedFrameDoesNotReconnect(t *testing.T) {
	rs := newRecordingServer(t, 0)
	defer rs.close()

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	var mu sync.Mutex
	var got []model.Event
	disp.Register(model.KindTrades, "collector", func(ev model.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	mgr := NewManager(testManagerConfig(rs.url()), reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitForState(t, mgr, StateLive, 2*time.Second)

	if err := rs.push(`this is not json`); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := rs.push(`{"jsonrpc":"2.0","method":"subscription","params":{"channel":"trades.BTC-USD-PERP","data":{"market":"BTC-USD-PERP","price":"1.0","size":"2.0","side":"sell","created_at":1}}}`); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	stats := mgr.Stats()
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
	if stats.Reconnects != 0 {
		t.Errorf("Reconnects = %d, want 0", stats.Reconnects)
	}
	if mgr.State() != StateLive {
		t.Errorf("state = %q, want live", mgr.State())
	}
	if rs.connectionCount() != 1 {
		t.Errorf("connections = %d, want 1", rs.connectionCount())
	}
}

// TestShutdownDuringBackoff checks that Stop interrupts a long backoff
// wait instead of waiting it out.
func TestShutdownDuringBackoff(t *testing.T) {
	// Nothing listens here, so every connect fails.
	cfg := testManagerConfig("ws://127.0.0.1:1")
	cfg.ReconnectBaseWait = 30 * time.Second
	cfg.ReconnectMaxWait = 30 * time.Second

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(cfg, reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitForState(t, mgr, StateReconnecting, 2*time.Second)

	start := time.Now()
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop took %v, want well under the 30s backoff", elapsed)
	}

	if mgr.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", mgr.State())
	}

	// Repeated Stop is a no-op.
	if err := mgr.Stop(context.Background()); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

// TestRegistryChangeWhileLive mutates the registry mid-connection and
// expects incremental subscribe/unsubscribe requests, not a reconnect.
func TestRegistryChangeWhileLive(t *testing.T) {
	rs := newRecordingServer(t, 0)
	defer rs.close()

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(testManagerConfig(rs.url()), reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitForState(t, mgr, StateLive, 2*time.Second)
	waitUntil(t, time.Second, func() bool {
		return len(rs.framesOn(0)) == 1
	})

	reg.Add(model.KindTicker, "ETH-USD-PERP")
	reg.Remove(model.KindTrades, "BTC-USD-PERP")

	waitUntil(t, 2*time.Second, func() bool {
		return len(rs.framesOn(0)) == 3
	})

	frames := rs.framesOn(0)

	var second struct {
		Method string `json:"method"`
		Params struct {
			Channel string `json:"channel"`
		} `json:"params"`
	}
	json.Unmarshal([]byte(frames[1]), &second)
	if second.Method != "subscribe" || second.Params.Channel != "ticker.ETH-USD-PERP" {
		t.Errorf("frame[1] = %s %s, want subscribe ticker.ETH-USD-PERP", second.Method, second.Params.Channel)
	}

	json.Unmarshal([]byte(frames[2]), &second)
	if second.Method != "unsubscribe" || second.Params.Channel != "trades.BTC-USD-PERP" {
		t.Errorf("frame[2] = %s %s, want unsubscribe trades.BTC-USD-PERP", second.Method, second.Params.Channel)
	}

	if rs.connectionCount() != 1 {
		t.Errorf("connections = %d, want 1 (no reconnect)", rs.connectionCount())
	}
}

// TestResubscribeAfterReconnect kills a live connection and checks the
// registry is replayed on the replacement connection.
func TestResubscribeAfterReconnect(t *testing.T) {
	rs := newRecordingServer(t, 0)
	defer rs.close()

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")
	reg.Add(model.KindTicker, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(testManagerConfig(rs.url()), reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitForState(t, mgr, StateLive, 2*time.Second)
	waitUntil(t, time.Second, func() bool {
		return len(subscribedChannels(rs.framesOn(0))) == 2
	})

	// Kill the live connection server-side.
	rs.mu.Lock()
	rs.conns[0].Close()
	rs.mu.Unlock()

	waitUntil(t, 5*time.Second, func() bool {
		return len(subscribedChannels(rs.framesOn(1))) == 2
	})

	channels := subscribedChannels(rs.framesOn(1))
	want := []string{"trades.BTC-USD-PERP", "ticker.BTC-USD-PERP"}
	for i := range want {
		if channels[i] != want[i] {
			t.Errorf("replayed subscribe[%d] = %q, want %q", i, channels[i], want[i])
		}
	}
}

// TestIdleTimeoutForcesReconnect checks that a silent connection is
// torn down and re-established.
func TestIdleTimeoutForcesReconnect(t *testing.T) {
	rs := newRecordingServer(t, 0)
	defer rs.close()

	cfg := testManagerConfig(rs.url())
	cfg.IdleTimeout = 100 * time.Millisecond

	reg := registry.New()
	reg.Add(model.KindTrades, "BTC-USD-PERP")

	disp := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	defer disp.Close()

	mgr := NewManager(cfg, reg, disp, nil, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopManager(t, mgr)

	waitUntil(t, 5*time.Second, func() bool {
		return rs.connectionCount() >= 2
	})
}

func TestBackoffMonotonicCapped(t *testing.T) {
	m := &manager{cfg: ManagerConfig{
		ReconnectBaseWait: 100 * time.Millisecond,
		ReconnectMaxWait:  time.Second,
	}}

	bo := m.newBackoff()

	var prev time.Duration
	for i := 0; i < 12; i++ {
		wait := bo.NextBackOff()
		if wait < prev {
			t.Errorf("wait[%d] = %v decreased from %v", i, wait, prev)
		}
		if wait > time.Second {
			t.Errorf("wait[%d] = %v exceeds the cap", i, wait)
		}
		prev = wait
	}
	if prev != time.Second {
		t.Errorf("final wait = %v, want the 1s cap", prev)
	}

	// Reset starts the progression over.
	bo.Reset()
	if wait := bo.NextBackOff(); wait != 100*time.Millisecond {
		t.Errorf("wait after Reset = %v, want 100ms", wait)
	}
}

func stopManager(t *testing.T, mgr Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
