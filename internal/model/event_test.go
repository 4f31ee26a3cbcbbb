package model

import "testing"

func TestPairTopic(t *testing.T) {
	tests := []struct {
		pair Pair
		want string
	}{
		{Pair{KindTrades, "BTC-USD-PERP"}, "trades.BTC-USD-PERP"},
		{Pair{KindOrderbook, "ETH-USD-PERP"}, "orderbook.ETH-USD-PERP"},
		{Pair{KindTrades, "ALL"}, "trades.ALL"},
	}

	for _, tt := range tests {
		if got := tt.pair.Topic(); got != tt.want {
			t.Errorf("Topic() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want ChannelKind
	}{
		{"orderbook", KindOrderbook},
		{"trades", KindTrades},
		{"ticker", KindTicker},
		{"funding_data", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		if got := ParseKind(tt.in); got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKnownKind(t *testing.T) {
	for _, k := range KnownKinds {
		if !KnownKind(k) {
			t.Errorf("KnownKind(%q) = false, want true", k)
		}
	}
	if KnownKind(KindUnknown) {
		t.Error("KnownKind(unknown) = true, want false")
	}
}
