package projection_test

import (
	"testing"
	"time"

	"perpcore/internal/event"
	"perpcore/internal/projection"
)

func TestFundingHistory_RecentNewestFirst(t *testing.T) {
	h := projection.NewFundingHistory(8)
	base := time.Unix(1_700_000_000, 0)
	for i := int64(1); i <= 3; i++ {
		h.Record(event.FundingUpdate{Symbol: "BTC-PERP", LongHourlyRate: i * 100}, base.Add(time.Duration(i)*time.Hour))
	}

	got := h.Recent("BTC-PERP", 2)
	if len(got) != 2 {
		t.Fatalf("samples: got %d, want 2", len(got))
	}
	if got[0].LongHourlyRate != 300 || got[1].LongHourlyRate != 200 {
		t.Errorf("order: got %d, %d, want 300, 200", got[0].LongHourlyRate, got[1].LongHourlyRate)
	}

	latest, ok := h.Latest("BTC-PERP")
	if !ok || latest.LongHourlyRate != 300 {
		t.Errorf("latest: got %v %v", latest, ok)
	}
}

func TestFundingHistory_EvictsPastCapacity(t *testing.T) {
	h := projection.NewFundingHistory(2)
	at := time.Unix(1_700_000_000, 0)
	for i := int64(1); i <= 5; i++ {
		h.Record(event.FundingUpdate{Symbol: "ETH-PERP", LongHourlyRate: i}, at)
	}
	got := h.Recent("ETH-PERP", 0)
	if len(got) != 2 {
		t.Fatalf("samples: got %d, want 2", len(got))
	}
	if got[0].LongHourlyRate != 5 || got[1].LongHourlyRate != 4 {
		t.Errorf("kept: got %d, %d, want 5, 4", got[0].LongHourlyRate, got[1].LongHourlyRate)
	}
}

func TestFundingHistory_UnknownSymbolEmpty(t *testing.T) {
	h := projection.NewFundingHistory(4)
	if got := h.Recent("SOL-PERP", 10); len(got) != 0 {
		t.Errorf("unknown symbol: got %d samples, want 0", len(got))
	}
	if _, ok := h.Latest("SOL-PERP"); ok {
		t.Error("latest for unknown symbol reported ok")
	}
}
