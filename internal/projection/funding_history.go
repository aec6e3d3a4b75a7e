package projection

import (
	"sync"
	"time"

	"perpcore/internal/event"
)

// RateSample is one observed funding accrual tick.
type RateSample struct {
	Symbol          string    `json:"symbol"`
	LongPerSize     int64     `json:"long_per_size"`
	ShortPerSize    int64     `json:"short_per_size"`
	LongHourlyRate  int64     `json:"long_hourly_rate"`
	ShortHourlyRate int64     `json:"short_hourly_rate"`
	ObservedAt      time.Time `json:"observed_at"`
}

// FundingHistory keeps the most recent funding samples per symbol in
// memory so the query service can serve recent rates without touching
// Postgres. Older history lives in projections.funding_rates.
type FundingHistory struct {
	mu      sync.RWMutex
	cap     int
	samples map[string][]RateSample
}

func NewFundingHistory(capacity int) *FundingHistory {
	if capacity <= 0 {
		capacity = 256
	}
	return &FundingHistory{
		cap:     capacity,
		samples: make(map[string][]RateSample),
	}
}

// Record appends a sample, evicting the oldest past capacity.
func (h *FundingHistory) Record(e event.FundingUpdate, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := append(h.samples[e.Symbol], RateSample{
		Symbol:          e.Symbol,
		LongPerSize:     e.LongPerSize,
		ShortPerSize:    e.ShortPerSize,
		LongHourlyRate:  e.LongHourlyRate,
		ShortHourlyRate: e.ShortHourlyRate,
		ObservedAt:      at,
	})
	if len(s) > h.cap {
		s = s[len(s)-h.cap:]
	}
	h.samples[e.Symbol] = s
}

// Recent returns up to limit samples for symbol, newest first.
func (h *FundingHistory) Recent(symbol string, limit int) []RateSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.samples[symbol]
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	out := make([]RateSample, 0, limit)
	for i := len(s) - 1; i >= len(s)-limit; i-- {
		out = append(out, s[i])
	}
	return out
}

// Latest returns the newest sample for symbol, if any.
func (h *FundingHistory) Latest(symbol string) (RateSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.samples[symbol]
	if len(s) == 0 {
		return RateSample{}, false
	}
	return s[len(s)-1], true
}
