package fixed_test

import (
	"errors"
	"math"
	"testing"

	"perpcore/internal/errs"
	"perpcore/internal/fixed"
)

func TestAddSub_Overflow(t *testing.T) {
	if _, err := fixed.Add(math.MaxInt64, 1); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("add overflow: got %v", err)
	}
	if _, err := fixed.Sub(math.MinInt64, 1); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("sub overflow: got %v", err)
	}
	got, err := fixed.Add(-5, 3)
	if err != nil || got != -2 {
		t.Errorf("add: got %d, %v", got, err)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a*b overflows int64 but the quotient fits.
	a := int64(5_000_0000_0000) // 5000 USD, PricePrecision
	got, err := fixed.MulDiv(a, fixed.PerTokenPrecision, fixed.PerTokenPrecision)
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Errorf("got %d, want %d", got, a)
	}

	if _, err := fixed.MulDiv(math.MaxInt64, 2, 1); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("overflow result: got %v", err)
	}
	if _, err := fixed.MulDiv(1, 1, 0); !errors.Is(err, errs.ErrMathError) {
		t.Errorf("zero denominator: got %v", err)
	}
}

func TestMulDiv_SignedTruncatesTowardZero(t *testing.T) {
	got, err := fixed.MulDiv(-7, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != -3 {
		t.Errorf("got %d, want -3", got)
	}
}

func TestMulDivCeil_RoundsUp(t *testing.T) {
	got, err := fixed.MulDivCeil(7, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Errorf("got %d, want 4", got)
	}
	if _, err := fixed.MulDivCeil(-1, 1, 2); !errors.Is(err, errs.ErrMathError) {
		t.Errorf("negative operand: got %v", err)
	}
}

func TestRates(t *testing.T) {
	// 0.1% of 1 BTC (1e8 units).
	got, err := fixed.MulRate(1_0000_0000, 100)
	if err != nil || got != 10_0000 {
		t.Errorf("MulRate: got %d, %v", got, err)
	}

	// Ceil variant charges the extra unit.
	got, err = fixed.MulRateCeil(999, 100)
	if err != nil || got != 1 {
		t.Errorf("MulRateCeil: got %d, %v", got, err)
	}

	// Per-second small rate over one hour of notional.
	got, err = fixed.MulSmallRate(5_000*1_0000_0000, 30_000)
	if err != nil || got != 150_0000 {
		t.Errorf("MulSmallRate: got %d, %v", got, err)
	}
}

func TestBlendPrice(t *testing.T) {
	// 100 @ 10 blended with 300 @ 20 = 17.5 truncated to 17.
	got, err := fixed.BlendPrice(100, 10, 300, 20)
	if err != nil || got != 17 {
		t.Errorf("blend: got %d, %v", got, err)
	}
	if _, err := fixed.BlendPrice(0, 0, 0, 0); !errors.Is(err, errs.ErrMathError) {
		t.Errorf("empty blend: got %v", err)
	}
}

func TestUnblendPrice_InvertsBlend(t *testing.T) {
	avg, err := fixed.BlendPrice(100, 10_0000_0000, 100, 20_0000_0000)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fixed.UnblendPrice(200, avg, 100, 20_0000_0000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 10_0000_0000 {
		t.Errorf("unblend: got %d, want %d", got, int64(10_0000_0000))
	}

	// Removing more value than the book holds floors at zero.
	got, err = fixed.UnblendPrice(10, 5, 5, 100)
	if err != nil || got != 0 {
		t.Errorf("floored unblend: got %d, %v", got, err)
	}
	if _, err := fixed.UnblendPrice(5, 1, 5, 1); !errors.Is(err, errs.ErrMathError) {
		t.Errorf("full unwind: got %v", err)
	}
}

func TestAbs(t *testing.T) {
	if got, _ := fixed.Abs(-42); got != 42 {
		t.Errorf("abs: got %d", got)
	}
	if _, err := fixed.Abs(math.MinInt64); !errors.Is(err, errs.ErrOverflow) {
		t.Errorf("abs min: got %v", err)
	}
}
