// Package fixed is the checked fixed-point arithmetic kernel.
//
// All monetary quantities are int64 values scaled by one of the named
// precision constants. Intermediate products are computed over pooled
// big.Int values so a multiply can never wrap silently; the final cast
// back to int64 is overflow-checked and fails the whole operation.
package fixed

import (
	"math/big"
	"sync"

	"perpcore/internal/errs"
)

const (
	// PricePrecision scales oracle prices and USD amounts (1e-8 USD).
	PricePrecision int64 = 100_000_000

	// RatePrecision scales fee rates, margin rates, discounts and
	// other ratios (1e-5).
	RatePrecision int64 = 100_000

	// SmallRatePrecision scales per-second rates (1e-10).
	SmallRatePrecision int64 = 10_000_000_000

	// PerTokenPrecision scales cumulative per-token and per-size fee
	// rates (1e-10).
	PerTokenPrecision int64 = 10_000_000_000
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// Add returns a+b, failing on int64 overflow.
func Add(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, errs.ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing on int64 overflow.
func Sub(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, errs.ErrOverflow
	}
	return diff, nil
}

// Mul returns a*b, failing on int64 overflow.
func Mul(a, b int64) (int64, error) {
	prod := getBig()
	defer putBig(prod)
	x := getBig()
	defer putBig(x)

	prod.Mul(x.SetInt64(a), big.NewInt(b))
	if !prod.IsInt64() {
		return 0, errs.ErrOverflow
	}
	return prod.Int64(), nil
}

// Div returns a/b truncated toward zero, failing on division by zero.
func Div(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errs.ErrMathError
	}
	return a / b, nil
}

// DivCeil returns a/b rounded away from zero for non-negative operands.
// Only defined for a >= 0, b > 0.
func DivCeil(a, b int64) (int64, error) {
	if b <= 0 || a < 0 {
		return 0, errs.ErrMathError
	}
	return (a + b - 1) / b, nil
}

// MulDiv returns a*b/den with a 128-bit intermediate, truncated toward
// zero.
func MulDiv(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, errs.ErrMathError
	}
	num := getBig()
	defer putBig(num)
	x := getBig()
	defer putBig(x)

	num.Mul(x.SetInt64(a), big.NewInt(b))
	num.Quo(num, x.SetInt64(den))
	if !num.IsInt64() {
		return 0, errs.ErrOverflow
	}
	return num.Int64(), nil
}

// MulDivCeil returns a*b/den rounded up. Only defined for non-negative
// a, b and positive den.
func MulDivCeil(a, b, den int64) (int64, error) {
	if den <= 0 || a < 0 || b < 0 {
		return 0, errs.ErrMathError
	}
	num := getBig()
	defer putBig(num)
	x := getBig()
	defer putBig(x)

	num.Mul(x.SetInt64(a), big.NewInt(b))
	num.Add(num, x.SetInt64(den-1))
	num.Quo(num, x.SetInt64(den))
	if !num.IsInt64() {
		return 0, errs.ErrOverflow
	}
	return num.Int64(), nil
}

// MulRate returns a scaled by a RatePrecision rate.
func MulRate(a, rate int64) (int64, error) {
	return MulDiv(a, rate, RatePrecision)
}

// MulRateCeil is MulRate rounded up, used where the counterparty of the
// rounding is the protocol (e.g. fee charged to a trader).
func MulRateCeil(a, rate int64) (int64, error) {
	return MulDivCeil(a, rate, RatePrecision)
}

// DivRate divides a by a RatePrecision rate.
func DivRate(a, rate int64) (int64, error) {
	return MulDiv(a, RatePrecision, rate)
}

// MulSmallRate returns a scaled by a SmallRatePrecision per-second rate.
func MulSmallRate(a, rate int64) (int64, error) {
	return MulDiv(a, rate, SmallRatePrecision)
}

// MulPerTokenRate returns a scaled by a PerTokenPrecision cumulative
// rate.
func MulPerTokenRate(a, rate int64) (int64, error) {
	return MulDiv(a, rate, PerTokenPrecision)
}

// BlendPrice returns the size-weighted average
// (sizeA*priceA + sizeB*priceB) / (sizeA + sizeB) with 128-bit
// intermediates. Both sizes must be non-negative and not both zero.
func BlendPrice(sizeA, priceA, sizeB, priceB int64) (int64, error) {
	if sizeA < 0 || sizeB < 0 || sizeA+sizeB == 0 {
		return 0, errs.ErrMathError
	}
	num := getBig()
	defer putBig(num)
	x := getBig()
	defer putBig(x)
	y := getBig()
	defer putBig(y)

	num.Mul(x.SetInt64(sizeA), y.SetInt64(priceA))
	x.Mul(x.SetInt64(sizeB), y.SetInt64(priceB))
	num.Add(num, x)
	num.Quo(num, y.SetInt64(sizeA+sizeB))
	if !num.IsInt64() {
		return 0, errs.ErrOverflow
	}
	return num.Int64(), nil
}

// UnblendPrice inverts BlendPrice for a decrease of d at price from a
// book of size at avg: (size*avg - d*price) / (size - d), floored at
// zero. Requires 0 <= d < size.
func UnblendPrice(size, avg, d, price int64) (int64, error) {
	if d < 0 || size <= d {
		return 0, errs.ErrMathError
	}
	num := getBig()
	defer putBig(num)
	x := getBig()
	defer putBig(x)
	y := getBig()
	defer putBig(y)

	num.Mul(x.SetInt64(size), y.SetInt64(avg))
	x.Mul(x.SetInt64(d), y.SetInt64(price))
	num.Sub(num, x)
	if num.Sign() < 0 {
		return 0, nil
	}
	num.Quo(num, y.SetInt64(size-d))
	if !num.IsInt64() {
		return 0, errs.ErrOverflow
	}
	return num.Int64(), nil
}

// Abs returns |a|, failing on math.MinInt64.
func Abs(a int64) (int64, error) {
	if a == -9223372036854775808 {
		return 0, errs.ErrOverflow
	}
	if a < 0 {
		return -a, nil
	}
	return a, nil
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
