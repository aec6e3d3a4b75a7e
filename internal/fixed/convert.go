package fixed

import "perpcore/internal/errs"

// Pow10 returns 10^n for token decimal counts. Decimals above 18 are a
// configuration error.
func Pow10(n uint8) (int64, error) {
	if n > 18 {
		return 0, errs.ErrCastingFailure
	}
	r := int64(1)
	for i := uint8(0); i < n; i++ {
		r *= 10
	}
	return r, nil
}

// TokenToUSD converts a native token amount to a USD value scaled by
// PricePrecision, using an oracle price and the token's decimal count.
// Truncates toward zero.
func TokenToUSD(amount, price int64, decimals uint8) (int64, error) {
	unit, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(amount, price, unit)
}

// UsdToToken converts a USD value (PricePrecision scale) to a native
// token amount, truncating. The truncation favors whoever receives the
// tokens' counterparty; use UsdToTokenCeil where the trader must cover
// the full USD value.
func UsdToToken(usd, price int64, decimals uint8) (int64, error) {
	if price == 0 {
		return 0, errs.ErrMathError
	}
	unit, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(usd, unit, price)
}

// UsdToTokenCeil converts a USD value to a token amount rounding up.
func UsdToTokenCeil(usd, price int64, decimals uint8) (int64, error) {
	if price <= 0 {
		return 0, errs.ErrMathError
	}
	unit, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDivCeil(usd, unit, price)
}

// RoundDownToTick rounds a price down to the market tick size.
func RoundDownToTick(price, tick int64) (int64, error) {
	if tick <= 0 {
		return 0, errs.ErrMathError
	}
	return price - price%tick, nil
}

// RoundUpToTick rounds a price up to the market tick size.
func RoundUpToTick(price, tick int64) (int64, error) {
	if tick <= 0 {
		return 0, errs.ErrMathError
	}
	if rem := price % tick; rem != 0 {
		return Add(price, tick-rem)
	}
	return price, nil
}
