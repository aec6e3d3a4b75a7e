// Package errs defines the typed error taxonomy of the settlement core.
// Every operation either succeeds completely or fails with exactly one of
// these errors; there is no partial application and no in-core retry.
package errs

// Code classifies an engine error for metrics and event payloads.
type Code int32

const (
	CodeUnknown Code = iota

	// Validation
	CodeInvalidParam
	CodeLeverageIsNotAllowed
	CodeTokenNotMatch
	CodeOnlyOneDirectionPositionIsAllowed
	CodePoolStatusNotNormal

	// Insufficiency
	CodeAmountNotEnough
	CodeUserAvailableValueNotEnough
	CodePoolAvailableLiquidityNotEnough
	CodeUnStakeTooSmall
	CodeNoMoreOrderSpace
	CodeNoMorePositionSpace
	CodeNoMoreTokenSpace
	CodeNoMoreStakeSpace

	// Arithmetic (always fatal for the operation)
	CodeMathError
	CodeCastingFailure
	CodeOverflow

	// State consistency
	CodePositionShouldBeLiquidation
	CodeLiquidatePositionIgnore
	CodePositionNotFound
	CodeOrderNotFound
	CodeStakeNotFound
	CodeUserNotFound
	CodePoolNotFound
	CodeMarketNotFound
	CodeTradeTokenNotFound

	// External collaborators
	CodeOracleNotFound
	CodePriceStale
	CodeTransferFailed
)

// Error is a terminal engine error. It carries a stable code so callers
// can classify failures without string matching.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is makes errors.Is match on code, so wrapped errors still compare
// equal to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

var (
	ErrInvalidParam                      = newErr(CodeInvalidParam, "invalid parameter")
	ErrLeverageIsNotAllowed              = newErr(CodeLeverageIsNotAllowed, "leverage is not allowed")
	ErrTokenNotMatch                     = newErr(CodeTokenNotMatch, "token does not match market or pool")
	ErrOnlyOneDirectionPositionIsAllowed = newErr(CodeOnlyOneDirectionPositionIsAllowed, "only one direction position is allowed")
	ErrPoolStatusNotNormal               = newErr(CodePoolStatusNotNormal, "pool status does not allow this operation")

	ErrAmountNotEnough                 = newErr(CodeAmountNotEnough, "amount not enough")
	ErrUserAvailableValueNotEnough     = newErr(CodeUserAvailableValueNotEnough, "user available value not enough")
	ErrPoolAvailableLiquidityNotEnough = newErr(CodePoolAvailableLiquidityNotEnough, "pool available liquidity not enough")
	ErrUnStakeTooSmall                 = newErr(CodeUnStakeTooSmall, "unstake amount below pool minimum")
	ErrNoMoreOrderSpace                = newErr(CodeNoMoreOrderSpace, "no more order space")
	ErrNoMorePositionSpace             = newErr(CodeNoMorePositionSpace, "no more position space")
	ErrNoMoreTokenSpace                = newErr(CodeNoMoreTokenSpace, "no more user token space")
	ErrNoMoreStakeSpace                = newErr(CodeNoMoreStakeSpace, "no more stake space")

	ErrMathError      = newErr(CodeMathError, "math error")
	ErrCastingFailure = newErr(CodeCastingFailure, "casting failure")
	ErrOverflow       = newErr(CodeOverflow, "arithmetic overflow")

	ErrPositionShouldBeLiquidation = newErr(CodePositionShouldBeLiquidation, "position must go through liquidation")
	ErrLiquidatePositionIgnore     = newErr(CodeLiquidatePositionIgnore, "position is not liquidatable")
	ErrPositionNotFound            = newErr(CodePositionNotFound, "position not found")
	ErrOrderNotFound               = newErr(CodeOrderNotFound, "order not found")
	ErrStakeNotFound               = newErr(CodeStakeNotFound, "stake not found")
	ErrUserNotFound                = newErr(CodeUserNotFound, "user not found")
	ErrPoolNotFound                = newErr(CodePoolNotFound, "pool not found")
	ErrMarketNotFound              = newErr(CodeMarketNotFound, "market not found")
	ErrTradeTokenNotFound          = newErr(CodeTradeTokenNotFound, "trade token not found")

	ErrOracleNotFound = newErr(CodeOracleNotFound, "oracle feed not found")
	ErrPriceStale     = newErr(CodePriceStale, "oracle price is stale")
	ErrTransferFailed = newErr(CodeTransferFailed, "token transfer failed")
)

// CodeOf extracts the code from an engine error chain. Unknown for
// non-engine errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

func (c Code) String() string {
	switch c {
	case CodeInvalidParam:
		return "InvalidParam"
	case CodeLeverageIsNotAllowed:
		return "LeverageIsNotAllowed"
	case CodeTokenNotMatch:
		return "TokenNotMatch"
	case CodeOnlyOneDirectionPositionIsAllowed:
		return "OnlyOneDirectionPositionIsAllowed"
	case CodePoolStatusNotNormal:
		return "PoolStatusNotNormal"
	case CodeAmountNotEnough:
		return "AmountNotEnough"
	case CodeUserAvailableValueNotEnough:
		return "UserAvailableValueNotEnough"
	case CodePoolAvailableLiquidityNotEnough:
		return "PoolAvailableLiquidityNotEnough"
	case CodeUnStakeTooSmall:
		return "UnStakeTooSmall"
	case CodeNoMoreOrderSpace:
		return "NoMoreOrderSpace"
	case CodeNoMorePositionSpace:
		return "NoMorePositionSpace"
	case CodeNoMoreTokenSpace:
		return "NoMoreTokenSpace"
	case CodeNoMoreStakeSpace:
		return "NoMoreStakeSpace"
	case CodeMathError:
		return "MathError"
	case CodeCastingFailure:
		return "CastingFailure"
	case CodeOverflow:
		return "Overflow"
	case CodePositionShouldBeLiquidation:
		return "PositionShouldBeLiquidation"
	case CodeLiquidatePositionIgnore:
		return "LiquidatePositionIgnore"
	case CodePositionNotFound:
		return "PositionNotFound"
	case CodeOrderNotFound:
		return "OrderNotFound"
	case CodeStakeNotFound:
		return "StakeNotFound"
	case CodeUserNotFound:
		return "UserNotFound"
	case CodePoolNotFound:
		return "PoolNotFound"
	case CodeMarketNotFound:
		return "MarketNotFound"
	case CodeTradeTokenNotFound:
		return "TradeTokenNotFound"
	case CodeOracleNotFound:
		return "OracleNotFound"
	case CodePriceStale:
		return "PriceStale"
	case CodeTransferFailed:
		return "TransferFailed"
	default:
		return "Unknown"
	}
}
