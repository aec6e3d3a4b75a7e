package engine

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
)

// Deposit moves tokens from the user's wallet into the shared vault and
// credits the internal balance. An outstanding liability on the same
// mint is repaid first.
func (e *Engine) Deposit(userID uuid.UUID, mint string, amount int64) error {
	return e.apply("deposit", func() error {
		if amount <= 0 {
			return errs.ErrInvalidParam
		}
		tt, err := e.store.TradeToken(mint)
		if err != nil {
			return err
		}
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		t, err := u.UseToken(mint)
		if err != nil {
			return err
		}

		if err := e.ledger.Transfer(mint, UserAccount(userID), VaultUserFunds, amount, vaultAuthorityUser); err != nil {
			return fmt.Errorf("deposit transfer: %w", err)
		}

		preAmount := t.Amount
		preUsed := t.UsedAmount
		if err := t.AddAmount(amount); err != nil {
			return err
		}
		repaid, err := t.RepayLiability(amount)
		if err != nil {
			return err
		}
		if repaid > 0 {
			if err := tt.SubTotalLiability(repaid); err != nil {
				return err
			}
		}
		if err := tt.AddTotalAmount(amount - repaid); err != nil {
			return err
		}

		e.sink.Publish(event.BalanceChange{
			UserID:     userID,
			Mint:       mint,
			PreAmount:  preAmount,
			PostAmount: t.Amount,
			PreUsed:    preUsed,
			PostUsed:   t.UsedAmount,
			Liability:  t.Liability,
			Reason:     "deposit",
		})
		return nil
	})
}

// Withdraw debits the internal balance and pays the user's wallet from
// the shared vault. The withdrawal must both fit within the unpledged
// balance and leave the cross-collateral value non-negative.
func (e *Engine) Withdraw(userID uuid.UUID, mint string, amount int64) error {
	return e.apply("withdraw", func() error {
		if amount <= 0 {
			return errs.ErrInvalidParam
		}
		tt, err := e.store.TradeToken(mint)
		if err != nil {
			return err
		}
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		t := u.Token(mint)
		if t == nil || t.Available() < amount {
			return errs.ErrAmountNotEnough
		}

		price, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}
		withdrawUSD, err := fixed.TokenToUSD(amount, price, tt.Decimals)
		if err != nil {
			return err
		}
		if withdrawUSD, err = fixed.MulRate(withdrawUSD, tt.Discount); err != nil {
			return err
		}
		available, err := e.availableValueUSD(u)
		if err != nil {
			return err
		}
		if withdrawUSD > available {
			return errs.ErrUserAvailableValueNotEnough
		}

		preAmount := t.Amount
		if err := t.SubAmount(amount); err != nil {
			return err
		}
		if err := tt.SubTotalAmount(amount); err != nil {
			return err
		}
		if err := e.ledger.Transfer(mint, VaultUserFunds, UserAccount(userID), amount, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("withdraw transfer: %w", err)
		}

		e.sink.Publish(event.BalanceChange{
			UserID:     userID,
			Mint:       mint,
			PreAmount:  preAmount,
			PostAmount: t.Amount,
			PreUsed:    t.UsedAmount,
			PostUsed:   t.UsedAmount,
			Liability:  t.Liability,
			Reason:     "withdraw",
		})
		return nil
	})
}
