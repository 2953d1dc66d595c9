package ledgerservice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/feepolicy"
	"github.com/flexipay/flexipay/internal/notifier"
)

// WithdrawalReceipt is returned to the front end after a withdrawal enters
// review.
type WithdrawalReceipt struct {
	TransactionID  int64  `json:"transaction_id"`
	TotalDebit     string `json:"total_debit"`
	AmountReceived string `json:"amount_received"`
	Fee            string `json:"fee"`
	Balance        string `json:"balance"`
}

// RequestWithdrawal debits the requested total, splits it into payable
// amount and fee, and queues the withdrawal for admin review. Debit,
// withdrawal record and fee record commit as one atomic group.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID, displayName, pixKey, amount string) (WithdrawalReceipt, error) {
	l := zerolog.Ctx(ctx)

	totalDebit, err := decimal.NewFromString(amount)
	if err != nil {
		l.Info().Err(err).Send()
		return WithdrawalReceipt{}, domain.ErrInvalidAmount
	}

	received, fee, err := s.fees.WithdrawalSplit(totalDebit)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	account, err := s.accounts.GetOrCreate(ctx, accountID, displayName)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	// Early rejection with a clean reason; the balance constraint inside
	// the atomic group remains the authoritative check.
	balance, err := decimal.NewFromString(account.Balance)
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	if balance.LessThan(totalDebit) {
		return WithdrawalReceipt{}, domain.ErrInsufficientBalance
	}

	result, err := s.store.Withdraw(ctx, domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     totalDebit.StringFixed(2),
		AmountReceived: received.StringFixed(2),
		Fee:            fee.StringFixed(2),
		PixKey:         pixKey,
	})
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	l.Info().
		Int64("transaction_id", result.Withdrawal.ID).
		Str("account_id", accountID).
		Str("total_debit", totalDebit.StringFixed(2)).
		Msg("withdrawal queued for review")

	s.events.Notify(ctx, notifier.Event{
		Type:          notifier.EventWithdrawalPending,
		AccountID:     accountID,
		TransactionID: result.Withdrawal.ID,
		Amount:        received.StringFixed(2),
		PixKey:        pixKey,
	})

	return WithdrawalReceipt{
		TransactionID:  result.Withdrawal.ID,
		TotalDebit:     totalDebit.StringFixed(2),
		AmountReceived: received.StringFixed(2),
		Fee:            fee.StringFixed(2),
		Balance:        result.Account.Balance,
	}, nil
}

// ApproveWithdrawal executes the admin approval: claim the withdrawal into
// IN_PROGRESS, issue the payout, and either complete it or compensate the
// account in full. Only one of two concurrent admins wins the claim; the
// other receives domain.ErrAlreadyProcessed.
func (s *Service) ApproveWithdrawal(ctx context.Context, id int64, adminID string) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	withdrawal, err := s.store.UpdateStatusFrom(ctx, id,
		domain.StatusUnderReview, domain.StatusInProgress,
		domain.StatusUpdate{Note: "approved by admin " + adminID})
	if err != nil {
		return domain.Transaction{}, err
	}

	payout, err := s.gateway.IssuePayout(ctx, id, withdrawal.Amount, withdrawal.PixKey,
		fmt.Sprintf("Withdrawal %d", id))
	if err == nil {
		completed, err := s.store.UpdateStatusFrom(ctx, id,
			domain.StatusInProgress, domain.StatusCompleted,
			domain.StatusUpdate{ExternalRef: payout.ExternalRef})
		if err != nil {
			return domain.Transaction{}, err
		}

		l.Info().
			Int64("transaction_id", id).
			Str("payout_ref", payout.ExternalRef).
			Msg("withdrawal paid out")

		s.events.Notify(ctx, notifier.Event{
			Type:          notifier.EventWithdrawalCompleted,
			AccountID:     completed.AccountID,
			TransactionID: id,
			Amount:        completed.Amount,
		})

		return completed, nil
	}

	l.Warn().Err(err).Int64("transaction_id", id).Msg("payout failed, compensating")

	return s.compensate(ctx, withdrawal, domain.StatusInProgress, domain.StatusPaymentFailed,
		"payout failed: "+err.Error(), notifier.EventWithdrawalRefunded)
}

// RejectWithdrawal refuses a withdrawal under review and restores the full
// debit (principal plus fee) to the account.
func (s *Service) RejectWithdrawal(ctx context.Context, id int64, adminID string) (domain.Transaction, error) {
	withdrawal, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}

	if withdrawal.Status != domain.StatusUnderReview {
		return domain.Transaction{}, domain.ErrAlreadyProcessed
	}

	return s.compensate(ctx, withdrawal, domain.StatusUnderReview, domain.StatusRejected,
		"rejected by admin "+adminID, notifier.EventWithdrawalRejected)
}

// compensate credits the full reversal (principal plus fee) and moves the
// withdrawal to its terminal status in one atomic group. A failed credit is
// the fatal class: the withdrawal is flagged, a critical alert is emitted
// and domain.ErrRefundFailed is returned. It is never retried automatically.
func (s *Service) compensate(ctx context.Context, withdrawal domain.Transaction, from, to domain.Status, note string, event notifier.EventType) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	fee := decimal.Zero

	feeAmount, err := s.store.FeeForWithdrawal(ctx, withdrawal.ID)
	if err == nil {
		fee, err = decimal.NewFromString(feeAmount)
		if err != nil {
			return domain.Transaction{}, err
		}
	} else if err != domain.ErrTransactionNotFound {
		return domain.Transaction{}, err
	}

	received, err := decimal.NewFromString(withdrawal.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	refund := feepolicy.RefundTotal(received, fee)

	refunded, err := s.store.Refund(ctx, domain.RefundTxParams{
		WithdrawalID: withdrawal.ID,
		AccountID:    withdrawal.AccountID,
		Amount:       refund.StringFixed(2),
		From:         from,
		To:           to,
		Note:         note,
	})
	if err == nil {
		l.Info().
			Int64("transaction_id", withdrawal.ID).
			Str("refund", refund.StringFixed(2)).
			Str("status", string(to)).
			Msg("withdrawal compensated")

		s.events.Notify(ctx, notifier.Event{
			Type:          event,
			AccountID:     withdrawal.AccountID,
			TransactionID: withdrawal.ID,
			Amount:        refund.StringFixed(2),
			Detail:        note,
		})

		return refunded, nil
	}

	if err == domain.ErrAlreadyProcessed {
		return domain.Transaction{}, err
	}

	l.Error().Err(err).
		Int64("transaction_id", withdrawal.ID).
		Str("account_id", withdrawal.AccountID).
		Str("refund", refund.StringFixed(2)).
		Msg("CRITICAL: compensating refund failed")

	// Best effort flag; the withdrawal keeps its current status so the
	// missing credit stays visible for manual reconciliation.
	if _, flagErr := s.store.UpdateStatus(ctx, withdrawal.ID, from, domain.StatusUpdate{
		Note: "refund failed, manual intervention required: " + note,
	}); flagErr != nil {
		l.Error().Err(flagErr).Int64("transaction_id", withdrawal.ID).Msg("flagging refund failure failed")
	}

	s.events.Notify(ctx, notifier.Event{
		Type:          notifier.EventRefundFailed,
		AccountID:     withdrawal.AccountID,
		TransactionID: withdrawal.ID,
		Amount:        refund.StringFixed(2),
		Detail:        note,
	})

	return domain.Transaction{}, domain.ErrRefundFailed
}
