package transactionrepo

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/accountrepo"
	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/pkg/errorspkg"
)

// withTx runs fn inside a database transaction. Rollback after a commit is
// a no-op, so the deferred rollback only fires on error paths.
func (r *RepoPGS) withTx(ctx context.Context, fn func(tx *RepoPGS, accounts *accountrepo.RepoPGS) error) error {
	l := zerolog.Ctx(ctx)

	if r.conn == nil {
		l.Error().Msg("atomic group started on a repo without a connection")
		return errorspkg.ErrInternal
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(NewTxRepoPGS(tx), accountrepo.NewRepoPGS(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	return nil
}

// Withdraw executes the atomic withdrawal group: debit the total from the
// account, record the withdrawal under review and record its fee. Either
// all three apply or none do; an insufficient balance rejects the group
// with no mutation.
func (r *RepoPGS) Withdraw(ctx context.Context, arg domain.WithdrawTxParams) (domain.WithdrawTxResult, error) {
	var result domain.WithdrawTxResult

	err := r.withTx(ctx, func(tx *RepoPGS, accounts *accountrepo.RepoPGS) error {
		account, err := accounts.AddBalance(ctx, "-"+arg.TotalDebit, arg.AccountID)
		if err != nil {
			return err
		}

		withdrawal, err := tx.Create(ctx, domain.NewWithdrawalRecord(arg.AccountID, arg.AmountReceived, arg.PixKey))
		if err != nil {
			return err
		}

		feeRecord, err := tx.Create(ctx, domain.NewFeeRecord(arg.AccountID, arg.Fee, domain.WithdrawalFeeNote(withdrawal.ID)))
		if err != nil {
			return err
		}

		result = domain.WithdrawTxResult{
			Withdrawal: withdrawal,
			FeeRecord:  feeRecord,
			Account:    account,
		}

		return nil
	})
	if err != nil {
		return domain.WithdrawTxResult{}, err
	}

	return result, nil
}

// CreditDeposit executes the atomic deposit-confirmation group: claim the
// deposit out of PENDING_PAYMENT, credit the net amount and record the
// deposit fee. The claim makes the group exactly-once under duplicate
// webhook delivery; a second caller gets domain.ErrAlreadyProcessed.
func (r *RepoPGS) CreditDeposit(ctx context.Context, depositID int64, accountID, net, fee string) (domain.Transaction, error) {
	var deposit domain.Transaction

	err := r.withTx(ctx, func(tx *RepoPGS, accounts *accountrepo.RepoPGS) error {
		var err error

		deposit, err = tx.UpdateStatusFrom(ctx, depositID,
			domain.StatusPendingPayment, domain.StatusPaid, domain.StatusUpdate{})
		if err != nil {
			return err
		}

		if _, err = accounts.AddBalance(ctx, net, accountID); err != nil {
			return err
		}

		if _, err = tx.Create(ctx, domain.NewFeeRecord(accountID, fee, domain.DepositFeeNote(depositID))); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	return deposit, nil
}

// Refund executes the atomic compensating-credit group: move the
// withdrawal From -> To and credit the full reversal back to the account.
// The status claim guards against two admins compensating the same
// withdrawal twice.
func (r *RepoPGS) Refund(ctx context.Context, arg domain.RefundTxParams) (domain.Transaction, error) {
	var withdrawal domain.Transaction

	err := r.withTx(ctx, func(tx *RepoPGS, accounts *accountrepo.RepoPGS) error {
		var err error

		withdrawal, err = tx.UpdateStatusFrom(ctx, arg.WithdrawalID,
			arg.From, arg.To, domain.StatusUpdate{Note: arg.Note})
		if err != nil {
			return err
		}

		if _, err = accounts.AddBalance(ctx, arg.Amount, arg.AccountID); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	return withdrawal, nil
}

// SetBalance executes the atomic manual-override group: overwrite the
// balance and record a manual adjustment in the same commit.
func (r *RepoPGS) SetBalance(ctx context.Context, accountID, newBalance, note string) (domain.Transaction, error) {
	var adjustment domain.Transaction

	err := r.withTx(ctx, func(tx *RepoPGS, accounts *accountrepo.RepoPGS) error {
		if _, err := accounts.SetBalance(ctx, newBalance, accountID); err != nil {
			return err
		}

		var err error

		adjustment, err = tx.Create(ctx, domain.NewAdjustmentRecord(accountID, newBalance, note))

		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	return adjustment, nil
}
