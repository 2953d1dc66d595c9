package ledgerservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/gateway"
	"github.com/flexipay/flexipay/internal/notifier"
)

// DepositReceipt is returned to the front end after a charge is opened.
type DepositReceipt struct {
	TransactionID int64  `json:"transaction_id"`
	Amount        string `json:"amount"`
	ExternalRef   string `json:"external_ref"`
	CopyPaste     string `json:"copy_paste"`
	QRCodeBase64  string `json:"qr_code_base64,omitempty"`
}

// RequestDeposit opens a PIX charge for the given gross amount and records
// the deposit awaiting payment. A gateway failure aborts before anything
// is recorded.
func (s *Service) RequestDeposit(ctx context.Context, accountID, displayName, amount string) (DepositReceipt, error) {
	l := zerolog.Ctx(ctx)

	gross, err := decimal.NewFromString(amount)
	if err != nil {
		l.Info().Err(err).Send()
		return DepositReceipt{}, domain.ErrInvalidAmount
	}

	if gross.LessThan(s.minDeposit) || gross.GreaterThan(s.maxDeposit) {
		return DepositReceipt{}, domain.ErrAmountOutOfRange
	}

	if _, err := s.accounts.GetOrCreate(ctx, accountID, displayName); err != nil {
		return DepositReceipt{}, err
	}

	grossStr := gross.StringFixed(2)

	charge, err := s.gateway.CreateCharge(ctx, grossStr, accountID,
		fmt.Sprintf("Deposit for account %s", accountID))
	if err != nil {
		l.Warn().Err(err).Str("account_id", accountID).Msg("charge creation failed")
		return DepositReceipt{}, err
	}

	deposit, err := s.store.Create(ctx, domain.NewDepositRecord(accountID, grossStr, charge.ExternalRef))
	if err != nil {
		return DepositReceipt{}, err
	}

	return DepositReceipt{
		TransactionID: deposit.ID,
		Amount:        grossStr,
		ExternalRef:   charge.ExternalRef,
		CopyPaste:     charge.CopyPaste,
		QRCodeBase64:  charge.QRCodeBase64,
	}, nil
}

// ReconcileOutcome describes what reconciliation did.
type ReconcileOutcome string

const (
	// OutcomeCredited means the deposit was confirmed and credited.
	OutcomeCredited ReconcileOutcome = "credited"
	// OutcomeAlreadyProcessed means no pending deposit matched: either a
	// duplicate delivery or an unknown reference. No-op.
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	// OutcomeAmountMismatch means the confirmed amount differs from the
	// recorded amount; the deposit is flagged for manual review.
	OutcomeAmountMismatch ReconcileOutcome = "amount_mismatch"
	// OutcomeMirrored means the gateway reported a non-approved terminal
	// state which was copied onto the deposit.
	OutcomeMirrored ReconcileOutcome = "mirrored"
	// OutcomeStillPending means the gateway has not closed the charge yet;
	// the deposit keeps awaiting payment.
	OutcomeStillPending ReconcileOutcome = "still_pending"
)

// ReconcileResult is the structured result of one reconciliation.
type ReconcileResult struct {
	Outcome       ReconcileOutcome `json:"outcome"`
	TransactionID int64            `json:"transaction_id,omitempty"`
	Status        domain.Status    `json:"status,omitempty"`
}

// Reconcile drives a deposit to a terminal state from the gateway's
// authoritative view of the charge. Safe under at-least-once webhook
// delivery: the store's claim inside the credit group guarantees the
// account is credited exactly once.
func (s *Service) Reconcile(ctx context.Context, externalRef string) (ReconcileResult, error) {
	l := zerolog.Ctx(ctx)

	status, err := s.gateway.ChargeStatus(ctx, externalRef)
	if err != nil {
		return ReconcileResult{}, err
	}

	deposit, err := s.store.FindPendingDepositByRef(ctx, externalRef)
	if err != nil {
		if err == domain.ErrTransactionNotFound {
			l.Info().Str("external_ref", externalRef).Msg("no pending deposit for reference")
			return ReconcileResult{Outcome: OutcomeAlreadyProcessed}, nil
		}

		return ReconcileResult{}, err
	}

	if status.Status != gateway.StatusApproved {
		// A charge the gateway still considers payable is left open; only
		// statuses terminal at the gateway are mirrored locally.
		if gateway.Collectible(status.Status) {
			return ReconcileResult{Outcome: OutcomeStillPending, TransactionID: deposit.ID, Status: deposit.Status}, nil
		}

		return s.mirrorGatewayStatus(ctx, deposit, status.Status)
	}

	recorded, err := decimal.NewFromString(deposit.Amount)
	if err != nil {
		return ReconcileResult{}, err
	}

	confirmed, amountErr := decimal.NewFromString(status.ConfirmedAmount)
	if amountErr != nil || !confirmed.Equal(recorded) {
		return s.flagMismatch(ctx, deposit, status.ConfirmedAmount)
	}

	net, fee := s.fees.DepositSplit(recorded)

	deposit, err = s.store.CreditDeposit(ctx, deposit.ID, deposit.AccountID,
		net.StringFixed(2), fee.StringFixed(2))
	if err != nil {
		if err == domain.ErrAlreadyProcessed {
			return ReconcileResult{Outcome: OutcomeAlreadyProcessed, TransactionID: deposit.ID}, nil
		}

		return ReconcileResult{}, err
	}

	l.Info().
		Int64("transaction_id", deposit.ID).
		Str("account_id", deposit.AccountID).
		Str("net", net.StringFixed(2)).
		Msg("deposit credited")

	s.events.Notify(ctx, notifier.Event{
		Type:          notifier.EventDepositPaid,
		AccountID:     deposit.AccountID,
		TransactionID: deposit.ID,
		Amount:        net.StringFixed(2),
	})

	return ReconcileResult{Outcome: OutcomeCredited, TransactionID: deposit.ID, Status: domain.StatusPaid}, nil
}

func (s *Service) flagMismatch(ctx context.Context, deposit domain.Transaction, confirmed string) (ReconcileResult, error) {
	l := zerolog.Ctx(ctx)

	note := fmt.Sprintf("expected %s, gateway confirmed %s", deposit.Amount, confirmed)

	flagged, err := s.store.UpdateStatusFrom(ctx, deposit.ID,
		domain.StatusPendingPayment, domain.StatusAmountMismatch, domain.StatusUpdate{Note: note})
	if err != nil {
		if err == domain.ErrAlreadyProcessed {
			return ReconcileResult{Outcome: OutcomeAlreadyProcessed, TransactionID: deposit.ID}, nil
		}

		return ReconcileResult{}, err
	}

	l.Error().
		Int64("transaction_id", deposit.ID).
		Str("expected", deposit.Amount).
		Str("confirmed", confirmed).
		Msg("deposit amount mismatch")

	s.events.Notify(ctx, notifier.Event{
		Type:          notifier.EventDepositFailed,
		AccountID:     deposit.AccountID,
		TransactionID: deposit.ID,
		Detail:        note,
	})

	return ReconcileResult{Outcome: OutcomeAmountMismatch, TransactionID: flagged.ID, Status: flagged.Status}, nil
}

func (s *Service) mirrorGatewayStatus(ctx context.Context, deposit domain.Transaction, gwStatus string) (ReconcileResult, error) {
	mirrored := domain.Status(strings.ToUpper(strings.ReplaceAll(gwStatus, " ", "_")))
	if mirrored == "" {
		mirrored = "UNKNOWN"
	}

	updated, err := s.store.UpdateStatusFrom(ctx, deposit.ID,
		domain.StatusPendingPayment, mirrored, domain.StatusUpdate{})
	if err != nil {
		if err == domain.ErrAlreadyProcessed {
			return ReconcileResult{Outcome: OutcomeAlreadyProcessed, TransactionID: deposit.ID}, nil
		}

		return ReconcileResult{}, err
	}

	s.events.Notify(ctx, notifier.Event{
		Type:          notifier.EventDepositFailed,
		AccountID:     deposit.AccountID,
		TransactionID: deposit.ID,
		Detail:        "gateway reported " + gwStatus,
	})

	return ReconcileResult{Outcome: OutcomeMirrored, TransactionID: updated.ID, Status: updated.Status}, nil
}
