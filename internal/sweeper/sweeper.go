// Package sweeper drives stuck transactions forward in the background.
// Deposits that never saw their webhook are re-reconciled against the
// gateway; payouts stuck in flight are flagged for manual attention.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/ledgerservice"
	"github.com/flexipay/flexipay/internal/notifier"
)

// Store provides the stale-transaction queries the sweeper needs.
type Store interface {
	ListStaleByStatus(ctx context.Context, status domain.Status, before time.Time) ([]domain.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status, opts domain.StatusUpdate) (domain.Transaction, error)
}

// Reconciler drives a deposit to its terminal state.
type Reconciler interface {
	Reconcile(ctx context.Context, externalRef string) (ledgerservice.ReconcileResult, error)
}

// Notifier is the outbound event sink for sweep alerts.
type Notifier interface {
	Notify(ctx context.Context, event notifier.Event)
}

// Sweeper periodically reconciles stale deposits and flags stale payouts.
type Sweeper struct {
	store      Store
	reconciler Reconciler
	events     Notifier

	interval        time.Duration
	staleDepositAge time.Duration
	stalePayoutAge  time.Duration
}

// New returns a sweeper.
func New(store Store, reconciler Reconciler, events Notifier, interval, staleDepositAge, stalePayoutAge time.Duration) *Sweeper {
	return &Sweeper{
		store:           store,
		reconciler:      reconciler,
		events:          events,
		interval:        interval,
		staleDepositAge: staleDepositAge,
		stalePayoutAge:  stalePayoutAge,
	}
}

// Run blocks, sweeping every interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over both stale classes.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepDeposits(ctx)
	s.sweepPayouts(ctx)
}

// sweepDeposits re-reconciles deposits whose webhook never arrived. The
// gateway stays the source of truth: a charge that was in fact paid gets
// credited here, exactly once.
func (s *Sweeper) sweepDeposits(ctx context.Context) {
	l := zerolog.Ctx(ctx)

	cutoff := time.Now().Add(-s.staleDepositAge)

	deposits, err := s.store.ListStaleByStatus(ctx, domain.StatusPendingPayment, cutoff)
	if err != nil {
		l.Error().Err(err).Msg("listing stale deposits failed")
		return
	}

	for _, deposit := range deposits {
		if deposit.ExternalRef == "" {
			continue
		}

		result, err := s.reconciler.Reconcile(ctx, deposit.ExternalRef)
		if err != nil {
			l.Warn().Err(err).
				Int64("transaction_id", deposit.ID).
				Msg("sweep reconciliation failed")

			continue
		}

		l.Info().
			Int64("transaction_id", deposit.ID).
			Str("outcome", string(result.Outcome)).
			Msg("stale deposit reconciled")
	}
}

// sweepPayouts flags withdrawals stuck in flight. No automatic refund:
// the payout may still land, and a second credit cannot be taken back.
func (s *Sweeper) sweepPayouts(ctx context.Context) {
	l := zerolog.Ctx(ctx)

	cutoff := time.Now().Add(-s.stalePayoutAge)

	payouts, err := s.store.ListStaleByStatus(ctx, domain.StatusInProgress, cutoff)
	if err != nil {
		l.Error().Err(err).Msg("listing stale payouts failed")
		return
	}

	for _, payout := range payouts {
		l.Error().
			Int64("transaction_id", payout.ID).
			Str("account_id", payout.AccountID).
			Msg("payout stuck in flight, manual check required")

		// Writing the note bumps updated_at, which backs the alert off
		// for another stalePayoutAge.
		if _, err := s.store.UpdateStatus(ctx, payout.ID, payout.Status, domain.StatusUpdate{
			Note: "payout stuck in flight, manual check required",
		}); err != nil {
			l.Error().Err(err).Int64("transaction_id", payout.ID).Msg("flagging stuck payout failed")
		}

		s.events.Notify(ctx, notifier.Event{
			Type:          notifier.EventPayoutStuck,
			AccountID:     payout.AccountID,
			TransactionID: payout.ID,
			Amount:        payout.Amount,
		})
	}
}
