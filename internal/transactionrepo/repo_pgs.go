// Package transactionrepo manages repository layer of the transaction log.
//
// Besides plain inserts and reads it owns the atomic groups of the ledger:
// every multi-statement money movement (withdrawal debit, deposit credit,
// compensating refund, manual override) commits or rolls back as one unit.
package transactionrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/pkg/dbpkg"
	"github.com/flexipay/flexipay/pkg/errorspkg"
)

// RepoPGS facilitates transaction repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns a RepoPGS bound to an already running transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns a RepoPGS with a connection to start atomic groups.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const transactionColumns = `id, account_id, kind, amount, status, external_ref, pix_key, note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t                         domain.Transaction
		externalRef, pixKey, note sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Kind,
		&t.Amount,
		&t.Status,
		&externalRef,
		&pixKey,
		&note,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}

	t.ExternalRef = externalRef.String
	t.PixKey = pixKey.String
	t.Note = note.String

	return t, nil
}

const createQuery = `
INSERT INTO
    transactions (account_id, kind, amount, status, external_ref, pix_key, note)
VALUES
    ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
RETURNING ` + transactionColumns

// Create inserts the transaction in its initial status and returns it with
// the generated id.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery,
		arg.AccountID,
		arg.Kind,
		arg.Amount,
		arg.Status,
		arg.ExternalRef,
		arg.PixKey,
		arg.Note,
	)

	t, err := scanTransaction(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)
		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const getQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = $1
`

// Get returns the transaction with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const updateStatusQuery = `
UPDATE transactions
SET status = $2,
    external_ref = COALESCE(NULLIF($3, ''), external_ref),
    note = COALESCE(NULLIF($4, ''), note),
    updated_at = now()
WHERE id = $1
RETURNING ` + transactionColumns

// UpdateStatus sets the transaction status unconditionally, attaching the
// optional fields at the moment of the change. Repeating the same terminal
// status is a no-op beyond the timestamp, so retries are safe.
func (r *RepoPGS) UpdateStatus(ctx context.Context, id int64, status domain.Status, opts domain.StatusUpdate) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, updateStatusQuery, id, status, opts.ExternalRef, opts.Note)

	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const updateStatusFromQuery = `
UPDATE transactions
SET status = $3,
    external_ref = COALESCE(NULLIF($4, ''), external_ref),
    note = COALESCE(NULLIF($5, ''), note),
    updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + transactionColumns

// UpdateStatusFrom moves the transaction from one status to another. The
// WHERE clause on the current status linearizes transitions per transaction
// id: of two concurrent callers only one sees the row, the other gets
// domain.ErrAlreadyProcessed.
func (r *RepoPGS) UpdateStatusFrom(ctx context.Context, id int64, from, to domain.Status, opts domain.StatusUpdate) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, updateStatusFromQuery, id, from, to, opts.ExternalRef, opts.Note)

	t, err := scanTransaction(row)
	if err == nil {
		return t, nil
	}

	if err != sql.ErrNoRows {
		l.Error().Err(err).Send()
		return t, errorspkg.ErrInternal
	}

	// Row either does not exist or already moved on.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return t, getErr
	}

	return t, domain.ErrAlreadyProcessed
}

const listPendingWithdrawalsQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE kind = $1 AND status = $2
ORDER BY id
`

// ListPendingWithdrawals returns all withdrawals awaiting admin review.
func (r *RepoPGS) ListPendingWithdrawals(ctx context.Context) ([]domain.Transaction, error) {
	return r.list(ctx, listPendingWithdrawalsQuery, domain.KindWithdrawal, domain.StatusUnderReview)
}

const listStaleQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE status = $1 AND updated_at < $2
ORDER BY id
`

// ListStaleByStatus returns transactions stuck in a non-terminal status
// since before the given cutoff.
func (r *RepoPGS) ListStaleByStatus(ctx context.Context, status domain.Status, before time.Time) ([]domain.Transaction, error) {
	return r.list(ctx, listStaleQuery, status, before)
}

func (r *RepoPGS) list(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Transaction{}

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const sumFeesQuery = `
SELECT COALESCE(SUM(amount), 0)
FROM transactions
WHERE kind = $1 AND status = $2
`

// SumFeesByStatus totals all fee records in the given status.
func (r *RepoPGS) SumFeesByStatus(ctx context.Context, status domain.Status) (string, error) {
	l := zerolog.Ctx(ctx)

	var sum string

	err := r.db.QueryRowContext(ctx, sumFeesQuery, domain.KindFee, status).Scan(&sum)
	if err != nil {
		l.Error().Err(err).Send()
		return "", errorspkg.ErrInternal
	}

	return sum, nil
}

const feeForWithdrawalQuery = `
SELECT amount
FROM transactions
WHERE kind = $1 AND note = $2
`

// FeeForWithdrawal returns the fee debited alongside the given withdrawal,
// located through the note written by the atomic withdrawal group.
func (r *RepoPGS) FeeForWithdrawal(ctx context.Context, withdrawalID int64) (string, error) {
	l := zerolog.Ctx(ctx)

	var amount string

	err := r.db.QueryRowContext(ctx, feeForWithdrawalQuery,
		domain.KindFee, domain.WithdrawalFeeNote(withdrawalID)).Scan(&amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return "", errorspkg.ErrInternal
	}

	return amount, nil
}

const findPendingDepositQuery = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE kind = $1 AND external_ref = $2 AND status = $3
`

// FindPendingDepositByRef locates the deposit awaiting the given gateway
// reference. Returns domain.ErrTransactionNotFound when no pending deposit
// matches, which reconciliation treats as already processed.
func (r *RepoPGS) FindPendingDepositByRef(ctx context.Context, externalRef string) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, findPendingDepositQuery,
		domain.KindDeposit, externalRef, domain.StatusPendingPayment)

	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const lastMovementQuery = `
SELECT updated_at
FROM transactions
WHERE account_id = $1
ORDER BY updated_at DESC
LIMIT 1
`

// LastMovement returns the timestamp of the account's most recently
// updated transaction, or domain.ErrTransactionNotFound for a quiet account.
func (r *RepoPGS) LastMovement(ctx context.Context, accountID string) (time.Time, error) {
	l := zerolog.Ctx(ctx)

	var ts time.Time

	err := r.db.QueryRowContext(ctx, lastMovementQuery, accountID).Scan(&ts)
	if err != nil {
		if err == sql.ErrNoRows {
			return ts, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return ts, errorspkg.ErrInternal
	}

	return ts, nil
}
