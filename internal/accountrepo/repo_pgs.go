// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/pkg/dbpkg"
	"github.com/flexipay/flexipay/pkg/errorspkg"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns account RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const getOrCreateQuery = `
INSERT INTO
    accounts (id, display_name, balance)
VALUES
    ($1, $2, 0)
ON CONFLICT (id) DO UPDATE
    SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), accounts.display_name)
RETURNING id, display_name, balance, created_at
`

// GetOrCreate returns the account with the given id, creating it with a
// zero balance on first contact. The display name is informational only
// and is refreshed on every call.
func (r *RepoPGS) GetOrCreate(ctx context.Context, id, displayName string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getOrCreateQuery, id, displayName)

	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		l.Error().Err(err).Send()
		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT
	id, display_name, balance, created_at
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getQuery, id)

	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

// Balance returns the balance of the given account, or "0.00" if the
// account is not known yet.
func (r *RepoPGS) Balance(ctx context.Context, id string) (string, error) {
	account, err := r.Get(ctx, id)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			return "0.00", nil
		}

		return "", err
	}

	return account.Balance, nil
}

const addBalanceQuery = `
UPDATE accounts
SET balance = balance + $1
WHERE id = $2
RETURNING id, display_name, balance, created_at
`

// AddBalance changes the account's balance and returns the changed account.
//
// The accounts_balance_check constraint rejects any delta that would take
// the balance below zero; the row lock taken by the UPDATE serializes
// concurrent mutations of the same account.
func (r *RepoPGS) AddBalance(ctx context.Context, amount string, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, addBalanceQuery, amount, id)

	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "accounts_balance_check" {
				return a, domain.ErrInsufficientBalance
			}
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const setBalanceQuery = `
UPDATE accounts
SET balance = $1
WHERE id = $2
RETURNING id, display_name, balance, created_at
`

// SetBalance overwrites the account's balance exactly. Administrative
// override; callers must pair it with a manual adjustment record in the
// same atomic group.
func (r *RepoPGS) SetBalance(ctx context.Context, balance string, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, setBalanceQuery, balance, id)

	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "accounts_balance_check" {
				return a, domain.ErrNegativeBalance
			}
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}
