// Package ledgerservice manages the business logic layer of the ledger:
// the transaction state machine, fee application and the compensating
// refund path. All money mutation goes through the store's atomic groups.
package ledgerservice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/feepolicy"
	"github.com/flexipay/flexipay/internal/gateway"
	"github.com/flexipay/flexipay/internal/notifier"
)

// Store provides the transaction-log data access interface needed by the
// service layer, including the atomic groups.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type Store interface {
	Create(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error)
	Get(ctx context.Context, id int64) (domain.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status, opts domain.StatusUpdate) (domain.Transaction, error)
	UpdateStatusFrom(ctx context.Context, id int64, from, to domain.Status, opts domain.StatusUpdate) (domain.Transaction, error)
	Withdraw(ctx context.Context, arg domain.WithdrawTxParams) (domain.WithdrawTxResult, error)
	CreditDeposit(ctx context.Context, depositID int64, accountID, net, fee string) (domain.Transaction, error)
	Refund(ctx context.Context, arg domain.RefundTxParams) (domain.Transaction, error)
	SetBalance(ctx context.Context, accountID, newBalance, note string) (domain.Transaction, error)
	ListPendingWithdrawals(ctx context.Context) ([]domain.Transaction, error)
	SumFeesByStatus(ctx context.Context, status domain.Status) (string, error)
	FeeForWithdrawal(ctx context.Context, withdrawalID int64) (string, error)
	FindPendingDepositByRef(ctx context.Context, externalRef string) (domain.Transaction, error)
	LastMovement(ctx context.Context, accountID string) (time.Time, error)
}

// Accounts provides the account data access interface needed by the
// service layer.
type Accounts interface {
	GetOrCreate(ctx context.Context, id, displayName string) (domain.Account, error)
	Balance(ctx context.Context, id string) (string, error)
}

// Gateway mirrors gateway.Client so the service can be tested against a mock.
type Gateway interface {
	CreateCharge(ctx context.Context, amount, payerID, description string) (gateway.Charge, error)
	IssuePayout(ctx context.Context, localID int64, amount, pixKey, description string) (gateway.Payout, error)
	ChargeStatus(ctx context.Context, externalRef string) (gateway.ChargeStatus, error)
}

// Notifier is the outbound event sink for front-end notifications.
type Notifier interface {
	Notify(ctx context.Context, event notifier.Event)
}

// Service facilitates ledger business logic.
type Service struct {
	store    Store
	accounts Accounts
	gateway  Gateway
	fees     feepolicy.Policy
	events   Notifier

	minDeposit decimal.Decimal
	maxDeposit decimal.Decimal
}

// New returns a ledger service.
func New(store Store, accounts Accounts, gw Gateway, fees feepolicy.Policy, events Notifier, minDeposit, maxDeposit string) (*Service, error) {
	min, err := decimal.NewFromString(minDeposit)
	if err != nil {
		return nil, err
	}

	max, err := decimal.NewFromString(maxDeposit)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:      store,
		accounts:   accounts,
		gateway:    gw,
		fees:       fees,
		events:     events,
		minDeposit: min,
		maxDeposit: max,
	}, nil
}

// Balance returns the account balance, zero for unknown accounts.
func (s *Service) Balance(ctx context.Context, accountID string) (string, error) {
	return s.accounts.Balance(ctx, accountID)
}

// Wallet is the account overview shown by the front end.
type Wallet struct {
	Account      domain.Account `json:"account"`
	LastMovement time.Time      `json:"last_movement,omitempty"`
}

// Wallet returns the account (created lazily on first contact) together
// with the timestamp of its latest movement.
func (s *Service) Wallet(ctx context.Context, accountID, displayName string) (Wallet, error) {
	account, err := s.accounts.GetOrCreate(ctx, accountID, displayName)
	if err != nil {
		return Wallet{}, err
	}

	last, err := s.store.LastMovement(ctx, accountID)
	if err != nil && err != domain.ErrTransactionNotFound {
		return Wallet{}, err
	}

	return Wallet{Account: account, LastMovement: last}, nil
}

// PendingWithdrawals lists withdrawals awaiting admin review.
func (s *Service) PendingWithdrawals(ctx context.Context) ([]domain.Transaction, error) {
	return s.store.ListPendingWithdrawals(ctx)
}

// Profits totals all settled service fees.
func (s *Service) Profits(ctx context.Context) (string, error) {
	return s.store.SumFeesByStatus(ctx, domain.StatusCompleted)
}

// SetBalance overwrites an account balance and records the manual
// adjustment in the same atomic group.
func (s *Service) SetBalance(ctx context.Context, accountID, newBalance, adminID string) (domain.Transaction, error) {
	amount, err := decimal.NewFromString(newBalance)
	if err != nil {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	if amount.IsNegative() {
		return domain.Transaction{}, domain.ErrNegativeBalance
	}

	if _, err := s.accounts.GetOrCreate(ctx, accountID, ""); err != nil {
		return domain.Transaction{}, err
	}

	return s.store.SetBalance(ctx, accountID, amount.StringFixed(2), "manual adjustment by admin "+adminID)
}
