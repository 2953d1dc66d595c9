package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAmount indicates an unparseable or non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountOutOfRange indicates a deposit outside the configured limits.
	ErrAmountOutOfRange = errors.New("amount outside deposit limits")
	// ErrAmountBelowFee indicates a withdrawal that does not cover the fixed fee.
	ErrAmountBelowFee = errors.New("amount must exceed the fixed withdrawal fee")
	// ErrTransactionNotFound indicates that the transaction is not found.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAlreadyProcessed indicates that the transaction already left the
	// status the caller expected it to be in.
	ErrAlreadyProcessed = errors.New("transaction already processed")
	// ErrRefundFailed indicates that a compensating credit could not be
	// applied after a rejected or failed withdrawal. Funds are stuck and
	// manual intervention is required.
	ErrRefundFailed = errors.New("compensating refund failed: manual intervention required")
)

// Kind enumerates transaction kinds.
type Kind string

// Transaction kinds. The meaning of Amount depends on the kind: gross for
// deposits, net payable for withdrawals, the fee itself for fees and the
// new balance for manual adjustments.
const (
	KindDeposit          Kind = "DEPOSIT"
	KindWithdrawal       Kind = "WITHDRAWAL"
	KindFee              Kind = "FEE"
	KindManualAdjustment Kind = "MANUAL_ADJUSTMENT"
)

// Status enumerates transaction lifecycle statuses.
type Status string

const (
	// StatusPendingPayment is the initial deposit status, awaiting the gateway.
	StatusPendingPayment Status = "PENDING_PAYMENT"
	// StatusPaid is the terminal status of a credited deposit.
	StatusPaid Status = "PAID"
	// StatusAmountMismatch flags a deposit whose confirmed amount differs
	// from the amount on record. Terminal, pending manual review.
	StatusAmountMismatch Status = "AMOUNT_MISMATCH"
	// StatusUnderReview is the initial withdrawal status, awaiting an admin.
	StatusUnderReview Status = "UNDER_REVIEW"
	// StatusInProgress marks an approved withdrawal whose payout is running.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted is the terminal status of a paid-out withdrawal and
	// of fee records.
	StatusCompleted Status = "COMPLETED"
	// StatusRejected is the terminal status of a withdrawal an admin refused.
	StatusRejected Status = "REJECTED"
	// StatusPaymentFailed is the terminal status of a withdrawal whose
	// payout failed at the gateway.
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	// StatusManual is the terminal status of manual balance adjustments.
	StatusManual Status = "MANUAL"
)

// Terminal reports whether no further automatic transition may occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusPendingPayment, StatusUnderReview, StatusInProgress:
		return false
	}
	return true
}

// Transaction is one row of the append-style transaction log.
type Transaction struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"account_id"`
	Kind        Kind      `json:"kind"`
	Amount      string    `json:"amount"`
	Status      Status    `json:"status"`
	ExternalRef string    `json:"external_ref,omitempty"`
	PixKey      string    `json:"pix_key,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateTransactionParams is the input data to record a transaction.
// Use the per-kind constructors below; they enumerate the fields each
// kind recognizes.
type CreateTransactionParams struct {
	AccountID   string
	Kind        Kind
	Amount      string
	Status      Status
	ExternalRef string
	PixKey      string
	Note        string
}

// NewDepositRecord returns params for a deposit awaiting gateway payment.
func NewDepositRecord(accountID, gross, externalRef string) CreateTransactionParams {
	return CreateTransactionParams{
		AccountID:   accountID,
		Kind:        KindDeposit,
		Amount:      gross,
		Status:      StatusPendingPayment,
		ExternalRef: externalRef,
	}
}

// NewWithdrawalRecord returns params for a withdrawal entering review.
func NewWithdrawalRecord(accountID, amountReceived, pixKey string) CreateTransactionParams {
	return CreateTransactionParams{
		AccountID: accountID,
		Kind:      KindWithdrawal,
		Amount:    amountReceived,
		Status:    StatusUnderReview,
		PixKey:    pixKey,
	}
}

// NewFeeRecord returns params for a fee, created already settled.
func NewFeeRecord(accountID, amount, note string) CreateTransactionParams {
	return CreateTransactionParams{
		AccountID: accountID,
		Kind:      KindFee,
		Amount:    amount,
		Status:    StatusCompleted,
		Note:      note,
	}
}

// NewAdjustmentRecord returns params for a manual balance override.
func NewAdjustmentRecord(accountID, newBalance, note string) CreateTransactionParams {
	return CreateTransactionParams{
		AccountID: accountID,
		Kind:      KindManualAdjustment,
		Amount:    newBalance,
		Status:    StatusManual,
		Note:      note,
	}
}

// StatusUpdate carries the optional fields that may be attached to a
// transaction at the moment it changes status.
type StatusUpdate struct {
	ExternalRef string
	Note        string
}

// WithdrawTxParams is the input data for the atomic withdrawal group:
// debit TotalDebit, record the withdrawal and record its fee.
type WithdrawTxParams struct {
	AccountID      string
	TotalDebit     string
	AmountReceived string
	Fee            string
	PixKey         string
}

// WithdrawTxResult is the result of the atomic withdrawal group.
type WithdrawTxResult struct {
	Withdrawal Transaction `json:"withdrawal"`
	FeeRecord  Transaction `json:"fee"`
	Account    Account     `json:"account"`
}

// RefundTxParams is the input data for the atomic compensating-credit
// group: credit Amount back and move the withdrawal From -> To.
type RefundTxParams struct {
	WithdrawalID int64
	AccountID    string
	Amount       string
	From         Status
	To           Status
	Note         string
}

// WithdrawalFeeNote links a fee record to its withdrawal. The store looks
// fees up by this exact text when computing refunds.
func WithdrawalFeeNote(withdrawalID int64) string {
	return fmt.Sprintf("withdrawal fee for transaction %d", withdrawalID)
}

// DepositFeeNote links a fee record to its deposit.
func DepositFeeNote(depositID int64) string {
	return fmt.Sprintf("deposit fee for transaction %d", depositID)
}
