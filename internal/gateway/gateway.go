// Package gateway adapts the external PIX payment gateway.
//
// The rest of the system depends only on the three operations below and on
// the tagged Failure error; gateway outages, rejections and timeouts all
// surface as Failure values so the state machine can take its compensating
// paths instead of hanging or panicking.
package gateway

import "context"

// Charge is a collectible PIX charge created at the gateway.
type Charge struct {
	ExternalRef  string `json:"external_ref"`
	CopyPaste    string `json:"copy_paste"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
}

// Payout is an outbound PIX payment issued by the gateway.
type Payout struct {
	ExternalRef string `json:"external_ref"`
}

// ChargeStatus is the authoritative state of a charge as reported by the
// gateway, used by reconciliation.
type ChargeStatus struct {
	Status          string
	ConfirmedAmount string
}

// StatusApproved is the gateway status that allows crediting a deposit.
const StatusApproved = "approved"

// Collectible reports whether the gateway still considers the charge
// payable. Reconciliation must leave such deposits untouched: closing one
// locally would orphan the payment when the user pays later.
func Collectible(status string) bool {
	switch status {
	case "pending", "in_process":
		return true
	}

	return false
}

// Client is the payment gateway contract the ledger core consumes.
type Client interface {
	// CreateCharge opens a collectible charge and returns the payer
	// instructions.
	CreateCharge(ctx context.Context, amount, payerID, description string) (Charge, error)
	// IssuePayout sends money to a pix key. Retries with the same local
	// transaction id reuse the same idempotency key at the gateway.
	IssuePayout(ctx context.Context, localID int64, amount, pixKey, description string) (Payout, error)
	// ChargeStatus fetches the authoritative status and confirmed amount
	// of an existing charge.
	ChargeStatus(ctx context.Context, externalRef string) (ChargeStatus, error)
}

// Failure is an expected gateway failure: a declined request, an error
// response, a network fault or a timeout.
type Failure struct {
	Op     string
	Reason string
}

func (f *Failure) Error() string {
	return "gateway " + f.Op + " failed: " + f.Reason
}

// IsFailure reports whether err is an expected gateway failure.
func IsFailure(err error) bool {
	_, ok := err.(*Failure)
	return ok
}
