// Package notifier delivers outbound ledger events to the messaging and
// admin front ends. Delivery is best effort: a lost notification never
// rolls back the ledger mutation it announces.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// EventType tags an outbound event.
type EventType string

const (
	// EventDepositPaid announces a credited deposit to the user.
	EventDepositPaid EventType = "deposit_paid"
	// EventDepositFailed announces a failed or mismatched deposit.
	EventDepositFailed EventType = "deposit_failed"
	// EventWithdrawalPending asks admins to review a new withdrawal.
	EventWithdrawalPending EventType = "withdrawal_pending"
	// EventWithdrawalCompleted announces a paid-out withdrawal to the user.
	EventWithdrawalCompleted EventType = "withdrawal_completed"
	// EventWithdrawalRejected announces a rejected, refunded withdrawal.
	EventWithdrawalRejected EventType = "withdrawal_rejected"
	// EventWithdrawalRefunded announces a payout failure with the debit
	// restored to the balance.
	EventWithdrawalRefunded EventType = "withdrawal_refunded"
	// EventRefundFailed is the critical alert: a compensating credit could
	// not be applied and money is stuck pending manual intervention.
	EventRefundFailed EventType = "refund_failed"
	// EventPayoutStuck alerts admins to a payout that has not reached a
	// terminal status within the configured age.
	EventPayoutStuck EventType = "payout_stuck"
)

// Event is one outbound notification.
type Event struct {
	Type          EventType `json:"type"`
	AccountID     string    `json:"account_id,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	PixKey        string    `json:"pix_key,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// adminOnly routes review requests and critical alerts to the admin front end.
func (e Event) adminOnly() bool {
	return e.Type == EventWithdrawalPending || e.Type == EventRefundFailed || e.Type == EventPayoutStuck
}

// Notifier is the outbound event sink the ledger core emits into.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Webhook posts events as JSON to the front ends' callback URLs.
type Webhook struct {
	userURL  string
	adminURL string
	client   *http.Client
}

// NewWebhook returns a webhook notifier. Empty URLs disable the
// corresponding route.
func NewWebhook(userURL, adminURL string) *Webhook {
	return &Webhook{
		userURL:  userURL,
		adminURL: adminURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify delivers the event, logging failures instead of returning them.
// Critical refund failures go to both front ends.
func (w *Webhook) Notify(ctx context.Context, event Event) {
	l := zerolog.Ctx(ctx)

	urls := []string{w.userURL}
	if event.adminOnly() {
		urls = []string{w.adminURL}
	}

	if event.Type == EventRefundFailed {
		urls = []string{w.adminURL, w.userURL}
	}

	for _, url := range urls {
		if url == "" {
			continue
		}

		if err := w.send(ctx, url, event); err != nil {
			l.Error().Err(err).
				Str("event", string(event.Type)).
				Int64("transaction_id", event.TransactionID).
				Msg("event delivery failed")
		}
	}
}

func (w *Webhook) send(ctx context.Context, url string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &deliveryError{status: resp.StatusCode}
	}

	return nil
}

type deliveryError struct {
	status int
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("front end returned status %d", e.status)
}
