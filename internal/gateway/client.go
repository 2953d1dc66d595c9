package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient talks JSON over HTTP to the payment gateway. Every request
// carries the client timeout, so a stalled gateway turns into a Failure
// rather than a stuck transaction.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient returns a gateway client with a bounded request timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	Amount        string `json:"transaction_amount"`
	Description   string `json:"description"`
	PaymentMethod string `json:"payment_method_id"`
	PayerID       string `json:"payer_id"`
}

type chargeResponse struct {
	ID           string `json:"id"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	Message      string `json:"message"`
}

// CreateCharge opens a PIX charge at the gateway.
func (c *HTTPClient) CreateCharge(ctx context.Context, amount, payerID, description string) (Charge, error) {
	req := chargeRequest{
		Amount:        amount,
		Description:   description,
		PaymentMethod: "pix",
		PayerID:       payerID,
	}

	var res chargeResponse
	if err := c.post(ctx, "create charge", "/v1/payments", "", req, &res); err != nil {
		return Charge{}, err
	}

	if res.ID == "" || res.QRCode == "" {
		return Charge{}, &Failure{Op: "create charge", Reason: "incomplete gateway response"}
	}

	return Charge{
		ExternalRef:  res.ID,
		CopyPaste:    res.QRCode,
		QRCodeBase64: res.QRCodeBase64,
	}, nil
}

type payoutRequest struct {
	Amount            string `json:"amount"`
	PixKey            string `json:"pix_key"`
	Description       string `json:"description"`
	ExternalReference string `json:"external_reference"`
}

type payoutResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// IssuePayout sends a PIX payout. The idempotency key is derived from the
// local transaction id, so a retried approval cannot pay twice.
func (c *HTTPClient) IssuePayout(ctx context.Context, localID int64, amount, pixKey, description string) (Payout, error) {
	req := payoutRequest{
		Amount:            amount,
		PixKey:            pixKey,
		Description:       description,
		ExternalReference: fmt.Sprintf("%d", localID),
	}

	idempotencyKey := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("payout-%d", localID))).String()

	var res payoutResponse
	if err := c.post(ctx, "payout", "/v1/payouts", idempotencyKey, req, &res); err != nil {
		return Payout{}, err
	}

	if res.ID == "" {
		return Payout{}, &Failure{Op: "payout", Reason: "incomplete gateway response"}
	}

	return Payout{ExternalRef: res.ID}, nil
}

type statusResponse struct {
	Status            string `json:"status"`
	TransactionAmount string `json:"transaction_amount"`
	Message           string `json:"message"`
}

// ChargeStatus fetches the authoritative charge state.
func (c *HTTPClient) ChargeStatus(ctx context.Context, externalRef string) (ChargeStatus, error) {
	l := zerolog.Ctx(ctx)

	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(externalRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ChargeStatus{}, &Failure{Op: "charge status", Reason: err.Error()}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("external_ref", externalRef).Msg("gateway status request failed")
		return ChargeStatus{}, &Failure{Op: "charge status", Reason: err.Error()}
	}
	defer resp.Body.Close()

	var res statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return ChargeStatus{}, &Failure{Op: "charge status", Reason: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return ChargeStatus{}, &Failure{Op: "charge status", Reason: failureReason(resp.StatusCode, res.Message)}
	}

	return ChargeStatus{Status: res.Status, ConfirmedAmount: res.TransactionAmount}, nil
}

func (c *HTTPClient) post(ctx context.Context, op, path, idempotencyKey string, body, out interface{}) error {
	l := zerolog.Ctx(ctx)

	payload, err := json.Marshal(body)
	if err != nil {
		return &Failure{Op: op, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Failure{Op: op, Reason: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("op", op).Msg("gateway request failed")
		return &Failure{Op: op, Reason: err.Error()}
	}
	defer resp.Body.Close()

	var probe struct {
		Message string `json:"message"`
	}

	raw := json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return &Failure{Op: op, Reason: err.Error()}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		_ = json.Unmarshal(raw, &probe)
		return &Failure{Op: op, Reason: failureReason(resp.StatusCode, probe.Message)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Failure{Op: op, Reason: err.Error()}
	}

	return nil
}

func failureReason(statusCode int, message string) string {
	if message == "" {
		return fmt.Sprintf("gateway returned status %d", statusCode)
	}

	return fmt.Sprintf("%s (status %d)", message, statusCode)
}
