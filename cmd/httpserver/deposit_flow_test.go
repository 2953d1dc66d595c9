//go:build integration

package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/integrationtest"
	"github.com/flexipay/flexipay/internal/integrationtest/helpers"
	"github.com/flexipay/flexipay/internal/ledgerservice"
	"github.com/flexipay/flexipay/internal/middleware"
	"github.com/flexipay/flexipay/pkg/randompkg"
)

type depositBody struct {
	Data struct {
		Deposit ledgerservice.DepositReceipt `json:"deposit"`
	} `json:"data"`
	Error string `json:"error"`
}

type reconcileBody struct {
	Data struct {
		Reconciliation ledgerservice.ReconcileResult `json:"reconciliation"`
	} `json:"data"`
	Error string `json:"error"`
}

type walletBody struct {
	Data struct {
		Wallet ledgerservice.Wallet `json:"wallet"`
	} `json:"data"`
	Error string `json:"error"`
}

func postJSON(t *testing.T, server http.Handler, path string, body any, sign func(*http.Request, []byte)) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal(%+v) returned error: %v", body, err)
	}

	request, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("http.NewRequest(POST, %v) returned error: %v", path, err)
	}

	if sign != nil {
		sign(request, payload)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	return recorder
}

func getJSON(t *testing.T, server http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatalf("http.NewRequest(GET, %v) returned error: %v", path, err)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()

	if err := json.NewDecoder(recorder.Body).Decode(out); err != nil {
		t.Fatalf("decoding response body returned error: %v", err)
	}
}

func TestDepositFlow(t *testing.T) {
	gatewayStub := helpers.NewGatewayStub(t)
	server := integrationtest.SetupServer(t, gatewayStub.URL)

	accountID := randompkg.AccountID()
	secret := server.Config.WebhookSigningSecret

	signWebhook := func(r *http.Request, payload []byte) {
		r.Header.Set(middleware.SignatureHeaderKey, middleware.Sign(secret, payload))
	}

	// Open the charge.
	recorder := postJSON(t, server, "/deposits", map[string]string{
		"account_id":   accountID,
		"display_name": "maria",
		"amount":       "100.00",
	}, nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /deposits status = %v, body %v", recorder.Code, recorder.Body.String())
	}

	var deposit depositBody

	decodeBody(t, recorder, &deposit)

	receipt := deposit.Data.Deposit
	if receipt.ExternalRef == "" || receipt.CopyPaste == "" {
		t.Fatalf("receipt = %+v, want charge reference and copy paste code", receipt)
	}

	// Nothing is credited before the webhook arrives.
	recorder = getJSON(t, server, "/accounts/"+accountID+"/wallet")

	var wallet walletBody

	decodeBody(t, recorder, &wallet)

	if wallet.Data.Wallet.Account.Balance != "0.00" {
		t.Errorf("balance before webhook = %v, want 0.00", wallet.Data.Wallet.Account.Balance)
	}

	// The signed webhook credits the net amount.
	webhookReq := map[string]string{"external_ref": receipt.ExternalRef}

	recorder = postJSON(t, server, "/webhook/pix", webhookReq, signWebhook)

	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /webhook/pix status = %v, body %v", recorder.Code, recorder.Body.String())
	}

	var reconciled reconcileBody

	decodeBody(t, recorder, &reconciled)

	if reconciled.Data.Reconciliation.Outcome != ledgerservice.OutcomeCredited {
		t.Errorf("outcome = %v, want %v", reconciled.Data.Reconciliation.Outcome, ledgerservice.OutcomeCredited)
	}

	if reconciled.Data.Reconciliation.Status != domain.StatusPaid {
		t.Errorf("status = %v, want %v", reconciled.Data.Reconciliation.Status, domain.StatusPaid)
	}

	// A duplicate delivery is acknowledged without crediting twice.
	recorder = postJSON(t, server, "/webhook/pix", webhookReq, signWebhook)

	decodeBody(t, recorder, &reconciled)

	if reconciled.Data.Reconciliation.Outcome != ledgerservice.OutcomeAlreadyProcessed {
		t.Errorf("duplicate outcome = %v, want %v",
			reconciled.Data.Reconciliation.Outcome, ledgerservice.OutcomeAlreadyProcessed)
	}

	recorder = getJSON(t, server, "/accounts/"+accountID+"/wallet")

	decodeBody(t, recorder, &wallet)

	if wallet.Data.Wallet.Account.Balance != "89.00" {
		t.Errorf("balance = %v, want 89.00", wallet.Data.Wallet.Account.Balance)
	}
}

func TestDepositAmountMismatchFlow(t *testing.T) {
	gatewayStub := helpers.NewGatewayStub(t)
	gatewayStub.ConfirmedAmount = "90.00"

	server := integrationtest.SetupServer(t, gatewayStub.URL)

	accountID := randompkg.AccountID()
	secret := server.Config.WebhookSigningSecret

	recorder := postJSON(t, server, "/deposits", map[string]string{
		"account_id": accountID,
		"amount":     "100.00",
	}, nil)

	var deposit depositBody

	decodeBody(t, recorder, &deposit)

	recorder = postJSON(t, server, "/webhook/pix",
		map[string]string{"external_ref": deposit.Data.Deposit.ExternalRef},
		func(r *http.Request, payload []byte) {
			r.Header.Set(middleware.SignatureHeaderKey, middleware.Sign(secret, payload))
		})

	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /webhook/pix status = %v, body %v", recorder.Code, recorder.Body.String())
	}

	var reconciled reconcileBody

	decodeBody(t, recorder, &reconciled)

	if reconciled.Data.Reconciliation.Outcome != ledgerservice.OutcomeAmountMismatch {
		t.Errorf("outcome = %v, want %v",
			reconciled.Data.Reconciliation.Outcome, ledgerservice.OutcomeAmountMismatch)
	}

	if reconciled.Data.Reconciliation.Status != domain.StatusAmountMismatch {
		t.Errorf("status = %v, want %v", reconciled.Data.Reconciliation.Status, domain.StatusAmountMismatch)
	}

	// The account keeps its zero balance until an admin resolves it.
	recorder = getJSON(t, server, "/accounts/"+accountID+"/wallet")

	var wallet walletBody

	decodeBody(t, recorder, &wallet)

	if wallet.Data.Wallet.Account.Balance != "0.00" {
		t.Errorf("balance = %v, want 0.00", wallet.Data.Wallet.Account.Balance)
	}
}

func TestLatePaymentAfterReconcileSweep(t *testing.T) {
	gatewayStub := helpers.NewGatewayStub(t)
	gatewayStub.ChargeState = "pending"

	server := integrationtest.SetupServer(t, gatewayStub.URL)

	accountID := randompkg.AccountID()
	secret := server.Config.WebhookSigningSecret

	signWebhook := func(r *http.Request, payload []byte) {
		r.Header.Set(middleware.SignatureHeaderKey, middleware.Sign(secret, payload))
	}

	recorder := postJSON(t, server, "/deposits", map[string]string{
		"account_id": accountID,
		"amount":     "100.00",
	}, nil)

	var deposit depositBody

	decodeBody(t, recorder, &deposit)

	ref := deposit.Data.Deposit.ExternalRef

	// The background sweep reconciles the unpaid charge and must leave
	// it open.
	result, err := server.Ledger.Reconcile(context.Background(), ref)
	if err != nil {
		t.Fatalf("server.Ledger.Reconcile(ctx, %v) returned error: %v", ref, err)
	}

	if result.Outcome != ledgerservice.OutcomeStillPending {
		t.Fatalf("sweep outcome = %v, want %v", result.Outcome, ledgerservice.OutcomeStillPending)
	}

	// The user pays after the sweep; the webhook still credits.
	gatewayStub.SetChargeState("approved")

	recorder = postJSON(t, server, "/webhook/pix", map[string]string{"external_ref": ref}, signWebhook)

	var reconciled reconcileBody

	decodeBody(t, recorder, &reconciled)

	if reconciled.Data.Reconciliation.Outcome != ledgerservice.OutcomeCredited {
		t.Fatalf("late payment outcome = %v, want %v",
			reconciled.Data.Reconciliation.Outcome, ledgerservice.OutcomeCredited)
	}

	recorder = getJSON(t, server, "/accounts/"+accountID+"/wallet")

	var wallet walletBody

	decodeBody(t, recorder, &wallet)

	if wallet.Data.Wallet.Account.Balance != "89.00" {
		t.Errorf("balance = %v, want 89.00", wallet.Data.Wallet.Account.Balance)
	}
}

func TestWebhookRejectsUnsignedDelivery(t *testing.T) {
	gatewayStub := helpers.NewGatewayStub(t)
	server := integrationtest.SetupServer(t, gatewayStub.URL)

	recorder := postJSON(t, server, "/webhook/pix",
		map[string]string{"external_ref": "stub-charge-1"}, nil)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %v, want %v", recorder.Code, http.StatusUnauthorized)
	}
}
