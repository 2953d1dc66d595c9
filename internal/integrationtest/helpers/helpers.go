// Package helpers provides gateway stubbing and seeding helpers for
// integration tests.
package helpers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// GatewayStub is an in-process payment gateway used by integration tests.
// Charges are recorded so later status lookups confirm the requested
// amount unless ConfirmedAmount overrides it.
type GatewayStub struct {
	*httptest.Server

	mu      sync.Mutex
	charges map[string]string
	payouts int

	// ChargeState is the status reported for every charge lookup.
	ChargeState string
	// ConfirmedAmount, when set, overrides the recorded charge amount.
	ConfirmedAmount string
	// RejectPayouts makes every payout request fail.
	RejectPayouts bool
}

// NewGatewayStub starts a stub gateway that approves everything.
func NewGatewayStub(t *testing.T) *GatewayStub {
	t.Helper()

	g := &GatewayStub{
		charges:     make(map[string]string),
		ChargeState: "approved",
	}

	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.Server.Close)

	return g
}

func (g *GatewayStub) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payments":
		var req struct {
			Amount string `json:"transaction_amount"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		id := fmt.Sprintf("stub-charge-%d", len(g.charges)+1)
		g.charges[id] = req.Amount

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":             id,
			"qr_code":        "00020126stubpixcopypaste",
			"qr_code_base64": "c3R1Yg==",
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payments/"):
		ref := strings.TrimPrefix(r.URL.Path, "/v1/payments/")

		amount, ok := g.charges[ref]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "payment not found"})

			return
		}

		if g.ConfirmedAmount != "" {
			amount = g.ConfirmedAmount
		}

		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":             g.ChargeState,
			"transaction_amount": amount,
		})

	case r.Method == http.MethodPost && r.URL.Path == "/v1/payouts":
		if g.RejectPayouts {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "pix key rejected"})

			return
		}

		g.payouts++

		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": fmt.Sprintf("stub-payout-%d", g.payouts),
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// SetChargeState changes the status reported for charge lookups while the
// stub is serving.
func (g *GatewayStub) SetChargeState(state string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ChargeState = state
}

// Payouts reports how many payouts the stub has issued.
func (g *GatewayStub) Payouts() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.payouts
}

// SeedAccount creates an account with the given balance directly in the db.
func SeedAccount(t *testing.T, db *sql.DB, id, balance string) {
	t.Helper()

	const query = `
	INSERT INTO accounts (id, display_name, balance)
	VALUES ($1, $2, $3)`

	if _, err := db.Exec(query, id, "seeded", balance); err != nil {
		t.Fatalf("seeding account %v failed: %v", id, err)
	}
}
