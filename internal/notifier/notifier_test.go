package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, hits *int32, lastEvent *Event) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)

		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		*lastEvent = ev

		w.WriteHeader(http.StatusOK)
	}))
}

func TestNotifyRouting(t *testing.T) {
	testCases := []struct {
		name      string
		event     Event
		wantUser  int32
		wantAdmin int32
	}{
		{
			name:      "DepositPaidGoesToUser",
			event:     Event{Type: EventDepositPaid, AccountID: "12345", Amount: "89.00"},
			wantUser:  1,
			wantAdmin: 0,
		},
		{
			name:      "WithdrawalPendingGoesToAdmin",
			event:     Event{Type: EventWithdrawalPending, AccountID: "12345", Amount: "94.15"},
			wantUser:  0,
			wantAdmin: 1,
		},
		{
			name:      "PayoutStuckGoesToAdmin",
			event:     Event{Type: EventPayoutStuck, TransactionID: 21},
			wantUser:  0,
			wantAdmin: 1,
		},
		{
			name:      "RefundFailedGoesToBoth",
			event:     Event{Type: EventRefundFailed, TransactionID: 21, Amount: "100.00"},
			wantUser:  1,
			wantAdmin: 1,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			var (
				userHits, adminHits   int32
				userEvent, adminEvent Event
			)

			userServer := countingServer(t, &userHits, &userEvent)
			defer userServer.Close()

			adminServer := countingServer(t, &adminHits, &adminEvent)
			defer adminServer.Close()

			w := NewWebhook(userServer.URL, adminServer.URL)
			w.Notify(context.Background(), tc.event)

			require.Equal(t, tc.wantUser, atomic.LoadInt32(&userHits))
			require.Equal(t, tc.wantAdmin, atomic.LoadInt32(&adminHits))

			if tc.wantAdmin == 1 {
				require.Equal(t, tc.event.Type, adminEvent.Type)
			}

			if tc.wantUser == 1 {
				require.Equal(t, tc.event.Type, userEvent.Type)
			}
		})
	}
}

func TestNotifySwallowsDeliveryFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w := NewWebhook(server.URL, "")

	// Must not panic or block; failures are logged only.
	w.Notify(context.Background(), Event{Type: EventDepositPaid, AccountID: "12345"})
}

func TestNotifySkipsEmptyURLs(t *testing.T) {
	w := NewWebhook("", "")
	w.Notify(context.Background(), Event{Type: EventRefundFailed})
}
