package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/flexipay/flexipay/pkg/randompkg"
	"github.com/flexipay/flexipay/pkg/web"
)

func TestWebhookSignature(t *testing.T) {
	secret := randompkg.String(32)
	body := []byte(`{"external_ref":"gw-charge-42"}`)

	testCases := []struct {
		name           string
		signature      string
		wantStatusCode int
		wantError      string
		wantBody       string
	}{
		{
			name:           "OK",
			signature:      Sign(secret, body),
			wantStatusCode: http.StatusOK,
			wantBody:       string(body),
		},
		{
			name:           "NoSignature",
			signature:      "",
			wantStatusCode: http.StatusUnauthorized,
			wantError:      ErrMissingSignature.Error(),
		},
		{
			name:           "WrongSignature",
			signature:      Sign("some other secret padded to length", body),
			wantStatusCode: http.StatusUnauthorized,
			wantError:      ErrInvalidSignature.Error(),
		},
		{
			name:           "SignatureOverDifferentBody",
			signature:      Sign(secret, []byte(`{"external_ref":"tampered"}`)),
			wantStatusCode: http.StatusUnauthorized,
			wantError:      ErrInvalidSignature.Error(),
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gin.SetMode(gin.ReleaseMode)
			server := gin.New()

			var seenBody []byte

			webhookPath := "/webhook"
			handler := func(ctx *gin.Context) {
				var err error
				seenBody, err = io.ReadAll(ctx.Request.Body)
				if err != nil {
					t.Errorf("reading restored body returned error: %v", err)
				}
				ctx.JSON(http.StatusOK, gin.H{})
			}
			server.POST(webhookPath, WebhookSignature(secret), handler)

			recorder := httptest.NewRecorder()
			request, err := http.NewRequest(http.MethodPost, webhookPath, bytes.NewReader(body))
			if err != nil {
				t.Fatalf("http.NewRequest(%v, %v) returned error: %v", http.MethodPost, webhookPath, err)
			}

			if tc.signature != "" {
				request.Header.Set(SignatureHeaderKey, tc.signature)
			}

			server.ServeHTTP(recorder, request)

			if recorder.Code != tc.wantStatusCode {
				t.Errorf("recorder.Code = %v, tc.wantStatusCode = %v, want equal",
					recorder.Code, tc.wantStatusCode)
			}

			got := web.Response{}
			if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
				t.Fatalf("Decoding response body error: %v", err)
			}

			if got.Error != tc.wantError {
				t.Errorf("got.Error = %v, tc.wantError = %v, want equal", got.Error, tc.wantError)
			}

			if tc.wantBody != "" && string(seenBody) != tc.wantBody {
				t.Errorf("handler saw body %q, want %q", seenBody, tc.wantBody)
			}
		})
	}
}
