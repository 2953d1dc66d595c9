package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flexipay/flexipay/pkg/web"
)

// SignatureHeaderKey carries the hex-encoded HMAC-SHA256 of the raw
// request body, keyed with the shared webhook secret.
const SignatureHeaderKey = "X-Signature"

var (
	// ErrMissingSignature indicates a webhook delivery without a signature.
	ErrMissingSignature = errors.New("webhook signature is not provided")
	// ErrInvalidSignature indicates a signature that does not match the body.
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// Sign computes the signature expected for the given body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignature authenticates gateway webhook deliveries. The body is
// restored after reading so downstream binding still works.
func WebhookSignature(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		signature := ctx.GetHeader(SignatureHeaderKey)
		if signature == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrMissingSignature))
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, web.Error(err))
			return
		}

		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !hmac.Equal([]byte(Sign(secret, body)), []byte(signature)) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrInvalidSignature))
			return
		}

		ctx.Next()
	}
}
