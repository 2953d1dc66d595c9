package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flexipay/flexipay/pkg/tokenpkg"
	"github.com/flexipay/flexipay/pkg/web"
)

const (
	// AuthHeaderKey is the header carrying the admin access token.
	AuthHeaderKey = "authorization"
	// AuthTypeBearer is the only supported authorization scheme.
	AuthTypeBearer = "bearer"
	// AuthPayloadKey is the gin context key holding the verified payload.
	AuthPayloadKey = "authorization_payload"
)

var (
	// ErrAuthHeaderNotFound indicates a request without an authorization header.
	ErrAuthHeaderNotFound = errors.New("authorization header is not provided")
	// ErrBadAuthHeaderFormat indicates a malformed authorization header.
	ErrBadAuthHeaderFormat = errors.New("invalid authorization header format")
	// ErrUnsupportedAuthType indicates an authorization scheme other than bearer.
	ErrUnsupportedAuthType = errors.New("unsupported authorization type")
)

// AddAuthorization attaches a freshly minted admin token to the request.
func AddAuthorization(r *http.Request, tokenMaker tokenpkg.Maker, authType, adminID string, duration time.Duration) error {
	token, _, err := tokenMaker.CreateToken(adminID, duration)
	if err != nil {
		return err
	}

	r.Header.Set(AuthHeaderKey, fmt.Sprintf("%s %s", authType, token))

	return nil
}

// AdminAuth guards the admin routes. The verified token payload is stored
// under AuthPayloadKey for handlers that attribute actions to an admin.
func AdminAuth(tokenMaker tokenpkg.Maker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader(AuthHeaderKey)
		if len(authHeader) == 0 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrAuthHeaderNotFound))
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrBadAuthHeaderFormat))
			return
		}

		if strings.ToLower(fields[0]) != AuthTypeBearer {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrUnsupportedAuthType))
			return
		}

		payload, err := tokenMaker.VerifyToken(fields[1])
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
			return
		}

		ctx.Set(AuthPayloadKey, payload)
		ctx.Next()
	}
}

// AdminPayload returns the verified token payload set by AdminAuth.
func AdminPayload(ctx *gin.Context) *tokenpkg.Payload {
	payload, ok := ctx.MustGet(AuthPayloadKey).(*tokenpkg.Payload)
	if !ok {
		panic(fmt.Sprintf("authorization payload has unexpected type %T", ctx.MustGet(AuthPayloadKey)))
	}

	return payload
}
