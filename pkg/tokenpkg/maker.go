package tokenpkg

import "time"

// Maker is an interface for managing admin tokens.
type Maker interface {
	// CreateToken creates a new token for the given admin and duration.
	CreateToken(adminID string, duration time.Duration) (string, *Payload, error)

	// VerifyToken checks if the token is valid or not.
	VerifyToken(token string) (*Payload, error)
}
