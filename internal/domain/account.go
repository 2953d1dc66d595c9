// Package domain provides definitions of all entities.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance indicates that the account does not have sufficient balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNegativeBalance indicates an attempt to set a negative balance.
	ErrNegativeBalance = errors.New("balance must not be negative")
)

// Account holds the balance of a single user. The ID is the opaque
// identifier assigned by the messaging front end; accounts are created
// lazily on first contact and never deleted.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Balance     string    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}
