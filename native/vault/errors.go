package vault

import "errors"

var (
	// ErrVaultNotFound indicates the referenced vault handle has no record.
	ErrVaultNotFound = errors.New("vault: not found")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInsufficientBalance indicates the source account or vault cannot
	// cover the requested movement.
	ErrInsufficientBalance = errors.New("vault: insufficient balance")
)
