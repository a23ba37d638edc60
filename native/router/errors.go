package router

import "errors"

var (
	// ErrNotInitialized indicates use before InitializeRouter.
	ErrNotInitialized = errors.New("router: not initialized")
	// ErrUnauthorized indicates an admin operation from a non-admin.
	ErrUnauthorized = errors.New("router: unauthorized")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("router: amount must be positive")
	// ErrDepositCapExceeded indicates a deposit above the per-transaction cap.
	ErrDepositCapExceeded = errors.New("router: deposit cap exceeded")
	// ErrRateBelowMinimum indicates a loan rate that does not beat the
	// passive venue plus the buffer.
	ErrRateBelowMinimum = errors.New("router: rate below minimum")
	// ErrExposureCapExceeded indicates the diversification caps left no
	// room to route anything.
	ErrExposureCapExceeded = errors.New("router: exposure cap exceeded")
	// ErrNoPosition indicates the lender has never deposited.
	ErrNoPosition = errors.New("router: no position")
	// ErrInsufficientPassive indicates the position's passive balance cannot
	// cover the requested routing.
	ErrInsufficientPassive = errors.New("router: insufficient passive balance")
	// ErrInsufficientInsurance indicates the insurance balance cannot fund
	// any payout.
	ErrInsufficientInsurance = errors.New("router: insufficient insurance balance")
)
