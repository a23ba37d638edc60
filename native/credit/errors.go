package credit

import "errors"

var (
	// ErrInvalidAmount indicates a zero or negative principal or offer size.
	ErrInvalidAmount = errors.New("credit: amount must be positive")
	// ErrInvalidRate indicates a rate of zero or above 100%.
	ErrInvalidRate = errors.New("credit: invalid interest rate")
	// ErrInvalidDuration indicates a zero duration or one beyond the maximum
	// loan term.
	ErrInvalidDuration = errors.New("credit: invalid loan duration")
	// ErrInvalidLiquidationThreshold indicates a threshold outside
	// [5000, 10000] basis points.
	ErrInvalidLiquidationThreshold = errors.New("credit: invalid liquidation threshold")
	// ErrInvalidFeeRate indicates fee parameters above their caps.
	ErrInvalidFeeRate = errors.New("credit: invalid fee rate")

	// ErrUnauthorized indicates the caller does not own the record or lacks
	// the admin role.
	ErrUnauthorized = errors.New("credit: unauthorized")

	// ErrOfferNotFound indicates an unknown offer id.
	ErrOfferNotFound = errors.New("credit: offer not found")
	// ErrRequestNotFound indicates an unknown borrow request id.
	ErrRequestNotFound = errors.New("credit: request not found")
	// ErrLoanNotFound indicates an unknown loan id.
	ErrLoanNotFound = errors.New("credit: loan not found")
	// ErrOfferNotActive indicates the offer was already accepted or
	// cancelled.
	ErrOfferNotActive = errors.New("credit: offer not active")
	// ErrLoanNotActive indicates the loan already reached a terminal status.
	ErrLoanNotActive = errors.New("credit: loan not active")
	// ErrLoanNotOverdue indicates a default was requested before maturity.
	ErrLoanNotOverdue = errors.New("credit: loan not overdue")
	// ErrLoanNotLiquidatable indicates the loan is healthy and not past due.
	ErrLoanNotLiquidatable = errors.New("credit: loan not liquidatable")
	// ErrLoanNotDefaulted indicates an insurance claim against a loan that
	// has not defaulted.
	ErrLoanNotDefaulted = errors.New("credit: loan not defaulted")
	// ErrInsuranceAlreadyClaimed indicates a second claim on the same loan.
	ErrInsuranceAlreadyClaimed = errors.New("credit: insurance already claimed")

	// ErrInsufficientReputation indicates the borrower's score is below the
	// offer's minimum.
	ErrInsufficientReputation = errors.New("credit: insufficient reputation")
	// ErrExceedsCreditLimit indicates the principal is above the borrower's
	// tier-adjusted limit.
	ErrExceedsCreditLimit = errors.New("credit: exceeds credit limit")
	// ErrInsufficientInsurancePool indicates the pool cannot fund any payout.
	ErrInsufficientInsurancePool = errors.New("credit: insufficient insurance pool")
	// ErrProgramNotWhitelisted indicates a trade against an unapproved venue.
	ErrProgramNotWhitelisted = errors.New("credit: program not whitelisted")
	// ErrWhitelistFull indicates the whitelist reached its bound.
	ErrWhitelistFull = errors.New("credit: whitelist full")
	// ErrInsufficientBalance indicates the borrower cannot cover the
	// repayment total.
	ErrInsufficientBalance = errors.New("credit: insufficient balance")

	// ErrMathOverflow indicates an arithmetic precondition failed, such as a
	// negative elapsed time.
	ErrMathOverflow = errors.New("credit: math overflow")
)
