package credit

import (
	"math/big"

	"plnmarket/crypto"
)

// ModuleName is the pause-switch identifier for the credit marketplace.
const ModuleName = "credit"

const (
	// DefaultInsuranceFeeBps is the share of interest routed to the
	// insurance pool when governance has not set another value.
	DefaultInsuranceFeeBps = 1_000
	// DefaultProtocolFeeBps is the share of interest routed to the treasury.
	DefaultProtocolFeeBps = 100
	// MaxInsuranceFeeBps caps governance updates to the insurance fee.
	MaxInsuranceFeeBps = 2_000
	// MaxProtocolFeeBps caps governance updates to the protocol fee.
	MaxProtocolFeeBps = 500
	// MaxWhitelistedPrograms bounds the trade-venue whitelist.
	MaxWhitelistedPrograms = 20
	// MinLiquidationThresholdBps is the lowest health factor a lender may
	// demand, 50% of expected repayment.
	MinLiquidationThresholdBps = 5_000
	// MaxLiquidationThresholdBps is full coverage.
	MaxLiquidationThresholdBps = 10_000
	// MaxRateBps caps offer and request rates at 100% APR.
	MaxRateBps = 10_000
	// MaxDurationSecs caps loan terms at one year.
	MaxDurationSecs = 31_536_000
	// InsuranceClaimShareBps is the principal share recoverable from the
	// insurance pool after a default.
	InsuranceClaimShareBps = 5_000
)

// LoanStatus tracks the one-way lifecycle of a loan.
type LoanStatus uint8

const (
	// LoanStatusOpen is reserved for loans staged but not yet funded.
	LoanStatusOpen LoanStatus = iota
	// LoanStatusActive marks a funded, accruing loan.
	LoanStatusActive
	// LoanStatusRepaid marks full repayment with interest.
	LoanStatusRepaid
	// LoanStatusDefaulted marks the accounting-only default path.
	LoanStatusDefaulted
	// LoanStatusLiquidated marks a forced close with vault recovery.
	LoanStatusLiquidated
)

// String renders the status for logs and RPC responses.
func (s LoanStatus) String() string {
	switch s {
	case LoanStatusOpen:
		return "open"
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusDefaulted:
		return "defaulted"
	case LoanStatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transition.
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusRepaid || s == LoanStatusDefaulted || s == LoanStatusLiquidated
}

// LendOffer is escrowed capital waiting for a borrower. Exactly one terminal
// transition: cancel or accept.
type LendOffer struct {
	// ID comes from the shared GlobalState sequence.
	ID uint64 `json:"id"`
	// Lender owns the offer and the escrowed funds.
	Lender crypto.Address `json:"lender"`
	// Amount is the full principal escrowed at post time.
	Amount *big.Int `json:"amount"`
	// MinRateBps is the lowest APR the lender accepts.
	MinRateBps uint64 `json:"minRateBps"`
	// MaxDurationSecs is the longest term the lender accepts, and becomes
	// the loan term on acceptance.
	MaxDurationSecs uint64 `json:"maxDurationSecs"`
	// MinReputation gates acceptance on the borrower's score.
	MinReputation uint64 `json:"minReputation"`
	// LiquidationThresholdBps is copied verbatim into the loan.
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	// Active is false once cancelled or accepted.
	Active bool `json:"active"`
	// EscrowID is the vault holding the offer funds.
	EscrowID [32]byte `json:"escrowId"`
	// CreatedAt is the posting timestamp.
	CreatedAt int64 `json:"createdAt"`
}

// BorrowRequest is a standing, informational statement of demand. No funds
// move and no matcher acts on it automatically.
type BorrowRequest struct {
	ID           uint64         `json:"id"`
	Borrower     crypto.Address `json:"borrower"`
	Amount       *big.Int       `json:"amount"`
	MaxRateBps   uint64         `json:"maxRateBps"`
	DurationSecs uint64         `json:"durationSecs"`
	Active       bool           `json:"active"`
	CreatedAt    int64          `json:"createdAt"`
}

// Loan is the funded position. Principal stays in the loan vault for the term
// so the health factor can observe it.
type Loan struct {
	ID        uint64         `json:"id"`
	OfferID   uint64         `json:"offerId"`
	Lender    crypto.Address `json:"lender"`
	Borrower  crypto.Address `json:"borrower"`
	Principal *big.Int       `json:"principal"`
	RateBps   uint64         `json:"rateBps"`
	StartTime int64          `json:"startTime"`
	EndTime   int64          `json:"endTime"`
	// LiquidationThresholdBps is fixed at creation, never recomputed.
	LiquidationThresholdBps uint64     `json:"liquidationThresholdBps"`
	Status                  LoanStatus `json:"status"`
	// VaultID holds the working principal for the loan's lifetime.
	VaultID [32]byte `json:"vaultId"`
	// InsuranceClaimed flips false to true exactly once.
	InsuranceClaimed bool `json:"insuranceClaimed"`
}

// EnsureDefaults normalizes nil amounts after decoding.
func (l *Loan) EnsureDefaults() {
	if l == nil {
		return
	}
	if l.Principal == nil {
		l.Principal = big.NewInt(0)
	}
}

// GlobalState is the marketplace's governance and sequence record.
type GlobalState struct {
	// Admin may update fee rates and the trade whitelist.
	Admin crypto.Address `json:"admin"`
	// NextID is the shared monotone sequence for offers, requests and loans.
	NextID uint64 `json:"nextId"`
	// InsuranceFeeBps is the interest share routed to the insurance pool.
	InsuranceFeeBps uint64 `json:"insuranceFeeBps"`
	// ProtocolFeeBps is the interest share routed to the treasury.
	ProtocolFeeBps uint64 `json:"protocolFeeBps"`
	// InsurancePool is the account funding post-default claims.
	InsurancePool crypto.Address `json:"insurancePool"`
	// Treasury receives protocol fees.
	Treasury crypto.Address `json:"treasury"`
	// TotalInsuranceCollected and TotalInsuranceClaimed are informational
	// counters; the pool's spendable balance is its account balance.
	TotalInsuranceCollected *big.Int `json:"totalInsuranceCollected"`
	TotalInsuranceClaimed   *big.Int `json:"totalInsuranceClaimed"`
	// WhitelistedPrograms are the approved trade venues, at most
	// MaxWhitelistedPrograms entries.
	WhitelistedPrograms []crypto.Address `json:"whitelistedPrograms"`
}

// EnsureDefaults normalizes nil counters after decoding.
func (g *GlobalState) EnsureDefaults() {
	if g == nil {
		return
	}
	if g.TotalInsuranceCollected == nil {
		g.TotalInsuranceCollected = big.NewInt(0)
	}
	if g.TotalInsuranceClaimed == nil {
		g.TotalInsuranceClaimed = big.NewInt(0)
	}
}

// IsWhitelisted reports whether the program may receive trade delegations.
func (g *GlobalState) IsWhitelisted(program crypto.Address) bool {
	if g == nil {
		return false
	}
	for _, p := range g.WhitelistedPrograms {
		if p.Equal(program) {
			return true
		}
	}
	return false
}
