package reputation

import (
	"math/big"

	"plnmarket/crypto"
)

// ModuleName is the pause-switch identifier for the reputation ledger.
const ModuleName = "reputation"

const (
	// BaseScore is the starting score for a fresh profile.
	BaseScore = 500
	// MaxScore clamps the derived score.
	MaxScore = 1_000
	// ScorePerRepayment is the bump for each successful repayment.
	ScorePerRepayment = 20
	// RepaidUnit converts repaid volume to score points, one point per
	// whole USDC repaid.
	RepaidUnit = 1_000_000
	// LentUnit converts lent volume to score points, one point per ten
	// USDC lent.
	LentUnit = 10_000_000
	// DefaultScorePenalty is the score cost of each default.
	DefaultScorePenalty = 100
	// OpenLoanPenalty is the score cost of each currently open loan.
	OpenLoanPenalty = 5
)

// Tier numbers and their base borrow limits in USDC base units (6 decimals).
const (
	Tier1 uint8 = iota + 1
	Tier2
	Tier3
	Tier4
	Tier5
)

var (
	// tierLimits maps tier (index+1) to the base borrow limit.
	tierLimits = []int64{
		50_000_000,     // tier 1: $50
		500_000_000,    // tier 2: $500
		5_000_000_000,  // tier 3: $5,000
		25_000_000_000, // tier 4: $25,000
		75_000_000_000, // tier 5: $75,000
	}
	// tierThresholds maps tier (index+1) to the successful repayments
	// required to reach it.
	tierThresholds = []uint64{0, 1, 5, 20, 50}

	// DefaultPenalty is subtracted from the base limit once per default,
	// $10,000 in base units.
	DefaultPenalty = big.NewInt(10_000_000_000)
)

// TierLimit returns the base borrow limit for a tier.
func TierLimit(tier uint8) *big.Int {
	if tier < Tier1 || tier > Tier5 {
		return big.NewInt(0)
	}
	return big.NewInt(tierLimits[tier-1])
}

// TierForRepayments returns the base tier earned by a repayment count,
// before default penalties.
func TierForRepayments(repayments uint64) uint8 {
	tier := Tier1
	for i := len(tierThresholds) - 1; i >= 1; i-- {
		if repayments >= tierThresholds[i] {
			tier = uint8(i + 1)
			break
		}
	}
	return tier
}

// AgentProfile is the per-address reputation record. The score and tier are
// always derived in full from the counters, never nudged incrementally.
type AgentProfile struct {
	Owner crypto.Address `json:"owner"`
	// LoansTaken counts every loan the agent has borrowed.
	LoansTaken uint64 `json:"loansTaken"`
	// LoansRepaid counts loans the agent closed with full repayment.
	LoansRepaid uint64 `json:"loansRepaid"`
	// LoansDefaulted counts loans that ended in default or liquidation.
	LoansDefaulted uint64 `json:"loansDefaulted"`
	// TotalBorrowed is the cumulative principal borrowed.
	TotalBorrowed *big.Int `json:"totalBorrowed"`
	// TotalRepaid is the cumulative amount repaid including interest.
	TotalRepaid *big.Int `json:"totalRepaid"`
	// TotalLent is the cumulative principal supplied as a lender.
	TotalLent *big.Int `json:"totalLent"`
	// SuccessfulRepayments mirrors LoansRepaid for tier computation.
	SuccessfulRepayments uint64 `json:"successfulRepayments"`
	// Defaults mirrors LoansDefaulted for the score penalty.
	Defaults uint64 `json:"defaults"`
	// Score is the derived creditworthiness, 0 to 1000.
	Score uint64 `json:"score"`
	// CreditTier is derived from repayments and default penalties.
	CreditTier uint8 `json:"creditTier"`
	// MaxBorrowLimit is the tier limit after default penalties.
	MaxBorrowLimit *big.Int `json:"maxBorrowLimit"`
	CreatedAt      int64    `json:"createdAt"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// EnsureDefaults normalizes nil amounts after decoding.
func (p *AgentProfile) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalBorrowed == nil {
		p.TotalBorrowed = big.NewInt(0)
	}
	if p.TotalRepaid == nil {
		p.TotalRepaid = big.NewInt(0)
	}
	if p.TotalLent == nil {
		p.TotalLent = big.NewInt(0)
	}
	if p.MaxBorrowLimit == nil {
		p.MaxBorrowLimit = big.NewInt(0)
	}
}

// TierInfo is the read-only summary returned by CreditTierInfo.
type TierInfo struct {
	Tier                 uint8    `json:"tier"`
	MaxBorrowLimit       *big.Int `json:"maxBorrowLimit"`
	SuccessfulRepayments uint64   `json:"successfulRepayments"`
	Defaults             uint64   `json:"defaults"`
	// NextTier is zero when the agent already holds the top tier.
	NextTier uint8 `json:"nextTier"`
	// RepaymentsToNext is the additional successful repayments needed for
	// the next base tier.
	RepaymentsToNext uint64 `json:"repaymentsToNext"`
}
