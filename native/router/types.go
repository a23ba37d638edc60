package router

import (
	"math/big"

	"plnmarket/crypto"
)

// ModuleName is the pause-switch identifier for the liquidity router.
const ModuleName = "router"

const (
	// DefaultPassiveRateBps is the assumed passive-venue yield.
	DefaultPassiveRateBps = 600
	// DefaultPassiveBufferBps is the premium a loan must pay over the
	// passive rate before the router shifts funds into it.
	DefaultPassiveBufferBps = 100
	// MaxSingleLoanPctBps caps one loan at 5% of total deposits.
	MaxSingleLoanPctBps = 500
	// MaxSingleBorrowerPctBps caps one borrower at 10% of total deposits.
	MaxSingleBorrowerPctBps = 1_000
	// InsuranceFeeBps is the router-level skim on collected interest.
	InsuranceFeeBps = 100
	// MaxInsuranceClaimPctBps caps a single claim at 10% of the router's
	// insurance balance.
	MaxInsuranceClaimPctBps = 1_000
	// MaxDepositPerTx bounds a single deposit, $100 in base units.
	MaxDepositPerTx = 100_000_000
)

// Config is the router's governance record.
type Config struct {
	// Admin may adjust the passive rate.
	Admin crypto.Address `json:"admin"`
	// PassiveRateBps is the current passive-venue yield assumption.
	PassiveRateBps uint64 `json:"passiveRateBps"`
	// PoolAccount custodians all router funds.
	PoolAccount crypto.Address `json:"poolAccount"`
}

// Pool is the aggregate accounting for all router funds. All four numbers
// describe the same custody account from different angles; TotalDeposits =
// TotalPassive + TotalLoaned at rest.
type Pool struct {
	TotalDeposits *big.Int `json:"totalDeposits"`
	TotalLoaned   *big.Int `json:"totalLoaned"`
	TotalPassive  *big.Int `json:"totalPassive"`
	// InsuranceBalance is the cumulative interest skim held for claims.
	InsuranceBalance *big.Int `json:"insuranceBalance"`
}

// EnsureDefaults normalizes nil amounts after decoding.
func (p *Pool) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalDeposits == nil {
		p.TotalDeposits = big.NewInt(0)
	}
	if p.TotalLoaned == nil {
		p.TotalLoaned = big.NewInt(0)
	}
	if p.TotalPassive == nil {
		p.TotalPassive = big.NewInt(0)
	}
	if p.InsuranceBalance == nil {
		p.InsuranceBalance = big.NewInt(0)
	}
}

// Position is a lender's share of the pool and their routing strategy.
type Position struct {
	Wallet         crypto.Address `json:"wallet"`
	TotalDeposited *big.Int       `json:"totalDeposited"`
	InPassive      *big.Int       `json:"inPassive"`
	InActive       *big.Int       `json:"inActive"`
	// MinActiveRateBps is the lowest loan rate the lender routes into.
	MinActiveRateBps uint64 `json:"minActiveRateBps"`
	// PassiveBufferBps is the premium demanded over the passive rate.
	PassiveBufferBps uint64 `json:"passiveBufferBps"`
	// AutoRoute lets OnBorrowRequest shift this position automatically.
	AutoRoute bool  `json:"autoRoute"`
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// EnsureDefaults normalizes nil amounts after decoding.
func (p *Position) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalDeposited == nil {
		p.TotalDeposited = big.NewInt(0)
	}
	if p.InPassive == nil {
		p.InPassive = big.NewInt(0)
	}
	if p.InActive == nil {
		p.InActive = big.NewInt(0)
	}
}

// Exposure tracks a borrower's outstanding routed principal. Lazily created,
// never deleted; the balance just returns to zero.
type Exposure struct {
	Borrower      crypto.Address `json:"borrower"`
	TotalExposure *big.Int       `json:"totalExposure"`
}

// EnsureDefaults normalizes nil amounts after decoding.
func (e *Exposure) EnsureDefaults() {
	if e == nil {
		return
	}
	if e.TotalExposure == nil {
		e.TotalExposure = big.NewInt(0)
	}
}

// Stats is the read-only pool summary.
type Stats struct {
	TotalDeposits    *big.Int `json:"totalDeposits"`
	TotalLoaned      *big.Int `json:"totalLoaned"`
	TotalPassive     *big.Int `json:"totalPassive"`
	InsuranceBalance *big.Int `json:"insuranceBalance"`
	PassiveRateBps   uint64   `json:"passiveRateBps"`
	MinP2PRateBps    uint64   `json:"minP2pRateBps"`
}
