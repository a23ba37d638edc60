package events

import (
	"math/big"

	"plnmarket/core/types"
	"plnmarket/crypto"
)

const (
	// TypeRouterDeposited marks lender funds entering the passive venue.
	TypeRouterDeposited = "router.deposited"
	// TypeRouterRouted marks a passive-to-active shift into a loan.
	TypeRouterRouted = "router.routed_to_loan"
	// TypeRouterRepaymentCollected marks principal plus net interest
	// returning to the passive allocation.
	TypeRouterRepaymentCollected = "router.repayment_collected"
	// TypeRouterInsuranceClaimed marks a capped draw on the router's
	// insurance balance.
	TypeRouterInsuranceClaimed = "router.insurance_claimed"
	// TypeRouterWithdrawn marks a lender withdrawal.
	TypeRouterWithdrawn = "router.withdrawn"
)

// RouterDeposited records a lender deposit and its placement.
type RouterDeposited struct {
	Lender    crypto.Address
	Amount    *big.Int
	ToPassive bool
	Timestamp int64
}

// EventType satisfies the events.Event interface.
func (RouterDeposited) EventType() string { return TypeRouterDeposited }

// Event converts the structured payload into a broadcastable event.
func (e RouterDeposited) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "amount", e.Amount)
	if e.ToPassive {
		attrs["venue"] = "passive"
	} else {
		attrs["venue"] = "active"
	}
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRouterDeposited, Attributes: attrs}
}

// RouterRouted records how much of a requested placement survived the
// diversification caps.
type RouterRouted struct {
	Lender    crypto.Address
	Borrower  crypto.Address
	Requested *big.Int
	Routed    *big.Int
	Excess    *big.Int
	RateBps   uint64
	Timestamp int64
}

func (RouterRouted) EventType() string { return TypeRouterRouted }

func (e RouterRouted) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "lender", e.Lender)
	setAddress(attrs, "borrower", e.Borrower)
	setAmount(attrs, "requested", e.Requested)
	setAmount(attrs, "routed", e.Routed)
	setAmount(attrs, "excess", e.Excess)
	setUint(attrs, "rateBps", e.RateBps)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRouterRouted, Attributes: attrs}
}

// RouterRepaymentCollected records the router-level skim on interest.
type RouterRepaymentCollected struct {
	Lender         crypto.Address
	Borrower       crypto.Address
	Principal      *big.Int
	Interest       *big.Int
	LenderInterest *big.Int
	InsuranceFee   *big.Int
	Timestamp      int64
}

func (RouterRepaymentCollected) EventType() string { return TypeRouterRepaymentCollected }

func (e RouterRepaymentCollected) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "lender", e.Lender)
	setAddress(attrs, "borrower", e.Borrower)
	setAmount(attrs, "principal", e.Principal)
	setAmount(attrs, "interest", e.Interest)
	setAmount(attrs, "lenderInterest", e.LenderInterest)
	setAmount(attrs, "insuranceFee", e.InsuranceFee)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRouterRepaymentCollected, Attributes: attrs}
}

// RouterInsuranceClaimed records a capped insurance draw.
type RouterInsuranceClaimed struct {
	Lender    crypto.Address
	Requested *big.Int
	Paid      *big.Int
	Timestamp int64
}

func (RouterInsuranceClaimed) EventType() string { return TypeRouterInsuranceClaimed }

func (e RouterInsuranceClaimed) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "requested", e.Requested)
	setAmount(attrs, "paid", e.Paid)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRouterInsuranceClaimed, Attributes: attrs}
}

// RouterWithdrawn records a lender withdrawal across venues.
type RouterWithdrawn struct {
	Lender      crypto.Address
	Amount      *big.Int
	FromPassive *big.Int
	FromActive  *big.Int
	Queued      *big.Int
	Timestamp   int64
}

func (RouterWithdrawn) EventType() string { return TypeRouterWithdrawn }

func (e RouterWithdrawn) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "amount", e.Amount)
	setAmount(attrs, "fromPassive", e.FromPassive)
	setAmount(attrs, "fromActive", e.FromActive)
	setAmount(attrs, "queued", e.Queued)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRouterWithdrawn, Attributes: attrs}
}
