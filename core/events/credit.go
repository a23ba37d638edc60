package events

import (
	"math/big"
	"strconv"

	"plnmarket/core/types"
	"plnmarket/crypto"
)

const (
	// TypeOfferPosted marks a new lend offer entering the registry.
	TypeOfferPosted = "credit.offer_posted"
	// TypeOfferCancelled marks a lender withdrawing an unmatched offer.
	TypeOfferCancelled = "credit.offer_cancelled"
	// TypeRequestPosted marks a borrow request being recorded.
	TypeRequestPosted = "credit.request_posted"
	// TypeLoanCreated marks a borrower accepting a lend offer.
	TypeLoanCreated = "credit.loan_created"
	// TypeLoanRepaid marks a full repayment including the fee split.
	TypeLoanRepaid = "credit.loan_repaid"
	// TypeLoanLiquidated marks a forced close of an unhealthy or overdue loan.
	TypeLoanLiquidated = "credit.loan_liquidated"
	// TypeLoanDefaulted marks the accounting-only default path.
	TypeLoanDefaulted = "credit.loan_defaulted"
	// TypeInsuranceClaimed marks a lender drawing on the insurance pool.
	TypeInsuranceClaimed = "credit.insurance_claimed"
	// TypeTradeExecuted marks a whitelisted delegate call from a loan vault.
	TypeTradeExecuted = "credit.trade_executed"
	// TypeFeeRatesUpdated marks an admin fee-rate change.
	TypeFeeRatesUpdated = "credit.fee_rates_updated"
)

// OfferPosted records the terms of a newly escrowed lend offer.
type OfferPosted struct {
	OfferID                 uint64
	Lender                  crypto.Address
	Amount                  *big.Int
	MinRateBps              uint64
	MaxDurationSecs         uint64
	MinReputation           uint64
	LiquidationThresholdBps uint64
	Timestamp               int64
}

// EventType satisfies the events.Event interface.
func (OfferPosted) EventType() string { return TypeOfferPosted }

// Event converts the structured payload into a broadcastable event.
func (e OfferPosted) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "offerId", e.OfferID)
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "amount", e.Amount)
	setUint(attrs, "minRateBps", e.MinRateBps)
	setUint(attrs, "maxDurationSecs", e.MaxDurationSecs)
	setUint(attrs, "minReputation", e.MinReputation)
	setUint(attrs, "liquidationThresholdBps", e.LiquidationThresholdBps)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeOfferPosted, Attributes: attrs}
}

// OfferCancelled records the escrow refund issued to the lender.
type OfferCancelled struct {
	OfferID   uint64
	Lender    crypto.Address
	Refunded  *big.Int
	Timestamp int64
}

func (OfferCancelled) EventType() string { return TypeOfferCancelled }

func (e OfferCancelled) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "offerId", e.OfferID)
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "refunded", e.Refunded)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeOfferCancelled, Attributes: attrs}
}

// RequestPosted records a borrower's standing intent. No funds move.
type RequestPosted struct {
	RequestID    uint64
	Borrower     crypto.Address
	Amount       *big.Int
	MaxRateBps   uint64
	DurationSecs uint64
	Timestamp    int64
}

func (RequestPosted) EventType() string { return TypeRequestPosted }

func (e RequestPosted) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "requestId", e.RequestID)
	setAddress(attrs, "borrower", e.Borrower)
	setAmount(attrs, "amount", e.Amount)
	setUint(attrs, "maxRateBps", e.MaxRateBps)
	setUint(attrs, "durationSecs", e.DurationSecs)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeRequestPosted, Attributes: attrs}
}

// LoanCreated records the terms copied from the accepted offer.
type LoanCreated struct {
	LoanID                  uint64
	OfferID                 uint64
	Lender                  crypto.Address
	Borrower                crypto.Address
	Principal               *big.Int
	RateBps                 uint64
	EndTime                 int64
	LiquidationThresholdBps uint64
	Timestamp               int64
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setUint(attrs, "offerId", e.OfferID)
	setAddress(attrs, "lender", e.Lender)
	setAddress(attrs, "borrower", e.Borrower)
	setAmount(attrs, "principal", e.Principal)
	setUint(attrs, "rateBps", e.RateBps)
	setInt(attrs, "endTime", e.EndTime)
	setUint(attrs, "liquidationThresholdBps", e.LiquidationThresholdBps)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeLoanCreated, Attributes: attrs}
}

// LoanRepaid records the exact interest split applied at repayment.
type LoanRepaid struct {
	LoanID         uint64
	Borrower       crypto.Address
	Lender         crypto.Address
	Principal      *big.Int
	Interest       *big.Int
	LenderInterest *big.Int
	InsuranceFee   *big.Int
	ProtocolFee    *big.Int
	TotalRepaid    *big.Int
	Timestamp      int64
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setAddress(attrs, "borrower", e.Borrower)
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "principal", e.Principal)
	setAmount(attrs, "interest", e.Interest)
	setAmount(attrs, "lenderInterest", e.LenderInterest)
	setAmount(attrs, "insuranceFee", e.InsuranceFee)
	setAmount(attrs, "protocolFee", e.ProtocolFee)
	setAmount(attrs, "totalRepaid", e.TotalRepaid)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeLoanRepaid, Attributes: attrs}
}

// LoanLiquidated records which trigger fired and how much was recovered.
type LoanLiquidated struct {
	LoanID          uint64
	Borrower        crypto.Address
	Lender          crypto.Address
	Liquidator      crypto.Address
	Recovered       *big.Int
	Principal       *big.Int
	HealthFactorBps uint64
	PastDue         bool
	Timestamp       int64
}

func (LoanLiquidated) EventType() string { return TypeLoanLiquidated }

func (e LoanLiquidated) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setAddress(attrs, "borrower", e.Borrower)
	setAddress(attrs, "lender", e.Lender)
	setAddress(attrs, "liquidator", e.Liquidator)
	setAmount(attrs, "recovered", e.Recovered)
	setAmount(attrs, "principal", e.Principal)
	setUint(attrs, "healthFactorBps", e.HealthFactorBps)
	attrs["pastDue"] = strconv.FormatBool(e.PastDue)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeLoanLiquidated, Attributes: attrs}
}

// LoanDefaulted records the accounting-only terminal path.
type LoanDefaulted struct {
	LoanID    uint64
	Borrower  crypto.Address
	Lender    crypto.Address
	Principal *big.Int
	Timestamp int64
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setAddress(attrs, "borrower", e.Borrower)
	setAddress(attrs, "lender", e.Lender)
	setAmount(attrs, "principal", e.Principal)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeLoanDefaulted, Attributes: attrs}
}

// InsuranceClaimed records a one-time partial recovery payout.
type InsuranceClaimed struct {
	LoanID    uint64
	Lender    crypto.Address
	Borrower  crypto.Address
	Principal *big.Int
	Payout    *big.Int
	Timestamp int64
}

func (InsuranceClaimed) EventType() string { return TypeInsuranceClaimed }

func (e InsuranceClaimed) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setAddress(attrs, "lender", e.Lender)
	setAddress(attrs, "borrower", e.Borrower)
	setAmount(attrs, "principal", e.Principal)
	setAmount(attrs, "payout", e.Payout)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeInsuranceClaimed, Attributes: attrs}
}

// TradeExecuted records a whitelist-gated delegate call.
type TradeExecuted struct {
	LoanID    uint64
	Borrower  crypto.Address
	Target    crypto.Address
	Timestamp int64
}

func (TradeExecuted) EventType() string { return TypeTradeExecuted }

func (e TradeExecuted) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "loanId", e.LoanID)
	setAddress(attrs, "borrower", e.Borrower)
	setAddress(attrs, "target", e.Target)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeTradeExecuted, Attributes: attrs}
}

// FeeRatesUpdated records the admin-controlled split parameters.
type FeeRatesUpdated struct {
	InsuranceFeeBps uint64
	ProtocolFeeBps  uint64
	Timestamp       int64
}

func (FeeRatesUpdated) EventType() string { return TypeFeeRatesUpdated }

func (e FeeRatesUpdated) Event() *types.Event {
	attrs := map[string]string{}
	setUint(attrs, "insuranceFeeBps", e.InsuranceFeeBps)
	setUint(attrs, "protocolFeeBps", e.ProtocolFeeBps)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeFeeRatesUpdated, Attributes: attrs}
}
