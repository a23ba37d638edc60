package router

import (
	"errors"
	"log/slog"
	"math/big"

	"plnmarket/crypto"
)

// Hook adapts the engine to the credit market's fire-and-forget lifecycle
// notifications. The loan ledger never fails because of router bookkeeping,
// so errors are logged and dropped here.
type Hook struct {
	engine *Engine
	log    *slog.Logger
}

// NewHook wires the engine behind the credit market's notification surface.
func NewHook(engine *Engine, log *slog.Logger) *Hook {
	if log == nil {
		log = slog.Default()
	}
	return &Hook{engine: engine, log: log}
}

// OnLoanCreated records the borrower's new exposure when the routed pool is
// the lender. Loans funded by other lenders are none of the router's
// business and are skipped without error.
func (h *Hook) OnLoanCreated(lender, borrower crypto.Address, principal *big.Int, rateBps uint64) {
	if h == nil || h.engine == nil {
		return
	}
	if _, err := h.engine.OnBorrowRequest(lender, borrower, principal, rateBps); err != nil {
		if errors.Is(err, ErrNoPosition) {
			return
		}
		h.log.Warn("router: loan-created notification dropped",
			"lender", lender.String(), "borrower", borrower.String(), "err", err)
	}
}

// OnLoanRepaid books the repayment against the lender's position.
func (h *Hook) OnLoanRepaid(lender, borrower crypto.Address, principal, interest *big.Int) {
	if h == nil || h.engine == nil {
		return
	}
	if err := h.engine.CollectRepayment(lender, borrower, principal, interest); err != nil {
		if errors.Is(err, ErrNoPosition) {
			return
		}
		h.log.Warn("router: repayment notification dropped",
			"lender", lender.String(), "borrower", borrower.String(), "err", err)
	}
}
