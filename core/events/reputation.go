package events

import (
	"math/big"

	"plnmarket/core/types"
	"plnmarket/crypto"
)

const (
	// TypeAgentRegistered marks a new agent profile with the base score.
	TypeAgentRegistered = "reputation.agent_registered"
	// TypeProfileUpdated marks any recorded loan outcome and the derived
	// score/tier that resulted from it.
	TypeProfileUpdated = "reputation.profile_updated"
)

// AgentRegistered records the initial standing of a new agent.
type AgentRegistered struct {
	Agent          crypto.Address
	Score          uint64
	CreditTier     uint8
	MaxBorrowLimit *big.Int
	Timestamp      int64
}

// EventType satisfies the events.Event interface.
func (AgentRegistered) EventType() string { return TypeAgentRegistered }

// Event converts the structured payload into a broadcastable event.
func (e AgentRegistered) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "agent", e.Agent)
	setUint(attrs, "score", e.Score)
	setUint(attrs, "creditTier", uint64(e.CreditTier))
	setAmount(attrs, "maxBorrowLimit", e.MaxBorrowLimit)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeAgentRegistered, Attributes: attrs}
}

// ProfileUpdated records the outcome applied and the recomputed standing.
type ProfileUpdated struct {
	Agent          crypto.Address
	Reason         string
	Amount         *big.Int
	Score          uint64
	CreditTier     uint8
	MaxBorrowLimit *big.Int
	Timestamp      int64
}

func (ProfileUpdated) EventType() string { return TypeProfileUpdated }

func (e ProfileUpdated) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "agent", e.Agent)
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	setAmount(attrs, "amount", e.Amount)
	setUint(attrs, "score", e.Score)
	setUint(attrs, "creditTier", uint64(e.CreditTier))
	setAmount(attrs, "maxBorrowLimit", e.MaxBorrowLimit)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeProfileUpdated, Attributes: attrs}
}
