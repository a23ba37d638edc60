package events

import (
	"math/big"

	"plnmarket/core/types"
	"plnmarket/crypto"
)

const (
	// TypeVaultHeld marks funds moving from an account into a vault.
	TypeVaultHeld = "vault.held"
	// TypeVaultReleased marks a vault paying out to an account.
	TypeVaultReleased = "vault.released"
	// TypeVaultMoved marks a vault-to-vault transfer.
	TypeVaultMoved = "vault.moved"
	// TypeVaultTransferred marks a direct account-to-account transfer.
	TypeVaultTransferred = "vault.transferred"
)

// VaultHeld records an escrow hold against an owner account.
type VaultHeld struct {
	Vault     [32]byte
	Owner     crypto.Address
	Amount    *big.Int
	Balance   *big.Int
	Timestamp int64
}

// EventType satisfies the events.Event interface.
func (VaultHeld) EventType() string { return TypeVaultHeld }

// Event converts the structured payload into a broadcastable event.
func (e VaultHeld) Event() *types.Event {
	attrs := map[string]string{}
	setHash(attrs, "vault", e.Vault)
	setAddress(attrs, "owner", e.Owner)
	setAmount(attrs, "amount", e.Amount)
	setAmount(attrs, "balance", e.Balance)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeVaultHeld, Attributes: attrs}
}

// VaultReleased records a payout from a vault to an account.
type VaultReleased struct {
	Vault     [32]byte
	Recipient crypto.Address
	Amount    *big.Int
	Balance   *big.Int
	Timestamp int64
}

func (VaultReleased) EventType() string { return TypeVaultReleased }

func (e VaultReleased) Event() *types.Event {
	attrs := map[string]string{}
	setHash(attrs, "vault", e.Vault)
	setAddress(attrs, "recipient", e.Recipient)
	setAmount(attrs, "amount", e.Amount)
	setAmount(attrs, "balance", e.Balance)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeVaultReleased, Attributes: attrs}
}

// VaultMoved records a transfer between two vaults.
type VaultMoved struct {
	From      [32]byte
	To        [32]byte
	Amount    *big.Int
	Timestamp int64
}

func (VaultMoved) EventType() string { return TypeVaultMoved }

func (e VaultMoved) Event() *types.Event {
	attrs := map[string]string{}
	setHash(attrs, "from", e.From)
	setHash(attrs, "to", e.To)
	setAmount(attrs, "amount", e.Amount)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeVaultMoved, Attributes: attrs}
}

// VaultTransferred records a transfer between two accounts.
type VaultTransferred struct {
	From      crypto.Address
	To        crypto.Address
	Amount    *big.Int
	Timestamp int64
}

func (VaultTransferred) EventType() string { return TypeVaultTransferred }

func (e VaultTransferred) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "from", e.From)
	setAddress(attrs, "to", e.To)
	setAmount(attrs, "amount", e.Amount)
	setInt(attrs, "timestamp", e.Timestamp)
	return &types.Event{Type: TypeVaultTransferred, Attributes: attrs}
}
