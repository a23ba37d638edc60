package vault

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"plnmarket/crypto"
)

// Vault is a module-owned balance bucket. Loan principal sits in a vault for
// the life of the loan; offers escrow into one while waiting for a match.
type Vault struct {
	ID        [32]byte       `json:"id"`
	Owner     crypto.Address `json:"owner"`
	Balance   *big.Int       `json:"balance"`
	CreatedAt int64          `json:"createdAt"`
}

// EnsureDefaults normalizes nil balances after decoding.
func (v *Vault) EnsureDefaults() {
	if v == nil {
		return
	}
	if v.Balance == nil {
		v.Balance = big.NewInt(0)
	}
}

// DeriveVaultID computes a deterministic vault handle from the owner address
// and a module-wide sequence number.
func DeriveVaultID(owner crypto.Address, sequence uint64) [32]byte {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	digest := ethcrypto.Keccak256([]byte("plnmarket/vault"), owner.Bytes(), seq[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}
