package types

import "math/big"

// Account holds the custody balance for a marketplace participant. Amounts
// are denominated in micro-USDC and expressed as big integers to match
// on-chain precision.
type Account struct {
	BalanceUSDC *big.Int `json:"balanceUSDC"`
	Nonce       uint64   `json:"nonce"`
}

// EnsureDefaults populates nil big.Int fields so JSON handling is safe.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.BalanceUSDC == nil {
		a.BalanceUSDC = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.BalanceUSDC != nil {
		clone.BalanceUSDC = new(big.Int).Set(a.BalanceUSDC)
	}
	return clone
}
