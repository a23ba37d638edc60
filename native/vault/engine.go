package vault

import (
	"errors"
	"math/big"
	"time"

	"plnmarket/core/events"
	"plnmarket/core/types"
	"plnmarket/crypto"
	"plnmarket/native/common"
)

// ModuleName is the pause-switch identifier for the custody module.
const ModuleName = "vault"

var errNilState = errors.New("vault engine: state not configured")

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	VaultGet(id [32]byte) (*Vault, bool, error)
	VaultPut(*Vault) error
	VaultNextSequence() (uint64, error)
}

// Engine moves balances between accounts and module-owned vaults. Every other
// module funds itself through this one. Account and vault movements are
// conservative; Debit and Credit are the only exits, and they model flows to
// and from external trading venues.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a custody engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the pause view consulted before mutating operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) loadVault(id [32]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok, err := e.state.VaultGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	v.EnsureDefaults()
	return v, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr.Bytes())
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}

// Open creates an empty vault owned by the given address and returns its
// deterministic handle.
func (e *Engine) Open(owner crypto.Address) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return [32]byte{}, err
	}
	seq, err := e.state.VaultNextSequence()
	if err != nil {
		return [32]byte{}, err
	}
	v := &Vault{
		ID:        DeriveVaultID(owner, seq),
		Owner:     owner,
		Balance:   big.NewInt(0),
		CreatedAt: e.now(),
	}
	if err := e.state.VaultPut(v); err != nil {
		return [32]byte{}, err
	}
	return v.ID, nil
}

// Hold debits the source account and credits the vault.
func (e *Engine) Hold(id [32]byte, from crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	acc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if acc.BalanceUSDC.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	acc.BalanceUSDC = new(big.Int).Sub(acc.BalanceUSDC, amt)
	v.Balance = new(big.Int).Add(v.Balance, amt)
	if err := e.state.PutAccount(from.Bytes(), acc); err != nil {
		return err
	}
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	e.emit(events.VaultHeld{
		Vault:     id,
		Owner:     from,
		Amount:    amt,
		Balance:   cloneBigInt(v.Balance),
		Timestamp: e.now(),
	})
	return nil
}

// Release debits the vault and credits the recipient account.
func (e *Engine) Release(id [32]byte, to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if v.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	acc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	v.Balance = new(big.Int).Sub(v.Balance, amt)
	acc.BalanceUSDC = new(big.Int).Add(acc.BalanceUSDC, amt)
	if err := e.state.VaultPut(v); err != nil {
		return err
	}
	if err := e.state.PutAccount(to.Bytes(), acc); err != nil {
		return err
	}
	e.emit(events.VaultReleased{
		Vault:     id,
		Recipient: to,
		Amount:    amt,
		Balance:   cloneBigInt(v.Balance),
		Timestamp: e.now(),
	})
	return nil
}

// Move transfers between two vaults.
func (e *Engine) Move(from, to [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	src, err := e.loadVault(from)
	if err != nil {
		return err
	}
	dst, err := e.loadVault(to)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if src.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	src.Balance = new(big.Int).Sub(src.Balance, amt)
	dst.Balance = new(big.Int).Add(dst.Balance, amt)
	if err := e.state.VaultPut(src); err != nil {
		return err
	}
	if err := e.state.VaultPut(dst); err != nil {
		return err
	}
	e.emit(events.VaultMoved{
		From:      from,
		To:        to,
		Amount:    amt,
		Timestamp: e.now(),
	})
	return nil
}

// Transfer moves funds directly between two accounts.
func (e *Engine) Transfer(from, to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	srcAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if srcAcc.BalanceUSDC.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	dstAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	if from.Equal(to) {
		// Self-transfer leaves the balance unchanged.
		return nil
	}
	srcAcc.BalanceUSDC = new(big.Int).Sub(srcAcc.BalanceUSDC, amt)
	dstAcc.BalanceUSDC = new(big.Int).Add(dstAcc.BalanceUSDC, amt)
	if err := e.state.PutAccount(from.Bytes(), srcAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(to.Bytes(), dstAcc); err != nil {
		return err
	}
	e.emit(events.VaultTransferred{
		From:      from,
		To:        to,
		Amount:    amt,
		Timestamp: e.now(),
	})
	return nil
}

// Debit removes funds from a vault without crediting an account. Trade
// delegation uses it when vault funds leave for an external venue.
func (e *Engine) Debit(id [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if v.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	v.Balance = new(big.Int).Sub(v.Balance, amt)
	return e.state.VaultPut(v)
}

// Credit adds funds to a vault without debiting an account. Trade delegation
// uses it when proceeds return from an external venue.
func (e *Engine) Credit(id [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	v.Balance = new(big.Int).Add(v.Balance, cloneBigInt(amount))
	return e.state.VaultPut(v)
}

// Balance returns the current vault balance.
func (e *Engine) Balance(id [32]byte) (*big.Int, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(v.Balance), nil
}

// AccountBalance returns the liquid balance of an account.
func (e *Engine) AccountBalance(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(acc.BalanceUSDC), nil
}
