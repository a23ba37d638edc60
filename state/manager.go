package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"plnmarket/core/types"
	"plnmarket/crypto"
	"plnmarket/native/credit"
	"plnmarket/native/reputation"
	"plnmarket/native/router"
	"plnmarket/native/vault"
	"plnmarket/storage"
)

// Key namespaces. Each namespace hashes to an 8-byte prefix so record keys
// cannot collide across record types.
const (
	nsAccount        = "plnmarket/account"
	nsVault          = "plnmarket/vault"
	nsVaultSeq       = "plnmarket/vault/seq"
	nsCreditGlobal   = "plnmarket/credit/global"
	nsCreditOffer    = "plnmarket/credit/offer"
	nsCreditRequest  = "plnmarket/credit/request"
	nsCreditLoan     = "plnmarket/credit/loan"
	nsReputation     = "plnmarket/reputation/profile"
	nsRouterConfig   = "plnmarket/router/config"
	nsRouterPool     = "plnmarket/router/pool"
	nsRouterPosition = "plnmarket/router/position"
	nsRouterExposure = "plnmarket/router/exposure"
)

func storageKey(namespace string, suffix []byte) []byte {
	prefix := ethcrypto.Keccak256([]byte(namespace))[:8]
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}

func uint64Key(namespace string, id uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], id)
	return storageKey(namespace, suffix[:])
}

// Manager is the single state backend behind every engine. Records are JSON
// encoded into a key-value store; WithinTransaction buffers writes so an
// invocation that fails part-way leaves nothing behind.
type Manager struct {
	db storage.Database

	txMu    sync.Mutex
	stateMu sync.RWMutex
	overlay map[string][]byte

	pauseMu sync.RWMutex
	paused  map[string]bool
}

// NewManager wraps a key-value store.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:     db,
		paused: make(map[string]bool),
	}
}

// WithinTransaction runs fn with all writes buffered. The buffer flushes to
// the store only when fn succeeds; any error discards it. Transactions are
// serialized, so engines never observe each other's partial writes.
func (m *Manager) WithinTransaction(fn func() error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.stateMu.Lock()
	m.overlay = make(map[string][]byte)
	m.stateMu.Unlock()

	err := fn()

	m.stateMu.Lock()
	overlay := m.overlay
	m.overlay = nil
	m.stateMu.Unlock()

	if err != nil {
		return err
	}
	for key, value := range overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	return nil
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	m.stateMu.RLock()
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			m.stateMu.RUnlock()
			return value, true, nil
		}
	}
	m.stateMu.RUnlock()
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key, value []byte) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.overlay != nil {
		m.overlay[string(key)] = value
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) getJSON(key []byte, out any) (bool, error) {
	raw, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return m.put(key, raw)
}

// --- pause view ---

// IsPaused reports whether a module's mutating operations are halted.
func (m *Manager) IsPaused(module string) bool {
	m.pauseMu.RLock()
	defer m.pauseMu.RUnlock()
	return m.paused[module]
}

// SetPaused flips a module's pause switch.
func (m *Manager) SetPaused(module string, paused bool) {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	m.paused[module] = paused
}

// --- accounts ---

// GetAccount returns the stored account, or a fresh zero-balance one.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.getJSON(storageKey(nsAccount, addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount stores the account.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	account.EnsureDefaults()
	return m.putJSON(storageKey(nsAccount, addr), account)
}

// --- vaults ---

func (m *Manager) VaultGet(id [32]byte) (*vault.Vault, bool, error) {
	v := &vault.Vault{}
	ok, err := m.getJSON(storageKey(nsVault, id[:]), v)
	if err != nil || !ok {
		return nil, false, err
	}
	v.EnsureDefaults()
	return v, true, nil
}

func (m *Manager) VaultPut(v *vault.Vault) error {
	return m.putJSON(storageKey(nsVault, v.ID[:]), v)
}

// VaultNextSequence allocates the next vault sequence number.
func (m *Manager) VaultNextSequence() (uint64, error) {
	key := storageKey(nsVaultSeq, nil)
	raw, ok, err := m.get(key)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if ok && len(raw) == 8 {
		seq = binary.BigEndian.Uint64(raw)
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := m.put(key, buf[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

// --- credit ---

func (m *Manager) CreditGlobalGet() (*credit.GlobalState, bool, error) {
	global := &credit.GlobalState{}
	ok, err := m.getJSON(storageKey(nsCreditGlobal, nil), global)
	if err != nil || !ok {
		return nil, false, err
	}
	global.EnsureDefaults()
	return global, true, nil
}

func (m *Manager) CreditGlobalPut(global *credit.GlobalState) error {
	return m.putJSON(storageKey(nsCreditGlobal, nil), global)
}

func (m *Manager) CreditOfferGet(id uint64) (*credit.LendOffer, bool, error) {
	offer := &credit.LendOffer{}
	ok, err := m.getJSON(uint64Key(nsCreditOffer, id), offer)
	if err != nil || !ok {
		return nil, false, err
	}
	return offer, true, nil
}

func (m *Manager) CreditOfferPut(offer *credit.LendOffer) error {
	return m.putJSON(uint64Key(nsCreditOffer, offer.ID), offer)
}

func (m *Manager) CreditRequestGet(id uint64) (*credit.BorrowRequest, bool, error) {
	request := &credit.BorrowRequest{}
	ok, err := m.getJSON(uint64Key(nsCreditRequest, id), request)
	if err != nil || !ok {
		return nil, false, err
	}
	return request, true, nil
}

func (m *Manager) CreditRequestPut(request *credit.BorrowRequest) error {
	return m.putJSON(uint64Key(nsCreditRequest, request.ID), request)
}

func (m *Manager) CreditLoanGet(id uint64) (*credit.Loan, bool, error) {
	loan := &credit.Loan{}
	ok, err := m.getJSON(uint64Key(nsCreditLoan, id), loan)
	if err != nil || !ok {
		return nil, false, err
	}
	loan.EnsureDefaults()
	return loan, true, nil
}

func (m *Manager) CreditLoanPut(loan *credit.Loan) error {
	return m.putJSON(uint64Key(nsCreditLoan, loan.ID), loan)
}

// --- reputation ---

func (m *Manager) ReputationGet(addr crypto.Address) (*reputation.AgentProfile, bool, error) {
	profile := &reputation.AgentProfile{}
	ok, err := m.getJSON(storageKey(nsReputation, addr.Bytes()), profile)
	if err != nil || !ok {
		return nil, false, err
	}
	profile.EnsureDefaults()
	return profile, true, nil
}

func (m *Manager) ReputationPut(profile *reputation.AgentProfile) error {
	return m.putJSON(storageKey(nsReputation, profile.Owner.Bytes()), profile)
}

// --- router ---

func (m *Manager) RouterConfigGet() (*router.Config, bool, error) {
	cfg := &router.Config{}
	ok, err := m.getJSON(storageKey(nsRouterConfig, nil), cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (m *Manager) RouterConfigPut(cfg *router.Config) error {
	return m.putJSON(storageKey(nsRouterConfig, nil), cfg)
}

func (m *Manager) RouterPoolGet() (*router.Pool, bool, error) {
	pool := &router.Pool{}
	ok, err := m.getJSON(storageKey(nsRouterPool, nil), pool)
	if err != nil || !ok {
		return nil, false, err
	}
	pool.EnsureDefaults()
	return pool, true, nil
}

func (m *Manager) RouterPoolPut(pool *router.Pool) error {
	return m.putJSON(storageKey(nsRouterPool, nil), pool)
}

func (m *Manager) RouterPositionGet(addr crypto.Address) (*router.Position, bool, error) {
	position := &router.Position{}
	ok, err := m.getJSON(storageKey(nsRouterPosition, addr.Bytes()), position)
	if err != nil || !ok {
		return nil, false, err
	}
	position.EnsureDefaults()
	return position, true, nil
}

func (m *Manager) RouterPositionPut(position *router.Position) error {
	return m.putJSON(storageKey(nsRouterPosition, position.Wallet.Bytes()), position)
}

func (m *Manager) RouterExposureGet(addr crypto.Address) (*router.Exposure, bool, error) {
	exposure := &router.Exposure{}
	ok, err := m.getJSON(storageKey(nsRouterExposure, addr.Bytes()), exposure)
	if err != nil || !ok {
		return nil, false, err
	}
	exposure.EnsureDefaults()
	return exposure, true, nil
}

func (m *Manager) RouterExposurePut(exposure *router.Exposure) error {
	return m.putJSON(storageKey(nsRouterExposure, exposure.Borrower.Bytes()), exposure)
}
