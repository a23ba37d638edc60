package router

import (
	"errors"
	"math/big"
	"time"

	"plnmarket/core/events"
	"plnmarket/crypto"
	"plnmarket/native/common"
)

var (
	errNilState   = errors.New("router engine: state not configured")
	errNilCustody = errors.New("router engine: custody not configured")
)

var basisPoints = big.NewInt(10_000)

type engineState interface {
	RouterConfigGet() (*Config, bool, error)
	RouterConfigPut(*Config) error
	RouterPoolGet() (*Pool, bool, error)
	RouterPoolPut(*Pool) error
	RouterPositionGet(addr crypto.Address) (*Position, bool, error)
	RouterPositionPut(*Position) error
	RouterExposureGet(addr crypto.Address) (*Exposure, bool, error)
	RouterExposurePut(*Exposure) error
}

// Custody is the account-transfer subset of the vault module the router
// needs. All router funds live in the pool account.
type Custody interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
	AccountBalance(addr crypto.Address) (*big.Int, error)
}

// Engine routes pooled lender capital between a passive yield venue and
// active peer-to-peer loans, keeping per-loan and per-borrower exposure
// under the diversification caps.
type Engine struct {
	state   engineState
	custody Custody
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a router engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the account-transfer collaborator.
func (e *Engine) SetCustody(c Custody) { e.custody = c }

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

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// InitializeRouter writes the governance record and an empty pool. Calling it
// twice is a no-op.
func (e *Engine) InitializeRouter(admin, poolAccount crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.RouterConfigGet(); err != nil {
		return err
	} else if ok {
		return nil
	}
	cfg := &Config{
		Admin:          admin,
		PassiveRateBps: DefaultPassiveRateBps,
		PoolAccount:    poolAccount,
	}
	if err := e.state.RouterConfigPut(cfg); err != nil {
		return err
	}
	pool := &Pool{
		TotalDeposits:    big.NewInt(0),
		TotalLoaned:      big.NewInt(0),
		TotalPassive:     big.NewInt(0),
		InsuranceBalance: big.NewInt(0),
	}
	return e.state.RouterPoolPut(pool)
}

func (e *Engine) loadConfig() (*Config, error) {
	cfg, ok, err := e.state.RouterConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) loadPool() (*Pool, error) {
	pool, ok, err := e.state.RouterPoolGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) loadPosition(lender crypto.Address) (*Position, error) {
	position, ok, err := e.state.RouterPositionGet(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPosition
	}
	position.EnsureDefaults()
	return position, nil
}

func (e *Engine) loadExposure(borrower crypto.Address) (*Exposure, error) {
	exposure, ok, err := e.state.RouterExposureGet(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Exposure{Borrower: borrower, TotalExposure: big.NewInt(0)}, nil
	}
	exposure.EnsureDefaults()
	return exposure, nil
}

// Deposit adds lender capital to the pool, parked at the passive venue until
// an attractive loan appears. New positions start with auto-routing enabled
// and the default buffer over the passive rate.
func (e *Engine) Deposit(lender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(big.NewInt(MaxDepositPerTx)) > 0 {
		return ErrDepositCapExceeded
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	position, ok, err := e.state.RouterPositionGet(lender)
	if err != nil {
		return err
	}
	now := e.now()
	if !ok {
		position = &Position{
			Wallet:           lender,
			TotalDeposited:   big.NewInt(0),
			InPassive:        big.NewInt(0),
			InActive:         big.NewInt(0),
			MinActiveRateBps: cfg.PassiveRateBps + DefaultPassiveBufferBps,
			PassiveBufferBps: DefaultPassiveBufferBps,
			AutoRoute:        true,
			CreatedAt:        now,
		}
	}
	position.EnsureDefaults()

	amt := cloneBigInt(amount)
	if err := e.custody.Transfer(lender, cfg.PoolAccount, amt); err != nil {
		return err
	}
	position.TotalDeposited.Add(position.TotalDeposited, amt)
	position.InPassive.Add(position.InPassive, amt)
	position.UpdatedAt = now
	pool.TotalDeposits.Add(pool.TotalDeposits, amt)
	pool.TotalPassive.Add(pool.TotalPassive, amt)
	if err := e.state.RouterPositionPut(position); err != nil {
		return err
	}
	if err := e.state.RouterPoolPut(pool); err != nil {
		return err
	}
	e.emit(events.RouterDeposited{
		Lender:    lender,
		Amount:    amt,
		ToPassive: true,
		Timestamp: now,
	})
	return nil
}

// RouteToLoan shifts part of a lender's passive allocation into an active
// loan. Diversification caps are recomputed against current total deposits
// at every call; whatever the caps reject stays passive.
func (e *Engine) RouteToLoan(lender, borrower crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return nil, err
	}
	if rateBps < cfg.PassiveRateBps+position.PassiveBufferBps {
		return nil, ErrRateBelowMinimum
	}
	return e.route(cfg, position, borrower, amount, rateBps)
}

func (e *Engine) route(cfg *Config, position *Position, borrower crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	exposure, err := e.loadExposure(borrower)
	if err != nil {
		return nil, err
	}

	loanCap := new(big.Int).Mul(pool.TotalDeposits, big.NewInt(MaxSingleLoanPctBps))
	loanCap.Quo(loanCap, basisPoints)
	borrowerCap := new(big.Int).Mul(pool.TotalDeposits, big.NewInt(MaxSingleBorrowerPctBps))
	borrowerCap.Quo(borrowerCap, basisPoints)
	headroom := new(big.Int).Sub(borrowerCap, exposure.TotalExposure)

	routed := cloneBigInt(amount)
	routed = minBig(routed, loanCap)
	routed = minBig(routed, headroom)
	if routed.Sign() <= 0 {
		return nil, ErrExposureCapExceeded
	}
	if position.InPassive.Sign() == 0 {
		return nil, ErrInsufficientPassive
	}
	routed = minBig(routed, position.InPassive)
	routed = cloneBigInt(routed)

	now := e.now()
	position.InPassive.Sub(position.InPassive, routed)
	position.InActive.Add(position.InActive, routed)
	position.UpdatedAt = now
	pool.TotalPassive.Sub(pool.TotalPassive, routed)
	pool.TotalLoaned.Add(pool.TotalLoaned, routed)
	exposure.TotalExposure.Add(exposure.TotalExposure, routed)

	if err := e.state.RouterPositionPut(position); err != nil {
		return nil, err
	}
	if err := e.state.RouterPoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.state.RouterExposurePut(exposure); err != nil {
		return nil, err
	}
	e.emit(events.RouterRouted{
		Lender:    position.Wallet,
		Borrower:  borrower,
		Requested: cloneBigInt(amount),
		Routed:    cloneBigInt(routed),
		Excess:    new(big.Int).Sub(amount, routed),
		RateBps:   rateBps,
		Timestamp: now,
	})
	return routed, nil
}

// OnBorrowRequest is the demand-driven routing path. It only moves a
// position that opted into auto-routing and only when the offered rate
// clears the lender's own minimum.
func (e *Engine) OnBorrowRequest(lender, borrower crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return nil, err
	}
	if !position.AutoRoute {
		return big.NewInt(0), nil
	}
	if rateBps < position.MinActiveRateBps || rateBps < cfg.PassiveRateBps+position.PassiveBufferBps {
		return big.NewInt(0), nil
	}
	return e.route(cfg, position, borrower, amount, rateBps)
}

func (e *Engine) settleRepayment(lender, borrower crypto.Address, principal, interest *big.Int, skimBps uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	exposure, err := e.loadExposure(borrower)
	if err != nil {
		return err
	}

	prin := cloneBigInt(principal)
	intr := cloneBigInt(interest)
	skim := big.NewInt(0)
	if skimBps > 0 && intr.Sign() > 0 {
		skim = new(big.Int).Mul(intr, new(big.Int).SetUint64(skimBps))
		skim.Quo(skim, basisPoints)
	}
	net := new(big.Int).Sub(intr, skim)
	returned := new(big.Int).Add(prin, net)

	now := e.now()
	position.InActive.Sub(position.InActive, prin)
	if position.InActive.Sign() < 0 {
		position.InActive.SetInt64(0)
	}
	position.InPassive.Add(position.InPassive, returned)
	position.TotalDeposited.Add(position.TotalDeposited, net)
	position.UpdatedAt = now

	pool.TotalLoaned.Sub(pool.TotalLoaned, prin)
	if pool.TotalLoaned.Sign() < 0 {
		pool.TotalLoaned.SetInt64(0)
	}
	pool.TotalPassive.Add(pool.TotalPassive, returned)
	pool.TotalDeposits.Add(pool.TotalDeposits, net)
	pool.InsuranceBalance.Add(pool.InsuranceBalance, skim)

	exposure.TotalExposure.Sub(exposure.TotalExposure, prin)
	if exposure.TotalExposure.Sign() < 0 {
		exposure.TotalExposure.SetInt64(0)
	}

	if err := e.state.RouterPositionPut(position); err != nil {
		return err
	}
	if err := e.state.RouterPoolPut(pool); err != nil {
		return err
	}
	if err := e.state.RouterExposurePut(exposure); err != nil {
		return err
	}
	e.emit(events.RouterRepaymentCollected{
		Lender:         lender,
		Borrower:       borrower,
		Principal:      prin,
		Interest:       intr,
		LenderInterest: net,
		InsuranceFee:   skim,
		Timestamp:      now,
	})
	return nil
}

// CollectRepayment books a repaid routed loan: principal plus net interest
// return to the passive allocation and the router skims its insurance fee
// off the interest.
func (e *Engine) CollectRepayment(lender, borrower crypto.Address, principal, interest *big.Int) error {
	return e.settleRepayment(lender, borrower, principal, interest, InsuranceFeeBps)
}

// CollectLegacyRepayment books a repayment on the pre-insurance path, with
// no skim. Kept for loans originated before the insurance balance existed.
func (e *Engine) CollectLegacyRepayment(lender, borrower crypto.Address, principal, interest *big.Int) error {
	return e.settleRepayment(lender, borrower, principal, interest, 0)
}

// ClaimInsurance pays a lender out of the router's insurance balance after a
// routed loan defaults. A single claim takes at most ten percent of the
// balance, and never more than the requested default amount.
func (e *Engine) ClaimInsurance(lender crypto.Address, requested *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if requested == nil || requested.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := e.loadPosition(lender); err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	claimCap := new(big.Int).Mul(pool.InsuranceBalance, big.NewInt(MaxInsuranceClaimPctBps))
	claimCap.Quo(claimCap, basisPoints)
	payout := minBig(cloneBigInt(requested), claimCap)
	if payout.Sign() <= 0 {
		return nil, ErrInsufficientInsurance
	}
	if err := e.custody.Transfer(cfg.PoolAccount, lender, payout); err != nil {
		return nil, err
	}
	pool.InsuranceBalance.Sub(pool.InsuranceBalance, payout)
	if err := e.state.RouterPoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(events.RouterInsuranceClaimed{
		Lender:    lender,
		Requested: cloneBigInt(requested),
		Paid:      cloneBigInt(payout),
		Timestamp: e.now(),
	})
	return payout, nil
}

// Withdraw returns pool funds to the lender, draining the passive allocation
// first and then the active one. Anything beyond both allocations is queued
// in the event only; the ledger does not track withdrawal queues.
func (e *Engine) Withdraw(lender crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}

	remaining := cloneBigInt(amount)
	fromPassive := minBig(cloneBigInt(remaining), position.InPassive)
	fromPassive = cloneBigInt(fromPassive)
	remaining.Sub(remaining, fromPassive)
	fromActive := minBig(cloneBigInt(remaining), position.InActive)
	fromActive = cloneBigInt(fromActive)
	remaining.Sub(remaining, fromActive)

	paid := new(big.Int).Add(fromPassive, fromActive)
	if paid.Sign() <= 0 {
		return nil, ErrInsufficientPassive
	}
	if err := e.custody.Transfer(cfg.PoolAccount, lender, paid); err != nil {
		return nil, err
	}

	now := e.now()
	position.InPassive.Sub(position.InPassive, fromPassive)
	position.InActive.Sub(position.InActive, fromActive)
	position.TotalDeposited.Sub(position.TotalDeposited, paid)
	if position.TotalDeposited.Sign() < 0 {
		position.TotalDeposited.SetInt64(0)
	}
	position.UpdatedAt = now
	pool.TotalPassive.Sub(pool.TotalPassive, fromPassive)
	pool.TotalLoaned.Sub(pool.TotalLoaned, fromActive)
	pool.TotalDeposits.Sub(pool.TotalDeposits, paid)
	if err := e.state.RouterPositionPut(position); err != nil {
		return nil, err
	}
	if err := e.state.RouterPoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(events.RouterWithdrawn{
		Lender:      lender,
		Amount:      cloneBigInt(amount),
		FromPassive: fromPassive,
		FromActive:  fromActive,
		Queued:      remaining,
		Timestamp:   now,
	})
	return paid, nil
}

// UpdateStrategy adjusts a lender's routing preferences.
func (e *Engine) UpdateStrategy(lender crypto.Address, minActiveRateBps, passiveBufferBps uint64, autoRoute bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	position, err := e.loadPosition(lender)
	if err != nil {
		return err
	}
	position.MinActiveRateBps = minActiveRateBps
	position.PassiveBufferBps = passiveBufferBps
	position.AutoRoute = autoRoute
	position.UpdatedAt = e.now()
	return e.state.RouterPositionPut(position)
}

// UpdatePassiveRate changes the passive-venue yield assumption. Admin only.
func (e *Engine) UpdatePassiveRate(caller crypto.Address, rateBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Admin.Equal(caller) {
		return ErrUnauthorized
	}
	cfg.PassiveRateBps = rateBps
	return e.state.RouterConfigPut(cfg)
}

// Position returns the lender's stored position.
func (e *Engine) Position(lender crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPosition(lender)
}

// BorrowerExposure returns the borrower's outstanding routed principal.
func (e *Engine) BorrowerExposure(borrower crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	exposure, err := e.loadExposure(borrower)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(exposure.TotalExposure), nil
}

// PoolStats summarizes the pool and current rate floor.
func (e *Engine) PoolStats() (*Stats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalDeposits:    cloneBigInt(pool.TotalDeposits),
		TotalLoaned:      cloneBigInt(pool.TotalLoaned),
		TotalPassive:     cloneBigInt(pool.TotalPassive),
		InsuranceBalance: cloneBigInt(pool.InsuranceBalance),
		PassiveRateBps:   cfg.PassiveRateBps,
		MinP2PRateBps:    cfg.PassiveRateBps + DefaultPassiveBufferBps,
	}, nil
}
