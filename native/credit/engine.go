package credit

import (
	"errors"
	"math"
	"math/big"
	"time"

	"plnmarket/core/events"
	"plnmarket/crypto"
	"plnmarket/native/common"
)

var (
	errNilState      = errors.New("credit engine: state not configured")
	errNilCustody    = errors.New("credit engine: custody not configured")
	errNilGlobal     = errors.New("credit engine: marketplace not initialized")
	errNilReputation = errors.New("credit engine: reputation ledger not configured")
	errNilDelegate   = errors.New("credit engine: trade delegate not configured")
)

type engineState interface {
	CreditGlobalGet() (*GlobalState, bool, error)
	CreditGlobalPut(*GlobalState) error
	CreditOfferGet(id uint64) (*LendOffer, bool, error)
	CreditOfferPut(*LendOffer) error
	CreditRequestGet(id uint64) (*BorrowRequest, bool, error)
	CreditRequestPut(*BorrowRequest) error
	CreditLoanGet(id uint64) (*Loan, bool, error)
	CreditLoanPut(*Loan) error
}

// Custody is the vault collaborator the engine escrows through.
type Custody interface {
	Open(owner crypto.Address) ([32]byte, error)
	Hold(id [32]byte, from crypto.Address, amount *big.Int) error
	Release(id [32]byte, to crypto.Address, amount *big.Int) error
	Move(from, to [32]byte, amount *big.Int) error
	Balance(id [32]byte) (*big.Int, error)
	Transfer(from, to crypto.Address, amount *big.Int) error
	AccountBalance(addr crypto.Address) (*big.Int, error)
}

// ReputationLedger records loan outcomes and answers standing queries. The
// authority address identifies this module to the ledger.
type ReputationLedger interface {
	AgentStanding(agent crypto.Address) (score uint64, maxBorrow *big.Int, err error)
	RecordLoanTaken(authority, agent crypto.Address, amount *big.Int) error
	RecordLending(authority, agent crypto.Address, amount *big.Int) error
	RecordRepayment(authority, agent crypto.Address, amount *big.Int) error
	RecordDefault(authority, agent crypto.Address, amount *big.Int) error
}

// RouterHook receives loan lifecycle notifications. Hooks are advisory; the
// loan ledger never fails because a hook did.
type RouterHook interface {
	OnLoanCreated(lender, borrower crypto.Address, principal *big.Int, rateBps uint64)
	OnLoanRepaid(lender, borrower crypto.Address, principal, interest *big.Int)
}

// TradeDelegate executes a whitelisted program against a loan vault. The
// engine only gates the call; the delegate owns the venue mechanics.
type TradeDelegate interface {
	ExecuteTrade(program crypto.Address, vault [32]byte) error
}

// Engine implements the credit marketplace: the offer and request registries,
// the loan ledger state machine, fee splitting and the insurance pool.
type Engine struct {
	state      engineState
	custody    Custody
	reputation ReputationLedger
	router     RouterHook
	delegate   TradeDelegate
	emitter    events.Emitter
	pauses     common.PauseView
	authority  crypto.Address
	nowFn      func() int64
}

// NewEngine creates a credit engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the vault collaborator.
func (e *Engine) SetCustody(c Custody) { e.custody = c }

// SetReputation configures the reputation ledger and the authority address
// the engine identifies itself with.
func (e *Engine) SetReputation(r ReputationLedger, authority crypto.Address) {
	e.reputation = r
	e.authority = authority
}

// SetRouterHook configures the optional liquidity-router notifications.
func (e *Engine) SetRouterHook(h RouterHook) { e.router = h }

// SetTradeDelegate configures the capability invoked by ExecuteTrade.
func (e *Engine) SetTradeDelegate(d TradeDelegate) { e.delegate = d }

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

// Initialize writes the governance record. Calling it twice is a no-op so
// node restarts keep the stored admin and fee rates.
func (e *Engine) Initialize(admin, insurancePool, treasury crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.CreditGlobalGet(); err != nil {
		return err
	} else if ok {
		return nil
	}
	global := &GlobalState{
		Admin:                   admin,
		NextID:                  1,
		InsuranceFeeBps:         DefaultInsuranceFeeBps,
		ProtocolFeeBps:          DefaultProtocolFeeBps,
		InsurancePool:           insurancePool,
		Treasury:                treasury,
		TotalInsuranceCollected: big.NewInt(0),
		TotalInsuranceClaimed:   big.NewInt(0),
	}
	return e.state.CreditGlobalPut(global)
}

func (e *Engine) loadGlobal() (*GlobalState, error) {
	global, ok, err := e.state.CreditGlobalGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilGlobal
	}
	global.EnsureDefaults()
	return global, nil
}

func (e *Engine) nextID(global *GlobalState) (uint64, error) {
	id := global.NextID
	if id == 0 {
		id = 1
	}
	global.NextID = id + 1
	if err := e.state.CreditGlobalPut(global); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) loadOffer(id uint64) (*LendOffer, error) {
	offer, ok, err := e.state.CreditOfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	loan, ok, err := e.state.CreditLoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	loan.EnsureDefaults()
	return loan, nil
}

func validateTerms(amount *big.Int, rateBps, durationSecs uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if rateBps == 0 || rateBps > MaxRateBps {
		return ErrInvalidRate
	}
	if durationSecs == 0 || durationSecs > MaxDurationSecs {
		return ErrInvalidDuration
	}
	return nil
}

// PostOffer escrows the lender's funds and records the offer terms.
func (e *Engine) PostOffer(lender crypto.Address, amount *big.Int, minRateBps, maxDurationSecs, minReputation, liquidationThresholdBps uint64) (*LendOffer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if err := validateTerms(amount, minRateBps, maxDurationSecs); err != nil {
		return nil, err
	}
	if liquidationThresholdBps < MinLiquidationThresholdBps || liquidationThresholdBps > MaxLiquidationThresholdBps {
		return nil, ErrInvalidLiquidationThreshold
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	id, err := e.nextID(global)
	if err != nil {
		return nil, err
	}
	escrow, err := e.custody.Open(lender)
	if err != nil {
		return nil, err
	}
	if err := e.custody.Hold(escrow, lender, amount); err != nil {
		return nil, err
	}
	offer := &LendOffer{
		ID:                      id,
		Lender:                  lender,
		Amount:                  cloneBigInt(amount),
		MinRateBps:              minRateBps,
		MaxDurationSecs:         maxDurationSecs,
		MinReputation:           minReputation,
		LiquidationThresholdBps: liquidationThresholdBps,
		Active:                  true,
		EscrowID:                escrow,
		CreatedAt:               e.now(),
	}
	if err := e.state.CreditOfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(events.OfferPosted{
		OfferID:                 offer.ID,
		Lender:                  lender,
		Amount:                  cloneBigInt(offer.Amount),
		MinRateBps:              minRateBps,
		MaxDurationSecs:         maxDurationSecs,
		MinReputation:           minReputation,
		LiquidationThresholdBps: liquidationThresholdBps,
		Timestamp:               offer.CreatedAt,
	})
	return offer, nil
}

// CancelOffer refunds the escrow to the lender and retires the offer.
func (e *Engine) CancelOffer(caller crypto.Address, offerID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return err
	}
	if !offer.Lender.Equal(caller) {
		return ErrUnauthorized
	}
	if !offer.Active {
		return ErrOfferNotActive
	}
	refund, err := e.custody.Balance(offer.EscrowID)
	if err != nil {
		return err
	}
	if refund.Sign() > 0 {
		if err := e.custody.Release(offer.EscrowID, offer.Lender, refund); err != nil {
			return err
		}
	}
	offer.Active = false
	if err := e.state.CreditOfferPut(offer); err != nil {
		return err
	}
	e.emit(events.OfferCancelled{
		OfferID:   offer.ID,
		Lender:    offer.Lender,
		Refunded:  refund,
		Timestamp: e.now(),
	})
	return nil
}

// PostRequest records a borrower's standing intent. No funds move.
func (e *Engine) PostRequest(borrower crypto.Address, amount *big.Int, maxRateBps, durationSecs uint64) (*BorrowRequest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if err := validateTerms(amount, maxRateBps, durationSecs); err != nil {
		return nil, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	id, err := e.nextID(global)
	if err != nil {
		return nil, err
	}
	request := &BorrowRequest{
		ID:           id,
		Borrower:     borrower,
		Amount:       cloneBigInt(amount),
		MaxRateBps:   maxRateBps,
		DurationSecs: durationSecs,
		Active:       true,
		CreatedAt:    e.now(),
	}
	if err := e.state.CreditRequestPut(request); err != nil {
		return nil, err
	}
	e.emit(events.RequestPosted{
		RequestID:    request.ID,
		Borrower:     borrower,
		Amount:       cloneBigInt(request.Amount),
		MaxRateBps:   maxRateBps,
		DurationSecs: durationSecs,
		Timestamp:    request.CreatedAt,
	})
	return request, nil
}

// AcceptOffer converts an active offer into a loan. The borrower must clear
// the offer's reputation gate and their own tier-adjusted credit limit. The
// escrow moves into a fresh loan vault where it stays for the term.
func (e *Engine) AcceptOffer(borrower crypto.Address, offerID uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.reputation == nil {
		return nil, errNilReputation
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if !offer.Active {
		return nil, ErrOfferNotActive
	}
	score, maxBorrow, err := e.reputation.AgentStanding(borrower)
	if err != nil {
		return nil, err
	}
	if score < offer.MinReputation {
		return nil, ErrInsufficientReputation
	}
	if maxBorrow == nil || offer.Amount.Cmp(maxBorrow) > 0 {
		return nil, ErrExceedsCreditLimit
	}

	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	loanID, err := e.nextID(global)
	if err != nil {
		return nil, err
	}
	vaultID, err := e.custody.Open(borrower)
	if err != nil {
		return nil, err
	}
	principal, err := e.custody.Balance(offer.EscrowID)
	if err != nil {
		return nil, err
	}
	if err := e.custody.Move(offer.EscrowID, vaultID, principal); err != nil {
		return nil, err
	}

	now := e.now()
	loan := &Loan{
		ID:                      loanID,
		OfferID:                 offer.ID,
		Lender:                  offer.Lender,
		Borrower:                borrower,
		Principal:               cloneBigInt(principal),
		RateBps:                 offer.MinRateBps,
		StartTime:               now,
		EndTime:                 now + int64(offer.MaxDurationSecs),
		LiquidationThresholdBps: offer.LiquidationThresholdBps,
		Status:                  LoanStatusActive,
		VaultID:                 vaultID,
	}
	offer.Active = false
	if err := e.state.CreditOfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.CreditLoanPut(loan); err != nil {
		return nil, err
	}
	if err := e.reputation.RecordLoanTaken(e.authority, borrower, loan.Principal); err != nil {
		return nil, err
	}
	if err := e.reputation.RecordLending(e.authority, offer.Lender, loan.Principal); err != nil {
		return nil, err
	}
	if e.router != nil {
		e.router.OnLoanCreated(loan.Lender, loan.Borrower, cloneBigInt(loan.Principal), loan.RateBps)
	}
	e.emit(events.LoanCreated{
		LoanID:                  loan.ID,
		OfferID:                 loan.OfferID,
		Lender:                  loan.Lender,
		Borrower:                loan.Borrower,
		Principal:               cloneBigInt(loan.Principal),
		RateBps:                 loan.RateBps,
		EndTime:                 loan.EndTime,
		LiquidationThresholdBps: loan.LiquidationThresholdBps,
		Timestamp:               now,
	})
	return loan, nil
}

// Repay settles an active loan in full. The borrower pays principal plus
// accrued interest from their account; the interest splits across lender,
// insurance pool and treasury; the loan vault drains back to the borrower.
func (e *Engine) Repay(caller crypto.Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if !loan.Borrower.Equal(caller) {
		return ErrUnauthorized
	}
	if loan.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	now := e.now()
	interest, err := Interest(loan.Principal, loan.RateBps, now-loan.StartTime)
	if err != nil {
		return err
	}
	lenderShare, insuranceFee, protocolFee := SplitInterest(interest, global.InsuranceFeeBps, global.ProtocolFeeBps)
	total := new(big.Int).Add(loan.Principal, interest)

	balance, err := e.custody.AccountBalance(loan.Borrower)
	if err != nil {
		return err
	}
	if balance.Cmp(total) < 0 {
		return ErrInsufficientBalance
	}

	toLender := new(big.Int).Add(loan.Principal, lenderShare)
	if err := e.custody.Transfer(loan.Borrower, loan.Lender, toLender); err != nil {
		return err
	}
	if insuranceFee.Sign() > 0 {
		if err := e.custody.Transfer(loan.Borrower, global.InsurancePool, insuranceFee); err != nil {
			return err
		}
	}
	if protocolFee.Sign() > 0 {
		if err := e.custody.Transfer(loan.Borrower, global.Treasury, protocolFee); err != nil {
			return err
		}
	}

	// Return whatever is left in the working vault to the borrower.
	vaultBalance, err := e.custody.Balance(loan.VaultID)
	if err != nil {
		return err
	}
	if vaultBalance.Sign() > 0 {
		if err := e.custody.Release(loan.VaultID, loan.Borrower, vaultBalance); err != nil {
			return err
		}
	}

	loan.Status = LoanStatusRepaid
	if err := e.state.CreditLoanPut(loan); err != nil {
		return err
	}
	global.TotalInsuranceCollected = new(big.Int).Add(global.TotalInsuranceCollected, insuranceFee)
	if err := e.state.CreditGlobalPut(global); err != nil {
		return err
	}
	if e.reputation != nil {
		if err := e.reputation.RecordRepayment(e.authority, loan.Borrower, total); err != nil {
			return err
		}
	}
	if e.router != nil {
		e.router.OnLoanRepaid(loan.Lender, loan.Borrower, cloneBigInt(loan.Principal), cloneBigInt(interest))
	}
	e.emit(events.LoanRepaid{
		LoanID:         loan.ID,
		Borrower:       loan.Borrower,
		Lender:         loan.Lender,
		Principal:      cloneBigInt(loan.Principal),
		Interest:       interest,
		LenderInterest: lenderShare,
		InsuranceFee:   insuranceFee,
		ProtocolFee:    protocolFee,
		TotalRepaid:    total,
		Timestamp:      now,
	})
	return nil
}

// HealthFactor reports the loan's vault coverage in basis points against the
// current expected repayment. A loan with nothing owed is fully healthy.
func (e *Engine) HealthFactor(loanID uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return 0, err
	}
	health, _, err := e.healthFactor(loan, e.now())
	return health, err
}

func (e *Engine) healthFactor(loan *Loan, now int64) (uint64, *big.Int, error) {
	elapsed := now - loan.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	interest, err := Interest(loan.Principal, loan.RateBps, elapsed)
	if err != nil {
		return 0, nil, err
	}
	expected := new(big.Int).Add(loan.Principal, interest)
	if expected.Sign() == 0 {
		return MaxLiquidationThresholdBps, expected, nil
	}
	balance, err := e.custody.Balance(loan.VaultID)
	if err != nil {
		return 0, nil, err
	}
	health := new(big.Int).Mul(balance, basisPoints)
	health.Quo(health, expected)
	if !health.IsUint64() {
		return math.MaxUint64, expected, nil
	}
	return health.Uint64(), expected, nil
}

// Liquidate force-closes an unhealthy or overdue loan. Anyone may call it.
// The entire vault balance goes to the lender; the borrower gets no refund
// even when the vault exceeds the expected repayment.
func (e *Engine) Liquidate(caller crypto.Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	now := e.now()
	health, _, err := e.healthFactor(loan, now)
	if err != nil {
		return err
	}
	pastDue := now > loan.EndTime
	unhealthy := health < loan.LiquidationThresholdBps
	if !pastDue && !unhealthy {
		return ErrLoanNotLiquidatable
	}

	recovered, err := e.custody.Balance(loan.VaultID)
	if err != nil {
		return err
	}
	if recovered.Sign() > 0 {
		if err := e.custody.Release(loan.VaultID, loan.Lender, recovered); err != nil {
			return err
		}
	}
	loan.Status = LoanStatusLiquidated
	if err := e.state.CreditLoanPut(loan); err != nil {
		return err
	}
	if e.reputation != nil {
		if err := e.reputation.RecordDefault(e.authority, loan.Borrower, loan.Principal); err != nil {
			return err
		}
	}
	e.emit(events.LoanLiquidated{
		LoanID:          loan.ID,
		Borrower:        loan.Borrower,
		Lender:          loan.Lender,
		Liquidator:      caller,
		Recovered:       recovered,
		Principal:       cloneBigInt(loan.Principal),
		HealthFactorBps: health,
		PastDue:         pastDue,
		Timestamp:       now,
	})
	return nil
}

// MarkDefault records a default without moving funds. Only available after
// maturity; liquidation is the path that recovers the vault. Any caller may
// mark an overdue loan, the same keeper posture as Liquidate.
func (e *Engine) MarkDefault(caller crypto.Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	now := e.now()
	if now <= loan.EndTime {
		return ErrLoanNotOverdue
	}
	loan.Status = LoanStatusDefaulted
	if err := e.state.CreditLoanPut(loan); err != nil {
		return err
	}
	if e.reputation != nil {
		if err := e.reputation.RecordDefault(e.authority, loan.Borrower, loan.Principal); err != nil {
			return err
		}
	}
	e.emit(events.LoanDefaulted{
		LoanID:    loan.ID,
		Borrower:  loan.Borrower,
		Lender:    loan.Lender,
		Principal: cloneBigInt(loan.Principal),
		Timestamp: now,
	})
	return nil
}

// ClaimInsurance pays the lender of a defaulted or liquidated loan up to half
// the principal, bounded by what the pool actually holds. One claim per loan.
func (e *Engine) ClaimInsurance(caller crypto.Address, loanID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Lender.Equal(caller) {
		return nil, ErrUnauthorized
	}
	if loan.Status != LoanStatusDefaulted && loan.Status != LoanStatusLiquidated {
		return nil, ErrLoanNotDefaulted
	}
	if loan.InsuranceClaimed {
		return nil, ErrInsuranceAlreadyClaimed
	}
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	poolBalance, err := e.custody.AccountBalance(global.InsurancePool)
	if err != nil {
		return nil, err
	}
	payout := new(big.Int).Mul(loan.Principal, big.NewInt(InsuranceClaimShareBps))
	payout.Quo(payout, basisPoints)
	if payout.Cmp(poolBalance) > 0 {
		payout = cloneBigInt(poolBalance)
	}
	if payout.Sign() <= 0 {
		return nil, ErrInsufficientInsurancePool
	}
	if err := e.custody.Transfer(global.InsurancePool, loan.Lender, payout); err != nil {
		return nil, err
	}
	loan.InsuranceClaimed = true
	if err := e.state.CreditLoanPut(loan); err != nil {
		return nil, err
	}
	global.TotalInsuranceClaimed = new(big.Int).Add(global.TotalInsuranceClaimed, payout)
	if err := e.state.CreditGlobalPut(global); err != nil {
		return nil, err
	}
	e.emit(events.InsuranceClaimed{
		LoanID:    loan.ID,
		Lender:    loan.Lender,
		Borrower:  loan.Borrower,
		Principal: cloneBigInt(loan.Principal),
		Payout:    cloneBigInt(payout),
		Timestamp: e.now(),
	})
	return payout, nil
}

// ExecuteTrade lets the borrower of an active loan put the vault to work
// through a whitelisted venue. The delegate owns the mechanics; the engine
// only enforces the gates.
func (e *Engine) ExecuteTrade(caller crypto.Address, loanID uint64, program crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if e.delegate == nil {
		return errNilDelegate
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if !loan.Borrower.Equal(caller) {
		return ErrUnauthorized
	}
	if loan.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if !global.IsWhitelisted(program) {
		return ErrProgramNotWhitelisted
	}
	if err := e.delegate.ExecuteTrade(program, loan.VaultID); err != nil {
		return err
	}
	e.emit(events.TradeExecuted{
		LoanID:    loan.ID,
		Borrower:  loan.Borrower,
		Target:    program,
		Timestamp: e.now(),
	})
	return nil
}

// AddWhitelistedProgram approves a trade venue. Admin only; idempotent.
func (e *Engine) AddWhitelistedProgram(caller, program crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if !global.Admin.Equal(caller) {
		return ErrUnauthorized
	}
	if global.IsWhitelisted(program) {
		return nil
	}
	if len(global.WhitelistedPrograms) >= MaxWhitelistedPrograms {
		return ErrWhitelistFull
	}
	global.WhitelistedPrograms = append(global.WhitelistedPrograms, program)
	return e.state.CreditGlobalPut(global)
}

// RemoveWhitelistedProgram revokes a trade venue. Admin only; removing an
// absent program is a no-op.
func (e *Engine) RemoveWhitelistedProgram(caller, program crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if !global.Admin.Equal(caller) {
		return ErrUnauthorized
	}
	filtered := global.WhitelistedPrograms[:0]
	for _, p := range global.WhitelistedPrograms {
		if !p.Equal(program) {
			filtered = append(filtered, p)
		}
	}
	global.WhitelistedPrograms = filtered
	return e.state.CreditGlobalPut(global)
}

// UpdateFeeRates changes the interest split parameters. Admin only.
func (e *Engine) UpdateFeeRates(caller crypto.Address, insuranceFeeBps, protocolFeeBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if !global.Admin.Equal(caller) {
		return ErrUnauthorized
	}
	if insuranceFeeBps > MaxInsuranceFeeBps || protocolFeeBps > MaxProtocolFeeBps {
		return ErrInvalidFeeRate
	}
	global.InsuranceFeeBps = insuranceFeeBps
	global.ProtocolFeeBps = protocolFeeBps
	if err := e.state.CreditGlobalPut(global); err != nil {
		return err
	}
	e.emit(events.FeeRatesUpdated{
		InsuranceFeeBps: insuranceFeeBps,
		ProtocolFeeBps:  protocolFeeBps,
		Timestamp:       e.now(),
	})
	return nil
}

// Offer returns the stored offer record.
func (e *Engine) Offer(id uint64) (*LendOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadOffer(id)
}

// Request returns the stored borrow request.
func (e *Engine) Request(id uint64) (*BorrowRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	request, ok, err := e.state.CreditRequestGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	return request, nil
}

// Loan returns the stored loan record.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadLoan(id)
}

// Global returns the governance record.
func (e *Engine) Global() (*GlobalState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadGlobal()
}
