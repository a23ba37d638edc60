package reputation

import (
	"errors"
	"math/big"
	"time"

	"plnmarket/core/events"
	"plnmarket/crypto"
	"plnmarket/native/common"
)

var (
	errNilState = errors.New("reputation engine: state not configured")

	// ErrProfileExists indicates a second registration for the same address.
	ErrProfileExists = errors.New("reputation: profile already exists")
	// ErrProfileNotFound indicates a standing query for an unknown agent.
	ErrProfileNotFound = errors.New("reputation: profile not found")
	// ErrUnauthorized indicates a recording call from anyone but the
	// configured credit-market authority.
	ErrUnauthorized = errors.New("reputation: unauthorized")
)

type engineState interface {
	ReputationGet(addr crypto.Address) (*AgentProfile, bool, error)
	ReputationPut(*AgentProfile) error
}

// Engine maintains agent profiles and derives scores and credit tiers from
// recorded loan outcomes. Only the configured credit-market authority may
// record outcomes; reads are open.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	pauses    common.PauseView
	authority crypto.Address
	nowFn     func() int64
}

// NewEngine creates a reputation engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAuthority configures the address allowed to record loan outcomes.
func (e *Engine) SetAuthority(authority crypto.Address) { e.authority = authority }

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

// CalculateScore derives the score from the profile counters and clamps it
// to [0, MaxScore].
func CalculateScore(p *AgentProfile) uint64 {
	if p == nil {
		return 0
	}
	p.EnsureDefaults()
	score := big.NewInt(BaseScore)
	score.Add(score, new(big.Int).Mul(big.NewInt(ScorePerRepayment), new(big.Int).SetUint64(p.SuccessfulRepayments)))
	score.Add(score, new(big.Int).Quo(p.TotalRepaid, big.NewInt(RepaidUnit)))
	score.Add(score, new(big.Int).Quo(p.TotalLent, big.NewInt(LentUnit)))
	score.Sub(score, new(big.Int).Mul(big.NewInt(DefaultScorePenalty), new(big.Int).SetUint64(p.Defaults)))
	open := new(big.Int).SetUint64(p.LoansTaken)
	open.Sub(open, new(big.Int).SetUint64(p.LoansRepaid))
	if open.Sign() > 0 {
		score.Sub(score, new(big.Int).Mul(big.NewInt(OpenLoanPenalty), open))
	}
	if score.Sign() < 0 {
		return 0
	}
	if score.Cmp(big.NewInt(MaxScore)) > 0 {
		return MaxScore
	}
	return score.Uint64()
}

// CalculateCreditTier derives the tier and borrow limit. Each default costs
// DefaultPenalty off the base tier limit; the result floors at the tier-1
// limit and the tier itself is re-read from the adjusted limit, so heavy
// defaulters demote even with a strong repayment history.
func CalculateCreditTier(repayments, defaults uint64) (uint8, *big.Int) {
	base := TierForRepayments(repayments)
	limit := TierLimit(base)
	if defaults > 0 {
		penalty := new(big.Int).Mul(DefaultPenalty, new(big.Int).SetUint64(defaults))
		limit.Sub(limit, penalty)
	}
	floor := TierLimit(Tier1)
	if limit.Cmp(floor) < 0 {
		return Tier1, floor
	}
	tier := Tier1
	for t := Tier5; t >= Tier1; t-- {
		if limit.Cmp(TierLimit(t)) >= 0 {
			tier = t
			break
		}
	}
	return tier, limit
}

func (e *Engine) refresh(p *AgentProfile) {
	p.SuccessfulRepayments = p.LoansRepaid
	p.Defaults = p.LoansDefaulted
	p.Score = CalculateScore(p)
	p.CreditTier, p.MaxBorrowLimit = CalculateCreditTier(p.SuccessfulRepayments, p.Defaults)
	p.UpdatedAt = e.now()
}

// RegisterAgent creates a fresh profile at the base score and tier 1.
func (e *Engine) RegisterAgent(owner crypto.Address) (*AgentProfile, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.ReputationGet(owner); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrProfileExists
	}
	now := e.now()
	profile := &AgentProfile{
		Owner:          owner,
		TotalBorrowed:  big.NewInt(0),
		TotalRepaid:    big.NewInt(0),
		TotalLent:      big.NewInt(0),
		Score:          BaseScore,
		CreditTier:     Tier1,
		MaxBorrowLimit: TierLimit(Tier1),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.state.ReputationPut(profile); err != nil {
		return nil, err
	}
	e.emit(events.AgentRegistered{
		Agent:          owner,
		Score:          profile.Score,
		CreditTier:     profile.CreditTier,
		MaxBorrowLimit: new(big.Int).Set(profile.MaxBorrowLimit),
		Timestamp:      now,
	})
	return profile, nil
}

func (e *Engine) loadProfile(agent crypto.Address) (*AgentProfile, error) {
	profile, ok, err := e.state.ReputationGet(agent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	profile.EnsureDefaults()
	return profile, nil
}

// loadOrCreate lazily registers agents touched by recording calls, so a
// first-time lender gets credit for their lending volume.
func (e *Engine) loadOrCreate(agent crypto.Address) (*AgentProfile, error) {
	profile, ok, err := e.state.ReputationGet(agent)
	if err != nil {
		return nil, err
	}
	if ok {
		profile.EnsureDefaults()
		return profile, nil
	}
	now := e.now()
	return &AgentProfile{
		Owner:          agent,
		TotalBorrowed:  big.NewInt(0),
		TotalRepaid:    big.NewInt(0),
		TotalLent:      big.NewInt(0),
		Score:          BaseScore,
		CreditTier:     Tier1,
		MaxBorrowLimit: TierLimit(Tier1),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (e *Engine) record(authority, agent crypto.Address, reason string, amount *big.Int, apply func(*AgentProfile)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if !authority.Equal(e.authority) {
		return ErrUnauthorized
	}
	profile, err := e.loadOrCreate(agent)
	if err != nil {
		return err
	}
	apply(profile)
	e.refresh(profile)
	if err := e.state.ReputationPut(profile); err != nil {
		return err
	}
	e.emit(events.ProfileUpdated{
		Agent:          agent,
		Reason:         reason,
		Amount:         cloneBigInt(amount),
		Score:          profile.Score,
		CreditTier:     profile.CreditTier,
		MaxBorrowLimit: new(big.Int).Set(profile.MaxBorrowLimit),
		Timestamp:      profile.UpdatedAt,
	})
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// RecordLoanTaken counts a new borrow against the agent.
func (e *Engine) RecordLoanTaken(authority, agent crypto.Address, amount *big.Int) error {
	return e.record(authority, agent, "loan_taken", amount, func(p *AgentProfile) {
		p.LoansTaken++
		p.TotalBorrowed.Add(p.TotalBorrowed, cloneBigInt(amount))
	})
}

// RecordLending counts supplied principal for the lender's standing.
func (e *Engine) RecordLending(authority, agent crypto.Address, amount *big.Int) error {
	return e.record(authority, agent, "lending", amount, func(p *AgentProfile) {
		p.TotalLent.Add(p.TotalLent, cloneBigInt(amount))
	})
}

// RecordRepayment counts a successful repayment including interest.
func (e *Engine) RecordRepayment(authority, agent crypto.Address, amount *big.Int) error {
	return e.record(authority, agent, "repayment", amount, func(p *AgentProfile) {
		p.LoansRepaid++
		p.TotalRepaid.Add(p.TotalRepaid, cloneBigInt(amount))
	})
}

// RecordDefault counts a default or liquidation against the agent.
func (e *Engine) RecordDefault(authority, agent crypto.Address, amount *big.Int) error {
	return e.record(authority, agent, "default", amount, func(p *AgentProfile) {
		p.LoansDefaulted++
	})
}

// AgentStanding answers the credit market's acceptance gate: the current
// score and tier-adjusted borrow limit.
func (e *Engine) AgentStanding(agent crypto.Address) (uint64, *big.Int, error) {
	if e == nil || e.state == nil {
		return 0, nil, errNilState
	}
	profile, err := e.loadProfile(agent)
	if err != nil {
		return 0, nil, err
	}
	return profile.Score, new(big.Int).Set(profile.MaxBorrowLimit), nil
}

// Profile returns the stored profile.
func (e *Engine) Profile(agent crypto.Address) (*AgentProfile, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadProfile(agent)
}

// Score returns the agent's current score.
func (e *Engine) Score(agent crypto.Address) (uint64, error) {
	profile, err := e.Profile(agent)
	if err != nil {
		return 0, err
	}
	return profile.Score, nil
}

// MaxBorrow returns the agent's tier-adjusted borrow limit.
func (e *Engine) MaxBorrow(agent crypto.Address) (*big.Int, error) {
	profile, err := e.Profile(agent)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(profile.MaxBorrowLimit), nil
}

// CreditTierInfo summarizes the agent's tier and the path to the next one.
func (e *Engine) CreditTierInfo(agent crypto.Address) (*TierInfo, error) {
	profile, err := e.Profile(agent)
	if err != nil {
		return nil, err
	}
	info := &TierInfo{
		Tier:                 profile.CreditTier,
		MaxBorrowLimit:       new(big.Int).Set(profile.MaxBorrowLimit),
		SuccessfulRepayments: profile.SuccessfulRepayments,
		Defaults:             profile.Defaults,
	}
	base := TierForRepayments(profile.SuccessfulRepayments)
	if base < Tier5 {
		info.NextTier = base + 1
		needed := tierThresholds[base]
		if needed > profile.SuccessfulRepayments {
			info.RepaymentsToNext = needed - profile.SuccessfulRepayments
		}
	}
	return info, nil
}
