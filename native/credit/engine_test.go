package credit

import (
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"plnmarket/crypto"
)

type mockState struct {
	global   *GlobalState
	offers   map[uint64]*LendOffer
	requests map[uint64]*BorrowRequest
	loans    map[uint64]*Loan
}

func newMockState() *mockState {
	return &mockState{
		offers:   make(map[uint64]*LendOffer),
		requests: make(map[uint64]*BorrowRequest),
		loans:    make(map[uint64]*Loan),
	}
}

func (m *mockState) CreditGlobalGet() (*GlobalState, bool, error) {
	if m.global == nil {
		return nil, false, nil
	}
	clone := *m.global
	clone.WhitelistedPrograms = append([]crypto.Address(nil), m.global.WhitelistedPrograms...)
	return &clone, true, nil
}

func (m *mockState) CreditGlobalPut(g *GlobalState) error {
	clone := *g
	clone.WhitelistedPrograms = append([]crypto.Address(nil), g.WhitelistedPrograms...)
	m.global = &clone
	return nil
}

func (m *mockState) CreditOfferGet(id uint64) (*LendOffer, bool, error) {
	offer, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	clone := *offer
	return &clone, true, nil
}

func (m *mockState) CreditOfferPut(o *LendOffer) error {
	clone := *o
	m.offers[o.ID] = &clone
	return nil
}

func (m *mockState) CreditRequestGet(id uint64) (*BorrowRequest, bool, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	clone := *request
	return &clone, true, nil
}

func (m *mockState) CreditRequestPut(r *BorrowRequest) error {
	clone := *r
	m.requests[r.ID] = &clone
	return nil
}

func (m *mockState) CreditLoanGet(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, false, nil
	}
	clone := *loan
	return &clone, true, nil
}

func (m *mockState) CreditLoanPut(l *Loan) error {
	clone := *l
	m.loans[l.ID] = &clone
	return nil
}

type mockCustody struct {
	accounts map[string]*big.Int
	vaults   map[[32]byte]*big.Int
	seq      uint64
}

func newMockCustody() *mockCustody {
	return &mockCustody{
		accounts: make(map[string]*big.Int),
		vaults:   make(map[[32]byte]*big.Int),
	}
}

var errMockFunds = errors.New("mock custody: insufficient funds")

func (m *mockCustody) account(addr crypto.Address) *big.Int {
	bal, ok := m.accounts[string(addr.Bytes())]
	if !ok {
		bal = big.NewInt(0)
		m.accounts[string(addr.Bytes())] = bal
	}
	return bal
}

func (m *mockCustody) fund(addr crypto.Address, amount int64) {
	m.accounts[string(addr.Bytes())] = big.NewInt(amount)
}

func (m *mockCustody) Open(owner crypto.Address) ([32]byte, error) {
	m.seq++
	var id [32]byte
	binary.BigEndian.PutUint64(id[:8], m.seq)
	m.vaults[id] = big.NewInt(0)
	return id, nil
}

func (m *mockCustody) Hold(id [32]byte, from crypto.Address, amount *big.Int) error {
	bal := m.account(from)
	if bal.Cmp(amount) < 0 {
		return errMockFunds
	}
	bal.Sub(bal, amount)
	m.vaults[id].Add(m.vaults[id], amount)
	return nil
}

func (m *mockCustody) Release(id [32]byte, to crypto.Address, amount *big.Int) error {
	v := m.vaults[id]
	if v.Cmp(amount) < 0 {
		return errMockFunds
	}
	v.Sub(v, amount)
	m.account(to).Add(m.account(to), amount)
	return nil
}

func (m *mockCustody) Move(from, to [32]byte, amount *big.Int) error {
	src := m.vaults[from]
	if src.Cmp(amount) < 0 {
		return errMockFunds
	}
	src.Sub(src, amount)
	m.vaults[to].Add(m.vaults[to], amount)
	return nil
}

func (m *mockCustody) Balance(id [32]byte) (*big.Int, error) {
	v, ok := m.vaults[id]
	if !ok {
		return nil, errors.New("mock custody: no vault")
	}
	return new(big.Int).Set(v), nil
}

func (m *mockCustody) Transfer(from, to crypto.Address, amount *big.Int) error {
	src := m.account(from)
	if src.Cmp(amount) < 0 {
		return errMockFunds
	}
	src.Sub(src, amount)
	m.account(to).Add(m.account(to), amount)
	return nil
}

func (m *mockCustody) AccountBalance(addr crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(m.account(addr)), nil
}

type reputationCall struct {
	kind   string
	agent  crypto.Address
	amount *big.Int
}

type mockReputation struct {
	scores map[string]uint64
	limits map[string]*big.Int
	calls  []reputationCall
}

func newMockReputation() *mockReputation {
	return &mockReputation{
		scores: make(map[string]uint64),
		limits: make(map[string]*big.Int),
	}
}

func (m *mockReputation) set(agent crypto.Address, score uint64, limit int64) {
	m.scores[string(agent.Bytes())] = score
	m.limits[string(agent.Bytes())] = big.NewInt(limit)
}

func (m *mockReputation) AgentStanding(agent crypto.Address) (uint64, *big.Int, error) {
	score, ok := m.scores[string(agent.Bytes())]
	if !ok {
		return 0, big.NewInt(0), nil
	}
	return score, new(big.Int).Set(m.limits[string(agent.Bytes())]), nil
}

func (m *mockReputation) record(kind string, agent crypto.Address, amount *big.Int) error {
	m.calls = append(m.calls, reputationCall{kind: kind, agent: agent, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockReputation) RecordLoanTaken(_, agent crypto.Address, amount *big.Int) error {
	return m.record("loanTaken", agent, amount)
}

func (m *mockReputation) RecordLending(_, agent crypto.Address, amount *big.Int) error {
	return m.record("lending", agent, amount)
}

func (m *mockReputation) RecordRepayment(_, agent crypto.Address, amount *big.Int) error {
	return m.record("repayment", agent, amount)
}

func (m *mockReputation) RecordDefault(_, agent crypto.Address, amount *big.Int) error {
	return m.record("default", agent, amount)
}

func (m *mockReputation) countCalls(kind string) int {
	n := 0
	for _, c := range m.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.PLNPrefix, raw)
}

type testHarness struct {
	engine     *Engine
	state      *mockState
	custody    *mockCustody
	reputation *mockReputation
	now        int64
	admin      crypto.Address
	insurance  crypto.Address
	treasury   crypto.Address
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:      newMockState(),
		custody:    newMockCustody(),
		reputation: newMockReputation(),
		now:        1_700_000_000,
		admin:      testAddr(0xA0),
		insurance:  testAddr(0xA1),
		treasury:   testAddr(0xA2),
	}
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetCustody(h.custody)
	h.engine.SetReputation(h.reputation, testAddr(0xAF))
	h.engine.SetNowFunc(func() int64 { return h.now })
	if err := h.engine.Initialize(h.admin, h.insurance, h.treasury); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

func (h *testHarness) advance(secs int64) { h.now += secs }

// postOffer posts a standard offer from the given lender with a 1_000_000
// principal, 500 bps rate and 30 day term.
func (h *testHarness) postOffer(t *testing.T, lender crypto.Address, threshold uint64) *LendOffer {
	t.Helper()
	h.custody.fund(lender, 10_000_000)
	offer, err := h.engine.PostOffer(lender, big.NewInt(1_000_000), 500, 30*24*3600, 0, threshold)
	if err != nil {
		t.Fatalf("post offer: %v", err)
	}
	return offer
}

func (h *testHarness) acceptOffer(t *testing.T, borrower crypto.Address, offerID uint64) *Loan {
	t.Helper()
	h.reputation.set(borrower, 500, 50_000_000)
	loan, err := h.engine.AcceptOffer(borrower, offerID)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	return loan
}

func TestPostOfferEscrowsFunds(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	offer := h.postOffer(t, lender, 8_000)

	if !offer.Active {
		t.Fatalf("expected active offer")
	}
	escrow, err := h.custody.Balance(offer.EscrowID)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow.Int64() != 1_000_000 {
		t.Fatalf("unexpected escrow balance: %s", escrow)
	}
	remaining, _ := h.custody.AccountBalance(lender)
	if remaining.Int64() != 9_000_000 {
		t.Fatalf("unexpected lender balance: %s", remaining)
	}
}

func TestPostOfferValidation(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	h.custody.fund(lender, 10_000_000)

	cases := []struct {
		name      string
		amount    *big.Int
		rate      uint64
		duration  uint64
		threshold uint64
		want      error
	}{
		{"zero amount", big.NewInt(0), 500, 3600, 8_000, ErrInvalidAmount},
		{"negative amount", big.NewInt(-5), 500, 3600, 8_000, ErrInvalidAmount},
		{"zero rate", big.NewInt(100), 0, 3600, 8_000, ErrInvalidRate},
		{"rate above cap", big.NewInt(100), 10_001, 3600, 8_000, ErrInvalidRate},
		{"zero duration", big.NewInt(100), 500, 0, 8_000, ErrInvalidDuration},
		{"duration above cap", big.NewInt(100), 500, MaxDurationSecs + 1, 8_000, ErrInvalidDuration},
		{"threshold too low", big.NewInt(100), 500, 3600, 4_999, ErrInvalidLiquidationThreshold},
		{"threshold too high", big.NewInt(100), 500, 3600, 10_001, ErrInvalidLiquidationThreshold},
	}
	for _, tc := range cases {
		if _, err := h.engine.PostOffer(lender, tc.amount, tc.rate, tc.duration, 0, tc.threshold); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCancelOffer(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	offer := h.postOffer(t, lender, 8_000)

	if err := h.engine.CancelOffer(testAddr(2), offer.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.CancelOffer(lender, offer.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	balance, _ := h.custody.AccountBalance(lender)
	if balance.Int64() != 10_000_000 {
		t.Fatalf("escrow not refunded: %s", balance)
	}
	if err := h.engine.CancelOffer(lender, offer.ID); !errors.Is(err, ErrOfferNotActive) {
		t.Fatalf("expected ErrOfferNotActive on second cancel, got %v", err)
	}
}

func TestAcceptOfferCreatesLoan(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	if loan.Status != LoanStatusActive {
		t.Fatalf("unexpected status: %v", loan.Status)
	}
	if loan.Principal.Int64() != 1_000_000 {
		t.Fatalf("unexpected principal: %s", loan.Principal)
	}
	if loan.RateBps != 500 || loan.LiquidationThresholdBps != 8_000 {
		t.Fatalf("terms not copied from offer: %+v", loan)
	}
	if loan.EndTime != loan.StartTime+30*24*3600 {
		t.Fatalf("unexpected end time: %d", loan.EndTime)
	}
	vault, _ := h.custody.Balance(loan.VaultID)
	if vault.Int64() != 1_000_000 {
		t.Fatalf("principal not moved to loan vault: %s", vault)
	}
	if h.reputation.countCalls("loanTaken") != 1 || h.reputation.countCalls("lending") != 1 {
		t.Fatalf("reputation not recorded: %+v", h.reputation.calls)
	}

	if _, err := h.engine.AcceptOffer(testAddr(3), offer.ID); !errors.Is(err, ErrOfferNotActive) {
		t.Fatalf("expected ErrOfferNotActive on second accept, got %v", err)
	}
}

func TestAcceptOfferReputationGates(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	h.custody.fund(lender, 10_000_000)
	offer, err := h.engine.PostOffer(lender, big.NewInt(1_000_000), 500, 3600, 600, 8_000)
	if err != nil {
		t.Fatalf("post offer: %v", err)
	}

	h.reputation.set(borrower, 599, 50_000_000)
	if _, err := h.engine.AcceptOffer(borrower, offer.ID); !errors.Is(err, ErrInsufficientReputation) {
		t.Fatalf("expected ErrInsufficientReputation, got %v", err)
	}

	h.reputation.set(borrower, 600, 999_999)
	if _, err := h.engine.AcceptOffer(borrower, offer.ID); !errors.Is(err, ErrExceedsCreditLimit) {
		t.Fatalf("expected ErrExceedsCreditLimit, got %v", err)
	}

	h.reputation.set(borrower, 600, 1_000_000)
	if _, err := h.engine.AcceptOffer(borrower, offer.ID); err != nil {
		t.Fatalf("accept at exact limit: %v", err)
	}
}

func TestRepaySplitsInterest(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	h.custody.fund(lender, 2_000_000_000)
	offer, err := h.engine.PostOffer(lender, big.NewInt(1_000_000_000), 500, MaxDurationSecs, 0, 8_000)
	if err != nil {
		t.Fatalf("post offer: %v", err)
	}
	h.reputation.set(borrower, 500, 5_000_000_000)
	loan, err := h.engine.AcceptOffer(borrower, offer.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Half a year accrues 25_000_000 at 500 bps.
	h.advance(15_768_000)
	h.custody.fund(borrower, 30_000_000)

	if err := h.engine.Repay(lender, loan.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-borrower, got %v", err)
	}
	if err := h.engine.Repay(borrower, loan.ID); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	h.custody.fund(borrower, 1_025_000_000)
	if err := h.engine.Repay(borrower, loan.ID); err != nil {
		t.Fatalf("repay: %v", err)
	}

	lenderBal, _ := h.custody.AccountBalance(lender)
	if lenderBal.Int64() != 1_000_000_000+1_000_000_000+22_250_000 {
		t.Fatalf("unexpected lender balance: %s", lenderBal)
	}
	insuranceBal, _ := h.custody.AccountBalance(h.insurance)
	if insuranceBal.Int64() != 2_500_000 {
		t.Fatalf("unexpected insurance balance: %s", insuranceBal)
	}
	treasuryBal, _ := h.custody.AccountBalance(h.treasury)
	if treasuryBal.Int64() != 250_000 {
		t.Fatalf("unexpected treasury balance: %s", treasuryBal)
	}
	// Borrower paid 1_025_000_000 and got the 1_000_000_000 vault back.
	borrowerBal, _ := h.custody.AccountBalance(borrower)
	if borrowerBal.Int64() != 1_000_000_000 {
		t.Fatalf("unexpected borrower balance: %s", borrowerBal)
	}

	stored, err := h.engine.Loan(loan.ID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.Status != LoanStatusRepaid {
		t.Fatalf("unexpected status: %v", stored.Status)
	}
	if h.reputation.countCalls("repayment") != 1 {
		t.Fatalf("repayment not recorded")
	}

	if err := h.engine.Repay(borrower, loan.ID); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive on double repay, got %v", err)
	}

	global, _ := h.engine.Global()
	if global.TotalInsuranceCollected.Int64() != 2_500_000 {
		t.Fatalf("insurance counter not updated: %s", global.TotalInsuranceCollected)
	}
}

func TestLiquidateGating(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	// Healthy and within term.
	if err := h.engine.Liquidate(testAddr(9), loan.ID); !errors.Is(err, ErrLoanNotLiquidatable) {
		t.Fatalf("expected ErrLoanNotLiquidatable, got %v", err)
	}

	// Exactly at the threshold is still healthy: 800_000 * 10_000 /
	// 1_000_000 == 8_000, and unhealthy requires strictly below.
	h.custody.vaults[loan.VaultID] = big.NewInt(800_000)
	if err := h.engine.Liquidate(testAddr(9), loan.ID); !errors.Is(err, ErrLoanNotLiquidatable) {
		t.Fatalf("expected ErrLoanNotLiquidatable at exact threshold, got %v", err)
	}

	// One unit below the threshold boundary flips to liquidatable.
	h.custody.vaults[loan.VaultID] = big.NewInt(799_999)
	if err := h.engine.Liquidate(testAddr(9), loan.ID); err != nil {
		t.Fatalf("liquidate below threshold: %v", err)
	}
	stored, _ := h.engine.Loan(loan.ID)
	if stored.Status != LoanStatusLiquidated {
		t.Fatalf("unexpected status: %v", stored.Status)
	}
	lenderBal, _ := h.custody.AccountBalance(lender)
	if lenderBal.Int64() != 9_000_000+799_999 {
		t.Fatalf("vault not recovered to lender: %s", lenderBal)
	}
	if h.reputation.countCalls("default") != 1 {
		t.Fatalf("default not recorded")
	}

	if err := h.engine.Liquidate(testAddr(9), loan.ID); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive on second liquidation, got %v", err)
	}
}

func TestLiquidatePastDueHealthyVault(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	// A fully-funded vault is still liquidatable once past maturity.
	h.now = loan.EndTime + 1
	if err := h.engine.Liquidate(testAddr(9), loan.ID); err != nil {
		t.Fatalf("liquidate past due: %v", err)
	}
	stored, _ := h.engine.Loan(loan.ID)
	if stored.Status != LoanStatusLiquidated {
		t.Fatalf("unexpected status: %v", stored.Status)
	}
}

func TestMarkDefault(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	if err := h.engine.MarkDefault(lender, loan.ID); !errors.Is(err, ErrLoanNotOverdue) {
		t.Fatalf("expected ErrLoanNotOverdue before maturity, got %v", err)
	}
	h.now = loan.EndTime
	if err := h.engine.MarkDefault(lender, loan.ID); !errors.Is(err, ErrLoanNotOverdue) {
		t.Fatalf("expected ErrLoanNotOverdue at exact maturity, got %v", err)
	}
	h.now = loan.EndTime + 1
	// Any keeper may flag an overdue loan, not just the lender.
	keeper := testAddr(9)
	if err := h.engine.MarkDefault(keeper, loan.ID); err != nil {
		t.Fatalf("mark default by keeper: %v", err)
	}
	stored, _ := h.engine.Loan(loan.ID)
	if stored.Status != LoanStatusDefaulted {
		t.Fatalf("unexpected status: %v", stored.Status)
	}
	if err := h.engine.MarkDefault(lender, loan.ID); !errors.Is(err, ErrLoanNotActive) {
		t.Fatalf("expected ErrLoanNotActive on repeat default, got %v", err)
	}
	// No funds moved; the vault keeps the principal.
	vault, _ := h.custody.Balance(loan.VaultID)
	if vault.Int64() != 1_000_000 {
		t.Fatalf("funds moved on accounting default: %s", vault)
	}
}

func TestClaimInsurance(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	if _, err := h.engine.ClaimInsurance(lender, loan.ID); !errors.Is(err, ErrLoanNotDefaulted) {
		t.Fatalf("expected ErrLoanNotDefaulted while active, got %v", err)
	}

	h.now = loan.EndTime + 1
	if err := h.engine.MarkDefault(lender, loan.ID); err != nil {
		t.Fatalf("mark default: %v", err)
	}

	if _, err := h.engine.ClaimInsurance(borrower, loan.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-lender, got %v", err)
	}
	if _, err := h.engine.ClaimInsurance(lender, loan.ID); !errors.Is(err, ErrInsufficientInsurancePool) {
		t.Fatalf("expected ErrInsufficientInsurancePool on empty pool, got %v", err)
	}

	// Pool smaller than half the principal caps the payout.
	h.custody.fund(h.insurance, 100_000)
	payout, err := h.engine.ClaimInsurance(lender, loan.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payout.Int64() != 100_000 {
		t.Fatalf("expected payout capped at pool balance, got %s", payout)
	}

	if _, err := h.engine.ClaimInsurance(lender, loan.ID); !errors.Is(err, ErrInsuranceAlreadyClaimed) {
		t.Fatalf("expected ErrInsuranceAlreadyClaimed, got %v", err)
	}
}

func TestClaimInsuranceHalfPrincipal(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	h.now = loan.EndTime + 1
	if err := h.engine.MarkDefault(lender, loan.ID); err != nil {
		t.Fatalf("mark default: %v", err)
	}
	h.custody.fund(h.insurance, 10_000_000)
	payout, err := h.engine.ClaimInsurance(lender, loan.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payout.Int64() != 500_000 {
		t.Fatalf("expected half the principal, got %s", payout)
	}
	global, _ := h.engine.Global()
	if global.TotalInsuranceClaimed.Int64() != 500_000 {
		t.Fatalf("claim counter not updated: %s", global.TotalInsuranceClaimed)
	}
}

type mockDelegate struct {
	calls []crypto.Address
}

func (m *mockDelegate) ExecuteTrade(program crypto.Address, _ [32]byte) error {
	m.calls = append(m.calls, program)
	return nil
}

func TestExecuteTradeWhitelist(t *testing.T) {
	h := newHarness(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	venue := testAddr(0xB0)
	delegate := &mockDelegate{}
	h.engine.SetTradeDelegate(delegate)

	offer := h.postOffer(t, lender, 8_000)
	loan := h.acceptOffer(t, borrower, offer.ID)

	if err := h.engine.ExecuteTrade(borrower, loan.ID, venue); !errors.Is(err, ErrProgramNotWhitelisted) {
		t.Fatalf("expected ErrProgramNotWhitelisted, got %v", err)
	}
	if err := h.engine.AddWhitelistedProgram(h.admin, venue); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := h.engine.ExecuteTrade(lender, loan.ID, venue); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-borrower, got %v", err)
	}
	if err := h.engine.ExecuteTrade(borrower, loan.ID, venue); err != nil {
		t.Fatalf("execute trade: %v", err)
	}
	if len(delegate.calls) != 1 || !delegate.calls[0].Equal(venue) {
		t.Fatalf("delegate not invoked: %+v", delegate.calls)
	}

	if err := h.engine.RemoveWhitelistedProgram(h.admin, venue); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := h.engine.ExecuteTrade(borrower, loan.ID, venue); !errors.Is(err, ErrProgramNotWhitelisted) {
		t.Fatalf("expected ErrProgramNotWhitelisted after removal, got %v", err)
	}
}

func TestWhitelistBounds(t *testing.T) {
	h := newHarness(t)
	outsider := testAddr(0xEE)

	if err := h.engine.AddWhitelistedProgram(outsider, testAddr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}
	for i := 0; i < MaxWhitelistedPrograms; i++ {
		if err := h.engine.AddWhitelistedProgram(h.admin, testAddr(byte(i+1))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := h.engine.AddWhitelistedProgram(h.admin, testAddr(0xFF)); !errors.Is(err, ErrWhitelistFull) {
		t.Fatalf("expected ErrWhitelistFull, got %v", err)
	}
	// Re-adding an existing program is a no-op even at the bound.
	if err := h.engine.AddWhitelistedProgram(h.admin, testAddr(1)); err != nil {
		t.Fatalf("idempotent add: %v", err)
	}
}

func TestUpdateFeeRates(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.UpdateFeeRates(testAddr(5), 500, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.UpdateFeeRates(h.admin, MaxInsuranceFeeBps+1, 100); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected ErrInvalidFeeRate for insurance cap, got %v", err)
	}
	if err := h.engine.UpdateFeeRates(h.admin, 500, MaxProtocolFeeBps+1); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected ErrInvalidFeeRate for protocol cap, got %v", err)
	}
	if err := h.engine.UpdateFeeRates(h.admin, MaxInsuranceFeeBps, MaxProtocolFeeBps); err != nil {
		t.Fatalf("update at caps: %v", err)
	}
	global, _ := h.engine.Global()
	if global.InsuranceFeeBps != MaxInsuranceFeeBps || global.ProtocolFeeBps != MaxProtocolFeeBps {
		t.Fatalf("rates not stored: %+v", global)
	}
}

func TestPostRequestRecordsIntent(t *testing.T) {
	h := newHarness(t)
	borrower := testAddr(2)

	request, err := h.engine.PostRequest(borrower, big.NewInt(250_000), 900, 7*24*3600)
	if err != nil {
		t.Fatalf("post request: %v", err)
	}
	if !request.Active || request.Amount.Int64() != 250_000 {
		t.Fatalf("unexpected request: %+v", request)
	}
	stored, err := h.engine.Request(request.ID)
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if stored.MaxRateBps != 900 {
		t.Fatalf("unexpected stored request: %+v", stored)
	}
	// No funds move on a request.
	bal, _ := h.custody.AccountBalance(borrower)
	if bal.Sign() != 0 {
		t.Fatalf("request moved funds: %s", bal)
	}
}
