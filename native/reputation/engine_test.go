package reputation

import (
	"errors"
	"math/big"
	"testing"

	"plnmarket/crypto"
)

type mockState struct {
	profiles map[string]*AgentProfile
}

func newMockState() *mockState {
	return &mockState{profiles: make(map[string]*AgentProfile)}
}

func (m *mockState) ReputationGet(addr crypto.Address) (*AgentProfile, bool, error) {
	p, ok := m.profiles[string(addr.Bytes())]
	if !ok {
		return nil, false, nil
	}
	clone := *p
	clone.TotalBorrowed = new(big.Int).Set(p.TotalBorrowed)
	clone.TotalRepaid = new(big.Int).Set(p.TotalRepaid)
	clone.TotalLent = new(big.Int).Set(p.TotalLent)
	clone.MaxBorrowLimit = new(big.Int).Set(p.MaxBorrowLimit)
	return &clone, true, nil
}

func (m *mockState) ReputationPut(p *AgentProfile) error {
	clone := *p
	m.profiles[string(p.Owner.Bytes())] = &clone
	return nil
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.PLNPrefix, raw)
}

var authority = testAddr(0xAF)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetAuthority(authority)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func TestRegisterAgent(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)

	profile, err := engine.RegisterAgent(agent)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Score != BaseScore {
		t.Fatalf("unexpected score: %d", profile.Score)
	}
	if profile.CreditTier != Tier1 {
		t.Fatalf("unexpected tier: %d", profile.CreditTier)
	}
	if profile.MaxBorrowLimit.Int64() != 50_000_000 {
		t.Fatalf("unexpected limit: %s", profile.MaxBorrowLimit)
	}

	if _, err := engine.RegisterAgent(agent); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
}

func TestRecordAuthorityGate(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	imposter := testAddr(2)

	if err := engine.RecordRepayment(imposter, agent, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.RecordRepayment(authority, agent, big.NewInt(1)); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestAgentStandingUnknown(t *testing.T) {
	engine := newTestEngine(t)
	if _, _, err := engine.AgentStanding(testAddr(9)); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestScoreAfterRepayment(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	if _, err := engine.RegisterAgent(agent); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := engine.RecordLoanTaken(authority, agent, big.NewInt(25_000_000)); err != nil {
		t.Fatalf("loan taken: %v", err)
	}
	// One open loan costs five points.
	score, err := engine.Score(agent)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != BaseScore-OpenLoanPenalty {
		t.Fatalf("unexpected score with open loan: %d", score)
	}

	// Repaying $25 earns the repayment bump plus volume points.
	if err := engine.RecordRepayment(authority, agent, big.NewInt(25_000_000)); err != nil {
		t.Fatalf("repayment: %v", err)
	}
	score, _ = engine.Score(agent)
	if score != BaseScore+ScorePerRepayment+25 {
		t.Fatalf("unexpected score after repayment: %d", score)
	}
}

func TestScoreLendingVolume(t *testing.T) {
	engine := newTestEngine(t)
	lender := testAddr(1)

	// Recording against an unregistered lender lazily creates the profile.
	if err := engine.RecordLending(authority, lender, big.NewInt(100_000_000)); err != nil {
		t.Fatalf("lending: %v", err)
	}
	score, err := engine.Score(lender)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != BaseScore+10 {
		t.Fatalf("unexpected score: %d", score)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	for i := 0; i < 6; i++ {
		if err := engine.RecordDefault(authority, agent, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("default %d: %v", i, err)
		}
	}
	score, _ := engine.Score(agent)
	if score != 0 {
		t.Fatalf("expected floor at zero, got %d", score)
	}
}

func TestScoreClampsAtMax(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	// A billion-dollar repayment alone would blow past the cap.
	if err := engine.RecordLoanTaken(authority, agent, big.NewInt(1_000_000_000_000)); err != nil {
		t.Fatalf("loan taken: %v", err)
	}
	if err := engine.RecordRepayment(authority, agent, big.NewInt(1_000_000_000_000)); err != nil {
		t.Fatalf("repayment: %v", err)
	}
	score, _ := engine.Score(agent)
	if score != MaxScore {
		t.Fatalf("expected cap at %d, got %d", MaxScore, score)
	}
}

func TestTierProgression(t *testing.T) {
	cases := []struct {
		repayments uint64
		tier       uint8
		limit      int64
	}{
		{0, Tier1, 50_000_000},
		{1, Tier2, 500_000_000},
		{4, Tier2, 500_000_000},
		{5, Tier3, 5_000_000_000},
		{19, Tier3, 5_000_000_000},
		{20, Tier4, 25_000_000_000},
		{49, Tier4, 25_000_000_000},
		{50, Tier5, 75_000_000_000},
		{500, Tier5, 75_000_000_000},
	}
	for _, tc := range cases {
		tier, limit := CalculateCreditTier(tc.repayments, 0)
		if tier != tc.tier || limit.Int64() != tc.limit {
			t.Fatalf("repayments %d: got tier %d limit %s, want tier %d limit %d",
				tc.repayments, tier, limit, tc.tier, tc.limit)
		}
	}
}

func TestTierDefaultPenaltyDemotion(t *testing.T) {
	cases := []struct {
		repayments uint64
		defaults   uint64
		tier       uint8
		limit      int64
	}{
		// One default knocks a top-tier agent down a tier.
		{50, 1, Tier4, 65_000_000_000},
		{50, 2, Tier4, 55_000_000_000},
		// Seven defaults land exactly on the tier-3 limit.
		{50, 7, Tier3, 5_000_000_000},
		// Eight defaults wipe the limit below the floor.
		{50, 8, Tier1, 50_000_000},
		{1, 1, Tier1, 50_000_000},
	}
	for _, tc := range cases {
		tier, limit := CalculateCreditTier(tc.repayments, tc.defaults)
		if tier != tc.tier || limit.Int64() != tc.limit {
			t.Fatalf("(%d repayments, %d defaults): got tier %d limit %s, want tier %d limit %d",
				tc.repayments, tc.defaults, tier, limit, tc.tier, tc.limit)
		}
	}
}

func TestCreditTierInfo(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	if _, err := engine.RegisterAgent(agent); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := engine.RecordLoanTaken(authority, agent, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("loan taken: %v", err)
		}
		if err := engine.RecordRepayment(authority, agent, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("repayment: %v", err)
		}
	}
	info, err := engine.CreditTierInfo(agent)
	if err != nil {
		t.Fatalf("tier info: %v", err)
	}
	if info.Tier != Tier2 {
		t.Fatalf("unexpected tier: %d", info.Tier)
	}
	if info.NextTier != Tier3 || info.RepaymentsToNext != 2 {
		t.Fatalf("unexpected next-tier path: %+v", info)
	}

	// Top tier has no next step.
	top, _ := CalculateCreditTier(50, 0)
	if top != Tier5 {
		t.Fatalf("unexpected top tier: %d", top)
	}
}

func TestStandingTracksTier(t *testing.T) {
	engine := newTestEngine(t)
	agent := testAddr(1)
	if _, err := engine.RegisterAgent(agent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.RecordLoanTaken(authority, agent, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("loan taken: %v", err)
	}
	if err := engine.RecordRepayment(authority, agent, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("repayment: %v", err)
	}
	_, limit, err := engine.AgentStanding(agent)
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if limit.Int64() != 500_000_000 {
		t.Fatalf("standing limit did not follow tier: %s", limit)
	}
}
