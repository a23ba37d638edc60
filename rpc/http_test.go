package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"plnmarket/crypto"
	"plnmarket/native/credit"
	"plnmarket/native/reputation"
	"plnmarket/native/router"
	"plnmarket/native/vault"
	"plnmarket/state"
	"plnmarket/storage"
)

const testAuthToken = "test-admin-token"

func testAddr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.PLNPrefix, raw)
}

type testEnv struct {
	server  *httptest.Server
	manager *state.Manager
	now     int64

	admin     crypto.Address
	insurance crypto.Address
	treasury  crypto.Address
	routerAcc crypto.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		manager:   state.NewManager(storage.NewMemDB()),
		now:       1_700_000_000,
		admin:     testAddr(0xA0),
		insurance: testAddr(0xA1),
		treasury:  testAddr(0xA2),
		routerAcc: testAddr(0xA3),
	}
	nowFn := func() int64 { return env.now }
	authority := testAddr(0xCC)

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(env.manager)
	vaultEngine.SetPauses(env.manager)
	vaultEngine.SetNowFunc(nowFn)

	reputationEngine := reputation.NewEngine()
	reputationEngine.SetState(env.manager)
	reputationEngine.SetPauses(env.manager)
	reputationEngine.SetNowFunc(nowFn)
	reputationEngine.SetAuthority(authority)

	creditEngine := credit.NewEngine()
	creditEngine.SetState(env.manager)
	creditEngine.SetPauses(env.manager)
	creditEngine.SetNowFunc(nowFn)
	creditEngine.SetCustody(vaultEngine)
	creditEngine.SetReputation(reputationEngine, authority)

	routerEngine := router.NewEngine()
	routerEngine.SetState(env.manager)
	routerEngine.SetPauses(env.manager)
	routerEngine.SetNowFunc(nowFn)
	routerEngine.SetCustody(vaultEngine)

	require.NoError(t, creditEngine.Initialize(env.admin, env.insurance, env.treasury))
	require.NoError(t, routerEngine.InitializeRouter(env.admin, env.routerAcc))

	server := NewServer(ServerConfig{
		Credit:     creditEngine,
		Reputation: reputationEngine,
		Router:     routerEngine,
		State:      env.manager,
		AuthToken:  testAuthToken,
		NowFunc:    nowFn,
	})
	env.server = httptest.NewServer(server.Router())
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) fund(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	account, err := env.manager.GetAccount(addr.Bytes())
	require.NoError(t, err)
	account.BalanceUSDC = big.NewInt(amount)
	require.NoError(t, env.manager.PutAccount(addr.Bytes(), account))
}

func (env *testEnv) call(t *testing.T, token, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		request["params"] = []interface{}{params}
	} else {
		request["params"] = []interface{}{}
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, env.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.server.Client().Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, decoded := env.call(t, "", "credit_noSuchMethod", map[string]interface{}{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestPostOfferAndQuery(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x10)
	env.fund(t, lender, 10_000_000)

	_, posted := env.call(t, "", "credit_postOffer", map[string]interface{}{
		"lender":                  lender.String(),
		"amount":                  "1000000",
		"minRateBps":              500,
		"maxDurationSecs":         2_592_000,
		"liquidationThresholdBps": 8_000,
	})
	require.Nil(t, posted.Error)
	var offer offerResult
	decodeResult(t, posted, &offer)
	require.Equal(t, uint64(1), offer.ID)
	require.True(t, offer.Active)
	require.Equal(t, "1000000", offer.Amount)

	_, queried := env.call(t, "", "credit_getOffer", map[string]interface{}{"id": offer.ID})
	require.Nil(t, queried.Error)
	var loaded offerResult
	decodeResult(t, queried, &loaded)
	require.Equal(t, offer.EscrowID, loaded.EscrowID)

	// The lender's spendable balance dropped by the escrowed principal.
	_, balance := env.call(t, "", "pln_getBalance", map[string]interface{}{"address": lender.String()})
	require.Nil(t, balance.Error)
	var bal balanceResult
	decodeResult(t, balance, &bal)
	require.Equal(t, "9000000", bal.BalanceUSDC)
}

func TestAcceptAndRepayFlow(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x10)
	borrower := testAddr(0x11)
	env.fund(t, lender, 10_000_000)
	env.fund(t, borrower, 5_000_000)

	_, registered := env.call(t, "", "reputation_register", map[string]interface{}{"address": borrower.String()})
	require.Nil(t, registered.Error)

	_, posted := env.call(t, "", "credit_postOffer", map[string]interface{}{
		"lender":                  lender.String(),
		"amount":                  "1000000",
		"minRateBps":              500,
		"maxDurationSecs":         2_592_000,
		"liquidationThresholdBps": 8_000,
	})
	require.Nil(t, posted.Error)
	var offer offerResult
	decodeResult(t, posted, &offer)

	_, accepted := env.call(t, "", "credit_acceptOffer", map[string]interface{}{
		"borrower": borrower.String(),
		"offerId":  offer.ID,
	})
	require.Nil(t, accepted.Error)
	var loan loanResult
	decodeResult(t, accepted, &loan)
	require.Equal(t, "active", loan.Status)
	require.Equal(t, "1000000", loan.Principal)

	// Half a year of accrual before repayment.
	env.now += 15_768_000
	_, repaid := env.call(t, "", "credit_repay", map[string]interface{}{
		"caller": borrower.String(),
		"loanId": loan.ID,
	})
	require.Nil(t, repaid.Error)
	var closed loanResult
	decodeResult(t, repaid, &closed)
	require.Equal(t, "repaid", closed.Status)

	// The borrower's profile now reflects the repayment.
	_, profile := env.call(t, "", "reputation_getProfile", map[string]interface{}{"address": borrower.String()})
	require.Nil(t, profile.Error)
	var prof profileResult
	decodeResult(t, profile, &prof)
	require.Equal(t, uint64(1), prof.LoansRepaid)
}

func TestLoanNotFoundMapsTo404(t *testing.T) {
	env := newTestEnv(t)
	resp, decoded := env.call(t, "", "credit_getLoan", map[string]interface{}{"id": 999})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeNotFound, decoded.Error.Code)
}

func TestAdminPauseRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp, decoded := env.call(t, "", "admin_pause", map[string]interface{}{"module": credit.ModuleName})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	_, paused := env.call(t, testAuthToken, "admin_pause", map[string]interface{}{"module": credit.ModuleName})
	require.Nil(t, paused.Error)

	lender := testAddr(0x10)
	env.fund(t, lender, 10_000_000)
	resp, blocked := env.call(t, "", "credit_postOffer", map[string]interface{}{
		"lender":                  lender.String(),
		"amount":                  "1000000",
		"minRateBps":              500,
		"maxDurationSecs":         2_592_000,
		"liquidationThresholdBps": 8_000,
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, codeModulePaused, blocked.Error.Code)

	_, resumed := env.call(t, testAuthToken, "admin_resume", map[string]interface{}{"module": credit.ModuleName})
	require.Nil(t, resumed.Error)
	_, reposted := env.call(t, "", "credit_postOffer", map[string]interface{}{
		"lender":                  lender.String(),
		"amount":                  "1000000",
		"minRateBps":              500,
		"maxDurationSecs":         2_592_000,
		"liquidationThresholdBps": 8_000,
	})
	require.Nil(t, reposted.Error)
}

// Pausing the custody module halts anything that moves account funds, even
// through other modules' entry points.
func TestVaultPauseBlocksRouterDeposit(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x20)
	env.fund(t, lender, 100_000_000)

	_, paused := env.call(t, testAuthToken, "admin_pause", map[string]interface{}{"module": vault.ModuleName})
	require.Nil(t, paused.Error)

	resp, blocked := env.call(t, "", "router_deposit", map[string]interface{}{
		"lender": lender.String(),
		"amount": "10000000",
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, codeModulePaused, blocked.Error.Code)

	_, resumed := env.call(t, testAuthToken, "admin_resume", map[string]interface{}{"module": vault.ModuleName})
	require.Nil(t, resumed.Error)
	_, deposited := env.call(t, "", "router_deposit", map[string]interface{}{
		"lender": lender.String(),
		"amount": "10000000",
	})
	require.Nil(t, deposited.Error)
}

func TestRouterDepositAndStats(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x20)
	env.fund(t, lender, 200_000_000)

	_, deposited := env.call(t, "", "router_deposit", map[string]interface{}{
		"lender": lender.String(),
		"amount": "50000000",
	})
	require.Nil(t, deposited.Error)
	var position positionResult
	decodeResult(t, deposited, &position)
	require.Equal(t, "50000000", position.InPassive)
	require.True(t, position.AutoRoute)

	_, stats := env.call(t, "", "router_getStats", nil)
	require.Nil(t, stats.Error)
	var pool statsResult
	decodeResult(t, stats, &pool)
	require.Equal(t, "50000000", pool.TotalDeposits)
	require.Equal(t, uint64(router.DefaultPassiveRateBps), pool.PassiveRateBps)
}

func TestRouterWithdrawInvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x20)
	env.fund(t, lender, 100_000_000)
	_, deposited := env.call(t, "", "router_deposit", map[string]interface{}{
		"lender": lender.String(),
		"amount": "10000000",
	})
	require.Nil(t, deposited.Error)

	resp, decoded := env.call(t, "", "router_withdraw", map[string]interface{}{
		"lender": lender.String(),
		"amount": "-5",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestUpdateFeeRatesRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	resp, decoded := env.call(t, "", "credit_updateFeeRates", map[string]interface{}{
		"caller":          env.admin.String(),
		"insuranceFeeBps": 1_200,
		"protocolFeeBps":  200,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	_, updated := env.call(t, testAuthToken, "credit_updateFeeRates", map[string]interface{}{
		"caller":          env.admin.String(),
		"insuranceFeeBps": 1_200,
		"protocolFeeBps":  200,
	})
	require.Nil(t, updated.Error)

	_, global := env.call(t, "", "credit_getGlobal", nil)
	require.Nil(t, global.Error)
	var g globalResult
	decodeResult(t, global, &g)
	require.Equal(t, uint64(1_200), g.InsuranceFeeBps)
	require.Equal(t, uint64(200), g.ProtocolFeeBps)
}

// Transactions roll back engine writes when the operation fails mid-way, so a
// failed accept leaves the offer untouched.
func TestFailedAcceptLeavesOfferActive(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(0x10)
	borrower := testAddr(0x11)
	env.fund(t, lender, 10_000_000)

	_, posted := env.call(t, "", "credit_postOffer", map[string]interface{}{
		"lender":                  lender.String(),
		"amount":                  "1000000",
		"minRateBps":              500,
		"maxDurationSecs":         2_592_000,
		"minReputation":           600,
		"liquidationThresholdBps": 8_000,
	})
	require.Nil(t, posted.Error)
	var offer offerResult
	decodeResult(t, posted, &offer)

	// Fresh profiles start at 500, below the offer's 600 gate.
	_, registered := env.call(t, "", "reputation_register", map[string]interface{}{"address": borrower.String()})
	require.Nil(t, registered.Error)
	resp, rejected := env.call(t, "", "credit_acceptOffer", map[string]interface{}{
		"borrower": borrower.String(),
		"offerId":  offer.ID,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeConflict, rejected.Error.Code)

	_, queried := env.call(t, "", "credit_getOffer", map[string]interface{}{"id": offer.ID})
	require.Nil(t, queried.Error)
	var loaded offerResult
	decodeResult(t, queried, &loaded)
	require.True(t, loaded.Active)
}
