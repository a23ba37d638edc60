package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"plnmarket/crypto"
	"plnmarket/native/credit"
	"plnmarket/observability/metrics"
)

type creditPostOfferParams struct {
	Lender                  string `json:"lender"`
	Amount                  string `json:"amount"`
	MinRateBps              uint64 `json:"minRateBps"`
	MaxDurationSecs         uint64 `json:"maxDurationSecs"`
	MinReputation           uint64 `json:"minReputation"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
}

type creditCancelOfferParams struct {
	Lender  string `json:"lender"`
	OfferID uint64 `json:"offerId"`
}

type creditPostRequestParams struct {
	Borrower     string `json:"borrower"`
	Amount       string `json:"amount"`
	MaxRateBps   uint64 `json:"maxRateBps"`
	DurationSecs uint64 `json:"durationSecs"`
}

type creditAcceptOfferParams struct {
	Borrower string `json:"borrower"`
	OfferID  uint64 `json:"offerId"`
}

type creditLoanActionParams struct {
	Caller string `json:"caller"`
	LoanID uint64 `json:"loanId"`
}

type creditExecuteTradeParams struct {
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loanId"`
	Program  string `json:"program"`
}

type creditWhitelistParams struct {
	Caller  string `json:"caller"`
	Program string `json:"program"`
}

type creditFeeRateParams struct {
	Caller          string `json:"caller"`
	InsuranceFeeBps uint64 `json:"insuranceFeeBps"`
	ProtocolFeeBps  uint64 `json:"protocolFeeBps"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

// offerResult flattens a LendOffer for the wire, amounts as decimal strings
// and vault ids as hex.
type offerResult struct {
	ID                      uint64 `json:"id"`
	Lender                  string `json:"lender"`
	Amount                  string `json:"amount"`
	MinRateBps              uint64 `json:"minRateBps"`
	MaxDurationSecs         uint64 `json:"maxDurationSecs"`
	MinReputation           uint64 `json:"minReputation"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	Active                  bool   `json:"active"`
	EscrowID                string `json:"escrowId"`
	CreatedAt               int64  `json:"createdAt"`
}

func newOfferResult(offer *credit.LendOffer) offerResult {
	return offerResult{
		ID:                      offer.ID,
		Lender:                  offer.Lender.String(),
		Amount:                  bigString(offer.Amount),
		MinRateBps:              offer.MinRateBps,
		MaxDurationSecs:         offer.MaxDurationSecs,
		MinReputation:           offer.MinReputation,
		LiquidationThresholdBps: offer.LiquidationThresholdBps,
		Active:                  offer.Active,
		EscrowID:                hex.EncodeToString(offer.EscrowID[:]),
		CreatedAt:               offer.CreatedAt,
	}
}

type requestResult struct {
	ID           uint64 `json:"id"`
	Borrower     string `json:"borrower"`
	Amount       string `json:"amount"`
	MaxRateBps   uint64 `json:"maxRateBps"`
	DurationSecs uint64 `json:"durationSecs"`
	Active       bool   `json:"active"`
	CreatedAt    int64  `json:"createdAt"`
}

func newRequestResult(request *credit.BorrowRequest) requestResult {
	return requestResult{
		ID:           request.ID,
		Borrower:     request.Borrower.String(),
		Amount:       bigString(request.Amount),
		MaxRateBps:   request.MaxRateBps,
		DurationSecs: request.DurationSecs,
		Active:       request.Active,
		CreatedAt:    request.CreatedAt,
	}
}

type loanResult struct {
	ID                      uint64 `json:"id"`
	OfferID                 uint64 `json:"offerId"`
	Lender                  string `json:"lender"`
	Borrower                string `json:"borrower"`
	Principal               string `json:"principal"`
	RateBps                 uint64 `json:"rateBps"`
	StartTime               int64  `json:"startTime"`
	EndTime                 int64  `json:"endTime"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	Status                  string `json:"status"`
	VaultID                 string `json:"vaultId"`
	InsuranceClaimed        bool   `json:"insuranceClaimed"`
}

func newLoanResult(loan *credit.Loan) loanResult {
	return loanResult{
		ID:                      loan.ID,
		OfferID:                 loan.OfferID,
		Lender:                  loan.Lender.String(),
		Borrower:                loan.Borrower.String(),
		Principal:               bigString(loan.Principal),
		RateBps:                 loan.RateBps,
		StartTime:               loan.StartTime,
		EndTime:                 loan.EndTime,
		LiquidationThresholdBps: loan.LiquidationThresholdBps,
		Status:                  loan.Status.String(),
		VaultID:                 hex.EncodeToString(loan.VaultID[:]),
		InsuranceClaimed:        loan.InsuranceClaimed,
	}
}

type globalResult struct {
	Admin                   string   `json:"admin"`
	NextID                  uint64   `json:"nextId"`
	InsuranceFeeBps         uint64   `json:"insuranceFeeBps"`
	ProtocolFeeBps          uint64   `json:"protocolFeeBps"`
	InsurancePool           string   `json:"insurancePool"`
	Treasury                string   `json:"treasury"`
	TotalInsuranceCollected string   `json:"totalInsuranceCollected"`
	TotalInsuranceClaimed   string   `json:"totalInsuranceClaimed"`
	WhitelistedPrograms     []string `json:"whitelistedPrograms"`
}

func newGlobalResult(global *credit.GlobalState) globalResult {
	programs := make([]string, 0, len(global.WhitelistedPrograms))
	for _, program := range global.WhitelistedPrograms {
		programs = append(programs, program.String())
	}
	return globalResult{
		Admin:                   global.Admin.String(),
		NextID:                  global.NextID,
		InsuranceFeeBps:         global.InsuranceFeeBps,
		ProtocolFeeBps:          global.ProtocolFeeBps,
		InsurancePool:           global.InsurancePool.String(),
		Treasury:                global.Treasury.String(),
		TotalInsuranceCollected: bigString(global.TotalInsuranceCollected),
		TotalInsuranceClaimed:   bigString(global.TotalInsuranceClaimed),
		WhitelistedPrograms:     programs,
	}
}

func (s *Server) handleCreditPostOffer(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditPostOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	lender, rpcErr := parseAddress("lender", params.Lender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var offer *credit.LendOffer
	if rpcErr := s.withinTx(func() error {
		var err error
		offer, err = s.credit.PostOffer(lender, amount, params.MinRateBps, params.MaxDurationSecs, params.MinReputation, params.LiquidationThresholdBps)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return newOfferResult(offer), nil
}

func (s *Server) handleCreditCancelOffer(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditCancelOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	lender, rpcErr := parseAddress("lender", params.Lender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.CancelOffer(lender, params.OfferID)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]uint64{"offerId": params.OfferID}, nil
}

func (s *Server) handleCreditPostRequest(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditPostRequestParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	borrower, rpcErr := parseAddress("borrower", params.Borrower)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var request *credit.BorrowRequest
	if rpcErr := s.withinTx(func() error {
		var err error
		request, err = s.credit.PostRequest(borrower, amount, params.MaxRateBps, params.DurationSecs)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return newRequestResult(request), nil
}

func (s *Server) handleCreditAcceptOffer(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditAcceptOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	borrower, rpcErr := parseAddress("borrower", params.Borrower)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var loan *credit.Loan
	if rpcErr := s.withinTx(func() error {
		var err error
		loan, err = s.credit.AcceptOffer(borrower, params.OfferID)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	metrics.Loans().LoanCreated()
	return newLoanResult(loan), nil
}

func (s *Server) handleCreditRepay(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditLoanActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.Repay(caller, params.LoanID)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	metrics.Loans().LoanRepaid()
	loan, err := s.credit.Loan(params.LoanID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newLoanResult(loan), nil
}

func (s *Server) handleCreditLiquidate(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditLoanActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.Liquidate(caller, params.LoanID)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	metrics.Loans().LoanLiquidated()
	loan, err := s.credit.Loan(params.LoanID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newLoanResult(loan), nil
}

func (s *Server) handleCreditMarkDefault(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditLoanActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.MarkDefault(caller, params.LoanID)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	metrics.Loans().LoanDefaulted()
	loan, err := s.credit.Loan(params.LoanID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newLoanResult(loan), nil
}

type claimInsuranceResult struct {
	LoanID uint64 `json:"loanId"`
	Payout string `json:"payout"`
}

func (s *Server) handleCreditClaimInsurance(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditLoanActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var payout *big.Int
	if rpcErr := s.withinTx(func() error {
		var err error
		payout, err = s.credit.ClaimInsurance(caller, params.LoanID)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	metrics.Loans().InsuranceClaimed()
	return claimInsuranceResult{LoanID: params.LoanID, Payout: bigString(payout)}, nil
}

func (s *Server) handleCreditExecuteTrade(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params creditExecuteTradeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	borrower, rpcErr := parseAddress("borrower", params.Borrower)
	if rpcErr != nil {
		return nil, rpcErr
	}
	program, rpcErr := parseAddress("program", params.Program)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.ExecuteTrade(borrower, params.LoanID, program)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]uint64{"loanId": params.LoanID}, nil
}

type healthFactorResult struct {
	LoanID          uint64 `json:"loanId"`
	HealthFactorBps uint64 `json:"healthFactorBps"`
}

func (s *Server) handleCreditHealthFactor(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	health, err := s.credit.HealthFactor(params.ID)
	if err != nil {
		return nil, moduleError(err)
	}
	return healthFactorResult{LoanID: params.ID, HealthFactorBps: health}, nil
}

func (s *Server) handleCreditGetOffer(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	offer, err := s.credit.Offer(params.ID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newOfferResult(offer), nil
}

func (s *Server) handleCreditGetRequest(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.credit.Request(params.ID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newRequestResult(request), nil
}

func (s *Server) handleCreditGetLoan(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	loan, err := s.credit.Loan(params.ID)
	if err != nil {
		return nil, moduleError(err)
	}
	return newLoanResult(loan), nil
}

func (s *Server) handleCreditGetGlobal(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, errInvalidParams("no parameters expected", nil)
	}
	global, err := s.credit.Global()
	if err != nil {
		return nil, moduleError(err)
	}
	return newGlobalResult(global), nil
}

func (s *Server) handleCreditAddWhitelistedProgram(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.handleCreditWhitelist(r, req, s.credit.AddWhitelistedProgram)
}

func (s *Server) handleCreditRemoveWhitelistedProgram(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.handleCreditWhitelist(r, req, s.credit.RemoveWhitelistedProgram)
}

func (s *Server) handleCreditWhitelist(r *http.Request, req *RPCRequest, op func(caller, program crypto.Address) error) (interface{}, *RPCError) {
	if rpcErr := s.requireAuth(r); rpcErr != nil {
		return nil, rpcErr
	}
	var params creditWhitelistParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	program, rpcErr := parseAddress("program", params.Program)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return op(caller, program)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"program": program.String()}, nil
}

func (s *Server) handleCreditUpdateFeeRates(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if rpcErr := s.requireAuth(r); rpcErr != nil {
		return nil, rpcErr
	}
	var params creditFeeRateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.credit.UpdateFeeRates(caller, params.InsuranceFeeBps, params.ProtocolFeeBps)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]uint64{
		"insuranceFeeBps": params.InsuranceFeeBps,
		"protocolFeeBps":  params.ProtocolFeeBps,
	}, nil
}
