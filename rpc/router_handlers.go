package rpc

import (
	"math/big"
	"net/http"
)

type routerAmountParams struct {
	Lender string `json:"lender"`
	Amount string `json:"amount"`
}

type routerRouteParams struct {
	Lender   string `json:"lender"`
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
	RateBps  uint64 `json:"rateBps"`
}

type routerStrategyParams struct {
	Lender           string `json:"lender"`
	MinActiveRateBps uint64 `json:"minActiveRateBps"`
	PassiveBufferBps uint64 `json:"passiveBufferBps"`
	AutoRoute        bool   `json:"autoRoute"`
}

type routerRateParams struct {
	Caller  string `json:"caller"`
	RateBps uint64 `json:"rateBps"`
}

type routerAddressParams struct {
	Address string `json:"address"`
}

type positionResult struct {
	Wallet           string `json:"wallet"`
	TotalDeposited   string `json:"totalDeposited"`
	InPassive        string `json:"inPassive"`
	InActive         string `json:"inActive"`
	MinActiveRateBps uint64 `json:"minActiveRateBps"`
	PassiveBufferBps uint64 `json:"passiveBufferBps"`
	AutoRoute        bool   `json:"autoRoute"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

func (s *Server) positionResult(lender string) (interface{}, *RPCError) {
	addr, rpcErr := parseAddress("lender", lender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	position, err := s.router.Position(addr)
	if err != nil {
		return nil, moduleError(err)
	}
	return positionResult{
		Wallet:           position.Wallet.String(),
		TotalDeposited:   bigString(position.TotalDeposited),
		InPassive:        bigString(position.InPassive),
		InActive:         bigString(position.InActive),
		MinActiveRateBps: position.MinActiveRateBps,
		PassiveBufferBps: position.PassiveBufferBps,
		AutoRoute:        position.AutoRoute,
		CreatedAt:        position.CreatedAt,
		UpdatedAt:        position.UpdatedAt,
	}, nil
}

func (s *Server) handleRouterDeposit(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerAmountParams
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
	if rpcErr := s.withinTx(func() error {
		return s.router.Deposit(lender, amount)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return s.positionResult(params.Lender)
}

type withdrawResult struct {
	Lender    string `json:"lender"`
	Requested string `json:"requested"`
	Paid      string `json:"paid"`
}

func (s *Server) handleRouterWithdraw(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerAmountParams
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
	var paid *big.Int
	if rpcErr := s.withinTx(func() error {
		var err error
		paid, err = s.router.Withdraw(lender, amount)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return withdrawResult{
		Lender:    lender.String(),
		Requested: bigString(amount),
		Paid:      bigString(paid),
	}, nil
}

type routeResult struct {
	Lender    string `json:"lender"`
	Borrower  string `json:"borrower"`
	Requested string `json:"requested"`
	Routed    string `json:"routed"`
}

func (s *Server) handleRouterRoute(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerRouteParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	lender, rpcErr := parseAddress("lender", params.Lender)
	if rpcErr != nil {
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
	var routed *big.Int
	if rpcErr := s.withinTx(func() error {
		var err error
		routed, err = s.router.RouteToLoan(lender, borrower, amount, params.RateBps)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return routeResult{
		Lender:    lender.String(),
		Borrower:  borrower.String(),
		Requested: bigString(amount),
		Routed:    bigString(routed),
	}, nil
}

type routerClaimResult struct {
	Lender    string `json:"lender"`
	Requested string `json:"requested"`
	Paid      string `json:"paid"`
}

func (s *Server) handleRouterClaimInsurance(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerAmountParams
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
	var paid *big.Int
	if rpcErr := s.withinTx(func() error {
		var err error
		paid, err = s.router.ClaimInsurance(lender, amount)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return routerClaimResult{
		Lender:    lender.String(),
		Requested: bigString(amount),
		Paid:      bigString(paid),
	}, nil
}

func (s *Server) handleRouterUpdateStrategy(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerStrategyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	lender, rpcErr := parseAddress("lender", params.Lender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.router.UpdateStrategy(lender, params.MinActiveRateBps, params.PassiveBufferBps, params.AutoRoute)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return s.positionResult(params.Lender)
}

func (s *Server) handleRouterUpdatePassiveRate(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if rpcErr := s.requireAuth(r); rpcErr != nil {
		return nil, rpcErr
	}
	var params routerRateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.withinTx(func() error {
		return s.router.UpdatePassiveRate(caller, params.RateBps)
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]uint64{"passiveRateBps": params.RateBps}, nil
}

func (s *Server) handleRouterGetPosition(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.positionResult(params.Address)
}

type exposureResult struct {
	Borrower      string `json:"borrower"`
	TotalExposure string `json:"totalExposure"`
}

func (s *Server) handleRouterGetExposure(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params routerAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	borrower, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	exposure, err := s.router.BorrowerExposure(borrower)
	if err != nil {
		return nil, moduleError(err)
	}
	return exposureResult{Borrower: borrower.String(), TotalExposure: bigString(exposure)}, nil
}

type statsResult struct {
	TotalDeposits    string `json:"totalDeposits"`
	TotalLoaned      string `json:"totalLoaned"`
	TotalPassive     string `json:"totalPassive"`
	InsuranceBalance string `json:"insuranceBalance"`
	PassiveRateBps   uint64 `json:"passiveRateBps"`
	MinP2PRateBps    uint64 `json:"minP2pRateBps"`
}

func (s *Server) handleRouterGetStats(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, errInvalidParams("no parameters expected", nil)
	}
	stats, err := s.router.PoolStats()
	if err != nil {
		return nil, moduleError(err)
	}
	return statsResult{
		TotalDeposits:    bigString(stats.TotalDeposits),
		TotalLoaned:      bigString(stats.TotalLoaned),
		TotalPassive:     bigString(stats.TotalPassive),
		InsuranceBalance: bigString(stats.InsuranceBalance),
		PassiveRateBps:   stats.PassiveRateBps,
		MinP2PRateBps:    stats.MinP2PRateBps,
	}, nil
}
