package rpc

import (
	"net/http"

	"plnmarket/native/reputation"
)

type reputationAddressParams struct {
	Address string `json:"address"`
}

type profileResult struct {
	Owner                string `json:"owner"`
	LoansTaken           uint64 `json:"loansTaken"`
	LoansRepaid          uint64 `json:"loansRepaid"`
	LoansDefaulted       uint64 `json:"loansDefaulted"`
	TotalBorrowed        string `json:"totalBorrowed"`
	TotalRepaid          string `json:"totalRepaid"`
	TotalLent            string `json:"totalLent"`
	SuccessfulRepayments uint64 `json:"successfulRepayments"`
	Defaults             uint64 `json:"defaults"`
	Score                uint64 `json:"score"`
	CreditTier           uint8  `json:"creditTier"`
	MaxBorrowLimit       string `json:"maxBorrowLimit"`
	CreatedAt            int64  `json:"createdAt"`
	UpdatedAt            int64  `json:"updatedAt"`
}

func newProfileResult(profile *reputation.AgentProfile) profileResult {
	return profileResult{
		Owner:                profile.Owner.String(),
		LoansTaken:           profile.LoansTaken,
		LoansRepaid:          profile.LoansRepaid,
		LoansDefaulted:       profile.LoansDefaulted,
		TotalBorrowed:        bigString(profile.TotalBorrowed),
		TotalRepaid:          bigString(profile.TotalRepaid),
		TotalLent:            bigString(profile.TotalLent),
		SuccessfulRepayments: profile.SuccessfulRepayments,
		Defaults:             profile.Defaults,
		Score:                profile.Score,
		CreditTier:           profile.CreditTier,
		MaxBorrowLimit:       bigString(profile.MaxBorrowLimit),
		CreatedAt:            profile.CreatedAt,
		UpdatedAt:            profile.UpdatedAt,
	}
}

func (s *Server) handleReputationRegister(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params reputationAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var profile *reputation.AgentProfile
	if rpcErr := s.withinTx(func() error {
		var err error
		profile, err = s.reputation.RegisterAgent(owner)
		return err
	}); rpcErr != nil {
		return nil, rpcErr
	}
	return newProfileResult(profile), nil
}

func (s *Server) handleReputationGetProfile(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params reputationAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	agent, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	profile, err := s.reputation.Profile(agent)
	if err != nil {
		return nil, moduleError(err)
	}
	return newProfileResult(profile), nil
}

type scoreResult struct {
	Address string `json:"address"`
	Score   uint64 `json:"score"`
}

func (s *Server) handleReputationGetScore(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params reputationAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	agent, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	score, err := s.reputation.Score(agent)
	if err != nil {
		return nil, moduleError(err)
	}
	return scoreResult{Address: agent.String(), Score: score}, nil
}

type tierInfoResult struct {
	Tier                 uint8  `json:"tier"`
	MaxBorrowLimit       string `json:"maxBorrowLimit"`
	SuccessfulRepayments uint64 `json:"successfulRepayments"`
	Defaults             uint64 `json:"defaults"`
	NextTier             uint8  `json:"nextTier"`
	RepaymentsToNext     uint64 `json:"repaymentsToNext"`
}

func (s *Server) handleReputationTierInfo(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params reputationAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	agent, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := s.reputation.CreditTierInfo(agent)
	if err != nil {
		return nil, moduleError(err)
	}
	return tierInfoResult{
		Tier:                 info.Tier,
		MaxBorrowLimit:       bigString(info.MaxBorrowLimit),
		SuccessfulRepayments: info.SuccessfulRepayments,
		Defaults:             info.Defaults,
		NextTier:             info.NextTier,
		RepaymentsToNext:     info.RepaymentsToNext,
	}, nil
}
