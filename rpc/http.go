package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plnmarket/core/types"
	"plnmarket/native/common"
	"plnmarket/native/credit"
	"plnmarket/native/reputation"
	"plnmarket/native/router"
	"plnmarket/native/vault"
	"plnmarket/observability/metrics"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// State is the slice of the state manager the RPC surface needs: transaction
// scoping for mutating methods, account reads and the module pause switch.
type State interface {
	WithinTransaction(fn func() error) error
	GetAccount(addr []byte) (*types.Account, error)
	IsPaused(module string) bool
	SetPaused(module string, paused bool)
}

// ServerConfig wires the engines and ambient services into the RPC server.
type ServerConfig struct {
	Credit     *credit.Engine
	Reputation *reputation.Engine
	Router     *router.Engine
	State      State

	// AuthToken gates admin methods. When empty they are disabled outright.
	AuthToken string
	Log       *slog.Logger
	NowFunc   func() int64
}

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *RPCError)

type Server struct {
	credit     *credit.Engine
	reputation *reputation.Engine
	router     *router.Engine
	state      State

	authToken string
	log       *slog.Logger
	now       func() int64

	methods map[string]handlerFunc

	quotaMu sync.Mutex
	quota   common.Quota
	usage   map[string]common.QuotaNow
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.NowFunc
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	s := &Server{
		credit:     cfg.Credit,
		reputation: cfg.Reputation,
		router:     cfg.Router,
		state:      cfg.State,
		authToken:  strings.TrimSpace(cfg.AuthToken),
		log:        logger,
		now:        now,
		quota:      common.Quota{MaxRequestsPerMin: 600, EpochSeconds: 60},
		usage:      make(map[string]common.QuotaNow),
	}
	s.methods = map[string]handlerFunc{
		"pln_getBalance": s.handleGetBalance,

		"credit_postOffer":                s.handleCreditPostOffer,
		"credit_cancelOffer":              s.handleCreditCancelOffer,
		"credit_postRequest":              s.handleCreditPostRequest,
		"credit_acceptOffer":              s.handleCreditAcceptOffer,
		"credit_repay":                    s.handleCreditRepay,
		"credit_liquidate":                s.handleCreditLiquidate,
		"credit_markDefault":              s.handleCreditMarkDefault,
		"credit_claimInsurance":           s.handleCreditClaimInsurance,
		"credit_executeTrade":             s.handleCreditExecuteTrade,
		"credit_healthFactor":             s.handleCreditHealthFactor,
		"credit_getOffer":                 s.handleCreditGetOffer,
		"credit_getRequest":               s.handleCreditGetRequest,
		"credit_getLoan":                  s.handleCreditGetLoan,
		"credit_getGlobal":                s.handleCreditGetGlobal,
		"credit_addWhitelistedProgram":    s.handleCreditAddWhitelistedProgram,
		"credit_removeWhitelistedProgram": s.handleCreditRemoveWhitelistedProgram,
		"credit_updateFeeRates":           s.handleCreditUpdateFeeRates,

		"reputation_register":   s.handleReputationRegister,
		"reputation_getProfile": s.handleReputationGetProfile,
		"reputation_getScore":   s.handleReputationGetScore,
		"reputation_tierInfo":   s.handleReputationTierInfo,

		"router_deposit":           s.handleRouterDeposit,
		"router_withdraw":          s.handleRouterWithdraw,
		"router_route":             s.handleRouterRoute,
		"router_claimInsurance":    s.handleRouterClaimInsurance,
		"router_updateStrategy":    s.handleRouterUpdateStrategy,
		"router_updatePassiveRate": s.handleRouterUpdatePassiveRate,
		"router_getPosition":       s.handleRouterGetPosition,
		"router_getExposure":       s.handleRouterGetExposure,
		"router_getStats":          s.handleRouterGetStats,

		"admin_pause":  s.handleAdminPause,
		"admin_resume": s.handleAdminResume,
	}
	return s
}

// Router assembles the HTTP mux: JSON-RPC at the root, liveness check and
// Prometheus metrics alongside.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handleRPC)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			"request_id", requestID,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// checkRate enforces the per-client request quota over one-minute epochs.
func (s *Server) checkRate(r *http.Request) *RPCError {
	key := clientKey(r)
	epoch := uint64(s.now()) / uint64(s.quota.EpochSeconds)

	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	next, err := common.CheckQuota(s.quota, epoch, s.usage[key], 1, 0)
	if err != nil {
		return rpcError(http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", nil)
	}
	s.usage[key] = next
	return nil
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return errUnauthorized("admin methods are disabled")
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errUnauthorized("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return errUnauthorized("invalid bearer token")
	}
	return nil
}

func moduleOf(method string) string {
	if idx := strings.Index(method, "_"); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if rpcErr := s.checkRate(r); rpcErr != nil {
		writeError(w, nil, rpcErr)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, rpcError(http.StatusBadRequest, codeParseError, "unable to read request", nil))
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, rpcError(http.StatusBadRequest, codeParseError, "invalid JSON request", err.Error()))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, rpcError(http.StatusBadRequest, codeInvalidRequest, "unsupported JSON-RPC version", req.JSONRPC))
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, req.ID, rpcError(http.StatusNotFound, codeMethodNotFound, "method not found", req.Method))
		return
	}

	start := time.Now()
	result, rpcErr := handler(r, &req)
	module := moduleOf(req.Method)
	if rpcErr != nil {
		metrics.Module().Observe(module, req.Method, "error", time.Since(start))
		metrics.Module().ObserveError(module, req.Method, http.StatusText(rpcErr.HTTPStatus()))
		writeError(w, req.ID, rpcErr)
		return
	}
	metrics.Module().Observe(module, req.Method, "ok", time.Since(start))
	writeResult(w, req.ID, result)
}

// withinTx runs a mutating handler body inside a buffered state transaction so
// partial failures never leave inconsistent records behind.
func (s *Server) withinTx(fn func() error) *RPCError {
	var moduleErr error
	err := s.state.WithinTransaction(func() error {
		moduleErr = fn()
		return moduleErr
	})
	if moduleErr != nil {
		return moduleError(moduleErr)
	}
	if err != nil {
		return rpcError(http.StatusInternalServerError, codeServerError, "state commit failed", err.Error())
	}
	return nil
}

// --- balances ---

type balanceParams struct {
	Address string `json:"address"`
}

type balanceResult struct {
	Address     string `json:"address"`
	BalanceUSDC string `json:"balanceUSDC"`
	Nonce       uint64 `json:"nonce"`
}

func (s *Server) handleGetBalance(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, err := s.state.GetAccount(addr.Bytes())
	if err != nil {
		return nil, moduleError(err)
	}
	return balanceResult{
		Address:     addr.String(),
		BalanceUSDC: bigString(account.BalanceUSDC),
		Nonce:       account.Nonce,
	}, nil
}

// --- admin pause switch ---

type pauseParams struct {
	Module string `json:"module"`
}

func validPauseModule(module string) bool {
	switch module {
	case credit.ModuleName, reputation.ModuleName, router.ModuleName, vault.ModuleName:
		return true
	}
	return false
}

func (s *Server) handleAdminPause(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.setPaused(r, req, true)
}

func (s *Server) handleAdminResume(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.setPaused(r, req, false)
}

func (s *Server) setPaused(r *http.Request, req *RPCRequest, paused bool) (interface{}, *RPCError) {
	if rpcErr := s.requireAuth(r); rpcErr != nil {
		return nil, rpcErr
	}
	var params pauseParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	module := strings.TrimSpace(strings.ToLower(params.Module))
	if !validPauseModule(module) {
		return nil, errInvalidParams("unknown module", params.Module)
	}
	s.state.SetPaused(module, paused)
	s.log.Info("module pause switch", "module", module, "paused", paused)
	return map[string]interface{}{"module": module, "paused": paused}, nil
}
