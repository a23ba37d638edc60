package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"plnmarket/crypto"
	"plnmarket/native/common"
	"plnmarket/native/credit"
	"plnmarket/native/reputation"
	"plnmarket/native/router"
	"plnmarket/native/vault"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeConflict       = -32009
	codeRateLimited    = -32020
	codeModulePaused   = -32021
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

// HTTPStatus reports the status line paired with the error body.
func (e *RPCError) HTTPStatus() int {
	if e == nil || e.status == 0 {
		return http.StatusOK
	}
	return e.status
}

func rpcError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
}

func errInvalidParams(message string, data interface{}) *RPCError {
	return rpcError(http.StatusBadRequest, codeInvalidParams, message, data)
}

func errUnauthorized(message string) *RPCError {
	return rpcError(http.StatusUnauthorized, codeUnauthorized, message, nil)
}

// moduleError translates engine sentinels into JSON-RPC errors so callers can
// branch on stable codes instead of message strings.
func moduleError(err error) *RPCError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrModulePaused):
		return rpcError(http.StatusServiceUnavailable, codeModulePaused, err.Error(), nil)
	case errors.Is(err, credit.ErrUnauthorized),
		errors.Is(err, reputation.ErrUnauthorized),
		errors.Is(err, router.ErrUnauthorized):
		return rpcError(http.StatusForbidden, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, credit.ErrOfferNotFound),
		errors.Is(err, credit.ErrRequestNotFound),
		errors.Is(err, credit.ErrLoanNotFound),
		errors.Is(err, reputation.ErrProfileNotFound),
		errors.Is(err, router.ErrNoPosition),
		errors.Is(err, vault.ErrVaultNotFound):
		return rpcError(http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidRate),
		errors.Is(err, credit.ErrInvalidDuration),
		errors.Is(err, credit.ErrInvalidLiquidationThreshold),
		errors.Is(err, credit.ErrInvalidFeeRate),
		errors.Is(err, router.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidAmount):
		return rpcError(http.StatusBadRequest, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, credit.ErrMathOverflow):
		return rpcError(http.StatusInternalServerError, codeServerError, err.Error(), nil)
	default:
		// State-machine conflicts: wrong status, caps, exhausted pools.
		return rpcError(http.StatusConflict, codeConflict, err.Error(), nil)
	}
}

func writeError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	if status := rpcErr.HTTPStatus(); status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// decodeParams expects exactly one object parameter and unmarshals it.
func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return errInvalidParams("expected a single parameter object", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errInvalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, errInvalidParams(fmt.Sprintf("invalid %s address", field), err.Error())
	}
	return addr, nil
}

// parseAmount decodes a base-10 USDC amount. Amounts travel as strings so
// callers never lose precision to JSON number parsing.
func parseAmount(field, value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errInvalidParams(fmt.Sprintf("%s is required", field), nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errInvalidParams(fmt.Sprintf("invalid %s amount", field), value)
	}
	return amount, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
