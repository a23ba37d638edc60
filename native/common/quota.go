package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaUSDCCapExceeded  = errors.New("quota usdc cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	USDCUsed uint64
	EpochID  uint64
}

// Quota defines the limits enforced for a module interaction per address.
type Quota struct {
	MaxRequestsPerMin uint32
	MaxUSDCPerEpoch   uint64
	EpochSeconds      uint32
}

// CheckQuota verifies whether the additional request and USDC usage fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addUSDC uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerMin > 0 && next.ReqCount > q.MaxRequestsPerMin {
		return prev, ErrQuotaRequestsExceeded
	}

	if addUSDC > 0 {
		if next.USDCUsed > math.MaxUint64-addUSDC {
			return prev, ErrQuotaCounterOverflow
		}
		next.USDCUsed += addUSDC
	}
	if q.MaxUSDCPerEpoch > 0 && next.USDCUsed > q.MaxUSDCPerEpoch {
		return prev, ErrQuotaUSDCCapExceeded
	}

	return next, nil
}
