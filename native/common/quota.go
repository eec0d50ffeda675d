package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	EpochID  uint64
}

// Quota defines the request limits enforced per address at the gateway.
type Quota struct {
	MaxRequestsPerMin uint32
	EpochSeconds      uint32
}

// CheckQuota verifies whether the additional requests fit within the configured
// quota. The returned QuotaNow reflects the updated counters when the quota is
// not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32) (QuotaNow, error) {
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

	return next, nil
}
