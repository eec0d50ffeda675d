package referral

import "math/big"

const moduleName = "referral"

const (
	// CommissionBpsDenominator is the fixed denominator for commission math.
	CommissionBpsDenominator = 10_000
	// MaxCommissionRateBps caps the configurable commission rate at 20% of the
	// settled reward.
	MaxCommissionRateBps = 2_000
	// DefaultCommissionRateBps is the rate applied when governance has not set
	// one explicitly (10%).
	DefaultCommissionRateBps = 1_000
)

// MaxMinWithdrawAmount bounds the configurable dust floor so governance cannot
// lock pending commission behind an unreachable threshold.
var MaxMinWithdrawAmount = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// CollectorAccount is the well-known address holding accrued commission until
// referrers withdraw it.
var CollectorAccount = collectorAccount("stakenet/referral/pot")

func collectorAccount(tag string) [20]byte {
	var addr [20]byte
	copy(addr[:], tag)
	return addr
}
