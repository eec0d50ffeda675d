package referral

import "errors"

var (
	ErrNilState             = errors.New("referral ledger: state not configured")
	ErrUnauthorized         = errors.New("referral ledger: caller is not a registered operator")
	ErrCommissionRateBound  = errors.New("referral ledger: commission rate exceeds maximum")
	ErrWithdrawBound        = errors.New("referral ledger: withdraw threshold exceeds maximum")
	ErrInvalidTreasury      = errors.New("referral ledger: treasury address required")
	ErrTreasuryInsufficient = errors.New("referral ledger: treasury cannot cover commission")
	ErrCollectorInsolvent   = errors.New("referral ledger: collector cannot cover pending commission")
)
