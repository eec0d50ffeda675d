package referral

import "math/big"

// Binding is the permanent, first-write-wins pointer from a referee to the
// address that referred them.
type Binding struct {
	Referee  [20]byte
	Referrer [20]byte
}

// LedgerEntry accumulates the commission bookkeeping for a referrer.
type LedgerEntry struct {
	// Referrer is the account earning commission.
	Referrer [20]byte
	// ReferralCount is the number of referees bound to this referrer.
	ReferralCount uint64
	// TotalCommission is the lifetime commission earned; it only grows.
	TotalCommission *big.Int
	// PendingCommission is the claimable balance, zeroed on withdrawal.
	PendingCommission *big.Int
}

// Normalize ensures a freshly decoded entry is usable for arithmetic.
func (e *LedgerEntry) Normalize() *LedgerEntry {
	if e == nil {
		return nil
	}
	if e.TotalCommission == nil {
		e.TotalCommission = big.NewInt(0)
	}
	if e.PendingCommission == nil {
		e.PendingCommission = big.NewInt(0)
	}
	return e
}
