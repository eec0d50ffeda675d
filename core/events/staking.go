package events

import "math/big"

const (
	// TypeStakeDeposited is emitted when a user adds principal to the pool,
	// including zero-amount claim-only deposits.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeWithdrawn is emitted when a user removes principal from the
	// pool.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardPaid is emitted when a user's pending reward is settled
	// from the treasury.
	TypeStakeRewardPaid = "stake.reward.paid"
	// TypeStakeEmissionUpdated is emitted when the per-block emission rate
	// changes.
	TypeStakeEmissionUpdated = "stake.emission.updated"
	// TypeReferralRecorded is emitted when a referee is bound to a referrer
	// for the first time.
	TypeReferralRecorded = "referral.recorded"
	// TypeReferralCommissionRecorded is emitted when commission accrues to a
	// referrer's pending balance.
	TypeReferralCommissionRecorded = "referral.commission.recorded"
	// TypeReferralCommissionWithdrawn is emitted when a referrer claims their
	// pending commission balance.
	TypeReferralCommissionWithdrawn = "referral.commission.withdrawn"
)

// StakeDeposited captures a principal deposit into the staking pool.
type StakeDeposited struct {
	User   [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// StakeWithdrawn captures a principal withdrawal from the staking pool.
type StakeWithdrawn struct {
	User   [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// StakeRewardPaid captures a settled pending reward paid out of the treasury.
type StakeRewardPaid struct {
	User   [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (StakeRewardPaid) EventType() string { return TypeStakeRewardPaid }

// StakeEmissionUpdated captures an emission rate change applied after the pool
// was brought up to date under the previous rate.
type StakeEmissionUpdated struct {
	Previous *big.Int
	Updated  *big.Int
}

// EventType implements the Event interface.
func (StakeEmissionUpdated) EventType() string { return TypeStakeEmissionUpdated }

// ReferralRecorded captures a first-write referee to referrer binding.
type ReferralRecorded struct {
	User     [20]byte
	Referrer [20]byte
}

// EventType implements the Event interface.
func (ReferralRecorded) EventType() string { return TypeReferralRecorded }

// ReferralCommissionRecorded captures commission accrued to a referrer from a
// referee's settled reward.
type ReferralCommissionRecorded struct {
	Referrer   [20]byte
	Referee    [20]byte
	Commission *big.Int
}

// EventType implements the Event interface.
func (ReferralCommissionRecorded) EventType() string { return TypeReferralCommissionRecorded }

// ReferralCommissionWithdrawn captures a referrer claiming their accumulated
// pending commission.
type ReferralCommissionWithdrawn struct {
	Referrer [20]byte
	Amount   *big.Int
}

// EventType implements the Event interface.
func (ReferralCommissionWithdrawn) EventType() string { return TypeReferralCommissionWithdrawn }
