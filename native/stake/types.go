package stake

import "math/big"

// Pool captures the global accounting state for the staking module. Amounts are
// denominated in the asset's smallest unit and expressed as big integers to
// match on-chain precision.
type Pool struct {
	// TotalStaked is the aggregate principal currently deposited by all
	// stakers.
	TotalStaked *big.Int
	// LastRewardBlock records the block height at which AccRewardPerShare was
	// last refreshed.
	LastRewardBlock uint64
	// AccRewardPerShare is the cumulative reward earned per unit of stake
	// since genesis, fixed-point scaled by RewardPerShareScale to preserve
	// precision under integer division.
	AccRewardPerShare *big.Int
	// RewardRate is the emission applied per block. It lives on the pool
	// record so a rate switch commits or rolls back together with the
	// accumulator snapshot taken under the previous rate.
	RewardRate *big.Int
}

// NewPool returns an empty pool anchored at the given block height.
func NewPool(startBlock uint64) *Pool {
	return &Pool{
		TotalStaked:       big.NewInt(0),
		LastRewardBlock:   startBlock,
		AccRewardPerShare: big.NewInt(0),
		RewardRate:        big.NewInt(0),
	}
}

// Normalize ensures a freshly decoded pool is usable for arithmetic.
func (p *Pool) Normalize() *Pool {
	if p == nil {
		return nil
	}
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
	if p.RewardRate == nil {
		p.RewardRate = big.NewInt(0)
	}
	return p
}

// Position maintains the staking position for an individual participant.
type Position struct {
	// Address is the participant's account identifier.
	Address [20]byte
	// Amount is the principal currently staked, excluding rewards.
	Amount *big.Int
	// RewardDebt snapshots Amount * AccRewardPerShare / RewardPerShareScale at
	// the last settlement, isolating this position from other stakers'
	// activity.
	RewardDebt *big.Int
}

// Normalize ensures a freshly decoded position is usable for arithmetic.
func (p *Position) Normalize() *Position {
	if p == nil {
		return nil
	}
	if p.Amount == nil {
		p.Amount = big.NewInt(0)
	}
	if p.RewardDebt == nil {
		p.RewardDebt = big.NewInt(0)
	}
	return p
}
