package stake

import "math/big"

// Advance brings the accumulator up to date at block height now under the
// given emission rate (reward units per block). Calls with a stale or repeated
// height are no-ops, which also rejects clock regression. An empty pool only
// fast-forwards the clock: reward for the skipped interval is permanently
// forgone, so the first staker restarts emission from their own entry point.
//
// Arithmetic uses arbitrary-precision integers throughout; AccRewardPerShare
// grows without bound and cannot wrap.
func (p *Pool) Advance(now uint64, rewardRate *big.Int) {
	if p == nil || now <= p.LastRewardBlock {
		return
	}
	p.Normalize()
	if p.TotalStaked.Sign() == 0 {
		p.LastRewardBlock = now
		return
	}
	elapsed := new(big.Int).SetUint64(now - p.LastRewardBlock)
	if rewardRate != nil && rewardRate.Sign() > 0 {
		reward := new(big.Int).Mul(elapsed, rewardRate)
		delta := reward.Mul(reward, perShareScale)
		delta = delta.Quo(delta, p.TotalStaked)
		p.AccRewardPerShare = new(big.Int).Add(p.AccRewardPerShare, delta)
	}
	p.LastRewardBlock = now
}

// PendingReward quotes the reward the position could settle at block height
// now without mutating the pool. The accumulator is advanced virtually using
// the same formula as Advance.
func (p *Pool) PendingReward(pos *Position, now uint64, rewardRate *big.Int) *big.Int {
	if p == nil || pos == nil {
		return big.NewInt(0)
	}
	p.Normalize()
	pos.Normalize()

	virtualAcc := new(big.Int).Set(p.AccRewardPerShare)
	if now > p.LastRewardBlock && p.TotalStaked.Sign() > 0 && rewardRate != nil && rewardRate.Sign() > 0 {
		elapsed := new(big.Int).SetUint64(now - p.LastRewardBlock)
		reward := elapsed.Mul(elapsed, rewardRate)
		delta := reward.Mul(reward, perShareScale)
		delta = delta.Quo(delta, p.TotalStaked)
		virtualAcc = virtualAcc.Add(virtualAcc, delta)
	}

	pending := new(big.Int).Mul(pos.Amount, virtualAcc)
	pending = pending.Quo(pending, perShareScale)
	pending = pending.Sub(pending, pos.RewardDebt)
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}

// accruedDebt computes the reward-debt snapshot for the given principal under
// the current accumulator value.
func (p *Pool) accruedDebt(amount *big.Int) *big.Int {
	debt := new(big.Int).Mul(amount, p.AccRewardPerShare)
	return debt.Quo(debt, perShareScale)
}
