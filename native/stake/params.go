package stake

import "math/big"

const moduleName = "staking"

// RewardPerShareScale is the fixed-point scale applied to AccRewardPerShare.
// Rewards are multiplied by the scale before dividing by TotalStaked so that
// per-share values survive integer division; rounding-drift bounds depend on
// this exact multiply-before-divide ordering.
const RewardPerShareScale = 1_000_000_000_000

var perShareScale = big.NewInt(RewardPerShareScale)

// ModuleAccount is the well-known address holding all staked principal. It is
// a tagged address rather than a keyed account; nothing can spend from it
// except the engine's own transfers.
var ModuleAccount = moduleAccount("stakenet/stake/pool")

func moduleAccount(tag string) [20]byte {
	var addr [20]byte
	copy(addr[:], tag)
	return addr
}
