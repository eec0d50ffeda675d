package stake

import (
	"math/big"

	"stakenet/core/events"
	"stakenet/core/types"
	nativecommon "stakenet/native/common"
)

var zeroAddress [20]byte

type engineState interface {
	Pool() (*Pool, error)
	PutPool(pool *Pool) error
	GetPosition(addr [20]byte) (*Position, error)
	PutPosition(position *Position) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// ReferralBank is the slice of the referral ledger the staking engine drives
// during settlement. The ledger never calls back into the engine.
type ReferralBank interface {
	RecordReferral(operator, referee, referrer [20]byte) (bool, error)
	AccrueCommission(operator, referee [20]byte, reward *big.Int) (*big.Int, error)
}

// Engine orchestrates the primary state transitions for the staking module:
// accumulator advancement, reward settlement and principal movement, in that
// order for every mutating call.
type Engine struct {
	state         engineState
	moduleAddress [20]byte
	treasury      [20]byte
	blockHeight   uint64
	pauses        nativecommon.PauseView
	guard         nativecommon.CallGuard
	emitter       events.Emitter
	referrals     ReferralBank
}

// NewEngine constructs a staking engine. The module address holds all staked
// principal; the treasury funds reward payouts and is distinct from the pool's
// own holdings.
func NewEngine(moduleAddr, treasury [20]byte) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		treasury:      treasury,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the pause view consulted at every mutating entry point.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the sink receiving staking events. A nil emitter
// silences the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetReferrals wires the referral ledger invoked on every reward settlement.
// The engine's module address must be registered as an operator on the ledger.
func (e *Engine) SetReferrals(bank ReferralBank) {
	if e == nil {
		return
	}
	e.referrals = bank
}

// SetBlockHeight records the block height used as "now" for accrual.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// ModuleAddress returns the account holding staked principal.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

// SetRewardRate switches the emission rate after bringing the pool up to date
// under the previous rate, so the old rate applies up to the switch point.
// The rate is part of the pool record: the switch and the accumulator
// snapshot persist together or not at all.
func (e *Engine) SetRewardRate(rate *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidRewardRate
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pool.Advance(e.blockHeight, pool.RewardRate)
	previous := new(big.Int).Set(pool.RewardRate)
	pool.RewardRate = new(big.Int).Set(rate)
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeEmissionUpdated{Previous: previous, Updated: new(big.Int).Set(rate)})
	return nil
}

// SetTreasury points reward settlement at a new funding account.
func (e *Engine) SetTreasury(addr [20]byte) error {
	if e == nil {
		return ErrNilState
	}
	if addr == zeroAddress {
		return ErrInvalidTreasury
	}
	e.treasury = addr
	return nil
}

// Deposit moves amount of the asset from the caller into the pool, settling
// any pending reward first so the payout reflects the pre-deposit stake. A
// zero amount is legal and acts as a pure reward claim. The referrer is bound
// on a first-write-wins basis and silently ignored when zero, self-referring
// or already bound.
func (e *Engine) Deposit(user [20]byte, amount *big.Int, referrer [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pool.Advance(e.blockHeight, pool.RewardRate)

	if amount.Sign() > 0 && referrer != zeroAddress && referrer != user && e.referrals != nil {
		if _, err := e.referrals.RecordReferral(e.moduleAddress, user, referrer); err != nil {
			return err
		}
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if err := e.settleReward(pool, position); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		userAcc, err := e.loadAccount(user)
		if err != nil {
			return err
		}
		if userAcc.Balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		moduleAcc, err := e.loadAccount(e.moduleAddress)
		if err != nil {
			return err
		}
		userAcc.Balance = new(big.Int).Sub(userAcc.Balance, amount)
		moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
		if err := e.state.PutAccount(user, userAcc); err != nil {
			return err
		}
		if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
			return err
		}
		position.Amount = new(big.Int).Add(position.Amount, amount)
		pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	}

	position.RewardDebt = pool.accruedDebt(position.Amount)

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.StakeDeposited{User: user, Amount: new(big.Int).Set(amount)})
	return nil
}

// Withdraw settles any pending reward and then releases amount of principal
// back to the caller. Requesting more than the staked principal fails with
// ErrInsufficientBalance before any state changes.
func (e *Engine) Withdraw(user [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pool.Advance(e.blockHeight, pool.RewardRate)

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if position.Amount.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.settleReward(pool, position); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		moduleAcc, err := e.loadAccount(e.moduleAddress)
		if err != nil {
			return err
		}
		if moduleAcc.Balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		userAcc, err := e.loadAccount(user)
		if err != nil {
			return err
		}
		moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, amount)
		userAcc.Balance = new(big.Int).Add(userAcc.Balance, amount)
		if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
			return err
		}
		if err := e.state.PutAccount(user, userAcc); err != nil {
			return err
		}
		position.Amount = new(big.Int).Sub(position.Amount, amount)
		pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	}

	position.RewardDebt = pool.accruedDebt(position.Amount)

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.StakeWithdrawn{User: user, Amount: new(big.Int).Set(amount)})
	return nil
}

// PendingReward quotes what the user could claim at the engine's current
// block height without mutating state.
func (e *Engine) PendingReward(user [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	return pool.PendingReward(position, e.blockHeight, pool.RewardRate), nil
}

// PositionOf returns the stored staking position for the user, normalised for
// arithmetic. A user with no history gets an empty position.
func (e *Engine) PositionOf(user [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.ensurePosition(user)
}

// PoolState returns the current pool accounting state.
func (e *Engine) PoolState() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.ensurePool()
}

// SyncPoolBalance sweeps any surplus held by the module account above the
// staked-principal bookkeeping into the treasury. Surplus appears when the
// asset is sent to the module address directly rather than through Deposit.
// The sweep never touches the accumulator or any position.
func (e *Engine) SyncPoolBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.treasury == zeroAddress {
		return nil, ErrInvalidTreasury
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(moduleAcc.Balance, pool.TotalStaked)
	if surplus.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	treasuryAcc, err := e.loadAccount(e.treasury)
	if err != nil {
		return nil, err
	}
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, surplus)
	treasuryAcc.Balance = new(big.Int).Add(treasuryAcc.Balance, surplus)
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.treasury, treasuryAcc); err != nil {
		return nil, err
	}
	return surplus, nil
}

// settleReward pays out the position's pending reward from the treasury and
// forwards the settled amount to the referral ledger for commission. The
// caller must have advanced the pool first.
func (e *Engine) settleReward(pool *Pool, position *Position) error {
	pending := pool.accruedDebt(position.Amount)
	pending = pending.Sub(pending, position.RewardDebt)
	if pending.Sign() <= 0 {
		return nil
	}
	if e.treasury == zeroAddress {
		return ErrInvalidTreasury
	}
	treasuryAcc, err := e.loadAccount(e.treasury)
	if err != nil {
		return err
	}
	if treasuryAcc.Balance.Cmp(pending) < 0 {
		return ErrTreasuryInsufficient
	}
	userAcc, err := e.loadAccount(position.Address)
	if err != nil {
		return err
	}
	treasuryAcc.Balance = new(big.Int).Sub(treasuryAcc.Balance, pending)
	userAcc.Balance = new(big.Int).Add(userAcc.Balance, pending)
	if err := e.state.PutAccount(e.treasury, treasuryAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(position.Address, userAcc); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeRewardPaid{User: position.Address, Amount: new(big.Int).Set(pending)})

	if e.referrals != nil {
		if _, err := e.referrals.AccrueCommission(e.moduleAddress, position.Address, pending); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ensurePool() (*Pool, error) {
	pool, err := e.state.Pool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool(e.blockHeight)
	}
	return pool.Normalize(), nil
}

func (e *Engine) ensurePosition(addr [20]byte) (*Position, error) {
	position, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Address: addr}
	}
	return position.Normalize(), nil
}

func (e *Engine) loadAccount(addr [20]byte) (*types.Account, error) {
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureBalance()
	return account, nil
}
