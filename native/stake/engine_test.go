package stake

import (
	"errors"
	"math/big"
	"testing"

	"stakenet/core/types"
	nativecommon "stakenet/native/common"
	"stakenet/native/referral"
)

type mockState struct {
	pool      *Pool
	positions map[[20]byte]*Position
	accounts  map[[20]byte]*types.Account
	bindings  map[[20]byte]*referral.Binding
	entries   map[[20]byte]*referral.LedgerEntry
}

func newMockState() *mockState {
	return &mockState{
		positions: make(map[[20]byte]*Position),
		accounts:  make(map[[20]byte]*types.Account),
		bindings:  make(map[[20]byte]*referral.Binding),
		entries:   make(map[[20]byte]*referral.LedgerEntry),
	}
}

func (m *mockState) Pool() (*Pool, error)     { return m.pool, nil }
func (m *mockState) PutPool(pool *Pool) error { m.pool = pool; return nil }
func (m *mockState) GetPosition(addr [20]byte) (*Position, error) {
	return m.positions[addr], nil
}
func (m *mockState) PutPosition(position *Position) error {
	m.positions[position.Address] = position
	return nil
}
func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	return m.accounts[addr], nil
}
func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account
	return nil
}
func (m *mockState) GetReferralBinding(referee [20]byte) (*referral.Binding, error) {
	return m.bindings[referee], nil
}
func (m *mockState) PutReferralBinding(binding *referral.Binding) error {
	m.bindings[binding.Referee] = binding
	return nil
}
func (m *mockState) GetReferralEntry(referrer [20]byte) (*referral.LedgerEntry, error) {
	return m.entries[referrer], nil
}
func (m *mockState) PutReferralEntry(entry *referral.LedgerEntry) error {
	m.entries[entry.Referrer] = entry
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	if acc, ok := m.accounts[addr]; ok && acc.Balance != nil {
		return acc.Balance
	}
	return big.NewInt(0)
}

func makeAddr(suffix byte) [20]byte {
	var addr [20]byte
	addr[19] = suffix
	return addr
}

var testTreasury = makeAddr(0xfe)

func newTestEngine(t *testing.T) (*Engine, *referral.Ledger, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine(ModuleAccount, testTreasury)
	engine.SetState(state)

	ledger := referral.NewLedger(referral.CollectorAccount, testTreasury)
	ledger.SetState(state)
	ledger.AddOperator(engine.ModuleAddress())
	engine.SetReferrals(ledger)
	return engine, ledger, state
}

func TestDepositWithdrawLifecycle(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x01)
	state.fund(user, 1_000)
	state.fund(testTreasury, 10_000)

	engine.SetBlockHeight(100)
	if err := engine.SetRewardRate(big.NewInt(10)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(user, big.NewInt(1000), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	position := state.positions[user]
	if position.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected principal: %s", position.Amount)
	}
	if position.RewardDebt.Sign() != 0 {
		t.Fatalf("fresh deposit must carry zero debt, got %s", position.RewardDebt)
	}
	if state.pool.TotalStaked.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected total staked: %s", state.pool.TotalStaked)
	}

	engine.SetBlockHeight(110)
	pending, err := engine.PendingReward(user)
	if err != nil {
		t.Fatalf("pending reward: %v", err)
	}
	if pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected pending reward: %s", pending)
	}

	if err := engine.Withdraw(user, big.NewInt(1000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// 1000 principal back plus 100 reward.
	if got := state.balance(user); got.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("unexpected user balance: %s", got)
	}
	if state.pool.TotalStaked.Sign() != 0 {
		t.Fatalf("pool should be empty, got %s", state.pool.TotalStaked)
	}

	// Accumulator freezes while the pool is empty.
	acc := new(big.Int).Set(state.pool.AccRewardPerShare)
	engine.SetBlockHeight(150)
	if err := engine.Deposit(user, big.NewInt(0), [20]byte{}); err != nil {
		t.Fatalf("claim-only deposit: %v", err)
	}
	if state.pool.AccRewardPerShare.Cmp(acc) != 0 {
		t.Fatalf("accumulator moved on empty pool: %s -> %s", acc, state.pool.AccRewardPerShare)
	}
}

func TestClaimOnlyDepositPaysOnce(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x02)
	state.fund(user, 500)
	state.fund(testTreasury, 10_000)

	engine.SetBlockHeight(0)
	if err := engine.SetRewardRate(big.NewInt(5)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(user, big.NewInt(500), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	engine.SetBlockHeight(10)
	if err := engine.Deposit(user, big.NewInt(0), [20]byte{}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	afterFirst := new(big.Int).Set(state.balance(user))
	if afterFirst.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected balance after first claim: %s", afterFirst)
	}

	// No clock advance between claims: the second settles nothing.
	if err := engine.Deposit(user, big.NewInt(0), [20]byte{}); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if got := state.balance(user); got.Cmp(afterFirst) != 0 {
		t.Fatalf("second claim paid again: %s -> %s", afterFirst, got)
	}
}

func TestWithdrawExceedingPrincipal(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x03)
	state.fund(user, 100)

	engine.SetBlockHeight(0)
	if err := engine.Deposit(user, big.NewInt(100), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.Withdraw(user, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if state.pool.TotalStaked.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed withdraw mutated pool: %s", state.pool.TotalStaked)
	}
}

func TestDepositWithoutFunds(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x04)
	state.fund(user, 10)

	engine.SetBlockHeight(0)
	if err := engine.Deposit(user, big.NewInt(11), [20]byte{}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestUnderfundedTreasuryFailsSettlement(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x05)
	state.fund(user, 1000)
	state.fund(testTreasury, 1)

	engine.SetBlockHeight(0)
	if err := engine.SetRewardRate(big.NewInt(10)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(user, big.NewInt(1000), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	engine.SetBlockHeight(10)
	if err := engine.Withdraw(user, big.NewInt(1000)); !errors.Is(err, ErrTreasuryInsufficient) {
		t.Fatalf("expected ErrTreasuryInsufficient, got %v", err)
	}
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

func TestPausedModuleRejectsMutations(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x06)
	state.fund(user, 100)
	engine.SetPauses(pauseAll{})

	if err := engine.Deposit(user, big.NewInt(100), [20]byte{}); err == nil {
		t.Fatalf("expected pause rejection")
	}
	if err := engine.Withdraw(user, big.NewInt(1)); err == nil {
		t.Fatalf("expected pause rejection")
	}
}

// reentrantBank drives a nested engine call from inside commission accrual,
// imitating an asset hook re-entering the module.
type reentrantBank struct {
	engine *Engine
	err    error
}

func (b *reentrantBank) RecordReferral(_, _, _ [20]byte) (bool, error) { return false, nil }

func (b *reentrantBank) AccrueCommission(_, referee [20]byte, _ *big.Int) (*big.Int, error) {
	b.err = b.engine.Deposit(referee, big.NewInt(0), [20]byte{})
	return big.NewInt(0), nil
}

func TestReentrantCallRejected(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x07)
	state.fund(user, 1000)
	state.fund(testTreasury, 10_000)

	bank := &reentrantBank{engine: engine}
	engine.SetReferrals(bank)

	engine.SetBlockHeight(0)
	if err := engine.SetRewardRate(big.NewInt(10)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(user, big.NewInt(1000), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	engine.SetBlockHeight(5)
	if err := engine.Deposit(user, big.NewInt(0), [20]byte{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !errors.Is(bank.err, nativecommon.ErrReentrancy) {
		t.Fatalf("expected nested call rejection, got %v", bank.err)
	}
}

func TestEmissionRateSwitchAppliesOldRateFirst(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x08)
	state.fund(user, 100)
	state.fund(testTreasury, 10_000)

	engine.SetBlockHeight(0)
	if err := engine.SetRewardRate(big.NewInt(10)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(user, big.NewInt(100), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 10 blocks at rate 10, then 10 blocks at rate 1.
	engine.SetBlockHeight(10)
	if err := engine.SetRewardRate(big.NewInt(1)); err != nil {
		t.Fatalf("switch rate: %v", err)
	}
	engine.SetBlockHeight(20)
	pending, err := engine.PendingReward(user)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("unexpected pending after rate switch: %s", pending)
	}
	// The rate lives on the pool record, next to the accumulator snapshot
	// taken under the old rate.
	if state.pool.RewardRate.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("rate not persisted on pool: %s", state.pool.RewardRate)
	}
	if state.pool.LastRewardBlock != 10 {
		t.Fatalf("pool not advanced at switch point: %d", state.pool.LastRewardBlock)
	}
}

func TestConservationAcrossStakers(t *testing.T) {
	engine, _, state := newTestEngine(t)
	alice := makeAddr(0x0a)
	bob := makeAddr(0x0b)
	state.fund(alice, 100)
	state.fund(bob, 300)
	state.fund(testTreasury, 100_000)

	engine.SetBlockHeight(0)
	if err := engine.SetRewardRate(big.NewInt(10)); err != nil {
		t.Fatalf("set reward rate: %v", err)
	}
	if err := engine.Deposit(alice, big.NewInt(100), [20]byte{}); err != nil {
		t.Fatalf("alice deposit: %v", err)
	}
	engine.SetBlockHeight(5)
	if err := engine.Deposit(bob, big.NewInt(300), [20]byte{}); err != nil {
		t.Fatalf("bob deposit: %v", err)
	}

	engine.SetBlockHeight(20)
	pendingAlice, err := engine.PendingReward(alice)
	if err != nil {
		t.Fatalf("pending alice: %v", err)
	}
	pendingBob, err := engine.PendingReward(bob)
	if err != nil {
		t.Fatalf("pending bob: %v", err)
	}

	// 20 blocks at rate 10 with the pool occupied over the whole span.
	emitted := big.NewInt(200)
	total := new(big.Int).Add(pendingAlice, pendingBob)
	if total.Cmp(emitted) > 0 {
		t.Fatalf("distributed more than emitted: %s > %s", total, emitted)
	}
	drift := new(big.Int).Sub(emitted, total)
	if drift.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("truncation drift too large: %s", drift)
	}
}

func TestSyncPoolBalanceSweepsSurplus(t *testing.T) {
	engine, _, state := newTestEngine(t)
	user := makeAddr(0x0c)
	state.fund(user, 100)
	state.fund(testTreasury, 0)

	engine.SetBlockHeight(0)
	if err := engine.Deposit(user, big.NewInt(100), [20]byte{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Assets sent straight to the module address bypass TotalStaked.
	moduleAcc := state.accounts[ModuleAccount]
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, big.NewInt(40))

	swept, err := engine.SyncPoolBalance()
	if err != nil {
		t.Fatalf("sync pool balance: %v", err)
	}
	if swept.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected sweep amount: %s", swept)
	}
	if got := state.balance(testTreasury); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("treasury did not receive sweep: %s", got)
	}
	if got := state.balance(ModuleAccount); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("module balance out of sync: %s", got)
	}
}
