package referral

import (
	"math/big"

	"stakenet/core/events"
	"stakenet/core/types"
	nativecommon "stakenet/native/common"
)

var zeroAddress [20]byte

type ledgerState interface {
	GetReferralBinding(referee [20]byte) (*Binding, error)
	PutReferralBinding(binding *Binding) error
	GetReferralEntry(referrer [20]byte) (*LedgerEntry, error)
	PutReferralEntry(entry *LedgerEntry) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Ledger tracks referee-to-referrer bindings and the commission balances they
// earn. Recording and accrual are restricted to registered operators (the
// staking engine); withdrawal is open to referrers directly.
type Ledger struct {
	state            ledgerState
	collectorAddress [20]byte
	treasury         [20]byte
	commissionBps    uint64
	minWithdraw      *big.Int
	operators        map[[20]byte]bool
	pauses           nativecommon.PauseView
	guard            nativecommon.CallGuard
	emitter          events.Emitter
}

// NewLedger constructs a referral ledger. The collector address holds accrued
// commission until referrers withdraw it; the treasury funds the accrual.
func NewLedger(collectorAddr, treasury [20]byte) *Ledger {
	return &Ledger{
		collectorAddress: collectorAddr,
		treasury:         treasury,
		commissionBps:    DefaultCommissionRateBps,
		minWithdraw:      big.NewInt(0),
		operators:        make(map[[20]byte]bool),
		emitter:          events.NoopEmitter{},
	}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPauses wires the pause view consulted by user-facing entry points.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetEmitter configures the sink receiving referral events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// AddOperator grants an address the capability to record referrals and accrue
// commission. Granted once at deployment for the staking engine.
func (l *Ledger) AddOperator(addr [20]byte) {
	if l == nil || addr == zeroAddress {
		return
	}
	l.operators[addr] = true
}

// RemoveOperator revokes a previously granted operator capability.
func (l *Ledger) RemoveOperator(addr [20]byte) {
	if l == nil {
		return
	}
	delete(l.operators, addr)
}

// SetCommissionBps configures the commission rate, rejecting values above
// MaxCommissionRateBps.
func (l *Ledger) SetCommissionBps(bps uint64) error {
	if bps > MaxCommissionRateBps {
		return ErrCommissionRateBound
	}
	l.commissionBps = bps
	return nil
}

// CommissionBps returns the commission rate currently applied.
func (l *Ledger) CommissionBps() uint64 { return l.commissionBps }

// SetMinWithdrawAmount configures the dust floor below which WithdrawPending
// is a no-op.
func (l *Ledger) SetMinWithdrawAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		amount = big.NewInt(0)
	}
	if amount.Cmp(MaxMinWithdrawAmount) > 0 {
		return ErrWithdrawBound
	}
	l.minWithdraw = new(big.Int).Set(amount)
	return nil
}

// MinWithdrawAmount returns the configured dust floor.
func (l *Ledger) MinWithdrawAmount() *big.Int {
	if l == nil || l.minWithdraw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.minWithdraw)
}

// SetTreasury points commission accrual at a new funding account.
func (l *Ledger) SetTreasury(addr [20]byte) error {
	if addr == zeroAddress {
		return ErrInvalidTreasury
	}
	l.treasury = addr
	return nil
}

// RecordReferral binds referee to referrer on a first-write-wins basis. Zero
// addresses, self-referrals and already-bound referees are silently ignored
// rather than rejected, so a stale referrer hint never fails a deposit. Only
// registered operators may call; everyone else gets ErrUnauthorized.
func (l *Ledger) RecordReferral(operator, referee, referrer [20]byte) (bool, error) {
	if l == nil || l.state == nil {
		return false, ErrNilState
	}
	if !l.operators[operator] {
		return false, ErrUnauthorized
	}
	if referee == zeroAddress || referrer == zeroAddress || referee == referrer {
		return false, nil
	}
	existing, err := l.state.GetReferralBinding(referee)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := l.state.PutReferralBinding(&Binding{Referee: referee, Referrer: referrer}); err != nil {
		return false, err
	}
	entry, err := l.ensureEntry(referrer)
	if err != nil {
		return false, err
	}
	entry.ReferralCount++
	if err := l.state.PutReferralEntry(entry); err != nil {
		return false, err
	}
	l.emitter.Emit(events.ReferralRecorded{User: referee, Referrer: referrer})
	return true, nil
}

// AccrueCommission credits the referee's referrer with a slice of the settled
// reward, funded by the treasury and held on the collector account until
// withdrawal. Referees without a binding and commissions that truncate to
// zero are no-ops. The accrued commission is returned.
func (l *Ledger) AccrueCommission(operator, referee [20]byte, reward *big.Int) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if !l.operators[operator] {
		return nil, ErrUnauthorized
	}
	if reward == nil || reward.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	binding, err := l.state.GetReferralBinding(referee)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return big.NewInt(0), nil
	}

	commission := new(big.Int).Mul(reward, new(big.Int).SetUint64(l.commissionBps))
	commission = commission.Quo(commission, big.NewInt(CommissionBpsDenominator))
	if commission.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	if l.treasury == zeroAddress {
		return nil, ErrInvalidTreasury
	}
	treasuryAcc, err := l.loadAccount(l.treasury)
	if err != nil {
		return nil, err
	}
	if treasuryAcc.Balance.Cmp(commission) < 0 {
		return nil, ErrTreasuryInsufficient
	}
	collectorAcc, err := l.loadAccount(l.collectorAddress)
	if err != nil {
		return nil, err
	}
	treasuryAcc.Balance = new(big.Int).Sub(treasuryAcc.Balance, commission)
	collectorAcc.Balance = new(big.Int).Add(collectorAcc.Balance, commission)
	if err := l.state.PutAccount(l.treasury, treasuryAcc); err != nil {
		return nil, err
	}
	if err := l.state.PutAccount(l.collectorAddress, collectorAcc); err != nil {
		return nil, err
	}

	entry, err := l.ensureEntry(binding.Referrer)
	if err != nil {
		return nil, err
	}
	entry.TotalCommission = new(big.Int).Add(entry.TotalCommission, commission)
	entry.PendingCommission = new(big.Int).Add(entry.PendingCommission, commission)
	if err := l.state.PutReferralEntry(entry); err != nil {
		return nil, err
	}

	l.emitter.Emit(events.ReferralCommissionRecorded{
		Referrer:   binding.Referrer,
		Referee:    referee,
		Commission: new(big.Int).Set(commission),
	})
	return commission, nil
}

// WithdrawPending pays the referrer their entire pending commission when it
// meets the dust floor. Below the floor the call is a silent no-op rather
// than an error; the returned amount is zero and callers poll until the
// balance qualifies.
func (l *Ledger) WithdrawPending(referrer [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if err := l.guard.Enter(); err != nil {
		return nil, err
	}
	defer l.guard.Exit()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}

	entry, err := l.ensureEntry(referrer)
	if err != nil {
		return nil, err
	}
	pending := new(big.Int).Set(entry.PendingCommission)
	if pending.Sign() <= 0 || (l.minWithdraw != nil && pending.Cmp(l.minWithdraw) < 0) {
		return big.NewInt(0), nil
	}

	collectorAcc, err := l.loadAccount(l.collectorAddress)
	if err != nil {
		return nil, err
	}
	if collectorAcc.Balance.Cmp(pending) < 0 {
		return nil, ErrCollectorInsolvent
	}
	referrerAcc, err := l.loadAccount(referrer)
	if err != nil {
		return nil, err
	}
	collectorAcc.Balance = new(big.Int).Sub(collectorAcc.Balance, pending)
	referrerAcc.Balance = new(big.Int).Add(referrerAcc.Balance, pending)
	if err := l.state.PutAccount(l.collectorAddress, collectorAcc); err != nil {
		return nil, err
	}
	if err := l.state.PutAccount(referrer, referrerAcc); err != nil {
		return nil, err
	}

	entry.PendingCommission = big.NewInt(0)
	if err := l.state.PutReferralEntry(entry); err != nil {
		return nil, err
	}

	l.emitter.Emit(events.ReferralCommissionWithdrawn{Referrer: referrer, Amount: pending})
	return pending, nil
}

// ReferrerOf returns the bound referrer for a referee, or false when the
// referee has no binding.
func (l *Ledger) ReferrerOf(referee [20]byte) ([20]byte, bool, error) {
	if l == nil || l.state == nil {
		return zeroAddress, false, ErrNilState
	}
	binding, err := l.state.GetReferralBinding(referee)
	if err != nil {
		return zeroAddress, false, err
	}
	if binding == nil {
		return zeroAddress, false, nil
	}
	return binding.Referrer, true, nil
}

// EntryOf returns the commission bookkeeping for a referrer, normalised for
// arithmetic. A referrer with no history gets an empty entry.
func (l *Ledger) EntryOf(referrer [20]byte) (*LedgerEntry, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.ensureEntry(referrer)
}

func (l *Ledger) ensureEntry(referrer [20]byte) (*LedgerEntry, error) {
	entry, err := l.state.GetReferralEntry(referrer)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &LedgerEntry{Referrer: referrer}
	}
	return entry.Normalize(), nil
}

func (l *Ledger) loadAccount(addr [20]byte) (*types.Account, error) {
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureBalance()
	return account, nil
}
