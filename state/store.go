package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"stakenet/core/types"
	"stakenet/native/referral"
	"stakenet/native/stake"
	"stakenet/storage"
)

const (
	keyPool           = "stake/pool"
	prefixPosition    = "stake/pos/"
	prefixAccount     = "acct/"
	prefixBinding     = "referral/bind/"
	prefixLedgerEntry = "referral/entry/"
)

// Store persists the staking and referral state as JSON documents over a
// generic key-value database.
type Store struct {
	db storage.Database
}

// NewStore wraps the given database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Update runs fn against a buffered transaction. Writes stay in an overlay
// until fn returns nil, then flush to the database in one pass; any error
// discards the overlay so a failed operation leaves no partial state behind.
func (s *Store) Update(fn func(*Tx) error) error {
	tx := &Tx{store: s, overlay: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.flush()
}

// View runs fn against a read-only transaction; writes made by fn are
// discarded.
func (s *Store) View(fn func(*Tx) error) error {
	tx := &Tx{store: s, overlay: make(map[string][]byte)}
	return fn(tx)
}

// Tx is a buffered view over the store implementing the state interfaces of
// the staking engine and the referral ledger.
type Tx struct {
	store   *Store
	overlay map[string][]byte
}

func (t *Tx) get(key string, out any) (bool, error) {
	if raw, ok := t.overlay[key]; ok {
		return true, json.Unmarshal(raw, out)
	}
	ok, err := t.store.db.Has([]byte(key))
	if err != nil {
		return false, fmt.Errorf("state: check %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	raw, err := t.store.db.Get([]byte(key))
	if err != nil {
		return false, fmt.Errorf("state: load %s: %w", key, err)
	}
	return true, json.Unmarshal(raw, out)
}

func (t *Tx) put(key string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	t.overlay[key] = raw
	return nil
}

func (t *Tx) flush() error {
	for key, raw := range t.overlay {
		if err := t.store.db.Put([]byte(key), raw); err != nil {
			return fmt.Errorf("state: flush %s: %w", key, err)
		}
	}
	return nil
}

func addrKey(prefix string, addr [20]byte) string {
	return prefix + hex.EncodeToString(addr[:])
}

// Pool loads the staking pool singleton, or nil when none has been created.
func (t *Tx) Pool() (*stake.Pool, error) {
	pool := new(stake.Pool)
	ok, err := t.get(keyPool, pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool.Normalize(), nil
}

// PutPool stores the staking pool singleton.
func (t *Tx) PutPool(pool *stake.Pool) error {
	if pool == nil {
		return nil
	}
	return t.put(keyPool, pool)
}

// GetPosition loads a staking position, or nil when the user has none.
func (t *Tx) GetPosition(addr [20]byte) (*stake.Position, error) {
	position := new(stake.Position)
	ok, err := t.get(addrKey(prefixPosition, addr), position)
	if err != nil || !ok {
		return nil, err
	}
	return position.Normalize(), nil
}

// PutPosition stores a staking position.
func (t *Tx) PutPosition(position *stake.Position) error {
	if position == nil {
		return nil
	}
	return t.put(addrKey(prefixPosition, position.Address), position)
}

// GetAccount loads the asset account for an address, or nil when unseen.
func (t *Tx) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := t.get(addrKey(prefixAccount, addr), account)
	if err != nil || !ok {
		return nil, err
	}
	account.EnsureBalance()
	return account, nil
}

// PutAccount stores the asset account for an address.
func (t *Tx) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return nil
	}
	return t.put(addrKey(prefixAccount, addr), account)
}

// GetReferralBinding loads the referrer binding for a referee, or nil when
// the referee was never referred.
func (t *Tx) GetReferralBinding(referee [20]byte) (*referral.Binding, error) {
	binding := new(referral.Binding)
	ok, err := t.get(addrKey(prefixBinding, referee), binding)
	if err != nil || !ok {
		return nil, err
	}
	return binding, nil
}

// PutReferralBinding stores a referrer binding.
func (t *Tx) PutReferralBinding(binding *referral.Binding) error {
	if binding == nil {
		return nil
	}
	return t.put(addrKey(prefixBinding, binding.Referee), binding)
}

// GetReferralEntry loads the commission bookkeeping for a referrer, or nil
// when the referrer has no history.
func (t *Tx) GetReferralEntry(referrer [20]byte) (*referral.LedgerEntry, error) {
	entry := new(referral.LedgerEntry)
	ok, err := t.get(addrKey(prefixLedgerEntry, referrer), entry)
	if err != nil || !ok {
		return nil, err
	}
	return entry.Normalize(), nil
}

// PutReferralEntry stores the commission bookkeeping for a referrer.
func (t *Tx) PutReferralEntry(entry *referral.LedgerEntry) error {
	if entry == nil {
		return nil
	}
	return t.put(addrKey(prefixLedgerEntry, entry.Referrer), entry)
}
