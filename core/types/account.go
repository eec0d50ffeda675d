package types

import "math/big"

// Account holds the fungible asset balance tracked for an address. Amounts are
// denominated in the asset's smallest unit and expressed as big integers to
// match on-chain precision.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureBalance normalises a freshly decoded or newly created account so the
// balance is always usable for arithmetic.
func (a *Account) EnsureBalance() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}
