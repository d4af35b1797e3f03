// Package wallet is the key-management boundary: it generates and
// imports key pairs and builds signed transfers against a ledger view.
// It consumes only the ledger's public read operations.
package wallet

import (
	"fmt"
	"math"

	"genx/core"
	"genx/keys"
)

// LedgerView is the read surface a wallet needs to build a transfer.
type LedgerView interface {
	Balance(addr string) uint64
	TransactionsByAddress(addr string) []*core.Transaction
}

// Wallet holds one key pair.
type Wallet struct {
	priv *keys.PrivateKey
}

// New generates a wallet with a fresh random key.
func New() (*Wallet, error) {
	priv, err := keys.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv}, nil
}

// FromHex imports a wallet from a hex-encoded private key.
func FromHex(s string) (*Wallet, error) {
	priv, err := keys.PrivateKeyFromHex(s)
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv}, nil
}

// Address returns the wallet's address.
func (w *Wallet) Address() string {
	return w.priv.Address()
}

// Export returns the private key in hex form.
func (w *Wallet) Export() string {
	return w.priv.Hex()
}

// Key exposes the private key for validator configuration.
func (w *Wallet) Key() *keys.PrivateKey {
	return w.priv
}

// NewTransfer builds and signs a transfer from this wallet. The nonce
// is the count of transactions the address has already sent, confirmed
// or pending, plus one, keeping transfer IDs unique against replay.
func (w *Wallet) NewTransfer(view LedgerView, recipient string, amount, fee uint64, data []byte) (*core.Transaction, error) {
	if recipient == "" {
		return nil, fmt.Errorf("recipient address is empty")
	}
	if _, err := keys.ParseAddress(recipient); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	if fee > math.MaxUint64-amount {
		return nil, fmt.Errorf("amount %d plus fee %d overflows", amount, fee)
	}
	addr := w.Address()
	if balance := view.Balance(addr); balance < amount+fee {
		return nil, fmt.Errorf("insufficient balance: %d < %d", balance, amount+fee)
	}

	nonce := uint64(1)
	for _, tx := range view.TransactionsByAddress(addr) {
		if tx.Sender == addr {
			nonce++
		}
	}

	tx := core.NewTransaction(addr, recipient, amount, fee, data, nonce)
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}
