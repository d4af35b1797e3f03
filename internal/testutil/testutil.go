// Package testutil provides deterministic fixtures for tests: key
// pairs derived from fixed seeds and a shortcut for an initialized
// ledger with a funded genesis account.
package testutil

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genx/keys"
	"genx/ledger"
)

// Account is a complete key pair for tests.
type Account struct {
	Key  *keys.PrivateKey
	Addr string
}

// DeterministicAccount derives the same key pair for the same index on
// every run, so genesis addresses in fixtures are stable.
func DeterministicAccount(t *testing.T, index int) Account {
	t.Helper()
	seed := make([]byte, 32)
	binary.BigEndian.PutUint64(seed[24:], uint64(index)+1)
	key, err := keys.PrivateKeyFromHex(hex.EncodeToString(seed))
	require.NoError(t, err)
	return Account{Key: key, Addr: key.Address()}
}

// NewAccount generates a random key pair.
func NewAccount(t *testing.T) Account {
	t.Helper()
	key, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return Account{Key: key, Addr: key.Address()}
}

// NewLedger initializes a ledger in a temp directory whose genesis
// credits each funded address with the given amount.
func NewLedger(t *testing.T, funded map[string]uint64) *ledger.Ledger {
	t.Helper()
	var alloc []ledger.Allocation
	for addr, amount := range funded {
		alloc = append(alloc, ledger.Allocation{Address: addr, Amount: amount})
	}
	l, err := ledger.NewLedger(ledger.Config{
		DataDir:            t.TempDir(),
		BlockReward:        50,
		MaxBlockTxs:        10,
		TargetBlockTime:    time.Second,
		DifficultyInterval: 5,
		Genesis:            alloc,
	}, nil)
	require.NoError(t, err)
	return l
}

// FreeAddr reserves a loopback port and returns it for reuse, so a
// node can both listen on and advertise a concrete address.
func FreeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}
