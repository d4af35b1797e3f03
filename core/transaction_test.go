package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genx/keys"
)

func newKey(t *testing.T) *keys.PrivateKey {
	t.Helper()
	k, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return k
}

func TestTransactionHashDeterministic(t *testing.T) {
	tx := &Transaction{
		Timestamp: 1700000000,
		Sender:    "sender",
		Recipient: "recipient",
		Amount:    42,
		Fee:       1,
		Data:      []byte("payload"),
		Nonce:     7,
	}
	tx.ID = tx.Hash()

	same := *tx
	assert.Equal(t, tx.Hash(), same.Hash())

	// The signature is excluded from the hash.
	signed := *tx
	signed.Signature = []byte("sig")
	assert.Equal(t, tx.Hash(), signed.Hash())

	// Any invariant field changes the hash.
	changed := *tx
	changed.Amount++
	assert.NotEqual(t, tx.Hash(), changed.Hash())
}

func TestTransactionSignVerify(t *testing.T) {
	key := newKey(t)
	tx := NewTransaction(key.Address(), "recipient", 10, 1, nil, 1)

	// Unsigned does not verify.
	assert.False(t, tx.VerifySignature())

	require.NoError(t, tx.Sign(key))
	assert.True(t, tx.VerifySignature())
}

func TestTransactionSignNilKey(t *testing.T) {
	tx := NewTransaction("sender", "recipient", 10, 1, nil, 1)
	require.ErrorIs(t, tx.Sign(nil), keys.ErrInvalidKey)
	assert.Nil(t, tx.Signature)
}

func TestTamperedSignatureFailsVerification(t *testing.T) {
	key := newKey(t)
	tx := NewTransaction(key.Address(), "recipient", 10, 1, nil, 1)
	require.NoError(t, tx.Sign(key))
	require.True(t, tx.VerifySignature())

	tampered := *tx
	tampered.Signature = append([]byte(nil), tx.Signature...)
	tampered.Signature[len(tampered.Signature)/2] ^= 0xff
	assert.False(t, tampered.VerifySignature())

	// Signature from a different key also fails.
	other := newKey(t)
	forged := NewTransaction(key.Address(), "recipient", 10, 1, nil, 1)
	require.NoError(t, forged.Sign(other))
	assert.False(t, forged.VerifySignature())
}

func TestCoinbaseExemptFromSignature(t *testing.T) {
	cb := NewCoinbase("miner", 50)
	assert.True(t, cb.IsCoinbase())
	assert.True(t, cb.VerifySignature())
	assert.Zero(t, cb.Fee)
}

func TestWrongSignatureNeverPanics(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Transaction)
	}{
		{"garbage signature", func(tx *Transaction) { tx.Signature = []byte{0x01, 0x02} }},
		{"sender not an address", func(tx *Transaction) { tx.Sender = "0OIl not base58" }},
		{"empty signature", func(tx *Transaction) { tx.Signature = nil }},
	}
	key := newKey(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := NewTransaction(key.Address(), "recipient", 1, 0, nil, 1)
			require.NoError(t, tx.Sign(key))
			tt.mut(tx)
			assert.False(t, tx.VerifySignature())
		})
	}
}
