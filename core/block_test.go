package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlock(t *testing.T, txCount int) *Block {
	t.Helper()
	txs := make([]Transaction, 0, txCount)
	for i := 0; i < txCount; i++ {
		tx := Transaction{
			Timestamp: 1700000000,
			Recipient: "recipient",
			Amount:    uint64(i + 1),
		}
		tx.ID = tx.Hash()
		txs = append(txs, tx)
	}
	b := &Block{
		Index:        3,
		Timestamp:    1700000100,
		Transactions: txs,
		PrevHash:     Sum256([]byte("prev")),
		Difficulty:   2,
	}
	b.Seal()
	return b
}

func TestMerkleRoot(t *testing.T) {
	assert.Equal(t, ZeroHash, MerkleRoot(nil), "empty set reduces to the zero hash")

	single := []Hash{Sum256([]byte("a"))}
	assert.Equal(t, single[0], MerkleRoot(single))

	// Odd counts duplicate the trailing hash; the root must still be
	// stable and order-sensitive.
	three := []Hash{Sum256([]byte("a")), Sum256([]byte("b")), Sum256([]byte("c"))}
	root := MerkleRoot(three)
	assert.Equal(t, root, MerkleRoot(three))

	swapped := []Hash{three[1], three[0], three[2]}
	assert.NotEqual(t, root, MerkleRoot(swapped))
}

func TestBlockHashCoversHeaderAndTxIDs(t *testing.T) {
	b := sampleBlock(t, 2)
	assert.Equal(t, b.Hash, b.ComputeHash())

	tests := []struct {
		name string
		mut  func(*Block)
	}{
		{"index", func(b *Block) { b.Index++ }},
		{"timestamp", func(b *Block) { b.Timestamp++ }},
		{"prev hash", func(b *Block) { b.PrevHash = Sum256([]byte("x")) }},
		{"nonce", func(b *Block) { b.Nonce++ }},
		{"difficulty", func(b *Block) { b.Difficulty++ }},
		{"validator", func(b *Block) { b.Validator = "v" }},
		{"tx order", func(b *Block) {
			b.Transactions[0], b.Transactions[1] = b.Transactions[1], b.Transactions[0]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := *sampleBlock(t, 2)
			tt.mut(&mutated)
			assert.NotEqual(t, b.Hash, mutated.ComputeHash())
		})
	}
}

func TestNewGenesis(t *testing.T) {
	cb := Transaction{Recipient: "G", Amount: 21_000_000}
	cb.ID = cb.Hash()

	g := NewGenesis([]Transaction{cb})
	assert.Zero(t, g.Index)
	assert.Equal(t, ZeroHash, g.PrevHash)
	assert.Equal(t, g.ComputeHash(), g.Hash)
	assert.Equal(t, g.ComputeMerkleRoot(), g.MerkleRoot)

	// Same configuration must yield the same genesis on every node.
	assert.Equal(t, g.Hash, NewGenesis([]Transaction{cb}).Hash)
}

func TestBlockValidatorSignature(t *testing.T) {
	key := newKey(t)
	b := sampleBlock(t, 1)

	// No validator identity: nothing to verify.
	assert.False(t, b.VerifySignature())

	b.Validator = key.Address()
	b.Seal()
	assert.False(t, b.VerifySignature(), "signature absent")

	require.NoError(t, b.Sign(key))
	assert.True(t, b.VerifySignature())

	b.Signature[0] ^= 0xff
	assert.False(t, b.VerifySignature())
}

func TestBlockPersistedRoundTrip(t *testing.T) {
	for _, txCount := range []int{0, 1, 3} {
		b := sampleBlock(t, txCount)

		data, err := json.Marshal(b)
		require.NoError(t, err)

		var decoded Block
		require.NoError(t, json.Unmarshal(data, &decoded))

		assert.Equal(t, b.Hash, decoded.Hash)
		assert.Equal(t, b.MerkleRoot, decoded.MerkleRoot)
		require.Len(t, decoded.Transactions, txCount)
		for i := range b.Transactions {
			assert.Equal(t, b.Transactions[i].ID, decoded.Transactions[i].ID)
		}

		// The decoded block still validates against itself.
		assert.Equal(t, decoded.ComputeHash(), decoded.Hash)
		assert.Equal(t, decoded.ComputeMerkleRoot(), decoded.MerkleRoot)
	}
}

func TestHashJSONRoundTrip(t *testing.T) {
	h := Sum256([]byte("x"))
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, h, decoded)

	var bad Hash
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}
