package core

import (
	"crypto/sha256"
	"fmt"

	"genx/keys"
)

// Block is an ordered batch of transactions plus the linkage metadata
// that chains it to its predecessor. Once appended to the chain a block
// is never mutated.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PrevHash     Hash          `json:"previous_hash"`
	Hash         Hash          `json:"hash"`
	Nonce        uint64        `json:"nonce"`
	Difficulty   uint64        `json:"difficulty"`
	MerkleRoot   Hash          `json:"merkle_root"`
	Validator    string        `json:"validator,omitempty"`
	Signature    []byte        `json:"signature,omitempty"`
}

// NewGenesis assembles the index-0 block from the initial distribution.
// The timestamp is fixed at zero so every node derives an identical
// genesis from the same configuration.
func NewGenesis(initial []Transaction) *Block {
	b := &Block{
		Index:        0,
		Timestamp:    0,
		Transactions: initial,
		PrevHash:     ZeroHash,
		Difficulty:   1,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash computes the block hash over the header fields and the
// ordered transaction IDs. The validator signature is excluded: it
// signs this hash.
func (b *Block) ComputeHash() Hash {
	h := sha256.New()
	writeUint64(h, b.Index)
	writeUint64(h, uint64(b.Timestamp))
	for i := range b.Transactions {
		h.Write(b.Transactions[i].ID[:])
	}
	h.Write(b.PrevHash[:])
	writeUint64(h, b.Nonce)
	writeUint64(h, b.Difficulty)
	h.Write(b.MerkleRoot[:])
	writeBytes(h, []byte(b.Validator))
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeMerkleRoot builds the merkle root over the transaction hashes.
// An empty block has the all-zero root.
func (b *Block) ComputeMerkleRoot() Hash {
	hashes := make([]Hash, len(b.Transactions))
	for i := range b.Transactions {
		hashes[i] = b.Transactions[i].Hash()
	}
	return MerkleRoot(hashes)
}

// Seal recomputes the merkle root and block hash after assembly.
func (b *Block) Seal() {
	b.MerkleRoot = b.ComputeMerkleRoot()
	b.Hash = b.ComputeHash()
}

// Sign signs the block hash with the validator's key.
func (b *Block) Sign(priv *keys.PrivateKey) error {
	if priv == nil {
		return fmt.Errorf("%w: nil private key", keys.ErrInvalidKey)
	}
	b.Signature = priv.Sign(b.Hash[:])
	return nil
}

// VerifySignature reports whether the validator signature is valid for
// the block hash. False when the validator identity or the signature is
// absent; never an error for a wrong signature.
func (b *Block) VerifySignature() bool {
	if b.Validator == "" || len(b.Signature) == 0 {
		return false
	}
	pub, err := keys.ParseAddress(b.Validator)
	if err != nil {
		return false
	}
	return pub.Verify(b.Hash[:], b.Signature)
}

// FindTransaction returns the contained transaction with the given ID,
// or nil.
func (b *Block) FindTransaction(id Hash) *Transaction {
	for i := range b.Transactions {
		if b.Transactions[i].ID == id {
			return &b.Transactions[i]
		}
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("Block #%d [%s] with %d transactions", b.Index, b.Hash.Short(), len(b.Transactions))
}
