package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
)

// HashSize is the byte length of a Hash.
const HashSize = sha256.Size

// Hash is a SHA-256 digest. The zero value doubles as the "no hash"
// marker: genesis previous-hash and the merkle root of an empty block.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash.
var ZeroHash Hash

// HashFromString parses a hex-encoded hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns an abbreviated form for logging.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// MarshalJSON encodes the hash as a hex string so persisted blocks and
// wire messages stay self-describing.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := HashFromString(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Sum256 hashes data with SHA-256.
func Sum256(data []byte) Hash {
	return sha256.Sum256(data)
}

// writeUint64 writes n to the hasher in big-endian form.
func writeUint64(w hash.Hash, n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	w.Write(b[:])
}

// writeBytes writes a length-prefixed byte field to the hasher so that
// adjacent variable-length fields cannot run together.
func writeBytes(w hash.Hash, b []byte) {
	writeUint64(w, uint64(len(b)))
	w.Write(b)
}
