// Package keys wraps the secp256k1 primitives used for transaction and
// block signing behind a small key-pair API. Addresses are the base58
// encoding of a compressed public key, so an address alone is enough to
// verify a signature.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned when key material is malformed: wrong
// length, bad encoding, or not a point on the curve.
var ErrInvalidKey = errors.New("invalid key material")

// PrivateKeySize is the byte length of a serialized private key.
const PrivateKeySize = 32

// PrivateKey is a secp256k1 private key.
type PrivateKey struct {
	k *secp256k1.PrivateKey
}

// NewPrivateKey generates a new random private key.
func NewPrivateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{k: k}, nil
}

// PrivateKeyFromHex imports a private key from its hex form.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, PrivateKeySize, len(b))
	}
	return &PrivateKey{k: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Hex returns the hex form of the private key.
func (p *PrivateKey) Hex() string {
	return hex.EncodeToString(p.k.Serialize())
}

// PublicKey returns the public half of the key pair.
func (p *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{k: p.k.PubKey()}
}

// Address is shorthand for PublicKey().Address().
func (p *PrivateKey) Address() string {
	return p.PublicKey().Address()
}

// Sign produces a DER-encoded ECDSA signature over a 32-byte digest.
func (p *PrivateKey) Sign(digest []byte) []byte {
	return secpecdsa.Sign(p.k, digest).Serialize()
}

// PublicKey is a secp256k1 public key.
type PublicKey struct {
	k *secp256k1.PublicKey
}

// ParseAddress decodes an address back into the public key it encodes.
func ParseAddress(addr string) (*PublicKey, error) {
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	k, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &PublicKey{k: k}, nil
}

// Address returns the base58 encoding of the compressed public key.
func (p *PublicKey) Address() string {
	return base58.Encode(p.k.SerializeCompressed())
}

// Verify reports whether sig is a valid signature of digest by this
// key. A malformed signature is simply not valid; Verify never errors.
func (p *PublicKey) Verify(digest, sig []byte) bool {
	parsed, err := secpecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, p.k)
}
