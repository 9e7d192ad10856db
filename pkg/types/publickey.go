package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
)

// KeyAlgorithm is the tag byte that prefixes every serialized public key
// and signature.
type KeyAlgorithm byte

// Supported key algorithms.
const (
	AlgorithmEd25519   KeyAlgorithm = 0x01
	AlgorithmSecp256k1 KeyAlgorithm = 0x02
)

// Raw key and signature sizes.
const (
	Ed25519KeySize   = 32
	Secp256k1KeySize = 33
	SignatureSize    = 64
)

// ErrInvalidPublicKey is returned when a public key cannot be decoded.
var ErrInvalidPublicKey = errors.New("invalid public key")

// String returns the lower-case algorithm name used in account hash derivation.
func (a KeyAlgorithm) String() string {
	switch a {
	case AlgorithmEd25519:
		return "ed25519"
	case AlgorithmSecp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%d)", byte(a))
	}
}

// KeySize returns the raw key length for the algorithm, or 0 if unknown.
func (a KeyAlgorithm) KeySize() int {
	switch a {
	case AlgorithmEd25519:
		return Ed25519KeySize
	case AlgorithmSecp256k1:
		return Secp256k1KeySize
	default:
		return 0
	}
}

// PublicKey is a tagged signer key. The hex spelling it was parsed from is
// kept for display; comparisons ignore hex case.
type PublicKey struct {
	algorithm KeyAlgorithm
	raw       []byte
	text      string
}

// NewPublicKey builds a PublicKey from an algorithm tag and raw key bytes.
func NewPublicKey(alg KeyAlgorithm, raw []byte) (PublicKey, error) {
	size := alg.KeySize()
	if size == 0 {
		return PublicKey{}, fmt.Errorf("%w: unknown algorithm tag %#x", ErrInvalidPublicKey, byte(alg))
	}
	if len(raw) != size {
		return PublicKey{}, fmt.Errorf("%w: %s key must be %d bytes, got %d", ErrInvalidPublicKey, alg, size, len(raw))
	}
	if alg == AlgorithmSecp256k1 {
		if _, err := secp256k1.ParsePubKey(raw); err != nil {
			return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
	}
	k := PublicKey{algorithm: alg, raw: append([]byte(nil), raw...)}
	k.text = hex.EncodeToString(k.Bytes())
	return k, nil
}

// ParsePublicKey parses a tagged hex public key ("01…" or "02…").
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) == 0 {
		return PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	k, err := NewPublicKey(KeyAlgorithm(b[0]), b[1:])
	if err != nil {
		return PublicKey{}, err
	}
	k.text = s
	return k, nil
}

// PublicKeyFromBytes decodes a tagged key (tag byte followed by raw key).
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) == 0 {
		return PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	return NewPublicKey(KeyAlgorithm(b[0]), b[1:])
}

// Algorithm returns the key's algorithm tag.
func (k PublicKey) Algorithm() KeyAlgorithm {
	return k.algorithm
}

// Raw returns a copy of the untagged key bytes.
func (k PublicKey) Raw() []byte {
	return append([]byte(nil), k.raw...)
}

// Bytes returns the tagged serialization: tag byte followed by the raw key.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, 0, 1+len(k.raw))
	out = append(out, byte(k.algorithm))
	return append(out, k.raw...)
}

// IsZero reports whether the key is the zero value.
func (k PublicKey) IsZero() bool {
	return len(k.raw) == 0
}

// String returns the hex spelling the key was created from.
func (k PublicKey) String() string {
	return k.text
}

// Normalized returns the lower-case hex form, suitable as a map key.
func (k PublicKey) Normalized() string {
	return strings.ToLower(k.text)
}

// Equal compares two keys by algorithm and key bytes.
func (k PublicKey) Equal(other PublicKey) bool {
	return k.algorithm == other.algorithm && bytes.Equal(k.raw, other.raw)
}

// AccountHash derives the account hash:
// blake2b-256(algorithm name | 0x00 | raw key).
func (k PublicKey) AccountHash() AccountHash {
	name := k.algorithm.String()
	preimage := make([]byte, 0, len(name)+1+len(k.raw))
	preimage = append(preimage, name...)
	preimage = append(preimage, 0)
	preimage = append(preimage, k.raw...)
	return AccountHash(blake2b.Sum256(preimage))
}

// MarshalJSON encodes the key as its hex string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.text)
}

// UnmarshalJSON decodes a tagged hex key.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SameKey reports whether two hex key strings name the same key, ignoring
// hex case. Unparsable input never matches.
func SameKey(a, b string) bool {
	ka, err := ParsePublicKey(a)
	if err != nil {
		return false
	}
	kb, err := ParsePublicKey(b)
	if err != nil {
		return false
	}
	return ka.Equal(kb)
}
