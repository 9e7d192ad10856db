package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer signs messages with a private key.
type Signer interface {
	// Sign produces a raw 64-byte signature over message.
	Sign(message []byte) ([]byte, error)
	// PublicKey returns the tagged public key.
	PublicKey() types.PublicKey
}

// Verifier verifies signatures against tagged public keys.
type Verifier interface {
	Verify(message, signature []byte, key types.PublicKey) bool
}

// Secp256k1Key wraps a secp256k1 private key. Signatures are ECDSA over the
// SHA-256 digest of the message, serialized as r || s.
type Secp256k1Key struct {
	key *secp256k1.PrivateKey
}

// GenerateSecp256k1Key creates a new random secp256k1 private key.
func GenerateSecp256k1Key() (*Secp256k1Key, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Secp256k1Key{key: key}, nil
}

// Secp256k1KeyFromBytes creates a key from a 32-byte secret.
func Secp256k1KeyFromBytes(b []byte) (*Secp256k1Key, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &Secp256k1Key{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a 64-byte r || s signature over SHA-256(message).
func (k *Secp256k1Key) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	// Compact form is recovery byte followed by r and s.
	compact := ecdsa.SignCompact(k.key, digest[:], true)
	if len(compact) != 1+types.SignatureSize {
		return nil, fmt.Errorf("ecdsa sign: unexpected signature length %d", len(compact))
	}
	return compact[1:], nil
}

// PublicKey returns the tagged compressed public key.
func (k *Secp256k1Key) PublicKey() types.PublicKey {
	pub, _ := types.NewPublicKey(types.AlgorithmSecp256k1, k.key.PubKey().SerializeCompressed())
	return pub
}

// Serialize returns the 32-byte private key scalar.
func (k *Secp256k1Key) Serialize() []byte {
	return k.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (k *Secp256k1Key) Zero() {
	k.key.Zero()
}

// Ed25519Key wraps an ed25519 private key.
type Ed25519Key struct {
	key ed25519.PrivateKey
}

// GenerateEd25519Key creates a new random ed25519 key.
func GenerateEd25519Key() (*Ed25519Key, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Ed25519Key{key: priv}, nil
}

// Ed25519KeyFromSeed creates a key from a 32-byte seed.
func Ed25519KeyFromSeed(seed []byte) (*Ed25519Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Key{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign produces a 64-byte ed25519 signature over message.
func (k *Ed25519Key) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.key, message), nil
}

// PublicKey returns the tagged public key.
func (k *Ed25519Key) PublicKey() types.PublicKey {
	pub, _ := types.NewPublicKey(types.AlgorithmEd25519, k.key.Public().(ed25519.PublicKey))
	return pub
}

// Seed returns the 32-byte seed the key was derived from.
func (k *Ed25519Key) Seed() []byte {
	return k.key.Seed()
}

// Zero securely zeroes the private key memory.
func (k *Ed25519Key) Zero() {
	for i := range k.key {
		k.key[i] = 0
	}
}

// TagSignature prefixes a raw signature with the key's algorithm tag, the
// form approvals carry on the wire.
func TagSignature(alg types.KeyAlgorithm, raw []byte) []byte {
	out := make([]byte, 0, 1+len(raw))
	out = append(out, byte(alg))
	return append(out, raw...)
}

// VerifySignature checks a signature over message for key. Both raw
// (64-byte) and tagged (65-byte) signatures are accepted; a tag must match
// the key's algorithm. Returns false on any error.
func VerifySignature(key types.PublicKey, message, signature []byte) bool {
	sig := signature
	if len(sig) == 1+types.SignatureSize {
		if sig[0] != byte(key.Algorithm()) {
			return false
		}
		sig = sig[1:]
	}
	if len(sig) != types.SignatureSize {
		return false
	}

	switch key.Algorithm() {
	case types.AlgorithmEd25519:
		return ed25519.Verify(ed25519.PublicKey(key.Raw()), message, sig)
	case types.AlgorithmSecp256k1:
		pub, err := secp256k1.ParsePubKey(key.Raw())
		if err != nil {
			return false
		}
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(sig[:32]); overflow {
			return false
		}
		if overflow := s.SetByteSlice(sig[32:]); overflow {
			return false
		}
		digest := sha256.Sum256(message)
		return ecdsa.NewSignature(&r, &s).Verify(digest[:], pub)
	default:
		return false
	}
}

// StandardVerifier implements the Verifier interface.
type StandardVerifier struct{}

// Verify checks a signature over message for key.
func (v StandardVerifier) Verify(message, signature []byte, key types.PublicKey) bool {
	return VerifySignature(key, message, signature)
}
