// Package types defines core primitive types shared by the deploy builder,
// the session layer and the signing providers.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value (deploy hash, body hash, contract hash).
type Hash [HashSize]byte

// AccountHash identifies an account on chain, derived from its public key.
type AccountHash Hash

// accountHashPrefix is the formatted-string prefix of an account hash.
const accountHashPrefix = "account-hash-"

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// String returns the formatted account hash ("account-hash-<hex>").
func (a AccountHash) String() string {
	return accountHashPrefix + Hash(a).String()
}

// MarshalJSON encodes the account hash in its formatted form.
func (a AccountHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a formatted account hash.
func (a *AccountHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccountHash(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAccountHash parses "account-hash-<hex>" or bare hex.
func ParseAccountHash(s string) (AccountHash, error) {
	h, err := HexToHash(strings.TrimPrefix(s, accountHashPrefix))
	if err != nil {
		return AccountHash{}, fmt.Errorf("account hash: %w", err)
	}
	return AccountHash(h), nil
}
