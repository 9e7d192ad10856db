package clvalue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// KeyTag selects the kind of global-state key.
type KeyTag byte

// Supported key tags.
const (
	KeyTagAccount KeyTag = 0
	KeyTagHash    KeyTag = 1
)

const (
	accountKeyPrefix = "account-hash-"
	hashKeyPrefix    = "hash-"
)

// Key references an account or a contract hash in global state.
type Key struct {
	Tag  KeyTag
	Hash types.Hash
}

// AccountKey returns a key referring to an account.
func AccountKey(a types.AccountHash) Key {
	return Key{Tag: KeyTagAccount, Hash: types.Hash(a)}
}

// HashKey returns a key referring to a contract (or package) hash.
func HashKey(h types.Hash) Key {
	return Key{Tag: KeyTagHash, Hash: h}
}

// ParseKey parses "account-hash-<hex>" or "hash-<hex>".
func ParseKey(s string) (Key, error) {
	switch {
	case strings.HasPrefix(s, accountKeyPrefix):
		h, err := types.HexToHash(s[len(accountKeyPrefix):])
		if err != nil {
			return Key{}, fmt.Errorf("key %q: %w", s, err)
		}
		return Key{Tag: KeyTagAccount, Hash: h}, nil
	case strings.HasPrefix(s, hashKeyPrefix):
		h, err := types.HexToHash(s[len(hashKeyPrefix):])
		if err != nil {
			return Key{}, fmt.Errorf("key %q: %w", s, err)
		}
		return Key{Tag: KeyTagHash, Hash: h}, nil
	default:
		return Key{}, fmt.Errorf("key %q: unsupported prefix", s)
	}
}

// String returns the formatted key.
func (k Key) String() string {
	if k.Tag == KeyTagAccount {
		return accountKeyPrefix + k.Hash.String()
	}
	return hashKeyPrefix + k.Hash.String()
}

// Bytes returns tag byte followed by the 32-byte hash.
func (k Key) Bytes() []byte {
	out := make([]byte, 0, 1+types.HashSize)
	out = append(out, byte(k.Tag))
	return append(out, k.Hash[:]...)
}

// MarshalJSON encodes as {"Account": "account-hash-…"} or {"Hash": "hash-…"}.
func (k Key) MarshalJSON() ([]byte, error) {
	name := "Hash"
	if k.Tag == KeyTagAccount {
		name = "Account"
	}
	return json.Marshal(map[string]string{name: k.String()})
}
