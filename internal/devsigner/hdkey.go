package devsigner

import (
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/crypto"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Casper accounts live at m/44'/506'/0'/0/index.
const (
	PurposeBIP44    = bip32.FirstHardenedChild + 44
	CoinTypeCasper  = bip32.FirstHardenedChild + 506
	AccountHardened = bip32.FirstHardenedChild + 0
	ChainExternal   = 0
)

// hdKey is a BIP-32 node.
type hdKey struct {
	key *bip32.Key
}

func newMasterKey(seed []byte) (*hdKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &hdKey{key: master}, nil
}

func (k *hdKey) derivePath(indices ...uint32) (*hdKey, error) {
	current := k.key
	for _, idx := range indices {
		child, err := current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
		current = child
	}
	return &hdKey{key: current}, nil
}

// privateKeyBytes returns the 32-byte scalar. bip32 stores private keys
// with a leading zero byte.
func (k *hdKey) privateKeyBytes() []byte {
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// DeriveAccount returns the secp256k1 signing key at index.
func DeriveAccount(seed []byte, index uint32) (*crypto.Secp256k1Key, error) {
	master, err := newMasterKey(seed)
	if err != nil {
		return nil, err
	}
	child, err := master.derivePath(PurposeBIP44, CoinTypeCasper, AccountHardened, ChainExternal, index)
	if err != nil {
		return nil, err
	}
	return crypto.Secp256k1KeyFromBytes(child.privateKeyBytes())
}

// DerivationPath renders the path used for index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/506'/0'/0/%d", index)
}

// account is an unlocked signing key.
type account struct {
	name   string
	path   string
	signer crypto.Signer
}

func (a account) publicKey() types.PublicKey {
	return a.signer.PublicKey()
}
