package devsigner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoKeystore is returned when the wallet file does not exist.
var ErrNoKeystore = errors.New("keystore not found")

const keystoreVersion = 1

var seedAAD = []byte("cspr-signer-kit/seed")

func importedAAD(publicKey string) []byte {
	return []byte("cspr-signer-kit/ed25519/" + strings.ToLower(publicKey))
}

// AccountEntry records a derived secp256k1 account.
type AccountEntry struct {
	Index     uint32 `json:"index"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

// ImportedKey records an explicit ed25519 key. Its seed is sealed
// separately from the wallet seed.
type ImportedKey struct {
	Name          string `json:"name"`
	PublicKey     string `json:"public_key"`
	EncryptedSeed []byte `json:"encrypted_seed"`
}

// keystoreFile is the on-disk JSON form of a wallet.
type keystoreFile struct {
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	EncryptedSeed []byte         `json:"encrypted_seed"`
	Accounts      []AccountEntry `json:"accounts"`
	Imported      []ImportedKey  `json:"imported"`
	Active        string         `json:"active"`
}

// Keystore is a single encrypted wallet file.
type Keystore struct {
	path string
	kf   keystoreFile
}

// CreateKeystore writes a new wallet at path from mnemonic. The first
// account is derived and recorded. It fails if the file exists.
func CreateKeystore(path, mnemonic string, password []byte, params KDFParams) (*Keystore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("keystore %s already exists", path)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer zero(seed)

	first, err := DeriveAccount(seed, 0)
	if err != nil {
		return nil, err
	}
	sealed, err := Seal(seed, password, seedAAD, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	pub := first.PublicKey().String()
	ks := &Keystore{
		path: path,
		kf: keystoreFile{
			Version:       keystoreVersion,
			CreatedAt:     time.Now().UTC(),
			EncryptedSeed: sealed,
			Accounts:      []AccountEntry{{Index: 0, Name: "Account 1", PublicKey: pub}},
			Imported:      []ImportedKey{},
			Active:        pub,
		},
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	if err := ks.save(); err != nil {
		return nil, err
	}
	return ks, nil
}

// OpenKeystore reads the wallet at path.
func OpenKeystore(path string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKeystore
	}
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported keystore version: %d", kf.Version)
	}
	return &Keystore{path: path, kf: kf}, nil
}

// Path returns the wallet file path.
func (ks *Keystore) Path() string { return ks.path }

// Accounts returns the derived account entries.
func (ks *Keystore) Accounts() []AccountEntry {
	return append([]AccountEntry(nil), ks.kf.Accounts...)
}

// Imported returns the imported key entries.
func (ks *Keystore) Imported() []ImportedKey {
	return append([]ImportedKey(nil), ks.kf.Imported...)
}

// Active returns the public key selected as active.
func (ks *Keystore) Active() string { return ks.kf.Active }

// openSeed decrypts the wallet seed.
func (ks *Keystore) openSeed(password []byte) ([]byte, error) {
	return Open(ks.kf.EncryptedSeed, password, seedAAD)
}

func (ks *Keystore) openImported(k ImportedKey, password []byte) ([]byte, error) {
	return Open(k.EncryptedSeed, password, importedAAD(k.PublicKey))
}

func (ks *Keystore) nextIndex() uint32 {
	var next uint32
	for _, a := range ks.kf.Accounts {
		if a.Index >= next {
			next = a.Index + 1
		}
	}
	return next
}

func (ks *Keystore) hasKey(publicKey string) bool {
	for _, a := range ks.kf.Accounts {
		if strings.EqualFold(a.PublicKey, publicKey) {
			return true
		}
	}
	for _, k := range ks.kf.Imported {
		if strings.EqualFold(k.PublicKey, publicKey) {
			return true
		}
	}
	return false
}

func (ks *Keystore) addAccount(entry AccountEntry) error {
	ks.kf.Accounts = append(ks.kf.Accounts, entry)
	return ks.save()
}

func (ks *Keystore) addImported(k ImportedKey) error {
	if ks.hasKey(k.PublicKey) {
		return fmt.Errorf("key %s already in keystore", k.PublicKey)
	}
	ks.kf.Imported = append(ks.kf.Imported, k)
	return ks.save()
}

func (ks *Keystore) setActive(publicKey string) error {
	ks.kf.Active = publicKey
	return ks.save()
}

// save writes the file atomically.
func (ks *Keystore) save() error {
	data, err := json.MarshalIndent(&ks.kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	tmp := ks.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := os.Rename(tmp, ks.path); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}
