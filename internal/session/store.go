// Package session tracks which signer key is currently active, reconciling
// provider events with a persisted slot.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
)

// SlotKey is the storage key of the persisted session.
const SlotKey = "cspr-redux-wallet-sync"

// Store persists the active key in a single slot.
type Store struct {
	db storage.DB
}

// slot is the persisted form: {"publicKey": string|null}.
type slot struct {
	PublicKey *string `json:"publicKey"`
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Load returns the persisted active key and whether the slot was ever
// written.
func (s *Store) Load() (optional.Option[types.PublicKey], bool, error) {
	data, err := s.db.Get([]byte(SlotKey))
	if errors.Is(err, storage.ErrNotFound) {
		return optional.None[types.PublicKey](), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	var sl slot
	if err := json.Unmarshal(data, &sl); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	if sl.PublicKey == nil || *sl.PublicKey == "" {
		return optional.None[types.PublicKey](), true, nil
	}
	key, err := types.ParsePublicKey(*sl.PublicKey)
	if err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	return optional.Some(key), true, nil
}

// Save writes the active key, or null when absent.
func (s *Store) Save(key optional.Option[types.PublicKey]) error {
	var sl slot
	if key.IsSome() {
		k := key.Unwrap().String()
		sl.PublicKey = &k
	}
	data, err := json.Marshal(sl)
	if err != nil {
		return err
	}
	if err := s.db.Put([]byte(SlotKey), data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
