package storage

import (
	"errors"
	"testing"
)

func TestPrefixDB_Namespaces(t *testing.T) {
	inner := NewMemory()
	mainnet := NewPrefixDB(inner, []byte("casper/"))
	testnet := NewPrefixDB(inner, []byte("casper-test/"))

	if err := mainnet.Put([]byte("cspr-redux-wallet-sync"), []byte("main")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := testnet.Put([]byte("cspr-redux-wallet-sync"), []byte("test")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct {
		db   DB
		key  string
		want string
	}{
		{mainnet, "cspr-redux-wallet-sync", "main"},
		{testnet, "cspr-redux-wallet-sync", "test"},
		{inner, "casper/cspr-redux-wallet-sync", "main"},
		{inner, "casper-test/cspr-redux-wallet-sync", "test"},
	}
	for _, tt := range tests {
		got, err := tt.db.Get([]byte(tt.key))
		if err != nil {
			t.Fatalf("Get(%s): %v", tt.key, err)
		}
		if string(got) != tt.want {
			t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}

	inner.Put([]byte("other/cspr-redux-wallet-sync"), []byte("x"))
	if _, err := NewPrefixDB(inner, []byte("casper-nctl/")).Get([]byte("cspr-redux-wallet-sync")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get in empty namespace = %v, want ErrNotFound", err)
	}
}

type closeCounter struct {
	*MemoryDB
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestPrefixDB_Close(t *testing.T) {
	inner := &closeCounter{MemoryDB: NewMemory()}

	NewPrefixDB(inner, []byte("p/")).Close()
	if inner.closed != 0 {
		t.Error("view closed the shared database")
	}
	OwnedPrefixDB(inner, []byte("p/")).Close()
	if inner.closed != 1 {
		t.Errorf("owned view closed inner %d times, want 1", inner.closed)
	}
}
