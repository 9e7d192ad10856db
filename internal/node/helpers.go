package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/cspr-signer-kit/config"
	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openSessionDB opens the configured session backend. Keys are namespaced
// by network so one database can serve both chains.
func openSessionDB(cfg *config.Config) (storage.DB, error) {
	var db storage.DB
	switch cfg.Session.Store {
	case config.StoreMemory:
		db = storage.NewMemory()
	default:
		dir := expandHome(cfg.SessionDir())
		bdb, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open session database at %s: %w", dir, err)
		}
		db = bdb
	}
	return storage.OwnedPrefixDB(db, []byte(string(cfg.Network)+"/")), nil
}
