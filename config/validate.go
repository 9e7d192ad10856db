package config

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/Masterminds/semver/v3"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Deploy.TTL <= 0 {
		return fmt.Errorf("deploy.ttl must be positive")
	}
	if cfg.Deploy.GasPrice < 1 {
		return fmt.Errorf("deploy.gasprice must be at least 1")
	}
	if cfg.Fees.Transfer == 0 || cfg.Fees.Delegate == 0 || cfg.Fees.Undelegate == 0 || cfg.Fees.Redelegate == 0 {
		return fmt.Errorf("fees.* must all be non-zero")
	}

	cfg.Auction.Hash = strings.ToLower(strings.TrimSpace(cfg.Auction.Hash))
	if _, err := types.HexToHash(cfg.Auction.Hash); err != nil {
		return fmt.Errorf("auction.hash: %w", err)
	}

	switch cfg.Session.Store {
	case "":
		cfg.Session.Store = StoreBadger
	case StoreBadger, StoreMemory:
	default:
		return fmt.Errorf("session.store must be %q or %q", StoreBadger, StoreMemory)
	}

	if cfg.Provider.MinVersion != "" {
		if _, err := semver.NewConstraint(cfg.Provider.MinVersion); err != nil {
			return fmt.Errorf("provider.minversion: %w", err)
		}
	}

	if cfg.Signer.Port < 0 || cfg.Signer.Port > 65535 {
		return fmt.Errorf("signer.port must be in range [0, 65535]")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	return nil
}
