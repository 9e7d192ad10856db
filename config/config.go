// Package config handles application configuration.
//
// Settings come from three layers, later ones winning:
//   - Network defaults (casper or casper-test)
//   - The signer.conf file in the data directory
//   - Command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// NetworkType is the chain name deploys are built for.
type NetworkType string

const (
	Mainnet NetworkType = "casper"
	Testnet NetworkType = "casper-test"
)

// Session store backends.
const (
	StoreBadger = "badger"
	StoreMemory = "memory"
)

// Config holds runtime configuration for the signer daemon and CLI.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Deploy construction
	Deploy DeployConfig

	// Payment amounts per transaction family
	Fees FeeConfig

	// Auction contract
	Auction AuctionConfig

	// Session persistence
	Session SessionConfig

	// Remote signing provider (used by the CLI)
	Provider ProviderConfig

	// Signer daemon
	Signer SignerConfig

	// Logging
	Log LogConfig
}

// DeployConfig holds header defaults.
type DeployConfig struct {
	TTL      time.Duration `conf:"deploy.ttl"`
	GasPrice uint64        `conf:"deploy.gasprice"`
}

// FeeConfig holds payment amounts in motes.
type FeeConfig struct {
	Transfer   uint64 `conf:"fees.transfer"`
	Delegate   uint64 `conf:"fees.delegate"`
	Undelegate uint64 `conf:"fees.undelegate"`
	Redelegate uint64 `conf:"fees.redelegate"`
}

// AuctionConfig identifies the auction contract.
type AuctionConfig struct {
	Hash string `conf:"auction.hash"`
}

// SessionConfig selects where the active key is persisted.
type SessionConfig struct {
	Store string `conf:"session.store"` // badger or memory
}

// ProviderConfig points the CLI at a signing provider.
type ProviderConfig struct {
	Endpoint   string `conf:"provider.endpoint"`
	MinVersion string `conf:"provider.minversion"` // semver constraint, e.g. ">= 1.0.0"
}

// SignerConfig holds signer daemon settings.
type SignerConfig struct {
	Addr        string   `conf:"signer.addr"`
	Port        int      `conf:"signer.port"`
	AllowedIPs  []string `conf:"signer.allowed"`
	CORSOrigins []string `conf:"signer.cors"` // Allowed CORS origins ("*" = all).
	WalletFile  string   `conf:"signer.wallet"`
	AutoApprove bool     `conf:"signer.autoapprove"` // Approve every request without prompting.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// BuilderConfig converts the deploy settings into a deploy.BuilderConfig.
// The auction hash must already have passed Validate.
func (c *Config) BuilderConfig() deploy.BuilderConfig {
	auction, _ := types.HexToHash(c.Auction.Hash)
	return deploy.BuilderConfig{
		Clock:    time.Now,
		TTL:      c.Deploy.TTL,
		GasPrice: c.Deploy.GasPrice,
		Fees: deploy.FeeTable{
			Transfer:   c.Fees.Transfer,
			Delegate:   c.Fees.Delegate,
			Undelegate: c.Fees.Undelegate,
			Redelegate: c.Fees.Redelegate,
		},
		AuctionHash: auction,
	}
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.cspr-signer
//	macOS:   ~/Library/Application Support/CsprSigner
//	Windows: %APPDATA%\CsprSigner
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cspr-signer"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CsprSigner")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "CsprSigner")
		}
		return filepath.Join(home, "AppData", "Roaming", "CsprSigner")
	default:
		return filepath.Join(home, ".cspr-signer")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// SessionDir returns the session store directory.
func (c *Config) SessionDir() string {
	return filepath.Join(c.NetworkDataDir(), "session")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// WalletPath returns the signer wallet file path.
func (c *Config) WalletPath() string {
	if c.Signer.WalletFile == "" {
		return filepath.Join(c.KeystoreDir(), "wallet.json")
	}
	if filepath.IsAbs(c.Signer.WalletFile) {
		return c.Signer.WalletFile
	}
	return filepath.Join(c.KeystoreDir(), c.Signer.WalletFile)
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "signer.conf")
}
