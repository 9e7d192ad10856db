package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Deploy
	case "deploy.ttl":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Deploy.TTL = d
	case "deploy.gasprice":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Deploy.GasPrice = n

	// Fees
	case "fees.transfer", "fees.delegate", "fees.undelegate", "fees.redelegate":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		switch key {
		case "fees.transfer":
			cfg.Fees.Transfer = n
		case "fees.delegate":
			cfg.Fees.Delegate = n
		case "fees.undelegate":
			cfg.Fees.Undelegate = n
		default:
			cfg.Fees.Redelegate = n
		}

	// Auction
	case "auction.hash":
		cfg.Auction.Hash = value

	// Session
	case "session.store":
		cfg.Session.Store = strings.ToLower(value)

	// Provider
	case "provider.endpoint":
		cfg.Provider.Endpoint = value
	case "provider.minversion":
		cfg.Provider.MinVersion = value

	// Signer daemon
	case "signer.addr":
		cfg.Signer.Addr = value
	case "signer.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Signer.Port = port
	case "signer.allowed":
		cfg.Signer.AllowedIPs = parseStringList(value)
	case "signer.cors":
		cfg.Signer.CORSOrigins = parseStringList(value)
	case "signer.wallet":
		cfg.Signer.WalletFile = value
	case "signer.autoapprove":
		cfg.Signer.AutoApprove = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseDuration accepts Go durations ("45m") and deploy TTL notation
// ("1h 30m", "1day").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return deploy.ParseTTL(s)
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# CSPR Signer Kit Configuration

# Network (chain name): casper or casper-test
network = ` + string(network) + `

# Data directory (default: ~/.cspr-signer)
# datadir = ~/.cspr-signer

# ============================================================================
# Deploys
# ============================================================================

deploy.ttl = 30m
deploy.gasprice = 1

# Payment amounts in motes
fees.transfer = ` + strconv.FormatUint(def.Fees.Transfer, 10) + `
fees.delegate = ` + strconv.FormatUint(def.Fees.Delegate, 10) + `
fees.undelegate = ` + strconv.FormatUint(def.Fees.Undelegate, 10) + `
fees.redelegate = ` + strconv.FormatUint(def.Fees.Redelegate, 10) + `

# Auction contract hash
auction.hash = ` + def.Auction.Hash + `

# ============================================================================
# Session
# ============================================================================

# Where the active key is persisted: badger or memory
session.store = badger

# ============================================================================
# Signing provider (CLI)
# ============================================================================

provider.endpoint = ` + def.Provider.Endpoint + `
# Reject providers outside this semver range
# provider.minversion = >= 1.0.0

# ============================================================================
# Signer daemon
# ============================================================================

signer.addr = 127.0.0.1
signer.port = ` + strconv.Itoa(def.Signer.Port) + `
signer.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# signer.cors = http://localhost:3000
# signer.wallet = wallet.json
# signer.autoapprove = false

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
