package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is the release version reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Deploy
	TTL      string
	GasPrice uint64

	// Session
	SessionStore string

	// Provider
	Provider   string
	MinVersion string

	// Signer daemon
	SignerAddr    string
	SignerPort    int
	SignerAllowed string
	SignerCORS    string
	WalletFile    string
	AutoApprove   bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetAutoApprove bool
	SetLogJSON     bool
}

// ParseFlags parses os.Args and exits on error.
func ParseFlags() *Flags {
	f, err := ParseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ParseArgs parses the given command-line arguments.
func ParseArgs(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("signerd", flag.ContinueOnError)
	fs.SetOutput(output)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network (casper or casper-test)")
	var testnet bool
	fs.BoolVar(&testnet, "testnet", false, "Use casper-test (shorthand for --network=casper-test)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Deploy
	fs.StringVar(&f.TTL, "ttl", "", "Deploy time-to-live (e.g. 30m, 1h 30m)")
	fs.Uint64Var(&f.GasPrice, "gas-price", 0, "Deploy gas price")

	// Session
	fs.StringVar(&f.SessionStore, "session-store", "", "Session store: badger or memory")

	// Provider
	fs.StringVar(&f.Provider, "provider", "", "Signing provider endpoint URL")
	fs.StringVar(&f.MinVersion, "min-provider-version", "", "Required provider version constraint")

	// Signer daemon
	fs.StringVar(&f.SignerAddr, "addr", "", "Signer listen address")
	fs.IntVar(&f.SignerPort, "port", 0, "Signer listen port")
	fs.StringVar(&f.SignerAllowed, "allowed", "", "Allowed client IPs (comma-separated)")
	fs.StringVar(&f.SignerCORS, "cors", "", "Allowed CORS origins (comma-separated)")
	fs.StringVar(&f.WalletFile, "wallet", "", "Signer wallet file")
	fs.BoolVar(&f.AutoApprove, "auto-approve", false, "Approve every signing request without prompting")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage(output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if testnet {
		f.Network = string(Testnet)
	}
	f.SetAutoApprove = isFlagSet(fs, "auto-approve")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Detect flags left unparsed because a positional argument stopped the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) error {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Deploy
	if f.TTL != "" {
		d, err := parseDuration(f.TTL)
		if err != nil {
			return fmt.Errorf("--ttl: %w", err)
		}
		cfg.Deploy.TTL = d
	}
	if f.GasPrice != 0 {
		cfg.Deploy.GasPrice = f.GasPrice
	}

	// Session
	if f.SessionStore != "" {
		cfg.Session.Store = strings.ToLower(f.SessionStore)
	}

	// Provider
	if f.Provider != "" {
		cfg.Provider.Endpoint = f.Provider
	}
	if f.MinVersion != "" {
		cfg.Provider.MinVersion = f.MinVersion
	}

	// Signer daemon
	if f.SignerAddr != "" {
		cfg.Signer.Addr = f.SignerAddr
	}
	if f.SignerPort != 0 {
		cfg.Signer.Port = f.SignerPort
	}
	if f.SignerAllowed != "" {
		cfg.Signer.AllowedIPs = parseStringList(f.SignerAllowed)
	}
	if f.SignerCORS != "" {
		cfg.Signer.CORSOrigins = parseStringList(f.SignerCORS)
	}
	if f.WalletFile != "" {
		cfg.Signer.WalletFile = f.WalletFile
	}
	if f.SetAutoApprove {
		cfg.Signer.AutoApprove = f.AutoApprove
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	return nil
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(w io.Writer) {
	usage := `signerd - local signing provider for Casper deploys

Usage:
  signerd [options]            Run the signer
  signerd [options] init       Create a wallet from a new mnemonic
  signerd [options] import     Create a wallet from an existing mnemonic
  signerd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network: casper (default) or casper-test
  --testnet       Shorthand for --network=casper-test
  --datadir       Data directory (default: ~/.cspr-signer)
  --config, -c    Config file path (default: <datadir>/signer.conf)

Deploy Options:
  --ttl           Deploy time-to-live (default: 30m)
  --gas-price     Deploy gas price (default: 1)

Session Options:
  --session-store Session store: badger (default) or memory

Provider Options:
  --provider              Signing provider endpoint URL
  --min-provider-version  Required provider version, e.g. ">= 1.0.0"

Signer Options:
  --addr          Listen address (default: 127.0.0.1)
  --port          Listen port (casper: 7545, casper-test: 7645)
  --allowed       Allowed client IPs (comma-separated)
  --cors          Allowed CORS origins (comma-separated)
  --wallet        Wallet file (default: <datadir>/<network>/keystore/wallet.json)
  --auto-approve  Approve every signing request without prompting

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start a testnet signer
  signerd --testnet

  # Start with custom data directory
  signerd --datadir=/path/to/data
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("signerd version " + Version)
		os.Exit(0)
	}

	cfg, err := FromFlags(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// FromFlags builds a config from defaults, the config file and flags.
func FromFlags(flags *Flags) (*Config, error) {
	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.EqualFold(flags.Network, string(Testnet)) {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags win over the file.
	if err := ApplyFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("applying flags: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads config from defaults + conf file only (no CLI flags).
func LoadFromFile(dataDir string, network NetworkType) (*Config, error) {
	cfg := Default(network)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	fileValues, err := LoadFile(cfg.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.SessionDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
