package config

import (
	"strconv"

	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
)

// Auction contract hashes per network.
const (
	MainnetAuctionHash = "ccb576d6ce6dec84a551e48f0d0b7af89ddba44c7390b690036257a04a3ae9ea"
	TestnetAuctionHash = deploy.DefaultAuctionHash
)

// Default signer daemon ports.
const (
	MainnetSignerPort = 7545
	TestnetSignerPort = 7645
)

// DefaultMainnet returns the default configuration for casper.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Deploy: DeployConfig{
			TTL:      deploy.DefaultTTL,
			GasPrice: deploy.DefaultGasPrice,
		},
		Fees: FeeConfig{
			Transfer:   deploy.DefaultTransferFee,
			Delegate:   deploy.DefaultDelegateFee,
			Undelegate: deploy.DefaultUndelegateFee,
			Redelegate: deploy.DefaultRedelegateFee,
		},
		Auction: AuctionConfig{
			Hash: MainnetAuctionHash,
		},
		Session: SessionConfig{
			Store: StoreBadger,
		},
		Provider: ProviderConfig{
			Endpoint: "http://127.0.0.1:" + strconv.Itoa(MainnetSignerPort),
		},
		Signer: SignerConfig{
			Addr:       "127.0.0.1",
			Port:       MainnetSignerPort,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for casper-test.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Auction.Hash = TestnetAuctionHash
	cfg.Signer.Port = TestnetSignerPort
	cfg.Provider.Endpoint = "http://127.0.0.1:" + strconv.Itoa(TestnetSignerPort)
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
