package config

import (
	"time"

	"github.com/vietddude/nftrelay/internal/eventsync"
	redisclient "github.com/vietddude/nftrelay/internal/infra/redis"
	"github.com/vietddude/nftrelay/internal/infra/storage/postgres"
	"github.com/vietddude/nftrelay/internal/resilience"
	"github.com/vietddude/nftrelay/internal/txn"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	Logging   LoggingConfig            `yaml:"logging"`
	Ledger    LedgerConfig             `yaml:"ledger"`
	Signer    SignerConfig             `yaml:"signer"`
	Contracts []ContractConfig         `yaml:"contracts"`
	Retry     resilience.RetryConfig   `yaml:"retry"`
	Breaker   resilience.BreakerConfig `yaml:"breaker"`
	Gas       txn.GasConfig            `yaml:"gas"`
	Submitter txn.SubmitterConfig      `yaml:"submitter"`
	Sync      eventsync.Config         `yaml:"sync"`
	Redis     redisclient.Config       `yaml:"redis"`
	Database  postgres.Config          `yaml:"database"`
	Journal   JournalConfig            `yaml:"journal"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LedgerConfig describes the EVM ledger and its JSON-RPC providers.
type LedgerConfig struct {
	ChainID   int64            `yaml:"chain_id"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a JSON-RPC provider.
type ProviderConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	RPS        float64       `yaml:"rps"`         // 0 = unthrottled
	DailyLimit int           `yaml:"daily_limit"` // 0 = unlimited
}

// SignerConfig holds the single signing credential. The key is opaque here.
type SignerConfig struct {
	PrivateKey string `yaml:"private_key"`
}

// ContractConfig registers one deployed contract.
type ContractConfig struct {
	Key     string   `yaml:"key"`
	Address string   `yaml:"address"`
	ABIPath string   `yaml:"abi_path"`
	ABI     string   `yaml:"abi"`
	Events  []string `yaml:"events"` // logged by the run command while monitoring
}

// JournalConfig controls how long settled transaction records are kept.
type JournalConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}
