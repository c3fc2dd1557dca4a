package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/nftrelay/internal/core/validate"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	for i := range c.Ledger.Providers {
		p := &c.Ledger.Providers[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("provider-%d", i)
		}
		if p.Timeout == 0 {
			p.Timeout = 15 * time.Second
		}
	}

	c.Retry = c.Retry.WithDefaults()
	c.Sync = c.Sync.WithDefaults()
	c.Submitter.ChainID = c.Ledger.ChainID
}

// Validate reports configuration that cannot start a relay.
func (c *AppConfig) Validate() error {
	var errs []error
	if len(c.Ledger.Providers) == 0 {
		errs = append(errs, errors.New("ledger.providers: at least one provider is required"))
	}
	for i, p := range c.Ledger.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("ledger.providers[%d]: url is required", i))
		}
	}
	if c.Signer.PrivateKey == "" {
		errs = append(errs, errors.New("signer.private_key is required"))
	}

	seen := make(map[string]bool, len(c.Contracts))
	for i, ct := range c.Contracts {
		switch {
		case ct.Key == "":
			errs = append(errs, fmt.Errorf("contracts[%d]: key is required", i))
		case seen[ct.Key]:
			errs = append(errs, fmt.Errorf("contracts[%d]: duplicate key %q", i, ct.Key))
		}
		seen[ct.Key] = true
		if _, err := validate.Address(ct.Address); err != nil {
			errs = append(errs, fmt.Errorf("contracts[%d]: invalid address: %w", i, err))
		}
		if ct.ABIPath == "" && ct.ABI == "" {
			errs = append(errs, fmt.Errorf("contracts[%d]: abi_path or abi is required", i))
		}
	}
	return errors.Join(errs...)
}
