package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownContract is returned for a contract key that was never registered.
var ErrUnknownContract = errors.New("unknown contract")

// Contract binds a registry key to a deployed address and its ABI.
type Contract struct {
	Key     string
	Address common.Address
	ABI     abi.ABI
}

// Pack encodes a call to method with args.
func (c *Contract) Pack(method string, args ...any) ([]byte, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.Key, method, err)
	}
	return data, nil
}

// EventID returns topic0 of the named event.
func (c *Contract) EventID(name string) (common.Hash, error) {
	ev, ok := c.ABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s not in %s abi", name, c.Key)
	}
	return ev.ID, nil
}

// DecodeLog unpacks both indexed and data arguments of a log into a map
// keyed by argument name.
func (c *Contract) DecodeLog(name string, log types.Log) (map[string]any, error) {
	ev, ok := c.ABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %s not in %s abi", name, c.Key)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a %s event", name)
	}

	args := make(map[string]any, len(ev.Inputs))
	if len(log.Data) > 0 {
		if err := c.ABI.UnpackIntoMap(args, name, log.Data); err != nil {
			return nil, fmt.Errorf("unpack %s data: %w", name, err)
		}
	}

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", name, err)
	}
	return args, nil
}

// Registry maps contract keys to deployed contracts.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]*Contract)}
}

// Register parses abiJSON and stores the contract under key.
func (r *Registry) Register(key string, address common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi for %s: %w", key, err)
	}

	c := &Contract{Key: key, Address: address, ABI: parsed}

	r.mu.Lock()
	r.contracts[key] = c
	r.mu.Unlock()
	return c, nil
}

// RegisterFile loads the ABI from a JSON file. Hardhat/Foundry artifacts with
// an "abi" field are accepted as well as bare ABI arrays.
func (r *Registry) RegisterFile(key string, address common.Address, path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi file: %w", err)
	}
	return r.Register(key, address, extractABI(data))
}

func extractABI(data []byte) string {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "{") {
		return s
	}
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &artifact); err == nil && len(artifact.ABI) > 0 {
		return string(artifact.ABI)
	}
	return s
}

// Get returns the contract registered under key.
func (r *Registry) Get(key string) (*Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, key)
	}
	return c, nil
}

// Keys returns registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.contracts))
	for k := range r.contracts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
