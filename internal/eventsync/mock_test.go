package eventsync

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/nftrelay/internal/core/cursor"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	"github.com/vietddude/nftrelay/internal/infra/storage/memory"
)

const gradingABI = `[
	{"type":"event","name":"GradeAssigned","anonymous":false,
	 "inputs":[
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"grader","type":"address","indexed":true},
		{"name":"grade","type":"uint16","indexed":false}
	 ]},
	{"type":"event","name":"GradeRevoked","anonymous":false,
	 "inputs":[{"name":"tokenId","type":"uint256","indexed":true}]}
]`

var (
	gradingAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	graderAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	errNotImpl  = errors.New("not implemented")
)

// MockLedger serves logs and headers from memory.
type MockLedger struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	logs        []types.Log
	filterErr   error
	filterCalls [][2]uint64
	blockErr    error
	hashSalt    byte
}

func (m *MockLedger) hashFor(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n*1000 + uint64(m.hashSalt)))
}

func (m *MockLedger) setHead(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = n
}

func (m *MockLedger) calls() [][2]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.filterCalls)
}

func (m *MockLedger) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(31337), nil }
func (m *MockLedger) FeeData(ctx context.Context) (ledger.FeeData, error) {
	return ledger.FeeData{}, errNotImpl
}
func (m *MockLedger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 0, errNotImpl
}
func (m *MockLedger) PendingNonceAt(ctx context.Context, a common.Address) (uint64, error) {
	return 0, errNotImpl
}
func (m *MockLedger) TransactionByHash(ctx context.Context, h common.Hash) (*ledger.TxInfo, error) {
	return nil, errNotImpl
}
func (m *MockLedger) TransactionReceipt(ctx context.Context, h common.Hash) (*ledger.Receipt, error) {
	return nil, errNotImpl
}
func (m *MockLedger) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	return common.Hash{}, errNotImpl
}

func (m *MockLedger) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, m.headErr
}

func (m *MockLedger) BlockByNumber(ctx context.Context, n uint64) (*ledger.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockErr != nil {
		return nil, m.blockErr
	}
	if n > m.head {
		return nil, nil
	}
	return &ledger.Block{Number: n, Hash: m.hashFor(n), Timestamp: 1_700_000_000 + n}, nil
}

func (m *MockLedger) BlocksByNumber(ctx context.Context, numbers []uint64) (map[uint64]*ledger.Block, error) {
	out := make(map[uint64]*ledger.Block, len(numbers))
	for _, n := range numbers {
		b, err := m.BlockByNumber(ctx, n)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out[n] = b
		}
	}
	return out, nil
}

func (m *MockLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	m.filterCalls = append(m.filterCalls, [2]uint64{from, to})
	if m.filterErr != nil {
		return nil, m.filterErr
	}

	var out []types.Log
	for _, l := range m.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !slices.Contains(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !slices.Contains(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func gradeLog(t *testing.T, reg *ledger.Registry, block uint64, index uint, tokenID int64, grade uint16) types.Log {
	t.Helper()
	c, err := reg.Get("grading")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ev := c.ABI.Events["GradeAssigned"]
	data, err := ev.Inputs.NonIndexed().Pack(grade)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address: gradingAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(tokenID)),
			common.BytesToHash(graderAddr.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*100 + int64(index))),
		Index:       index,
	}
}

type fixture struct {
	ledger  *MockLedger
	reg     *ledger.Registry
	cursors *cursor.Manager
	sync    *Synchronizer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	reg := ledger.NewRegistry()
	if _, err := reg.Register("grading", gradingAddr, gradingABI); err != nil {
		t.Fatalf("register: %v", err)
	}
	ml := &MockLedger{}
	cursors := cursor.NewManager(memory.NewCursorRepo(memory.NewMemoryStorage()))
	return &fixture{
		ledger:  ml,
		reg:     reg,
		cursors: cursors,
		sync:    New(ml, reg, cursors, cfg),
	}
}

type fakeLease struct {
	mu       sync.Mutex
	granted  bool
	released int
}

func (l *fakeLease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted, nil
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}
