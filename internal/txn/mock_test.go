package txn

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// MockLedger implements ledger.Client for submission tests
type MockLedger struct {
	mu sync.Mutex

	chainID int64

	fee    ledger.FeeData
	feeErr error

	estimate    uint64
	estimateErr error

	pendingNonce uint64
	nonceErr     error
	nonceCalls   int

	head uint64

	// sendErrs[i] is returned by the i-th broadcast
	sendErrs []error
	sent     []*types.Transaction
	// accepted broadcasts the node still knows about; evict forgets them
	known map[common.Hash]bool
	evict bool

	autoMine   bool
	mineStatus uint64
	gasUsed    uint64
	receipts   map[common.Hash]*ledger.Receipt
}

func newMockLedger() *MockLedger {
	return &MockLedger{
		chainID:      1337,
		fee:          ledger.FeeData{GasPrice: big.NewInt(20_000_000_000)},
		estimate:     100_000,
		pendingNonce: 5,
		head:         100,
		autoMine:     true,
		mineStatus:   types.ReceiptStatusSuccessful,
		gasUsed:      21_000,
		receipts:     make(map[common.Hash]*ledger.Receipt),
		known:        make(map[common.Hash]bool),
	}
}

func (m *MockLedger) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(m.chainID), nil
}

func (m *MockLedger) FeeData(ctx context.Context) (ledger.FeeData, error) {
	return m.fee, m.feeErr
}

func (m *MockLedger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return m.estimate, m.estimateErr
}

func (m *MockLedger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonceCalls++
	return m.pendingNonce, m.nonceErr
}

func (m *MockLedger) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, nil
}

func (m *MockLedger) BlockByNumber(ctx context.Context, number uint64) (*ledger.Block, error) {
	return nil, nil
}

func (m *MockLedger) BlocksByNumber(ctx context.Context, numbers []uint64) (map[uint64]*ledger.Block, error) {
	return map[uint64]*ledger.Block{}, nil
}

func (m *MockLedger) TransactionByHash(ctx context.Context, hash common.Hash) (*ledger.TxInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[hash] {
		return nil, nil
	}
	info := &ledger.TxInfo{Hash: hash}
	if r := m.receipts[hash]; r != nil {
		block := r.BlockNumber
		info.BlockNumber = &block
	}
	return info, nil
}

func (m *MockLedger) TransactionReceipt(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts[hash], nil
}

func (m *MockLedger) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.sent)
	m.sent = append(m.sent, tx)
	if i < len(m.sendErrs) && m.sendErrs[i] != nil {
		return common.Hash{}, m.sendErrs[i]
	}
	if !m.evict {
		m.known[tx.Hash()] = true
	}
	if m.autoMine {
		m.receipts[tx.Hash()] = &ledger.Receipt{
			TxHash:      tx.Hash(),
			BlockNumber: m.head,
			Status:      m.mineStatus,
			GasUsed:     m.gasUsed,
		}
	}
	return tx.Hash(), nil
}

func (m *MockLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, errors.New("not implemented")
}

func (m *MockLedger) Sent() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Transaction(nil), m.sent...)
}

// memJournal records journal writes
type memJournal struct {
	mu      sync.Mutex
	records []domain.TxRecord
}

func (j *memJournal) Save(ctx context.Context, rec *domain.TxRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, *rec)
	return nil
}
