package domain

import "time"

// TxRecord is the journal entry for a submitted transaction.
type TxRecord struct {
	OperationID string    `db:"operation_id"`
	TxHash      string    `db:"tx_hash"`
	From        string    `db:"from_address"`
	To          string    `db:"to_address"`
	Nonce       uint64    `db:"nonce"`
	ContractKey string    `db:"contract_key"`
	Function    string    `db:"function_name"`
	Status      TxStatus  `db:"status"`
	BlockNumber uint64    `db:"block_number"`
	GasUsed     uint64    `db:"gas_used"`
	ErrorKind   string    `db:"error_kind"`
	Message     string    `db:"message"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusReverted  TxStatus = "reverted"
)
