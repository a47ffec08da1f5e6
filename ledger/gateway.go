// Package ledger talks to the escrow wallet daemon that holds
// deposited funds and executes outbound payments.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrTxNotFound indicates the transaction id is unknown to the ledger.
var ErrTxNotFound = errors.New("transaction not found")

// TxRecord is a confirmed or pending transaction as seen by the ledger.
type TxRecord struct {
	TxID          string  `json:"tx_id"`
	Type          string  `json:"type"` // payment | deposit
	Sender        string  `json:"sender"`
	Receiver      string  `json:"receiver"`
	Amount        float64 `json:"amount"`
	Confirmed     bool    `json:"confirmed"`
	Confirmations int     `json:"confirmations"`
}

// PaymentReceipt is returned by the ledger after an outbound payment.
type PaymentReceipt struct {
	TxID      string    `json:"tx_id"`
	Amount    float64   `json:"amount"`
	Receiver  string    `json:"receiver"`
	SettledAt time.Time `json:"settled_at"`
}

// Gateway is the ledger operations the escrow engine needs.
type Gateway interface {
	// LookupTx fetches a transaction by id. Returns ErrTxNotFound if
	// the ledger has never seen it.
	LookupTx(ctx context.Context, txID string) (*TxRecord, error)

	// Pay sends amount from the escrow wallet to receiver. The note is
	// attached to the transaction for audit.
	Pay(ctx context.Context, receiver string, amount float64, note string) (*PaymentReceipt, error)

	// EscrowAddress returns the deposit address of the escrow wallet.
	EscrowAddress(ctx context.Context) (string, error)

	// Balance returns the spendable balance of the escrow wallet.
	Balance(ctx context.Context) (float64, error)
}
