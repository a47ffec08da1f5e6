package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SimGateway is an in-process ledger for development and tests. Deposits
// are seeded explicitly; payments succeed as long as the balance covers
// them.
type SimGateway struct {
	mu      sync.RWMutex
	address string
	balance float64
	txs     map[string]*TxRecord
}

// NewSimGateway creates a simulated ledger with the given escrow address
// and starting balance.
func NewSimGateway(address string, balance float64) *SimGateway {
	return &SimGateway{
		address: address,
		balance: balance,
		txs:     make(map[string]*TxRecord),
	}
}

// SeedDeposit registers a deposit transaction so deposit verification
// can find it. Returns the record for convenience.
func (g *SimGateway) SeedDeposit(txID, sender string, amount float64) *TxRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := &TxRecord{
		TxID:          txID,
		Type:          "payment",
		Sender:        sender,
		Receiver:      g.address,
		Amount:        amount,
		Confirmed:     true,
		Confirmations: 6,
	}
	g.txs[txID] = rec
	g.balance += amount
	return rec
}

// SeedTx registers an arbitrary transaction record.
func (g *SimGateway) SeedTx(rec *TxRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txs[rec.TxID] = rec
}

// LookupTx fetches a seeded transaction by id.
func (g *SimGateway) LookupTx(_ context.Context, txID string) (*TxRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.txs[txID]
	if !ok {
		return nil, ErrTxNotFound
	}
	cp := *rec
	return &cp, nil
}

// Pay debits the simulated balance and mints a receipt.
func (g *SimGateway) Pay(_ context.Context, receiver string, amount float64, note string) (*PaymentReceipt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount: %f", amount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balance < amount {
		return nil, fmt.Errorf("insufficient escrow balance: have %f, need %f", g.balance, amount)
	}
	g.balance -= amount
	txID := randomTxID()
	g.txs[txID] = &TxRecord{
		TxID:          txID,
		Type:          "payment",
		Sender:        g.address,
		Receiver:      receiver,
		Amount:        amount,
		Confirmed:     true,
		Confirmations: 1,
	}
	return &PaymentReceipt{
		TxID:      txID,
		Amount:    amount,
		Receiver:  receiver,
		SettledAt: time.Now(),
	}, nil
}

// EscrowAddress returns the configured deposit address.
func (g *SimGateway) EscrowAddress(_ context.Context) (string, error) {
	return g.address, nil
}

// Balance returns the simulated spendable balance.
func (g *SimGateway) Balance(_ context.Context) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.balance, nil
}

func randomTxID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sim-%d", time.Now().UnixNano())
	}
	return "SIM" + hex.EncodeToString(buf)
}
