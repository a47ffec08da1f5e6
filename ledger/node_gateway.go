package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// NodeGateway talks to the escrow wallet daemon over its HTTP API.
type NodeGateway struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewNodeGateway builds a gateway using GIGBOUNTY_NODE_URL or the
// local daemon default.
func NewNodeGateway() *NodeGateway {
	base := os.Getenv("GIGBOUNTY_NODE_URL")
	if base == "" {
		base = "http://localhost:4001"
	}
	return &NodeGateway{
		baseURL: base,
		apiKey:  os.Getenv("GIGBOUNTY_NODE_TOKEN"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *NodeGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ledger request: status %d: %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// LookupTx fetches a transaction record by id.
func (g *NodeGateway) LookupTx(ctx context.Context, txID string) (*TxRecord, error) {
	var rec TxRecord
	if err := g.do(ctx, http.MethodGet, "/v1/transactions/"+txID, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Pay sends amount from the escrow wallet to receiver.
func (g *NodeGateway) Pay(ctx context.Context, receiver string, amount float64, note string) (*PaymentReceipt, error) {
	payload := map[string]any{
		"receiver": receiver,
		"amount":   amount,
		"note":     note,
	}
	var receipt PaymentReceipt
	if err := g.do(ctx, http.MethodPost, "/v1/payments", payload, &receipt); err != nil {
		return nil, err
	}
	if receipt.SettledAt.IsZero() {
		receipt.SettledAt = time.Now()
	}
	return &receipt, nil
}

// EscrowAddress returns the deposit address of the escrow wallet.
func (g *NodeGateway) EscrowAddress(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/wallet/address", nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

// Balance returns the spendable balance of the escrow wallet.
func (g *NodeGateway) Balance(ctx context.Context) (float64, error) {
	var out struct {
		Balance float64 `json:"balance"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/wallet/balance", nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}
