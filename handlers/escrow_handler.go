package handlers

import (
	"net/http"
	"os"

	"gigbounty-backend/core/escrow"
	"gigbounty-backend/ledger"
)

// EscrowHandler serves escrow wallet information for depositors
type EscrowHandler struct {
	*BaseHandler
	gateway ledger.Gateway
	network string
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(gateway ledger.Gateway) *EscrowHandler {
	network := os.Getenv("GIGBOUNTY_NETWORK")
	if network == "" {
		network = "testnet"
	}
	return &EscrowHandler{
		BaseHandler: NewBaseHandler(),
		gateway:     gateway,
		network:     network,
	}
}

// HandleEscrowInfo returns the escrow deposit address, balance, and fee rate
func (h *EscrowHandler) HandleEscrowInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	info := escrow.EscrowInfo{
		FeeRate: escrow.FeeRate,
		Network: h.network,
	}

	address, err := h.gateway.EscrowAddress(r.Context())
	if err != nil {
		// Report the wallet as unavailable rather than failing the
		// whole endpoint; the fee rate and network are still useful.
		h.sendSuccess(w, info)
		return
	}
	info.Address = address

	if balance, err := h.gateway.Balance(r.Context()); err == nil {
		info.Balance = balance
		info.Available = true
	}

	h.sendSuccess(w, info)
}
