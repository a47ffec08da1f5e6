package handlers

import (
	"net/http"
	"strings"

	"gigbounty-backend/core/escrow"
	"gigbounty-backend/models"
)

// Roles are advisory profile metadata; they never grant authorization.
var validRoles = map[string]bool{
	"poster":   true,
	"acceptor": true,
}

// WalletHandler handles wallet role requests
type WalletHandler struct {
	*BaseHandler
	roles escrow.RoleStore
	auth  Authenticator
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(roles escrow.RoleStore, auth Authenticator) *WalletHandler {
	return &WalletHandler{
		BaseHandler: NewBaseHandler(),
		roles:       roles,
		auth:        auth,
	}
}

// HandleWalletRole routes GET /api/wallet/role/{wallet} and POST /api/wallet/role
func (h *WalletHandler) HandleWalletRole(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		wallet := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/wallet/role"), "/")
		if wallet == "" {
			h.sendError(w, http.StatusBadRequest, "Wallet address required")
			return
		}
		role, err := h.roles.GetRole(r.Context(), wallet)
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to load wallet role")
			return
		}
		h.sendSuccess(w, role)

	case http.MethodPost:
		caller, err := h.auth.Authenticate(r)
		if err != nil {
			h.sendError(w, http.StatusUnauthorized, err.Error())
			return
		}

		var req models.RoleRequest
		if err := h.parseJSON(r, &req); err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Wallet == "" {
			req.Wallet = caller
		}
		// Wallets manage only their own role.
		if req.Wallet != caller {
			h.sendError(w, http.StatusForbidden, "Cannot assign roles for other wallets")
			return
		}
		if !validRoles[req.Role] {
			h.sendError(w, http.StatusBadRequest, "Unknown role: "+req.Role)
			return
		}

		role := &escrow.WalletRole{Wallet: req.Wallet, Role: req.Role}
		if err := h.roles.SetRole(r.Context(), role); err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to store wallet role")
			return
		}
		h.sendSuccess(w, role)

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
