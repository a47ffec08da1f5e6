package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"gigbounty-backend/core/escrow"
	"gigbounty-backend/models"
)

// TaskHandler handles task lifecycle requests
type TaskHandler struct {
	*BaseHandler
	controller *escrow.Controller
	auth       Authenticator
	adminToken string
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(controller *escrow.Controller, auth Authenticator) *TaskHandler {
	return &TaskHandler{
		BaseHandler: NewBaseHandler(),
		controller:  controller,
		auth:        auth,
		adminToken:  os.Getenv("GIGBOUNTY_ADMIN_TOKEN"),
	}
}

// HandleTasks routes /api/tasks and /api/tasks/{id}[/{action}] requests
func (h *TaskHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	parts := strings.Split(path, "/")
	taskID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, taskID)
		case http.MethodDelete:
			h.handleDelete(w, r, taskID)
		default:
			h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch parts[1] {
	case "claim":
		h.handleClaim(w, r, taskID)
	case "submit-proof":
		h.handleSubmitProof(w, r, taskID)
	case "approve":
		h.handleApprove(w, r, taskID)
	case "release-payment":
		h.handleRelease(w, r, taskID)
	case "cancel":
		h.handleCancel(w, r, taskID)
	case "dispute":
		h.handleDispute(w, r, taskID)
	case "ai-verify":
		h.handleVerifyProof(w, r, taskID)
	default:
		h.sendError(w, http.StatusNotFound, "Unknown task action: "+parts[1])
	}
}

func (h *TaskHandler) handleList(w http.ResponseWriter, r *http.Request) {
	status := escrow.Status(r.URL.Query().Get("status"))
	wallet := r.URL.Query().Get("wallet")

	tasks, err := h.controller.ListTasks(r.Context(), status, wallet)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponseWithMeta(tasks, map[string]interface{}{
		"total": len(tasks),
	}))
}

func (h *TaskHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var input escrow.CreateTaskInput
	if err := h.parseJSON(r, &input); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	input.CreatorWallet = wallet

	task, err := h.controller.CreateTask(r.Context(), input)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(task))
}

func (h *TaskHandler) handleGet(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.controller.GetTask(r.Context(), taskID)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleClaim(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	task, err := h.controller.ClaimTask(r.Context(), taskID, wallet)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleSubmitProof(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req models.ProofRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	task, err := h.controller.SubmitProof(r.Context(), taskID, wallet, req.ProofText, req.ProofURL, req.AIVerify)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleApprove(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	task, err := h.controller.ApproveTask(r.Context(), taskID, wallet)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleRelease(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	task, err := h.controller.ReleasePayment(r.Context(), taskID, wallet, h.isAdminRequest(r))
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleCancel(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	task, err := h.controller.CancelTask(r.Context(), taskID, wallet)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleDispute(w http.ResponseWriter, r *http.Request, taskID string) {
	wallet, err := h.auth.Authenticate(r)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req models.DisputeRequest
	if err := h.parseJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	task, err := h.controller.DisputeTask(r.Context(), taskID, wallet, req.Reason)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handleVerifyProof(w http.ResponseWriter, r *http.Request, taskID string) {
	result, err := h.controller.VerifyProof(r.Context(), taskID)
	if err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, result)
}

func (h *TaskHandler) handleDelete(w http.ResponseWriter, r *http.Request, taskID string) {
	if !h.isAdminRequest(r) {
		h.sendError(w, http.StatusForbidden, "Admin token required")
		return
	}

	if err := h.controller.DeleteTask(r.Context(), taskID); err != nil {
		h.sendEscrowError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"task_id": taskID, "deleted": "true"})
}

// isAdminRequest reports whether the request carries the admin token.
// Wallet roles are advisory metadata and never grant privileges.
func (h *TaskHandler) isAdminRequest(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	return r.Header.Get("X-Admin-Token") == h.adminToken
}
