package models

import "time"

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	UptimeSec int64  `json:"uptime_sec"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// QRCodeRequest represents QR code generation request
type QRCodeRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount,omitempty"`
}

// ProofRequest carries the worker's proof of completion. AIVerify asks
// for automated scoring with release on a passing verdict.
type ProofRequest struct {
	ProofText string `json:"proof_text,omitempty"`
	ProofURL  string `json:"proof_url,omitempty"`
	AIVerify  bool   `json:"ai_verify,omitempty"`
}

// DisputeRequest carries the reason for freezing a task
type DisputeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RoleRequest carries a wallet role assignment
type RoleRequest struct {
	Wallet string `json:"wallet"`
	Role   string `json:"role"`
}

// ChallengeRequest asks for a signing challenge for a wallet
type ChallengeRequest struct {
	Wallet string `json:"wallet"`
}

// ChallengeResponse returns the nonce the wallet must sign
type ChallengeResponse struct {
	Wallet    string `json:"wallet"`
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expires_at"`
}

// VerifyRequest carries a signed challenge for verification
type VerifyRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *ErrorResponse         `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(error string, code string) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     error,
			Message:   error,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NewErrorResponseWithHint creates an error response with a hint.
func NewErrorResponseWithHint(error string, code string, hint string) *APIResponse {
	resp := NewErrorResponse(error, code)
	if resp != nil && resp.Error != nil {
		resp.Error.Hint = hint
	}
	return resp
}

// NewSuccessResponseWithMeta creates a success response with metadata
func NewSuccessResponseWithMeta(data interface{}, meta map[string]interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
}
