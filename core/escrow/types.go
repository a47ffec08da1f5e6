package escrow

import (
	"time"
)

// Status is the lifecycle state of a bounty task.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusClaimed   Status = "CLAIMED"
	StatusSubmitted Status = "SUBMITTED"
	StatusDisputed  Status = "DISPUTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusDisputed:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClaimed, StatusSubmitted, StatusDisputed,
		StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Task represents an escrowed bounty task.
type Task struct {
	TaskID        string     `json:"task_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Amount        float64    `json:"amount"`
	CreatorWallet string     `json:"creator_wallet"`
	WorkerWallet  string     `json:"worker_wallet,omitempty"`
	Status        Status     `json:"status"`
	FundingTxID   string     `json:"funding_tx_id,omitempty"`
	ProofText     string     `json:"proof_text,omitempty"`
	ProofURL      string     `json:"proof_url,omitempty"`
	AIScore       *float64   `json:"ai_score,omitempty"`
	AIVerdict     string     `json:"ai_verdict,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`
	DisputedBy    string     `json:"disputed_by,omitempty"`
	SettlementTx  string     `json:"settlement_tx,omitempty"`
	PlatformFee   float64    `json:"platform_fee,omitempty"`
	Payout        float64    `json:"payout,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CreateTaskInput carries the caller-supplied fields for a new task.
type CreateTaskInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Amount        float64    `json:"amount"`
	CreatorWallet string     `json:"creator_wallet"`
	FundingTxID   string     `json:"funding_tx_id"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// SettlementReceipt records the outcome of a release or refund.
type SettlementReceipt struct {
	TxID        string    `json:"tx_id"`
	Type        string    `json:"type"` // release | refund
	Amount      float64   `json:"amount"`
	PlatformFee float64   `json:"platform_fee"`
	Payout      float64   `json:"payout"`
	Recipient   string    `json:"recipient"`
	SettledAt   time.Time `json:"settled_at"`
}

// ScoreResult is the outcome of automated proof scoring.
type ScoreResult struct {
	Score   float64 `json:"score"`
	Verdict string  `json:"verdict"` // PASS | FAIL
	Detail  string  `json:"detail,omitempty"`
}

// WalletRole associates a wallet address with a platform role.
type WalletRole struct {
	Wallet    string    `json:"wallet"`
	Role      string    `json:"role"` // poster | acceptor
	UpdatedAt time.Time `json:"updated_at"`
}

// EscrowInfo describes the platform escrow wallet for deposits.
type EscrowInfo struct {
	Address   string  `json:"address"`
	Balance   float64 `json:"balance"`
	FeeRate   float64 `json:"fee_rate"`
	Network   string  `json:"network"`
	Available bool    `json:"available"`
}
