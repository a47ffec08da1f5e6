package escrow

import (
	"context"
	"errors"
)

// Store errors surfaced by implementations.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskTaken     = errors.New("task already claimed")
	ErrStaleState    = errors.New("task state changed concurrently")
	ErrTxAlreadyUsed = errors.New("funding transaction already used")
)

// TaskStore is the task persistence the lifecycle controller needs.
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context, status Status, wallet string) ([]*Task, error)
	// UpdateTask persists task only if its stored status still equals
	// expected. Returns ErrStaleState on a lost race.
	UpdateTask(ctx context.Context, task *Task, expected Status) error
	// ClaimTask atomically assigns worker to an OPEN task. Returns
	// ErrTaskTaken if another worker got there first.
	ClaimTask(ctx context.Context, taskID, worker string) (*Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	// ListExpired returns OPEN tasks whose deadline has passed.
	ListExpired(ctx context.Context) ([]*Task, error)
}

// UsedTxSet tracks funding transaction ids that already funded a task.
type UsedTxSet interface {
	// TxUsed reports whether txID has ever funded a task.
	TxUsed(ctx context.Context, txID string) (bool, error)
	// MarkTxUsed records txID as consumed by taskID. Returns
	// ErrTxAlreadyUsed if another task claimed it concurrently.
	MarkTxUsed(ctx context.Context, txID, taskID string) error
}

// RoleStore persists wallet role assignments.
type RoleStore interface {
	GetRole(ctx context.Context, wallet string) (*WalletRole, error)
	SetRole(ctx context.Context, role *WalletRole) error
}

// ProofScorer scores a submitted proof against the task description.
type ProofScorer interface {
	Score(ctx context.Context, task *Task, proofText, proofURL string) (*ScoreResult, error)
}
