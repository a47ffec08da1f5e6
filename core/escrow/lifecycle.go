package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minWalletLen is the minimum length of a wallet address.
const minWalletLen = 10

// Controller drives the task lifecycle. All state transitions go
// through it; it serializes operations per task and persists state only
// after any required settlement has confirmed.
type Controller struct {
	store      TaskStore
	guard      *DepositGuard
	settlement *SettlementEngine
	scorer     ProofScorer
	autoVerify bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController creates a lifecycle controller. scorer may be nil to
// disable proof scoring; autoVerify releases payment automatically when
// a submitted proof scores PASS.
func NewController(store TaskStore, guard *DepositGuard, settlement *SettlementEngine, scorer ProofScorer, autoVerify bool) *Controller {
	return &Controller{
		store:      store,
		guard:      guard,
		settlement: settlement,
		scorer:     scorer,
		autoVerify: autoVerify,
		locks:      make(map[string]*sync.Mutex),
	}
}

// taskLock returns the mutex serializing operations on taskID.
func (c *Controller) taskLock(taskID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[taskID] = lock
	}
	return lock
}

func (c *Controller) releaseLock(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, taskID)
}

// CreateTask validates input, verifies the funding deposit, and stores
// the task as OPEN. A task never exists in an unfunded state.
func (c *Controller) CreateTask(ctx context.Context, input CreateTaskInput) (*Task, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &Task{
		TaskID:        uuid.NewString()[:8],
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Amount:        roundAmount(input.Amount),
		CreatorWallet: input.CreatorWallet,
		Status:        StatusOpen,
		FundingTxID:   input.FundingTxID,
		Deadline:      input.Deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := c.guard.VerifyDeposit(ctx, input.FundingTxID, input.CreatorWallet, task.Amount, task.TaskID); err != nil {
		return nil, err
	}

	if err := c.store.CreateTask(ctx, task); err != nil {
		// The funding tx is already marked used; its record carries this
		// task id so the deposit can be reconciled by hand.
		log.Printf("CRITICAL: deposit %s consumed for task %s but task store write failed: %v",
			task.FundingTxID, task.TaskID, err)
		return nil, NewError(CodeServiceUnavailable, fmt.Sprintf("failed to store task: %v", err)).
			WithHint(fmt.Sprintf("funding transaction %s is held for task %s; contact support to reconcile", task.FundingTxID, task.TaskID))
	}
	log.Printf("task %s created by %s for %f", task.TaskID, task.CreatorWallet, task.Amount)
	return task, nil
}

// GetTask fetches a single task by id.
func (c *Controller) GetTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, NewError(CodeNotFound, fmt.Sprintf("task %s not found", taskID))
		}
		return nil, NewError(CodeServiceUnavailable, fmt.Sprintf("failed to load task: %v", err))
	}
	return task, nil
}

// ListTasks returns tasks, newest first, optionally filtered by status
// and by wallet (matching creator or worker).
func (c *Controller) ListTasks(ctx context.Context, status Status, wallet string) ([]*Task, error) {
	if status != "" && !status.Valid() {
		return nil, NewFieldError("status", fmt.Sprintf("unknown status %q", status))
	}
	tasks, err := c.store.ListTasks(ctx, status, wallet)
	if err != nil {
		return nil, NewError(CodeServiceUnavailable, fmt.Sprintf("failed to list tasks: %v", err))
	}
	return tasks, nil
}

// ClaimTask assigns worker to an OPEN task. The creator cannot claim
// their own task.
func (c *Controller) ClaimTask(ctx context.Context, taskID, worker string) (*Task, error) {
	if len(worker) < minWalletLen {
		return nil, NewFieldError("worker_wallet", "invalid wallet address")
	}

	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusOpen {
		return nil, transitionError(task.Status, "claim")
	}
	if worker == task.CreatorWallet {
		return nil, NewError(CodeAuthorizationFailed, "creator cannot claim their own task")
	}

	claimed, err := c.store.ClaimTask(ctx, taskID, worker)
	if err != nil {
		if errors.Is(err, ErrTaskTaken) {
			return nil, NewError(CodePreconditionFailed, "task was claimed by another worker")
		}
		if errors.Is(err, ErrTaskNotFound) {
			return nil, NewError(CodeNotFound, fmt.Sprintf("task %s not found", taskID))
		}
		return nil, NewError(CodeServiceUnavailable, fmt.Sprintf("failed to claim task: %v", err))
	}
	log.Printf("task %s claimed by %s", taskID, worker)
	return claimed, nil
}

// SubmitProof records the worker's proof of completion and moves the
// task to SUBMITTED. Only the assigned worker may submit. When a scorer
// is configured the proof is scored; with aiVerify requested (or the
// server-wide auto-verify flag set) a PASS verdict releases payment
// immediately.
func (c *Controller) SubmitProof(ctx context.Context, taskID, caller, proofText, proofURL string, aiVerify bool) (*Task, error) {
	if strings.TrimSpace(proofText) == "" && strings.TrimSpace(proofURL) == "" {
		return nil, NewFieldError("proof", "proof text or url is required")
	}

	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusClaimed {
		return nil, transitionError(task.Status, "submit proof")
	}
	if caller != task.WorkerWallet {
		return nil, NewError(CodeAuthorizationFailed, "only the assigned worker can submit proof")
	}

	now := time.Now().UTC()
	task.ProofText = strings.TrimSpace(proofText)
	task.ProofURL = strings.TrimSpace(proofURL)
	task.Status = StatusSubmitted
	task.SubmittedAt = &now
	task.UpdatedAt = now

	if c.scorer != nil {
		result, serr := c.scorer.Score(ctx, task, task.ProofText, task.ProofURL)
		if serr != nil {
			// Scoring is advisory; the submission still lands.
			log.Printf("proof scoring failed for task %s: %v", taskID, serr)
		} else {
			task.AIScore = &result.Score
			task.AIVerdict = result.Verdict
		}
	}

	if err := c.store.UpdateTask(ctx, task, StatusClaimed); err != nil {
		return nil, mapUpdateError(err, taskID)
	}
	log.Printf("task %s proof submitted by %s", taskID, caller)

	if (aiVerify || c.autoVerify) && task.AIVerdict == "PASS" {
		settled, rerr := c.settleRelease(ctx, task, StatusSubmitted)
		if rerr != nil {
			// Leave the task SUBMITTED for manual approval.
			log.Printf("auto release failed for task %s: %v", taskID, rerr)
			return task, nil
		}
		return settled, nil
	}
	return task, nil
}

// ApproveTask releases payment for a SUBMITTED task. Only the creator
// may approve.
func (c *Controller) ApproveTask(ctx context.Context, taskID, caller string) (*Task, error) {
	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusSubmitted {
		return nil, transitionError(task.Status, "approve")
	}
	if caller != task.CreatorWallet {
		return nil, NewError(CodeAuthorizationFailed, "only the task creator can approve")
	}
	return c.settleRelease(ctx, task, StatusSubmitted)
}

// ReleasePayment forces payment release on a CLAIMED or SUBMITTED task.
// The creator or an admin uses this to pay out without a formal
// approval round.
func (c *Controller) ReleasePayment(ctx context.Context, taskID, caller string, isAdmin bool) (*Task, error) {
	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusClaimed && task.Status != StatusSubmitted {
		return nil, transitionError(task.Status, "release payment")
	}
	if !isAdmin && caller != task.CreatorWallet {
		return nil, NewError(CodeAuthorizationFailed, "only the task creator or an admin can release payment")
	}
	return c.settleRelease(ctx, task, task.Status)
}

// settleRelease pays the worker and persists COMPLETED. On settlement
// failure the task keeps its prior state so the caller can retry.
func (c *Controller) settleRelease(ctx context.Context, task *Task, from Status) (*Task, error) {
	receipt, err := c.settlement.Release(ctx, task)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = StatusCompleted
	task.SettlementTx = receipt.TxID
	task.PlatformFee = receipt.PlatformFee
	task.Payout = receipt.Payout
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := c.store.UpdateTask(ctx, task, from); err != nil {
		// Payment went out but the state write lost a race or failed.
		// Surface it loudly; the settlement tx id is in the logs for
		// manual reconciliation.
		log.Printf("CRITICAL: task %s paid (tx %s) but state update failed: %v", task.TaskID, receipt.TxID, err)
		return nil, mapUpdateError(err, task.TaskID)
	}
	log.Printf("task %s completed, paid %f to %s (fee %f, tx %s)",
		task.TaskID, receipt.Payout, receipt.Recipient, receipt.PlatformFee, receipt.TxID)
	return task, nil
}

// CancelTask refunds the creator and cancels an OPEN task. Claimed
// tasks cannot be cancelled; they go through dispute instead.
func (c *Controller) CancelTask(ctx context.Context, taskID, caller string) (*Task, error) {
	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusOpen {
		return nil, transitionError(task.Status, "cancel")
	}
	if caller != task.CreatorWallet {
		return nil, NewError(CodeAuthorizationFailed, "only the task creator can cancel")
	}

	receipt, err := c.settlement.Refund(ctx, task)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = StatusCancelled
	task.SettlementTx = receipt.TxID
	task.UpdatedAt = now
	if err := c.store.UpdateTask(ctx, task, StatusOpen); err != nil {
		log.Printf("CRITICAL: task %s refunded (tx %s) but state update failed: %v", taskID, receipt.TxID, err)
		return nil, mapUpdateError(err, taskID)
	}
	log.Printf("task %s cancelled, refunded %f to %s (tx %s)", taskID, task.Amount, task.CreatorWallet, receipt.TxID)
	return task, nil
}

// DisputeTask freezes a CLAIMED or SUBMITTED task pending off-platform
// resolution. Either party may raise a dispute. Funds stay in escrow.
func (c *Controller) DisputeTask(ctx context.Context, taskID, caller, reason string) (*Task, error) {
	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusClaimed && task.Status != StatusSubmitted {
		return nil, transitionError(task.Status, "dispute")
	}
	if caller != task.CreatorWallet && caller != task.WorkerWallet {
		return nil, NewError(CodeAuthorizationFailed, "only the creator or worker can raise a dispute")
	}

	from := task.Status
	now := time.Now().UTC()
	task.Status = StatusDisputed
	task.DisputeReason = strings.TrimSpace(reason)
	task.DisputedBy = caller
	task.UpdatedAt = now
	if err := c.store.UpdateTask(ctx, task, from); err != nil {
		return nil, mapUpdateError(err, taskID)
	}
	log.Printf("task %s disputed by %s: %s", taskID, caller, task.DisputeReason)
	return task, nil
}

// VerifyProof runs on-demand proof scoring for a SUBMITTED task and
// records the result without changing state.
func (c *Controller) VerifyProof(ctx context.Context, taskID string) (*ScoreResult, error) {
	if c.scorer == nil {
		return nil, NewError(CodeServiceUnavailable, "proof scoring is not configured")
	}

	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusSubmitted {
		return nil, transitionError(task.Status, "verify proof")
	}

	result, err := c.scorer.Score(ctx, task, task.ProofText, task.ProofURL)
	if err != nil {
		return nil, NewError(CodeServiceUnavailable, fmt.Sprintf("proof scoring failed: %v", err))
	}
	task.AIScore = &result.Score
	task.AIVerdict = result.Verdict
	task.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateTask(ctx, task, StatusSubmitted); err != nil {
		return nil, mapUpdateError(err, taskID)
	}
	return result, nil
}

// DeleteTask removes a task record. Only terminal tasks can be deleted;
// live tasks hold escrowed funds.
func (c *Controller) DeleteTask(ctx context.Context, taskID string) error {
	lock := c.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !task.Status.Terminal() {
		return NewError(CodePreconditionFailed,
			fmt.Sprintf("task in state %s still holds escrowed funds", task.Status))
	}
	if err := c.store.DeleteTask(ctx, taskID); err != nil {
		return NewError(CodeServiceUnavailable, fmt.Sprintf("failed to delete task: %v", err))
	}
	c.releaseLock(taskID)
	log.Printf("task %s deleted", taskID)
	return nil
}

// ExpireDueTasks refunds and expires OPEN tasks whose deadline has
// passed. Returns the number of tasks expired.
func (c *Controller) ExpireDueTasks(ctx context.Context) (int, error) {
	due, err := c.store.ListExpired(ctx)
	if err != nil {
		return 0, NewError(CodeServiceUnavailable, fmt.Sprintf("failed to list expired tasks: %v", err))
	}

	expired := 0
	for _, t := range due {
		lock := c.taskLock(t.TaskID)
		lock.Lock()

		task, gerr := c.store.GetTask(ctx, t.TaskID)
		if gerr != nil || task.Status != StatusOpen {
			lock.Unlock()
			continue
		}
		receipt, rerr := c.settlement.Refund(ctx, task)
		if rerr != nil {
			log.Printf("expiry refund failed for task %s: %v", task.TaskID, rerr)
			lock.Unlock()
			continue
		}
		now := time.Now().UTC()
		task.Status = StatusExpired
		task.SettlementTx = receipt.TxID
		task.UpdatedAt = now
		if uerr := c.store.UpdateTask(ctx, task, StatusOpen); uerr != nil {
			log.Printf("CRITICAL: task %s refunded (tx %s) but expiry update failed: %v", task.TaskID, receipt.TxID, uerr)
			lock.Unlock()
			continue
		}
		log.Printf("task %s expired, refunded %f to %s", task.TaskID, task.Amount, task.CreatorWallet)
		expired++
		lock.Unlock()
	}
	return expired, nil
}

func validateCreateInput(input CreateTaskInput) error {
	title := strings.TrimSpace(input.Title)
	if len(title) == 0 || len(title) > 200 {
		return NewFieldError("title", "title must be 1-200 characters")
	}
	desc := strings.TrimSpace(input.Description)
	if len(desc) == 0 || len(desc) > 2000 {
		return NewFieldError("description", "description must be 1-2000 characters")
	}
	if input.Amount <= 0 {
		return NewFieldError("amount", "amount must be positive")
	}
	if len(input.CreatorWallet) < minWalletLen {
		return NewFieldError("creator_wallet", "invalid wallet address")
	}
	if input.Deadline != nil && input.Deadline.Before(time.Now()) {
		return NewFieldError("deadline", "deadline must be in the future")
	}
	return nil
}

func transitionError(from Status, action string) *Error {
	return NewError(CodePreconditionFailed,
		fmt.Sprintf("cannot %s a task in state %s", action, from))
}

func mapUpdateError(err error, taskID string) error {
	if errors.Is(err, ErrStaleState) {
		return NewError(CodePreconditionFailed, "task state changed concurrently, retry")
	}
	if errors.Is(err, ErrTaskNotFound) {
		return NewError(CodeNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	return NewError(CodeServiceUnavailable, fmt.Sprintf("failed to update task: %v", err))
}
