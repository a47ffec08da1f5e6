package escrow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gigbounty-backend/core/escrow"
	"gigbounty-backend/ledger"
	"gigbounty-backend/services"
	storage "gigbounty-backend/storage/escrow"
)

const (
	creatorWallet = "CREATORWALLET1"
	workerWallet  = "WORKERWALLET01"
	escrowAddress = "ESCROWADDRESS123"
)

type testRig struct {
	store      *storage.MemoryStore
	gateway    *ledger.SimGateway
	controller *escrow.Controller
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	gateway := ledger.NewSimGateway(escrowAddress, 0)
	store := storage.NewMemoryStore()
	guard := escrow.NewDepositGuard(gateway, store, false)
	settlement := escrow.NewSettlementEngine(gateway, "")
	controller := escrow.NewController(store, guard, settlement, services.NewStaticScorer(), false)
	return &testRig{store: store, gateway: gateway, controller: controller}
}

// fundedTask seeds a deposit and creates an OPEN task backed by it.
func (r *testRig) fundedTask(t *testing.T, txID string, amount float64) *escrow.Task {
	t.Helper()
	r.gateway.SeedDeposit(txID, creatorWallet, amount)
	task, err := r.controller.CreateTask(context.Background(), escrow.CreateTaskInput{
		Title:         "Translate landing page",
		Description:   "Translate the landing page copy to Spanish",
		Amount:        amount,
		CreatorWallet: creatorWallet,
		FundingTxID:   txID,
	})
	if err != nil {
		t.Fatalf("Failed to create funded task: %v", err)
	}
	return task
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Funded task opens", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if task.Status != escrow.StatusOpen {
			t.Errorf("Expected status OPEN but got %s", task.Status)
		}
		if task.TaskID == "" {
			t.Error("Expected a task id to be assigned")
		}
		if task.WorkerWallet != "" {
			t.Errorf("Expected no worker yet but got %s", task.WorkerWallet)
		}
	})

	t.Run("Validation failures", func(t *testing.T) {
		rig := newTestRig(t)
		cases := []struct {
			name  string
			input escrow.CreateTaskInput
		}{
			{"empty title", escrow.CreateTaskInput{Description: "d", Amount: 1, CreatorWallet: creatorWallet}},
			{"long title", escrow.CreateTaskInput{Title: strings.Repeat("x", 201), Description: "d", Amount: 1, CreatorWallet: creatorWallet}},
			{"empty description", escrow.CreateTaskInput{Title: "t", Amount: 1, CreatorWallet: creatorWallet}},
			{"zero amount", escrow.CreateTaskInput{Title: "t", Description: "d", Amount: 0, CreatorWallet: creatorWallet}},
			{"negative amount", escrow.CreateTaskInput{Title: "t", Description: "d", Amount: -5, CreatorWallet: creatorWallet}},
			{"short wallet", escrow.CreateTaskInput{Title: "t", Description: "d", Amount: 1, CreatorWallet: "short"}},
		}
		for _, tc := range cases {
			if _, err := rig.controller.CreateTask(ctx, tc.input); escrow.CodeOf(err) != escrow.CodeValidationFailed {
				t.Errorf("%s: expected VALIDATION_FAILED but got %v", tc.name, err)
			}
		}
	})

	t.Run("Past deadline rejected", func(t *testing.T) {
		rig := newTestRig(t)
		past := time.Now().Add(-time.Hour)
		_, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 1, CreatorWallet: creatorWallet, Deadline: &past,
		})
		if escrow.CodeOf(err) != escrow.CodeValidationFailed {
			t.Errorf("Expected VALIDATION_FAILED but got %v", err)
		}
	})

	t.Run("Unknown funding tx rejected", func(t *testing.T) {
		rig := newTestRig(t)
		_, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 1, CreatorWallet: creatorWallet, FundingTxID: "NOPE",
		})
		if escrow.CodeOf(err) != escrow.CodeTransactionMismatch {
			t.Errorf("Expected TRANSACTION_MISMATCH but got %v", err)
		}
	})

	t.Run("Underpaid deposit rejected", func(t *testing.T) {
		rig := newTestRig(t)
		rig.gateway.SeedDeposit("TX2", creatorWallet, 10)
		_, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX2",
		})
		if escrow.CodeOf(err) != escrow.CodeTransactionMismatch {
			t.Errorf("Expected TRANSACTION_MISMATCH but got %v", err)
		}
	})

	t.Run("Overpaid deposit accepted", func(t *testing.T) {
		rig := newTestRig(t)
		rig.gateway.SeedDeposit("TX2", creatorWallet, 150)
		task, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX2",
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if task.Status != escrow.StatusOpen {
			t.Errorf("Expected status OPEN but got %s", task.Status)
		}
		if task.Amount != 100 {
			t.Errorf("Expected bounty amount 100 but got %v", task.Amount)
		}
	})

	t.Run("Wrong sender rejected", func(t *testing.T) {
		rig := newTestRig(t)
		rig.gateway.SeedDeposit("TX3", "SOMEOTHERWALLET", 100)
		_, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX3",
		})
		if escrow.CodeOf(err) != escrow.CodeTransactionMismatch {
			t.Errorf("Expected TRANSACTION_MISMATCH but got %v", err)
		}
	})

	t.Run("Reused funding tx rejected", func(t *testing.T) {
		rig := newTestRig(t)
		rig.fundedTask(t, "TX4", 100)
		_, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
			Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX4",
		})
		if escrow.CodeOf(err) != escrow.CodeDuplicateTransaction {
			t.Errorf("Expected DUPLICATE_TRANSACTION but got %v", err)
		}
	})
}

// createFailStore simulates the task store failing after the deposit
// guard has already consumed the funding transaction.
type createFailStore struct {
	*storage.MemoryStore
}

func (s *createFailStore) CreateTask(ctx context.Context, task *escrow.Task) error {
	return errors.New("disk full")
}

func TestCreateTaskStoreFailureIsReconcilable(t *testing.T) {
	ctx := context.Background()
	gateway := ledger.NewSimGateway(escrowAddress, 0)
	mem := storage.NewMemoryStore()
	guard := escrow.NewDepositGuard(gateway, mem, false)
	settlement := escrow.NewSettlementEngine(gateway, "")
	controller := escrow.NewController(&createFailStore{mem}, guard, settlement, services.NewStaticScorer(), false)

	gateway.SeedDeposit("TX1", creatorWallet, 100)
	_, err := controller.CreateTask(ctx, escrow.CreateTaskInput{
		Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX1",
	})
	if escrow.CodeOf(err) != escrow.CodeServiceUnavailable {
		t.Fatalf("Expected SERVICE_UNAVAILABLE but got %v", err)
	}

	// The caller is told which deposit is held so it can be reconciled.
	var ee *escrow.Error
	if !errors.As(err, &ee) {
		t.Fatalf("Expected a typed error but got %T", err)
	}
	if !strings.Contains(ee.Hint, "TX1") {
		t.Errorf("Expected hint to name the funding transaction but got %q", ee.Hint)
	}

	// The used-tx record keeps the deposit tied to the failed task id.
	used, _ := mem.TxUsed(ctx, "TX1")
	if !used {
		t.Error("Expected the funding transaction to remain recorded for reconciliation")
	}
}

func TestClaimTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Worker claims open task", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)

		claimed, err := rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if claimed.Status != escrow.StatusClaimed {
			t.Errorf("Expected status CLAIMED but got %s", claimed.Status)
		}
		if claimed.WorkerWallet != workerWallet {
			t.Errorf("Expected worker %s but got %s", workerWallet, claimed.WorkerWallet)
		}
		if claimed.ClaimedAt == nil {
			t.Error("Expected claimed_at to be set")
		}
	})

	t.Run("Creator cannot claim own task", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.ClaimTask(ctx, task.TaskID, creatorWallet); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})

	t.Run("Claimed task cannot be claimed again", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.ClaimTask(ctx, task.TaskID, workerWallet); err != nil {
			t.Fatalf("First claim failed: %v", err)
		}
		if _, err := rig.controller.ClaimTask(ctx, task.TaskID, "ANOTHERWORKER1"); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})

	t.Run("Unknown task", func(t *testing.T) {
		rig := newTestRig(t)
		if _, err := rig.controller.ClaimTask(ctx, "missing1", workerWallet); escrow.CodeOf(err) != escrow.CodeNotFound {
			t.Errorf("Expected NOT_FOUND but got %v", err)
		}
	})

	t.Run("Concurrent claims yield one winner", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				worker := workerWallet + string(rune('A'+n))
				if _, err := rig.controller.ClaimTask(ctx, task.TaskID, worker); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		if winners != 1 {
			t.Errorf("Expected exactly 1 successful claim but got %d", winners)
		}
	})
}

func TestSubmitProof(t *testing.T) {
	ctx := context.Background()

	t.Run("Worker submits proof", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

		updated, err := rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "done, see link", "https://example.com/work", false)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if updated.Status != escrow.StatusSubmitted {
			t.Errorf("Expected status SUBMITTED but got %s", updated.Status)
		}
		if updated.ProofText != "done, see link" {
			t.Errorf("Expected proof text to be stored but got %q", updated.ProofText)
		}
		if updated.SubmittedAt == nil {
			t.Error("Expected submitted_at to be set")
		}
	})

	t.Run("Only the worker may submit", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

		if _, err := rig.controller.SubmitProof(ctx, task.TaskID, creatorWallet, "proof", "", false); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})

	t.Run("Open task has nothing to submit against", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})

	t.Run("Empty proof rejected", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		if _, err := rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "", "", false); escrow.CodeOf(err) != escrow.CodeValidationFailed {
			t.Errorf("Expected VALIDATION_FAILED but got %v", err)
		}
	})
}

func TestApproveTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Approval settles the escrow", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

		done, err := rig.controller.ApproveTask(ctx, task.TaskID, creatorWallet)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if done.Status != escrow.StatusCompleted {
			t.Errorf("Expected status COMPLETED but got %s", done.Status)
		}
		if done.PlatformFee != 3.0 {
			t.Errorf("Expected platform fee 3.0 but got %v", done.PlatformFee)
		}
		if done.Payout != 97.0 {
			t.Errorf("Expected payout 97.0 but got %v", done.Payout)
		}
		if done.SettlementTx == "" {
			t.Error("Expected settlement tx to be recorded")
		}
		if done.CompletedAt == nil {
			t.Error("Expected completed_at to be set")
		}

		// Escrow wallet keeps only the fee.
		balance, _ := rig.gateway.Balance(ctx)
		if balance != 3.0 {
			t.Errorf("Expected remaining escrow balance 3.0 but got %v", balance)
		}
	})

	t.Run("Only the creator may approve", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

		if _, err := rig.controller.ApproveTask(ctx, task.TaskID, workerWallet); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})

	t.Run("Approval requires a submission", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		if _, err := rig.controller.ApproveTask(ctx, task.TaskID, creatorWallet); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})
}

func TestReleasePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Creator releases a claimed task early", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

		done, err := rig.controller.ReleasePayment(ctx, task.TaskID, creatorWallet, false)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if done.Status != escrow.StatusCompleted {
			t.Errorf("Expected status COMPLETED but got %s", done.Status)
		}
	})

	t.Run("Admin may release on a disputed creator's behalf", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

		done, err := rig.controller.ReleasePayment(ctx, task.TaskID, "ADMINWALLET001", true)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if done.Status != escrow.StatusCompleted {
			t.Errorf("Expected status COMPLETED but got %s", done.Status)
		}
	})

	t.Run("Stranger cannot release", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

		if _, err := rig.controller.ReleasePayment(ctx, task.TaskID, "SOMEOTHERWALLET", false); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})

	t.Run("Open task has no worker to pay", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.ReleasePayment(ctx, task.TaskID, creatorWallet, false); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})
}

func TestSettlementFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	task := rig.fundedTask(t, "TX1", 100)
	rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
	rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

	// Drain the escrow wallet so the payout cannot go through.
	if _, err := rig.gateway.Pay(ctx, "DRAINWALLET001", 100, "drain"); err != nil {
		t.Fatalf("Failed to drain sim wallet: %v", err)
	}

	_, err := rig.controller.ApproveTask(ctx, task.TaskID, creatorWallet)
	if escrow.CodeOf(err) != escrow.CodeSettlementFailed {
		t.Fatalf("Expected SETTLEMENT_FAILED but got %v", err)
	}

	// State must be unchanged so the approval can be retried.
	after, err := rig.controller.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if after.Status != escrow.StatusSubmitted {
		t.Errorf("Expected status SUBMITTED after failed settlement but got %s", after.Status)
	}

	// Refund the wallet and retry.
	rig.gateway.SeedDeposit("TOPUP1", "DRAINWALLET001", 100)
	done, err := rig.controller.ApproveTask(ctx, task.TaskID, creatorWallet)
	if err != nil {
		t.Fatalf("Retry after settlement failure should succeed: %v", err)
	}
	if done.Status != escrow.StatusCompleted {
		t.Errorf("Expected status COMPLETED but got %s", done.Status)
	}
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Creator cancels an open task", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)

		cancelled, err := rig.controller.CancelTask(ctx, task.TaskID, creatorWallet)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if cancelled.Status != escrow.StatusCancelled {
			t.Errorf("Expected status CANCELLED but got %s", cancelled.Status)
		}

		// Full refund, no fee.
		balance, _ := rig.gateway.Balance(ctx)
		if balance != 0 {
			t.Errorf("Expected empty escrow after refund but got %v", balance)
		}
	})

	t.Run("Claimed task cannot be cancelled", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		if _, err := rig.controller.CancelTask(ctx, task.TaskID, creatorWallet); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})

	t.Run("Only the creator may cancel", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.CancelTask(ctx, task.TaskID, workerWallet); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})
}

func TestDisputeTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Worker disputes a claimed task", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

		disputed, err := rig.controller.DisputeTask(ctx, task.TaskID, workerWallet, "scope changed after claim")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if disputed.Status != escrow.StatusDisputed {
			t.Errorf("Expected status DISPUTED but got %s", disputed.Status)
		}
		if disputed.DisputeReason != "scope changed after claim" {
			t.Errorf("Expected dispute reason to be recorded but got %q", disputed.DisputeReason)
		}
		if disputed.DisputedBy != workerWallet {
			t.Errorf("Expected disputed_by %s but got %s", workerWallet, disputed.DisputedBy)
		}
	})

	t.Run("Creator disputes a submission", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

		disputed, err := rig.controller.DisputeTask(ctx, task.TaskID, creatorWallet, "proof does not match the brief")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if disputed.Status != escrow.StatusDisputed {
			t.Errorf("Expected status DISPUTED but got %s", disputed.Status)
		}
		if disputed.DisputedBy != creatorWallet {
			t.Errorf("Expected disputed_by %s but got %s", creatorWallet, disputed.DisputedBy)
		}
	})

	t.Run("Open task cannot be disputed", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		if _, err := rig.controller.DisputeTask(ctx, task.TaskID, creatorWallet, "stuck"); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})

	t.Run("Bystander cannot dispute", func(t *testing.T) {
		rig := newTestRig(t)
		task := rig.fundedTask(t, "TX1", 100)
		rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
		if _, err := rig.controller.DisputeTask(ctx, task.TaskID, "SOMEOTHERWALLET", "not mine"); escrow.CodeOf(err) != escrow.CodeAuthorizationFailed {
			t.Errorf("Expected AUTHORIZATION_FAILED but got %v", err)
		}
	})
}

func TestAutoVerifyReleasesOnPass(t *testing.T) {
	ctx := context.Background()
	gateway := ledger.NewSimGateway(escrowAddress, 0)
	store := storage.NewMemoryStore()
	guard := escrow.NewDepositGuard(gateway, store, false)
	settlement := escrow.NewSettlementEngine(gateway, "")
	controller := escrow.NewController(store, guard, settlement, services.NewStaticScorer(), true)

	gateway.SeedDeposit("TX1", creatorWallet, 100)
	task, err := controller.CreateTask(ctx, escrow.CreateTaskInput{
		Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet, FundingTxID: "TX1",
	})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	controller.ClaimTask(ctx, task.TaskID, workerWallet)

	done, err := controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if done.Status != escrow.StatusCompleted {
		t.Errorf("Expected auto-verified task to be COMPLETED but got %s", done.Status)
	}
	if done.AIScore == nil || *done.AIScore != 0.85 {
		t.Errorf("Expected AI score 0.85 but got %v", done.AIScore)
	}
	if done.AIVerdict != "PASS" {
		t.Errorf("Expected verdict PASS but got %s", done.AIVerdict)
	}
}

func TestSubmitProofAIVerifyReleasesOnPass(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	task := rig.fundedTask(t, "TX1", 100)
	rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)

	// The controller was built without server-wide auto-verify; the
	// request flag alone triggers release on a passing score.
	done, err := rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if done.Status != escrow.StatusCompleted {
		t.Errorf("Expected ai-verified task to be COMPLETED but got %s", done.Status)
	}
	if done.Payout != 97.0 {
		t.Errorf("Expected payout 97.0 but got %v", done.Payout)
	}
}

func TestConcurrentApprovalsPayOnce(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	task := rig.fundedTask(t, "TX1", 100)
	rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
	rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	var loserErr error
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rig.controller.ApproveTask(ctx, task.TaskID, creatorWallet); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else {
				mu.Lock()
				loserErr = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("Expected exactly 1 successful approval but got %d", winners)
	}
	if escrow.CodeOf(loserErr) != escrow.CodePreconditionFailed {
		t.Errorf("Expected losing approval to fail PRECONDITION_FAILED but got %v", loserErr)
	}

	// A single payout went out: the escrow wallet retains only the fee.
	balance, _ := rig.gateway.Balance(ctx)
	if balance != 3.0 {
		t.Errorf("Expected remaining escrow balance 3.0 but got %v", balance)
	}
}

func TestVerifyProof(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	task := rig.fundedTask(t, "TX1", 100)
	rig.controller.ClaimTask(ctx, task.TaskID, workerWallet)
	rig.controller.SubmitProof(ctx, task.TaskID, workerWallet, "proof", "", false)

	result, err := rig.controller.VerifyProof(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Score != 0.85 {
		t.Errorf("Expected score 0.85 but got %v", result.Score)
	}
	if result.Verdict != "PASS" {
		t.Errorf("Expected verdict PASS but got %s", result.Verdict)
	}

	// Score should be persisted on the task.
	after, _ := rig.controller.GetTask(ctx, task.TaskID)
	if after.AIScore == nil || *after.AIScore != 0.85 {
		t.Errorf("Expected persisted AI score 0.85 but got %v", after.AIScore)
	}

	t.Run("Requires a submission", func(t *testing.T) {
		other := rig.fundedTask(t, "TX2", 10)
		if _, err := rig.controller.VerifyProof(ctx, other.TaskID); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)
	task := rig.fundedTask(t, "TX1", 100)

	t.Run("Funds still escrowed", func(t *testing.T) {
		if err := rig.controller.DeleteTask(ctx, task.TaskID); escrow.CodeOf(err) != escrow.CodePreconditionFailed {
			t.Errorf("Expected PRECONDITION_FAILED but got %v", err)
		}
	})

	t.Run("Terminal task deleted", func(t *testing.T) {
		if _, err := rig.controller.CancelTask(ctx, task.TaskID, creatorWallet); err != nil {
			t.Fatalf("Failed to cancel: %v", err)
		}
		if err := rig.controller.DeleteTask(ctx, task.TaskID); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := rig.controller.GetTask(ctx, task.TaskID); escrow.CodeOf(err) != escrow.CodeNotFound {
			t.Errorf("Expected NOT_FOUND after delete but got %v", err)
		}
	})
}

func TestExpireDueTasks(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t)

	deadline := time.Now().Add(time.Hour)
	rig.gateway.SeedDeposit("TX1", creatorWallet, 100)
	task, err := rig.controller.CreateTask(ctx, escrow.CreateTaskInput{
		Title: "t", Description: "d", Amount: 100, CreatorWallet: creatorWallet,
		FundingTxID: "TX1", Deadline: &deadline,
	})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	// Nothing due yet.
	n, err := rig.controller.ExpireDueTasks(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 expirations but got %d", n)
	}

	// Backdate the deadline, then sweep.
	stored, _ := rig.store.GetTask(ctx, task.TaskID)
	past := time.Now().Add(-time.Minute)
	stored.Deadline = &past
	if err := rig.store.UpdateTask(ctx, stored, escrow.StatusOpen); err != nil {
		t.Fatalf("Failed to backdate deadline: %v", err)
	}

	n, err = rig.controller.ExpireDueTasks(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expiration but got %d", n)
	}

	after, _ := rig.controller.GetTask(ctx, task.TaskID)
	if after.Status != escrow.StatusExpired {
		t.Errorf("Expected status EXPIRED but got %s", after.Status)
	}

	// Refunded in full.
	balance, _ := rig.gateway.Balance(ctx)
	if balance != 0 {
		t.Errorf("Expected empty escrow after expiry refund but got %v", balance)
	}
}

func TestPermissiveGuardSkipsFunding(t *testing.T) {
	gateway := ledger.NewSimGateway(escrowAddress, 0)
	store := storage.NewMemoryStore()
	guard := escrow.NewDepositGuard(gateway, store, true)
	settlement := escrow.NewSettlementEngine(gateway, "")
	controller := escrow.NewController(store, guard, settlement, services.NewStaticScorer(), false)

	task, err := controller.CreateTask(context.Background(), escrow.CreateTaskInput{
		Title: "t", Description: "d", Amount: 5, CreatorWallet: creatorWallet,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if task.Status != escrow.StatusOpen {
		t.Errorf("Expected status OPEN but got %s", task.Status)
	}
}
