package escrow

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"gigbounty-backend/ledger"
)

// FeeRate is the platform fee taken from each released bounty.
const FeeRate = 0.03

// amountPrecision is the decimal precision of ledger amounts.
const amountPrecision = 6

// roundAmount rounds v to the ledger's decimal precision.
func roundAmount(v float64) float64 {
	shift := math.Pow10(amountPrecision)
	return math.Round(v*shift) / shift
}

// SplitAmount computes the platform fee and worker payout for a bounty.
func SplitAmount(amount float64) (fee, payout float64) {
	fee = roundAmount(amount * FeeRate)
	payout = roundAmount(amount - fee)
	return fee, payout
}

// SettlementEngine executes release and refund payments against the
// ledger. It never touches task state; callers persist state only after
// the ledger confirms the payment.
type SettlementEngine struct {
	gateway    ledger.Gateway
	feeWallet  string
	payTimeout time.Duration
}

// NewSettlementEngine creates a settlement engine. feeWallet receives
// platform fees; empty means fees stay in the escrow wallet.
func NewSettlementEngine(gateway ledger.Gateway, feeWallet string) *SettlementEngine {
	return &SettlementEngine{
		gateway:    gateway,
		feeWallet:  feeWallet,
		payTimeout: 30 * time.Second,
	}
}

// Release pays the worker the bounty minus the platform fee. The fee is
// forwarded to the fee wallet when one is configured.
func (se *SettlementEngine) Release(ctx context.Context, task *Task) (*SettlementReceipt, error) {
	if task.WorkerWallet == "" {
		return nil, NewError(CodePreconditionFailed, "task has no assigned worker")
	}
	fee, payout := SplitAmount(task.Amount)

	ctx, cancel := context.WithTimeout(ctx, se.payTimeout)
	defer cancel()

	note := fmt.Sprintf("bounty payout for task %s", task.TaskID)
	receipt, err := se.gateway.Pay(ctx, task.WorkerWallet, payout, note)
	if err != nil {
		return nil, NewError(CodeSettlementFailed,
			fmt.Sprintf("payout failed: %v", err)).WithHint("retry the release; no state was changed")
	}

	if se.feeWallet != "" && fee > 0 {
		feeNote := fmt.Sprintf("platform fee for task %s", task.TaskID)
		if _, err := se.gateway.Pay(ctx, se.feeWallet, fee, feeNote); err != nil {
			// Payout already settled; the fee stays in escrow and is
			// swept later rather than failing the release.
			log.Printf("fee transfer failed for task %s: %v", task.TaskID, err)
		}
	}

	return &SettlementReceipt{
		TxID:        receipt.TxID,
		Type:        "release",
		Amount:      task.Amount,
		PlatformFee: fee,
		Payout:      payout,
		Recipient:   task.WorkerWallet,
		SettledAt:   receipt.SettledAt,
	}, nil
}

// Refund returns the full bounty amount to the creator. No fee is taken
// on refunds.
func (se *SettlementEngine) Refund(ctx context.Context, task *Task) (*SettlementReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, se.payTimeout)
	defer cancel()

	note := fmt.Sprintf("refund for task %s", task.TaskID)
	receipt, err := se.gateway.Pay(ctx, task.CreatorWallet, roundAmount(task.Amount), note)
	if err != nil {
		return nil, NewError(CodeSettlementFailed,
			fmt.Sprintf("refund failed: %v", err)).WithHint("retry the cancellation; no state was changed")
	}

	return &SettlementReceipt{
		TxID:      receipt.TxID,
		Type:      "refund",
		Amount:    task.Amount,
		Payout:    task.Amount,
		Recipient: task.CreatorWallet,
		SettledAt: receipt.SettledAt,
	}, nil
}
