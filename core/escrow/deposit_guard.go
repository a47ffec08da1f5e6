package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gigbounty-backend/ledger"
)

// amountTolerance absorbs float rounding when comparing deposit amounts.
const amountTolerance = 1e-6

// DepositGuard verifies funding deposits and prevents the same
// transaction from funding more than one task.
type DepositGuard struct {
	gateway    ledger.Gateway
	usedTxs    UsedTxSet
	permissive bool
}

// NewDepositGuard creates a deposit guard. Permissive mode accepts
// tasks without a funding transaction, for local development only.
func NewDepositGuard(gateway ledger.Gateway, usedTxs UsedTxSet, permissive bool) *DepositGuard {
	return &DepositGuard{gateway: gateway, usedTxs: usedTxs, permissive: permissive}
}

// VerifyDeposit checks that txID is a confirmed payment of amount from
// sender to the escrow wallet, then marks it consumed by taskID. The
// mark is atomic: two tasks racing on the same txID cannot both pass.
func (dg *DepositGuard) VerifyDeposit(ctx context.Context, txID, sender string, amount float64, taskID string) error {
	if txID == "" {
		if dg.permissive {
			log.Printf("accepting unfunded task %s (permissive mode)", taskID)
			return nil
		}
		return NewFieldError("funding_tx_id", "funding transaction id is required")
	}

	// Cheap local check before hitting the ledger.
	used, err := dg.usedTxs.TxUsed(ctx, txID)
	if err != nil {
		return NewError(CodeServiceUnavailable, fmt.Sprintf("transaction registry unavailable: %v", err))
	}
	if used {
		return NewError(CodeDuplicateTransaction,
			fmt.Sprintf("transaction %s already funded another task", txID))
	}

	rec, err := dg.gateway.LookupTx(ctx, txID)
	if err != nil {
		if errors.Is(err, ledger.ErrTxNotFound) {
			return NewError(CodeTransactionMismatch,
				fmt.Sprintf("transaction %s not found on the ledger", txID))
		}
		return NewError(CodeServiceUnavailable, fmt.Sprintf("ledger lookup failed: %v", err))
	}

	if err := dg.checkRecord(ctx, rec, sender, amount); err != nil {
		return err
	}

	if err := dg.usedTxs.MarkTxUsed(ctx, txID, taskID); err != nil {
		if errors.Is(err, ErrTxAlreadyUsed) {
			return NewError(CodeDuplicateTransaction,
				fmt.Sprintf("transaction %s already funded another task", txID))
		}
		return NewError(CodeServiceUnavailable, fmt.Sprintf("transaction registry unavailable: %v", err))
	}
	return nil
}

func (dg *DepositGuard) checkRecord(ctx context.Context, rec *ledger.TxRecord, sender string, amount float64) error {
	if !rec.Confirmed {
		return NewError(CodeTransactionMismatch,
			fmt.Sprintf("transaction %s is not confirmed yet", rec.TxID)).
			WithHint("wait for confirmation and retry")
	}
	if rec.Type != "payment" && rec.Type != "deposit" {
		return NewError(CodeTransactionMismatch,
			fmt.Sprintf("transaction %s is not a payment (type %s)", rec.TxID, rec.Type))
	}
	if rec.Sender != sender {
		return NewError(CodeTransactionMismatch,
			fmt.Sprintf("transaction %s was not sent by the task creator", rec.TxID))
	}
	escrowAddr, err := dg.gateway.EscrowAddress(ctx)
	if err != nil {
		return NewError(CodeServiceUnavailable, fmt.Sprintf("escrow address unavailable: %v", err))
	}
	if rec.Receiver != escrowAddr {
		return NewError(CodeTransactionMismatch,
			fmt.Sprintf("transaction %s did not pay the escrow wallet", rec.TxID))
	}
	// Overpayment is fine; only a deposit below the bounty amount fails.
	if rec.Amount+amountTolerance < amount {
		return NewError(CodeTransactionMismatch,
			fmt.Sprintf("transaction %s amount %f is below the bounty amount %f", rec.TxID, rec.Amount, amount))
	}
	return nil
}
