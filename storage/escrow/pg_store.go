package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	core "gigbounty-backend/core/escrow"
)

// PGStore persists bounty state in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS escrow_tasks (
  task_id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  amount DOUBLE PRECISION NOT NULL,
  creator_wallet TEXT NOT NULL,
  worker_wallet TEXT,
  status TEXT NOT NULL,
  funding_tx_id TEXT,
  proof_text TEXT,
  proof_url TEXT,
  ai_score DOUBLE PRECISION,
  ai_verdict TEXT,
  dispute_reason TEXT,
  disputed_by TEXT,
  settlement_tx TEXT,
  platform_fee DOUBLE PRECISION DEFAULT 0,
  payout DOUBLE PRECISION DEFAULT 0,
  deadline TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  claimed_at TIMESTAMPTZ,
  submitted_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS escrow_used_txns (
  tx_id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  used_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS escrow_wallet_roles (
  wallet TEXT PRIMARY KEY,
  role TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_escrow_tasks_status ON escrow_tasks(status);
CREATE INDEX IF NOT EXISTS idx_escrow_tasks_creator ON escrow_tasks(creator_wallet);
CREATE INDEX IF NOT EXISTS idx_escrow_tasks_worker ON escrow_tasks(worker_wallet);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const taskColumns = `task_id, title, description, amount, creator_wallet, worker_wallet, status,
funding_tx_id, proof_text, proof_url, ai_score, ai_verdict, dispute_reason, disputed_by,
settlement_tx, platform_fee, payout,
deadline, created_at, updated_at, claimed_at, submitted_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*core.Task, error) {
	var t core.Task
	var worker, fundingTx, proofText, proofURL, verdict, disputeReason, disputedBy, settlementTx *string
	var status string
	err := row.Scan(
		&t.TaskID, &t.Title, &t.Description, &t.Amount, &t.CreatorWallet, &worker, &status,
		&fundingTx, &proofText, &proofURL, &t.AIScore, &verdict, &disputeReason, &disputedBy,
		&settlementTx, &t.PlatformFee, &t.Payout,
		&t.Deadline, &t.CreatedAt, &t.UpdatedAt, &t.ClaimedAt, &t.SubmittedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = core.Status(status)
	if worker != nil {
		t.WorkerWallet = *worker
	}
	if fundingTx != nil {
		t.FundingTxID = *fundingTx
	}
	if proofText != nil {
		t.ProofText = *proofText
	}
	if proofURL != nil {
		t.ProofURL = *proofURL
	}
	if verdict != nil {
		t.AIVerdict = *verdict
	}
	if disputeReason != nil {
		t.DisputeReason = *disputeReason
	}
	if disputedBy != nil {
		t.DisputedBy = *disputedBy
	}
	if settlementTx != nil {
		t.SettlementTx = *settlementTx
	}
	return &t, nil
}

// CreateTask inserts a new task row.
func (s *PGStore) CreateTask(ctx context.Context, task *core.Task) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO escrow_tasks (task_id, title, description, amount, creator_wallet, worker_wallet, status,
  funding_tx_id, proof_text, proof_url, ai_score, ai_verdict, dispute_reason, disputed_by,
  settlement_tx, platform_fee, payout,
  deadline, created_at, updated_at, claimed_at, submitted_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
`, task.TaskID, task.Title, task.Description, task.Amount, task.CreatorWallet, nilIfEmpty(task.WorkerWallet),
		string(task.Status), nilIfEmpty(task.FundingTxID), nilIfEmpty(task.ProofText), nilIfEmpty(task.ProofURL),
		task.AIScore, nilIfEmpty(task.AIVerdict), nilIfEmpty(task.DisputeReason), nilIfEmpty(task.DisputedBy),
		nilIfEmpty(task.SettlementTx), task.PlatformFee, task.Payout,
		task.Deadline, task.CreatedAt, task.UpdatedAt, task.ClaimedAt, task.SubmittedAt, task.CompletedAt)
	return err
}

// GetTask fetches a task by id.
func (s *PGStore) GetTask(ctx context.Context, taskID string) (*core.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM escrow_tasks WHERE task_id=$1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTasks returns tasks newest first, filtered by status and wallet.
func (s *PGStore) ListTasks(ctx context.Context, status core.Status, wallet string) ([]*core.Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+taskColumns+` FROM escrow_tasks
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR creator_wallet = $2 OR worker_wallet = $2)
ORDER BY created_at DESC
`, string(status), wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask persists task only if the stored status still matches
// expected. The WHERE clause is the compare-and-swap.
func (s *PGStore) UpdateTask(ctx context.Context, task *core.Task, expected core.Status) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE escrow_tasks SET
  title=$2, description=$3, amount=$4, worker_wallet=$5, status=$6,
  proof_text=$7, proof_url=$8, ai_score=$9, ai_verdict=$10, dispute_reason=$11, disputed_by=$12,
  settlement_tx=$13, platform_fee=$14, payout=$15, updated_at=$16, claimed_at=$17, submitted_at=$18, completed_at=$19
WHERE task_id=$1 AND status=$20
`, task.TaskID, task.Title, task.Description, task.Amount, nilIfEmpty(task.WorkerWallet), string(task.Status),
		nilIfEmpty(task.ProofText), nilIfEmpty(task.ProofURL), task.AIScore, nilIfEmpty(task.AIVerdict),
		nilIfEmpty(task.DisputeReason), nilIfEmpty(task.DisputedBy),
		nilIfEmpty(task.SettlementTx), task.PlatformFee, task.Payout, task.UpdatedAt,
		task.ClaimedAt, task.SubmittedAt, task.CompletedAt, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.GetTask(ctx, task.TaskID); gerr != nil {
			return gerr
		}
		return core.ErrStaleState
	}
	return nil
}

// ClaimTask atomically assigns worker to an OPEN task using a row lock.
func (s *PGStore) ClaimTask(ctx context.Context, taskID, worker string) (*core.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM escrow_tasks WHERE task_id=$1 FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	if t.Status != core.StatusOpen {
		return nil, core.ErrTaskTaken
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
UPDATE escrow_tasks SET status=$2, worker_wallet=$3, claimed_at=$4, updated_at=$4 WHERE task_id=$1
`, taskID, string(core.StatusClaimed), worker, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	t.Status = core.StatusClaimed
	t.WorkerWallet = worker
	t.ClaimedAt = &now
	t.UpdatedAt = now
	return t, nil
}

// DeleteTask removes a task row.
func (s *PGStore) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM escrow_tasks WHERE task_id=$1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// ListExpired returns OPEN tasks whose deadline has passed.
func (s *PGStore) ListExpired(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+taskColumns+` FROM escrow_tasks
WHERE status=$1 AND deadline IS NOT NULL AND deadline < now()
`, string(core.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TxUsed reports whether txID has funded a task.
func (s *PGStore) TxUsed(ctx context.Context, txID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM escrow_used_txns WHERE tx_id=$1)`, txID).Scan(&exists)
	return exists, err
}

// MarkTxUsed records txID as consumed, insert-if-absent. The primary
// key makes concurrent marks lose cleanly.
func (s *PGStore) MarkTxUsed(ctx context.Context, txID, taskID string) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO escrow_used_txns (tx_id, task_id) VALUES ($1,$2) ON CONFLICT (tx_id) DO NOTHING
`, txID, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTxAlreadyUsed
	}
	return nil
}

// GetRole returns the stored role for a wallet, defaulting to acceptor.
func (s *PGStore) GetRole(ctx context.Context, wallet string) (*core.WalletRole, error) {
	var r core.WalletRole
	err := s.pool.QueryRow(ctx, `SELECT wallet, role, updated_at FROM escrow_wallet_roles WHERE wallet=$1`, wallet).
		Scan(&r.Wallet, &r.Role, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &core.WalletRole{Wallet: wallet, Role: "acceptor"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRole upserts a wallet role assignment.
func (s *PGStore) SetRole(ctx context.Context, role *core.WalletRole) error {
	role.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
INSERT INTO escrow_wallet_roles (wallet, role, updated_at) VALUES ($1,$2,$3)
ON CONFLICT (wallet) DO UPDATE SET role=EXCLUDED.role, updated_at=EXCLUDED.updated_at
`, role.Wallet, role.Role, role.UpdatedAt)
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
