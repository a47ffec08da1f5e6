package escrow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	core "gigbounty-backend/core/escrow"
)

// MemoryStore holds tasks, used transactions, and roles in memory. The
// single RWMutex keeps operations that touch multiple maps atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]core.Task
	usedTxs map[string]string // tx id -> task id
	roles   map[string]core.WalletRole
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]core.Task),
		usedTxs: make(map[string]string),
		roles:   make(map[string]core.WalletRole),
	}
}

// CreateTask stores a new task.
func (s *MemoryStore) CreateTask(_ context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.TaskID]; ok {
		return fmt.Errorf("task %s already exists", task.TaskID)
	}
	s.tasks[task.TaskID] = *task
	return nil
}

// GetTask returns a task by id.
func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	cp := t
	return &cp, nil
}

// ListTasks returns tasks newest first, filtered by status and wallet.
func (s *MemoryStore) ListTasks(_ context.Context, status core.Status, wallet string) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if wallet != "" && t.CreatorWallet != wallet && t.WorkerWallet != wallet {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTask persists task only if the stored status still matches
// expected.
func (s *MemoryStore) UpdateTask(_ context.Context, task *core.Task, expected core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.TaskID]
	if !ok {
		return core.ErrTaskNotFound
	}
	if existing.Status != expected {
		return core.ErrStaleState
	}
	s.tasks[task.TaskID] = *task
	return nil
}

// ClaimTask atomically assigns worker to an OPEN task.
func (s *MemoryStore) ClaimTask(_ context.Context, taskID, worker string) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	if t.Status != core.StatusOpen {
		return nil, core.ErrTaskTaken
	}
	now := time.Now().UTC()
	t.Status = core.StatusClaimed
	t.WorkerWallet = worker
	t.ClaimedAt = &now
	t.UpdatedAt = now
	s.tasks[taskID] = t
	cp := t
	return &cp, nil
}

// DeleteTask removes a task by id.
func (s *MemoryStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return core.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

// ListExpired returns OPEN tasks whose deadline has passed.
func (s *MemoryStore) ListExpired(_ context.Context) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*core.Task
	for _, t := range s.tasks {
		if t.Status != core.StatusOpen || t.Deadline == nil {
			continue
		}
		if t.Deadline.Before(now) {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TxUsed reports whether txID has funded a task.
func (s *MemoryStore) TxUsed(_ context.Context, txID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.usedTxs[txID]
	return ok, nil
}

// MarkTxUsed records txID as consumed by taskID, insert-if-absent.
func (s *MemoryStore) MarkTxUsed(_ context.Context, txID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usedTxs[txID]; ok {
		return core.ErrTxAlreadyUsed
	}
	s.usedTxs[txID] = taskID
	return nil
}

// GetRole returns the stored role for a wallet, defaulting to acceptor.
func (s *MemoryStore) GetRole(_ context.Context, wallet string) (*core.WalletRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[wallet]
	if !ok {
		return &core.WalletRole{Wallet: wallet, Role: "acceptor"}, nil
	}
	cp := r
	return &cp, nil
}

// SetRole stores a wallet role assignment.
func (s *MemoryStore) SetRole(_ context.Context, role *core.WalletRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role.UpdatedAt = time.Now().UTC()
	s.roles[role.Wallet] = *role
	return nil
}

// Close implements Store; nothing to close for memory.
func (s *MemoryStore) Close() {}
