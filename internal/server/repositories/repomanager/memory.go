package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/starauth/internal/dbx"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
)

// MemoryRepositoryManager serves one process-local accounts store to every
// caller. Units of work are serialized with a mutex but never rolled back,
// so a unit of work must issue its write last.
type MemoryRepositoryManager struct {
	mu       sync.Mutex
	accounts *accounts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{accounts: accounts.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Accounts(dbx.DBTX) accounts.Repository {
	return m.accounts
}

func (m *MemoryRepositoryManager) Conn() dbx.DBTX {
	return nil
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Ping(context.Context) error          { return nil }
func (m *MemoryRepositoryManager) Close() error                        { return nil }
