package testutil

import (
	"context"
	"sync"

	"helios.network/testnetapi/pkg/database"
)

type snapshotter interface {
	snapshot() func()
}

// Transactor restores every registered store when fn fails, mimicking a
// rollback. Calls are serialized.
type Transactor struct {
	mu     sync.Mutex
	stores []snapshotter
	// Rollbacks counts failed transactions.
	Rollbacks int
}

var _ database.Transactor = (*Transactor)(nil)

func NewTransactor(stores ...snapshotter) *Transactor {
	return &Transactor{stores: stores}
}

type inTxKey struct{}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.snapshot())
	}
	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		t.Rollbacks++
		return err
	}
	return nil
}
