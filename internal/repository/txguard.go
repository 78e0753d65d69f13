package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"
)

// TxGuard makes queue inserts survive a rollback triggered by code
// outside this component's control: surrounding code may mistake "change
// was queued, not applied" for an error and roll back its transaction,
// which would silently drop the queue row.
//
// The guard is a transaction-lifecycle listener, not a retry-on-error:
// the repository registers a redo closure after each insert; the owner
// of the transaction boundary signals OnCommit (forget) or OnRollback
// (re-execute on the base connection, same goroutine, synchronously).
// A guard's lifetime is one transaction; it must never be shared across
// transactions or used on a non-transactional connection, or a rollback
// would replay inserts that belong to someone else.
type TxGuard struct {
	mu      sync.Mutex
	pending []func() error
}

// NewTxGuard creates an empty guard.
func NewTxGuard() *TxGuard {
	return &TxGuard{}
}

// Protect registers a redo closure to run if the current transaction
// rolls back.
func (g *TxGuard) Protect(redo func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, redo)
}

// OnCommit forgets all pending redo closures.
func (g *TxGuard) OnCommit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = nil
}

// OnRollback re-executes all pending closures and clears them.
func (g *TxGuard) OnRollback() error {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	var errs []error
	for _, redo := range pending {
		if err := redo(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports whether any redo closures are outstanding.
func (g *TxGuard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending) > 0
}

// RunInTransaction runs fn inside a transaction with a guard scoped to
// exactly that transaction, so protected inserts re-apply after a
// rollback. fn binds repositories to the transaction via
// WithTx(tx, guard).
func RunInTransaction(db *gorm.DB, fn func(tx *gorm.DB, guard *TxGuard) error) error {
	guard := NewTxGuard()
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx, guard); err != nil {
		tx.Rollback()
		if redoErr := guard.OnRollback(); redoErr != nil {
			return errors.Join(err, redoErr)
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		if redoErr := guard.OnRollback(); redoErr != nil {
			return errors.Join(err, redoErr)
		}
		return err
	}
	guard.OnCommit()
	return nil
}
