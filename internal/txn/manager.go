package txn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tobsdb/samplestore/pkg"
)

type Manager struct {
	commit_lock sync.Mutex

	active     atomic.Int64
	committed  atomic.Int64
	aborted    atomic.Int64
	lastCommit atomic.Int64
}

func NewManager() *Manager { return &Manager{} }

func (m *Manager) BeginTransaction() *Transaction {
	t := newTransaction()
	m.active.Add(1)
	pkg.DebugLog("begin transaction", t.id)
	return t
}

// CommitTransaction publishes the staged work of t.
// Catalog ops are validated and applied in staging order; if one fails the ones already
// applied are undone in reverse, t is aborted and the error wraps ErrConflict.
func (m *Manager) CommitTransaction(t *Transaction) error {
	if t == nil {
		return ErrTxnNotActive
	}

	m.commit_lock.Lock()
	defer m.commit_lock.Unlock()

	catalog_ops, data_ops, err := t.finish(StateCommitted)
	if err != nil {
		return err
	}
	m.active.Add(-1)

	for i, op := range catalog_ops {
		if err := op.Validate(); err != nil {
			for j := i - 1; j >= 0; j-- {
				catalog_ops[j].Undo()
			}
			t.locker.Lock()
			t.state = StateAborted
			t.locker.Unlock()
			m.aborted.Add(1)
			pkg.WithFields(pkg.Fields{"txn": t.id, "op": op.Name}).Debug("commit failed: ", err)
			return fmt.Errorf("%w: %s: %w", ErrConflict, op.Name, err)
		}
		op.Apply()
	}

	for _, fn := range data_ops {
		fn()
	}

	m.committed.Add(1)
	m.lastCommit.Store(time.Now().UnixNano())
	pkg.DebugLog("commit transaction", t.id)
	return nil
}

func (m *Manager) AbortTransaction(t *Transaction) error {
	if t == nil {
		return ErrTxnNotActive
	}
	if _, _, err := t.finish(StateAborted); err != nil {
		return err
	}
	m.active.Add(-1)
	m.aborted.Add(1)
	pkg.DebugLog("abort transaction", t.id)
	return nil
}

func (m *Manager) ActiveCount() int64 { return m.active.Load() }

func (m *Manager) CommittedCount() int64 { return m.committed.Load() }

func (m *Manager) AbortedCount() int64 { return m.aborted.Load() }

// LastCommit is the time of the latest successful commit, zero if none happened.
func (m *Manager) LastCommit() time.Time {
	n := m.lastCommit.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
