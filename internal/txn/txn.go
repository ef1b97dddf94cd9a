package txn

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tobsdb/samplestore/pkg"
)

var (
	ErrTxnNotActive = errors.New("transaction is not active")
	ErrConflict     = errors.New("transaction conflict")
)

type State int

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// CatalogOp is a metadata change applied at commit time.
// Validate runs under the commit lock right before Apply; Apply must not fail once Validate passed.
type CatalogOp struct {
	Name     string
	Validate func() error
	Apply    func()
	Undo     func()
}

// Transaction stages its writes and publishes them on commit.
// Work done under a transaction is visible to itself straight away
// and to everyone else only after commit; abort throws it away.
type Transaction struct {
	locker sync.Mutex
	id     uuid.UUID

	startTime time.Time
	state     State

	catalog_ops []CatalogOp
	data_ops    []func()
	locals      pkg.Map[string, any]
}

func newTransaction() *Transaction {
	return &Transaction{
		id:        uuid.Must(uuid.NewV7()),
		startTime: time.Now(),
		state:     StateActive,
		locals:    pkg.Map[string, any]{},
	}
}

func (t *Transaction) GetLocker() *sync.Mutex { return &t.locker }

func (t *Transaction) Id() uuid.UUID { return t.id }

func (t *Transaction) StartTime() time.Time { return t.startTime }

func (t *Transaction) State() State {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.state
}

func (t *Transaction) IsActive() bool { return t != nil && t.State() == StateActive }

func (t *Transaction) StageCatalogOp(op CatalogOp) error {
	t.locker.Lock()
	defer t.locker.Unlock()
	if t.state != StateActive {
		return ErrTxnNotActive
	}
	t.catalog_ops = append(t.catalog_ops, op)
	return nil
}

// StageDataOp queues fn to run after every catalog op of the transaction applied.
func (t *Transaction) StageDataOp(fn func()) error {
	t.locker.Lock()
	defer t.locker.Unlock()
	if t.state != StateActive {
		return ErrTxnNotActive
	}
	t.data_ops = append(t.data_ops, fn)
	return nil
}

// Local returns the value stored under key, creating it with init on first use.
// Subsystems keep their uncommitted state here.
func (t *Transaction) Local(key string, init func() any) any {
	t.locker.Lock()
	defer t.locker.Unlock()
	if v, ok := t.locals.Lookup(key); ok {
		return v
	}
	v := init()
	t.locals.Set(key, v)
	return v
}

// Peek returns the value stored under key without creating it.
func (t *Transaction) Peek(key string) (any, bool) {
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.locals.Lookup(key)
}

func (t *Transaction) finish(state State) (catalog_ops []CatalogOp, data_ops []func(), err error) {
	t.locker.Lock()
	defer t.locker.Unlock()
	if t.state != StateActive {
		return nil, nil, ErrTxnNotActive
	}
	catalog_ops, data_ops = t.catalog_ops, t.data_ops
	t.catalog_ops, t.data_ops = nil, nil
	t.locals = pkg.Map[string, any]{}
	t.state = state
	return catalog_ops, data_ops, nil
}
