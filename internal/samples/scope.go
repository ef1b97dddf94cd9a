package samples

import "github.com/tobsdb/samplestore/internal/txn"

type scopeKind int

const (
	scopeStandalone scopeKind = iota
	scopeJoined
)

// TxnScope says which transaction an operation runs under.
// Standalone operations begin and commit their own; joined ones use the
// caller's transaction and leave committing to the caller.
type TxnScope struct {
	kind scopeKind
	txn  *txn.Transaction
}

func Standalone() TxnScope { return TxnScope{kind: scopeStandalone} }

func Joined(t *txn.Transaction) TxnScope { return TxnScope{kind: scopeJoined, txn: t} }

func (s TxnScope) IsStandalone() bool { return s.kind == scopeStandalone }

func (s TxnScope) Txn() *txn.Transaction { return s.txn }

func (s *Storage) withScope(scope TxnScope, fn func(t *txn.Transaction) error) error {
	if !scope.IsStandalone() {
		if !scope.txn.IsActive() {
			return ErrNoTransaction
		}
		return fn(scope.txn)
	}

	t := s.txns.BeginTransaction()
	if err := fn(t); err != nil {
		s.txns.AbortTransaction(t)
		return err
	}
	return s.txns.CommitTransaction(t)
}
