package executor

import "github.com/tobsdb/samplestore/internal/txn"

type ExecutorContext struct {
	Txn *txn.Transaction
}

func NewExecutorContext(t *txn.Transaction) *ExecutorContext {
	return &ExecutorContext{Txn: t}
}
