package executor

import (
	"errors"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

type InsertPlan struct {
	Table *catalog.Table
	Tuple storage.Tuple
}

func NewInsertPlan(table *catalog.Table, tuple storage.Tuple) *InsertPlan {
	return &InsertPlan{Table: table, Tuple: tuple}
}

// InsertExecutor writes the single tuple of its plan.
// The tuple moves into the table on Execute; the plan no longer holds it afterwards.
type InsertExecutor struct {
	plan *InsertPlan
	ctx  *ExecutorContext
	done bool
	err  error
}

func NewInsertExecutor(plan *InsertPlan, ctx *ExecutorContext) *InsertExecutor {
	return &InsertExecutor{plan: plan, ctx: ctx}
}

func (e *InsertExecutor) Init() error {
	if e.plan == nil || e.plan.Table == nil {
		return errors.New("insert plan has no target table")
	}
	if e.ctx == nil || !e.ctx.Txn.IsActive() {
		return txn.ErrTxnNotActive
	}
	return nil
}

func (e *InsertExecutor) Execute() bool {
	if e.done {
		return false
	}
	e.done = true

	tuple := e.plan.Tuple
	e.plan.Tuple = nil
	if tuple == nil {
		e.err = errors.New("nothing to insert")
		return false
	}

	if err := e.plan.Table.Insert(e.ctx.Txn, tuple); err != nil {
		pkg.DebugLog("insert into", e.plan.Table, "failed;", err)
		e.err = err
		return false
	}
	return true
}

// Err is the reason the last Execute returned false.
func (e *InsertExecutor) Err() error { return e.err }
