package executor

import (
	"errors"
	"fmt"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
)

const DefaultTileSize = 1000

type SeqScanPlan struct {
	Table *catalog.Table
	// nil keeps every row
	Predicate func(storage.Tuple) bool
	ColumnIDs []int
	TileSize  int
}

func NewSeqScanPlan(table *catalog.Table, predicate func(storage.Tuple) bool, column_ids []int) *SeqScanPlan {
	return &SeqScanPlan{Table: table, Predicate: predicate, ColumnIDs: column_ids}
}

// AllColumns lists every column id of table in order.
func AllColumns(table *catalog.Table) []int {
	ids := make([]int, table.Schema().ColumnCount())
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// SeqScanExecutor scans the rows of a table visible to the executor's transaction.
// Each Execute produces at most one non-empty tile, taken with GetOutput.
type SeqScanExecutor struct {
	plan *SeqScanPlan
	ctx  *ExecutorContext

	rows      []storage.Tuple
	pos       int
	tile_size int
	output    *LogicalTile
}

func NewSeqScanExecutor(plan *SeqScanPlan, ctx *ExecutorContext) *SeqScanExecutor {
	return &SeqScanExecutor{plan: plan, ctx: ctx}
}

func (e *SeqScanExecutor) Init() error {
	if e.plan == nil || e.plan.Table == nil {
		return errors.New("scan plan has no target table")
	}
	if e.ctx == nil || !e.ctx.Txn.IsActive() {
		return txn.ErrTxnNotActive
	}

	column_count := e.plan.Table.Schema().ColumnCount()
	for _, id := range e.plan.ColumnIDs {
		if id < 0 || id >= column_count {
			return fmt.Errorf("column id %d out of range for %s", id, e.plan.Table)
		}
	}

	e.tile_size = e.plan.TileSize
	if e.tile_size <= 0 {
		e.tile_size = DefaultTileSize
	}
	e.rows = e.plan.Table.VisibleRows(e.ctx.Txn)
	e.pos = 0
	e.output = nil
	return nil
}

func (e *SeqScanExecutor) Execute() bool {
	e.output = nil
	tuples := []storage.Tuple{}

	for e.pos < len(e.rows) && len(tuples) < e.tile_size {
		row := e.rows[e.pos]
		e.pos++
		if e.plan.Predicate != nil && !e.plan.Predicate(row) {
			continue
		}
		projected := make(storage.Tuple, len(e.plan.ColumnIDs))
		for i, id := range e.plan.ColumnIDs {
			projected[i] = row[id]
		}
		tuples = append(tuples, projected)
	}

	if len(tuples) == 0 {
		e.rows = nil
		return false
	}

	ids := make([]int, len(e.plan.ColumnIDs))
	copy(ids, e.plan.ColumnIDs)
	e.output = NewLogicalTile(ids, tuples)
	return true
}

// GetOutput hands the current tile to the caller.
// A second call for the same Execute returns nil.
func (e *SeqScanExecutor) GetOutput() *LogicalTile {
	out := e.output
	e.output = nil
	return out
}
