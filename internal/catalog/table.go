package catalog

import (
	"fmt"
	"sync/atomic"

	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
)

type Table struct {
	db_oid  uint32
	oid     uint32
	db_name string
	name    string

	schema     *Schema
	is_catalog bool
	heap       *storage.Heap

	// the table only exists inside creator until published
	creator   *txn.Transaction
	published atomic.Bool
	discarded atomic.Bool
}

func newTable(db *Database, oid uint32, name string, schema *Schema, creator *txn.Transaction, is_catalog bool) *Table {
	return &Table{
		db_oid:     db.oid,
		oid:        oid,
		db_name:    db.name,
		name:       name,
		schema:     schema,
		is_catalog: is_catalog,
		heap:       storage.NewHeap(),
		creator:    creator,
	}
}

func (t *Table) DatabaseOid() uint32 { return t.db_oid }

func (t *Table) DatabaseName() string { return t.db_name }

func (t *Table) Oid() uint32 { return t.oid }

func (t *Table) Name() string { return t.name }

func (t *Table) Schema() *Schema { return t.schema }

func (t *Table) IsCatalog() bool { return t.is_catalog }

func (t *Table) Heap() *storage.Heap { return t.heap }

func (t *Table) IsPublished() bool { return t.published.Load() }

func (t *Table) String() string { return fmt.Sprintf("%s.%s", t.db_name, t.name) }

func (t *Table) ownedBy(tx *txn.Transaction) bool {
	return !t.published.Load() && tx != nil && t.creator == tx
}

func (t *Table) publish() { t.published.Store(true) }

type pendingRows struct {
	rows []storage.Tuple
}

const pendingKey = "catalog.pending"

func txnPending(tx *txn.Transaction) map[*Table]*pendingRows {
	return tx.Local(pendingKey, func() any { return map[*Table]*pendingRows{} }).(map[*Table]*pendingRows)
}

// Insert validates tuple and writes it under tx.
// Rows of a published table stay private to tx until it commits.
func (t *Table) Insert(tx *txn.Transaction, tuple storage.Tuple) error {
	if !tx.IsActive() {
		return txn.ErrTxnNotActive
	}
	if t.discarded.Load() || (!t.published.Load() && t.creator != tx) {
		return fmt.Errorf("%w: %s", ErrTableNotFound, t)
	}

	row, err := t.schema.Validate(tuple)
	if err != nil {
		return err
	}

	if t.ownedBy(tx) {
		t.heap.Append(row)
		return nil
	}

	pending := txnPending(tx)
	p, ok := pending[t]
	if !ok {
		p = &pendingRows{}
		pending[t] = p
		heap := t.heap
		if err := tx.StageDataOp(func() { heap.Append(p.rows...) }); err != nil {
			return err
		}
	}
	p.rows = append(p.rows, row)
	return nil
}

// VisibleRows returns the rows tx can see: committed rows in id order,
// followed by the rows tx itself inserted and has not committed yet.
// A nil tx sees committed rows only.
func (t *Table) VisibleRows(tx *txn.Transaction) []storage.Tuple {
	records := t.heap.Snapshot()
	rows := make([]storage.Tuple, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Values)
	}
	if tx == nil || !tx.IsActive() {
		return rows
	}
	v, ok := tx.Peek(pendingKey)
	if !ok {
		return rows
	}
	if p, ok := v.(map[*Table]*pendingRows)[t]; ok {
		rows = append(rows, p.rows...)
	}
	return rows
}
