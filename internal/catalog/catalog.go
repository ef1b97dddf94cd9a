package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

var (
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
)

type tableKey struct{ db, table string }

// overlay is the uncommitted catalog state of one transaction.
type overlay struct {
	databases pkg.Map[string, *Database]
	tables    pkg.Map[tableKey, *Table]
	dropped   pkg.Map[tableKey, *Table]
}

const overlayKey = "catalog.overlay"

func txnOverlay(tx *txn.Transaction) *overlay {
	return tx.Local(overlayKey, func() any {
		return &overlay{pkg.Map[string, *Database]{}, pkg.Map[tableKey, *Table]{}, pkg.Map[tableKey, *Table]{}}
	}).(*overlay)
}

func peekOverlay(tx *txn.Transaction) *overlay {
	if !tx.IsActive() {
		return nil
	}
	v, ok := tx.Peek(overlayKey)
	if !ok {
		return nil
	}
	return v.(*overlay)
}

// Catalog maps database and table names to their metadata.
// Changes made under a transaction are published when it commits.
type Catalog struct {
	locker    sync.RWMutex
	next_oid  atomic.Uint32
	databases pkg.Map[string, *Database]
}

func New() *Catalog {
	return &Catalog{databases: pkg.Map[string, *Database]{}}
}

func (c *Catalog) GetLocker() *sync.RWMutex { return &c.locker }

func (c *Catalog) allocOid() uint32 { return c.next_oid.Add(1) }

func (c *Catalog) committedDatabase(name string) (*Database, bool) {
	return pkg.RLockLookup(c, func() (*Database, bool) { return c.databases.Lookup(name) })
}

func (c *Catalog) committedTable(db, name string) (*Table, bool) {
	return pkg.RLockLookup(c, func() (*Table, bool) {
		d, ok := c.databases.Lookup(db)
		if !ok {
			return nil, false
		}
		return d.tables.Lookup(name)
	})
}

func (c *Catalog) CreateDatabase(name string, tx *txn.Transaction) (*Database, error) {
	return c.createDatabase(name, false, tx)
}

// CreateHiddenDatabase creates a database left out of user facing listings.
func (c *Catalog) CreateHiddenDatabase(name string, tx *txn.Transaction) (*Database, error) {
	return c.createDatabase(name, true, tx)
}

func (c *Catalog) createDatabase(name string, hidden bool, tx *txn.Transaction) (*Database, error) {
	if !tx.IsActive() {
		return nil, txn.ErrTxnNotActive
	}
	if name == "" {
		return nil, errors.New("database name cannot be empty")
	}
	if _, err := c.GetDatabase(name, tx); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseExists, name)
	}

	db := newDatabase(c.allocOid(), name, hidden)
	err := tx.StageCatalogOp(txn.CatalogOp{
		Name: "create database " + name,
		Validate: func() error {
			if _, ok := c.committedDatabase(name); ok {
				return fmt.Errorf("%w: %s", ErrDatabaseExists, name)
			}
			return nil
		},
		Apply: func() { pkg.LockWrap(c, func() { c.databases.Set(name, db) }) },
		Undo:  func() { pkg.LockWrap(c, func() { c.databases.Delete(name) }) },
	})
	if err != nil {
		return nil, err
	}
	txnOverlay(tx).databases.Set(name, db)
	return db, nil
}

func (c *Catalog) GetDatabase(name string, tx *txn.Transaction) (*Database, error) {
	if o := peekOverlay(tx); o != nil {
		if db, ok := o.databases.Lookup(name); ok {
			return db, nil
		}
	}
	if db, ok := c.committedDatabase(name); ok {
		return db, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
}

func (c *Catalog) visibleDatabases(tx *txn.Transaction) []*Database {
	dbs := []*Database{}
	pkg.RLockWrap(c, func() {
		for _, db := range c.databases {
			dbs = append(dbs, db)
		}
	})
	if o := peekOverlay(tx); o != nil {
		for _, db := range o.databases {
			dbs = append(dbs, db)
		}
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].oid < dbs[j].oid })
	return dbs
}

// Databases lists the databases visible to tx ordered by oid.
func (c *Catalog) Databases(tx *txn.Transaction) []*Database { return c.visibleDatabases(tx) }

func (c *Catalog) CreateTable(db_name, name string, schema *Schema, tx *txn.Transaction, is_catalog bool) (*Table, error) {
	if !tx.IsActive() {
		return nil, txn.ErrTxnNotActive
	}
	if name == "" {
		return nil, errors.New("table name cannot be empty")
	}
	if schema == nil || schema.ColumnCount() == 0 {
		return nil, fmt.Errorf("table %s must have at least one column", name)
	}

	db, err := c.GetDatabase(db_name, tx)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetTableWithName(db_name, name, tx); err == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableExists, db_name, name)
	}

	table := newTable(db, c.allocOid(), name, schema, tx, is_catalog)
	key := tableKey{db_name, name}
	applied := false
	err = tx.StageCatalogOp(txn.CatalogOp{
		Name: "create table " + table.String(),
		Validate: func() error {
			if table.discarded.Load() {
				return nil
			}
			committed_db, ok := c.committedDatabase(db_name)
			if !ok || committed_db != db {
				return fmt.Errorf("%w: %s", ErrDatabaseNotFound, db_name)
			}
			if _, ok := c.committedTable(db_name, name); ok {
				return fmt.Errorf("%w: %s", ErrTableExists, table)
			}
			return nil
		},
		Apply: func() {
			if table.discarded.Load() {
				return
			}
			pkg.LockWrap(c, func() { db.tables.Set(name, table) })
			table.publish()
			applied = true
		},
		Undo: func() {
			if !applied {
				return
			}
			pkg.LockWrap(c, func() { db.tables.Delete(name) })
			table.published.Store(false)
			table.discarded.Store(true)
		},
	})
	if err != nil {
		return nil, err
	}
	txnOverlay(tx).tables.Set(key, table)
	return table, nil
}

// GetTableWithName resolves a table as seen by tx. A nil tx sees committed tables only.
func (c *Catalog) GetTableWithName(db_name, name string, tx *txn.Transaction) (*Table, error) {
	key := tableKey{db_name, name}
	if o := peekOverlay(tx); o != nil {
		if table, ok := o.tables.Lookup(key); ok {
			return table, nil
		}
		if o.dropped.Has(key) {
			return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db_name, name)
		}
	}
	if _, err := c.GetDatabase(db_name, tx); err != nil {
		return nil, err
	}
	if table, ok := c.committedTable(db_name, name); ok {
		return table, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db_name, name)
}

func (c *Catalog) GetTableWithOid(db_oid, table_oid uint32, tx *txn.Transaction) (*Table, error) {
	for _, table := range c.ListTables(tx, true) {
		if table.db_oid == db_oid && table.oid == table_oid {
			return table, nil
		}
	}
	return nil, fmt.Errorf("%w: oid %d.%d", ErrTableNotFound, db_oid, table_oid)
}

func (c *Catalog) DropTable(db_name, name string, tx *txn.Transaction) error {
	if !tx.IsActive() {
		return txn.ErrTxnNotActive
	}
	table, err := c.GetTableWithName(db_name, name, tx)
	if err != nil {
		return err
	}

	key := tableKey{db_name, name}
	o := txnOverlay(tx)
	if table.ownedBy(tx) {
		table.discarded.Store(true)
		o.tables.Delete(key)
		return nil
	}

	db, err := c.GetDatabase(db_name, tx)
	if err != nil {
		return err
	}
	err = tx.StageCatalogOp(txn.CatalogOp{
		Name: "drop table " + table.String(),
		Validate: func() error {
			if committed, ok := c.committedTable(db_name, name); !ok || committed != table {
				return fmt.Errorf("%w: %s", ErrTableNotFound, table)
			}
			return nil
		},
		Apply: func() {
			pkg.LockWrap(c, func() { db.tables.Delete(name) })
			table.discarded.Store(true)
		},
		Undo: func() {
			pkg.LockWrap(c, func() { db.tables.Set(name, table) })
			table.discarded.Store(false)
		},
	})
	if err != nil {
		return err
	}
	o.dropped.Set(key, table)
	return nil
}

// ListTables returns the tables visible to tx ordered by database then table oid.
func (c *Catalog) ListTables(tx *txn.Transaction, include_hidden bool) []*Table {
	tables := []*Table{}
	o := peekOverlay(tx)
	for _, db := range c.visibleDatabases(tx) {
		if db.hidden && !include_hidden {
			continue
		}
		pkg.RLockWrap(c, func() {
			for name, table := range db.tables {
				if o != nil && o.dropped.Has(tableKey{db.name, name}) {
					continue
				}
				if o != nil && o.tables.Has(tableKey{db.name, name}) {
					continue
				}
				tables = append(tables, table)
			}
		})
	}
	if o != nil {
		for key, table := range o.tables {
			db, err := c.GetDatabase(key.db, tx)
			if err != nil || (db.hidden && !include_hidden) {
				continue
			}
			tables = append(tables, table)
		}
	}
	sortTables(tables)
	return tables
}
