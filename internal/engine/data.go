package engine

import (
	"errors"
	"fmt"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/executor"
	"github.com/tobsdb/samplestore/internal/parser"
	"github.com/tobsdb/samplestore/internal/query"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/pkg"
)

func (e *Engine) CreateDatabase(name string) error {
	t := e.txns.BeginTransaction()
	if _, err := e.catalog.CreateDatabase(name, t); err != nil {
		e.txns.AbortTransaction(t)
		return err
	}
	return e.txns.CommitTransaction(t)
}

// CreateUserTables parses schema_text and creates every table in it inside db,
// creating db when it does not exist yet. Either all tables are created or none.
func (e *Engine) CreateUserTables(schema_text, db string) ([]*catalog.Table, error) {
	parsed, err := parser.ParseSchema(schema_text)
	if err != nil {
		return nil, err
	}

	t := e.txns.BeginTransaction()
	d, err := e.catalog.GetDatabase(db, t)
	switch {
	case errors.Is(err, catalog.ErrDatabaseNotFound):
		if _, err := e.catalog.CreateDatabase(db, t); err != nil {
			e.txns.AbortTransaction(t)
			return nil, err
		}
	case err == nil && d.IsHidden():
		e.txns.AbortTransaction(t)
		return nil, fmt.Errorf("%w: %s", catalog.ErrDatabaseNotFound, db)
	}

	tables := make([]*catalog.Table, 0, len(parsed))
	for _, p := range parsed {
		table, err := e.catalog.CreateTable(db, p.Name, catalog.SchemaFromParsed(p), t, false)
		if err != nil {
			e.txns.AbortTransaction(t)
			return nil, err
		}
		tables = append(tables, table)
	}

	if err := e.txns.CommitTransaction(t); err != nil {
		return nil, err
	}
	pkg.DebugLog("created", len(tables), "tables in", db)
	return tables, nil
}

// userDatabase resolves db for the user-data path. Hidden databases are
// reported as missing.
func (e *Engine) userDatabase(db string) error {
	d, err := e.catalog.GetDatabase(db, nil)
	if err != nil {
		return err
	}
	if d.IsHidden() {
		return fmt.Errorf("%w: %s", catalog.ErrDatabaseNotFound, db)
	}
	return nil
}

// Table looks up a committed user table.
func (e *Engine) Table(db, name string) (*catalog.Table, error) {
	if err := e.userDatabase(db); err != nil {
		return nil, err
	}
	return e.catalog.GetTableWithName(db, name, nil)
}

// InsertRows inserts rows into db.table in one transaction and returns how many were inserted.
func (e *Engine) InsertRows(db, name string, rows []map[string]any) (int, error) {
	table, err := e.Table(db, name)
	if err != nil {
		return 0, err
	}

	t := e.txns.BeginTransaction()
	ctx := executor.NewExecutorContext(t)
	for i, row := range rows {
		tuple, err := table.Schema().TupleFromRow(row)
		if err != nil {
			e.txns.AbortTransaction(t)
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		ex := executor.NewInsertExecutor(executor.NewInsertPlan(table, tuple), ctx)
		if err := ex.Init(); err != nil {
			e.txns.AbortTransaction(t)
			return 0, err
		}
		if !ex.Execute() {
			e.txns.AbortTransaction(t)
			return 0, fmt.Errorf("row %d: %w", i, ex.Err())
		}
	}

	if err := e.txns.CommitTransaction(t); err != nil {
		return 0, err
	}
	e.refresher.RecordModification(table.DatabaseOid(), table.Oid(), len(rows))
	return len(rows), nil
}

// CollectSamples refreshes the sample table of db.name right away.
func (e *Engine) CollectSamples(db, name string) (*catalog.Table, error) {
	table, err := e.Table(db, name)
	if err != nil {
		return nil, err
	}
	return table, e.refresher.Refresh(table)
}

// DeleteSamples drops the sample table of db.name.
func (e *Engine) DeleteSamples(db, name string) (samples.Result, error) {
	table, err := e.Table(db, name)
	if err != nil {
		return samples.ResultFailure, err
	}
	s, err := e.Samples()
	if err != nil {
		return samples.ResultFailure, err
	}
	return s.DeleteSamplesTable(table.DatabaseOid(), table.Oid(), samples.Standalone())
}

// FindRows returns the committed rows of db.name matching args.
func (e *Engine) FindRows(db, name string, args query.FindArgs) ([]map[string]any, error) {
	table, err := e.Table(db, name)
	if err != nil {
		return nil, err
	}

	t := e.txns.BeginTransaction()
	rows, err := query.FindMany(table, t, args)
	if err != nil {
		e.txns.AbortTransaction(t)
		return nil, err
	}
	return rows, e.txns.CommitTransaction(t)
}
