package engine

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/paging"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/types"
	"github.com/tobsdb/samplestore/pkg"
)

const metaFile = "meta.tdb"

type TableMeta struct {
	Name      string
	Columns   []catalog.Column
	FirstPage uuid.UUID
}

type DatabaseMeta struct {
	Name   string
	Tables []TableMeta
}

type Meta struct {
	Databases []DatabaseMeta
	Users     UserMap
}

func GobRegisterTypes() {
	gob.Register(int64(0))
	gob.Register(float64(0.))
	gob.Register(string(""))
	gob.Register(time.Time{})
	gob.Register(bool(false))
	gob.Register([]byte{})
}

// ReadFromFile loads the user databases written by WriteToFile.
// A missing or empty data directory is a fresh start.
func (e *Engine) ReadFromFile() error {
	if e.cfg.InMem || e.cfg.DataPath == "" {
		return nil
	}

	f, err := os.Open(path.Join(e.cfg.DataPath, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			pkg.InfoLog("no database found at", e.cfg.DataPath)
			return nil
		}
		return fmt.Errorf("failed to open db file: %w", err)
	}
	defer f.Close()

	meta := &Meta{Users: UserMap{}}
	if err := json.NewDecoder(f).Decode(meta); err != nil {
		if err == io.EOF {
			pkg.WarnLog("read empty db file")
			return nil
		}
		return fmt.Errorf("failed to decode db file: %w", err)
	}

	t := e.txns.BeginTransaction()
	restore := map[*catalog.Table][]*storage.Record{}
	for _, db_meta := range meta.Databases {
		if _, err := e.catalog.CreateDatabase(db_meta.Name, t); err != nil {
			e.txns.AbortTransaction(t)
			return err
		}
		for _, table_meta := range db_meta.Tables {
			schema, err := schemaFromMeta(table_meta)
			if err != nil {
				e.txns.AbortTransaction(t)
				return fmt.Errorf("table %s.%s: %w", db_meta.Name, table_meta.Name, err)
			}
			table, err := e.catalog.CreateTable(db_meta.Name, table_meta.Name, schema, t, false)
			if err != nil {
				e.txns.AbortTransaction(t)
				return err
			}
			records, err := readTableData(path.Join(e.cfg.DataPath, db_meta.Name, table_meta.Name), table_meta.FirstPage)
			if err != nil {
				e.txns.AbortTransaction(t)
				return err
			}
			restore[table] = records
		}
	}
	if err := e.txns.CommitTransaction(t); err != nil {
		return err
	}
	for table, records := range restore {
		table.Heap().Restore(records)
	}

	if meta.Users != nil {
		e.Users = meta.Users
	}
	pkg.InfoLog("loaded database from file", e.cfg.DataPath)
	return nil
}

// Defaults come back from json as generic values.
func schemaFromMeta(m TableMeta) (*catalog.Schema, error) {
	columns := make([]catalog.Column, len(m.Columns))
	for i, col := range m.Columns {
		def, err := types.Coerce(col.Type, col.Default)
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", col.Name, err)
		}
		col.Default = def
		columns[i] = col
	}
	return catalog.NewSchema(columns...), nil
}

func readTableData(base string, first_page uuid.UUID) ([]*storage.Record, error) {
	records := []*storage.Record{}
	if first_page == uuid.Nil {
		return records, nil
	}
	err := paging.ReadChain(base, first_page, func(block []byte) error {
		rec := &storage.Record{}
		if err := gob.NewDecoder(bytes.NewReader(block)).Decode(rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base, err)
	}
	return records, nil
}

// WriteToFile persists every committed user database.
// The samples database is skipped: its content is derived and rebuilt by refreshes.
func (e *Engine) WriteToFile() error {
	if e.cfg.InMem {
		return nil
	}

	pkg.DebugLog("writing database to disk", e.cfg.DataPath)

	e.Locker.Lock()
	defer e.Locker.Unlock()

	if err := os.MkdirAll(e.cfg.DataPath, 0755); err != nil {
		return err
	}

	meta := Meta{Databases: []DatabaseMeta{}, Users: e.Users}
	for _, db := range e.catalog.Databases(nil) {
		if db.IsHidden() {
			continue
		}
		db_meta := DatabaseMeta{Name: db.Name(), Tables: []TableMeta{}}
		for _, table := range e.catalog.ListTables(nil, false) {
			if table.DatabaseOid() != db.Oid() {
				continue
			}
			first_page, err := writeTableData(path.Join(e.cfg.DataPath, db.Name(), table.Name()), table)
			if err != nil {
				return err
			}
			db_meta.Tables = append(db_meta.Tables, TableMeta{
				Name:      table.Name(),
				Columns:   table.Schema().Columns,
				FirstPage: first_page,
			})
		}
		meta.Databases = append(meta.Databases, db_meta)
	}

	meta_data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path.Join(e.cfg.DataPath, metaFile), meta_data, 0644); err != nil {
		return err
	}

	e.lastWrite = time.Now()
	return nil
}

// writeTableData replaces the pages under base with the committed rows of table
// and returns the first page id.
func writeTableData(base string, table *catalog.Table) (uuid.UUID, error) {
	records := table.Heap().Snapshot()
	blocks := make([][]byte, 0, len(records))
	for _, rec := range records {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
			return uuid.Nil, fmt.Errorf("row %d of %s: %w", rec.ID, table, err)
		}
		blocks = append(blocks, buf.Bytes())
	}

	if err := paging.ResetDir(base); err != nil {
		return uuid.Nil, err
	}
	return paging.WriteChain(base, blocks)
}
