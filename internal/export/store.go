package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/pkg"
)

// Store copies sample sets into an external MySQL database for offline analysis.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the MySQL database named by dsn.
func Open(dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid export dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open export database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping export database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const (
	createSampleSetsTableSQL = `
CREATE TABLE IF NOT EXISTS sample_sets (
    set_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    database_oid INT UNSIGNED NOT NULL,
    table_oid INT UNSIGNED NOT NULL,
    source_table VARCHAR(255) NOT NULL,
    samples_table VARCHAR(64) NOT NULL,
    column_names TEXT NOT NULL,
    row_count INT NOT NULL,
    collected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_set_table (database_oid, table_oid),
    INDEX idx_set_collected_at (collected_at)
);`

	createSampleRowsTableSQL = `
CREATE TABLE IF NOT EXISTS sample_rows (
    row_id BIGINT AUTO_INCREMENT PRIMARY KEY,
    set_id BIGINT NOT NULL,
    row_index INT NOT NULL,
    payload JSON NOT NULL,
    FOREIGN KEY (set_id) REFERENCES sample_sets(set_id) ON DELETE CASCADE,
    INDEX idx_row_set_id (set_id)
);`
)

func (s *Store) InitializeSchema() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if _, err := s.db.Exec(createSampleSetsTableSQL); err != nil {
		return fmt.Errorf("failed to create sample_sets table: %w", err)
	}
	if _, err := s.db.Exec(createSampleRowsTableSQL); err != nil {
		return fmt.Errorf("failed to create sample_rows table: %w", err)
	}
	return nil
}

type SampleSet struct {
	DatabaseOid  uint32
	TableOid     uint32
	SourceTable  string
	SamplesTable string
	Columns      []string
	Rows         []storage.Tuple
	CollectedAt  time.Time
}

// SaveSampleSet stores set and its rows in one SQL transaction and returns the new set id.
func (s *Store) SaveSampleSet(set SampleSet) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	columns, err := json.Marshal(set.Columns)
	if err != nil {
		return 0, fmt.Errorf("failed to encode column names: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin export transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO sample_sets (database_oid, table_oid, source_table, samples_table, column_names, row_count, collected_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.Exec(query, set.DatabaseOid, set.TableOid, set.SourceTable, set.SamplesTable,
		string(columns), len(set.Rows), set.CollectedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sample set for %s: %w", set.SourceTable, err)
	}
	setID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for sample set: %w", err)
	}

	for i, row := range set.Rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("failed to encode sample row %d: %w", i, err)
		}
		_, err = tx.Exec(`INSERT INTO sample_rows (set_id, row_index, payload) VALUES (?, ?, ?)`, setID, i, string(payload))
		if err != nil {
			return 0, fmt.Errorf("failed to save sample row %d of set %d: %w", i, setID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sample set %d: %w", setID, err)
	}
	return setID, nil
}

// NewSampleSet reads the current samples of table.
func NewSampleSet(table *catalog.Table, s *samples.Storage) SampleSet {
	set := SampleSet{
		DatabaseOid:  table.DatabaseOid(),
		TableOid:     table.Oid(),
		SourceTable:  table.String(),
		SamplesTable: samples.SamplesTableName(table.DatabaseOid(), table.Oid()),
		Columns:      table.Schema().ColumnNames(),
		Rows:         []storage.Tuple{},
		CollectedAt:  time.Now(),
	}
	for _, tile := range s.GetTupleSamples(table.DatabaseOid(), table.Oid()) {
		set.Rows = append(set.Rows, tile.Tuples()...)
	}
	return set
}

// Hook exports the samples of every refreshed table.
func Hook(store *Store, s *samples.Storage) func(*catalog.Table) error {
	return func(table *catalog.Table) error {
		set := NewSampleSet(table, s)
		id, err := store.SaveSampleSet(set)
		if err != nil {
			return err
		}
		pkg.WithFields(pkg.Fields{"table": set.SourceTable, "set_id": id, "rows": len(set.Rows)}).Debug("exported samples")
		return nil
	}
}
