package samples

import (
	"errors"
	"fmt"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

type RefreshMode string

const (
	// RefreshTwoPhase drops the old sample table and creates the new one in two
	// separate transactions. Readers may see no samples in between.
	RefreshTwoPhase RefreshMode = "two_phase"
	// RefreshSingleTxn swaps the sample table inside one transaction.
	RefreshSingleTxn RefreshMode = "single_txn"
)

func (m RefreshMode) IsValid() bool { return m == RefreshTwoPhase || m == RefreshSingleTxn }

func ParseRefreshMode(s string) (RefreshMode, error) {
	m := RefreshMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid refresh mode: %s", s)
	}
	return m, nil
}

// CollectSamplesForTable samples table and replaces its sample table with the result.
// t must be an active transaction; the refresh itself runs in transactions of its own.
func (s *Storage) CollectSamplesForTable(table *catalog.Table, t *txn.Transaction) (Result, error) {
	if table == nil {
		return ResultFailure, errors.New("no table to collect samples for")
	}
	if !t.IsActive() {
		pkg.DebugLog("Do not have transaction to collect samples for table:", table.Name())
		return ResultFailure, ErrNoTransaction
	}

	tuple_sampler := s.new_sampler(table)
	if err := tuple_sampler.AcquireSampleTuples(s.sample_count); err != nil {
		return ResultFailure, fmt.Errorf("failed to sample %s: %w", table, err)
	}
	tuples := tuple_sampler.GetSampledTuples()

	var err error
	switch s.mode {
	case RefreshSingleTxn:
		err = s.withScope(Standalone(), func(t *txn.Transaction) error {
			if _, err := s.DeleteSamplesTable(table.DatabaseOid(), table.Oid(), Joined(t)); err != nil && !errors.Is(err, catalog.ErrTableNotFound) {
				return err
			}
			return s.AddSamplesTable(table, tuples, Joined(t))
		})
	default:
		// a missing sample table only means the table was never sampled
		_, err = s.DeleteSamplesTable(table.DatabaseOid(), table.Oid(), Standalone())
		if err == nil || errors.Is(err, catalog.ErrTableNotFound) {
			err = s.AddSamplesTable(table, tuples, Standalone())
		}
	}
	if err != nil {
		return ResultFailure, fmt.Errorf("failed to refresh samples of %s: %w", table, err)
	}

	pkg.WithFields(pkg.Fields{
		"table":   table.String(),
		"samples": SamplesTableName(table.DatabaseOid(), table.Oid()),
		"mode":    s.mode,
	}).Debug("collected samples")
	return ResultSuccess, nil
}

// AddSamplesTable creates the sample table of data_table with a copy of its schema
// and inserts tuples into it. Each tuple moves into the sample table.
func (s *Storage) AddSamplesTable(data_table *catalog.Table, tuples []storage.Tuple, scope TxnScope) error {
	schema := data_table.Schema().Copy()
	name := SamplesTableName(data_table.DatabaseOid(), data_table.Oid())

	return s.withScope(scope, func(t *txn.Transaction) error {
		if _, err := s.catalog.CreateTable(s.db_name, name, schema, t, false); err != nil {
			return err
		}
		samples_table, err := s.catalog.GetTableWithName(s.db_name, name, t)
		if err != nil {
			return err
		}

		for i := range tuples {
			tuple := tuples[i]
			tuples[i] = nil
			if !s.InsertSampleTuple(samples_table, tuple, t) {
				return fmt.Errorf("failed to insert sample %d into %s", i, name)
			}
		}
		return nil
	})
}

// DeleteSamplesTable drops the sample table of (db_oid, table_oid).
// Standalone scopes commit straight away; joined scopes leave it to the caller.
func (s *Storage) DeleteSamplesTable(db_oid, table_oid uint32, scope TxnScope) (Result, error) {
	name := SamplesTableName(db_oid, table_oid)
	err := s.withScope(scope, func(t *txn.Transaction) error {
		return s.catalog.DropTable(s.db_name, name, t)
	})

	result_str := "success"
	if err != nil {
		result_str = "false"
	}
	pkg.DebugLog(fmt.Sprintf("Drop table %s, result: %s", name, result_str))
	return resultOf(err), err
}
