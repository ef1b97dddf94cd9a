package samples

import (
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/executor"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

func (s *Storage) getTuplesWithSeqScan(data_table *catalog.Table, column_ids []int, t *txn.Transaction) ([]*executor.LogicalTile, error) {
	if !t.IsActive() {
		pkg.DebugLog("Do not have transaction to perform the sequential scan")
		return nil, ErrNoTransaction
	}

	ctx := executor.NewExecutorContext(t)
	node := executor.NewSeqScanPlan(data_table, nil, column_ids)
	node.TileSize = s.tile_size
	scan := executor.NewSeqScanExecutor(node, ctx)
	if err := scan.Init(); err != nil {
		return nil, err
	}

	tiles := []*executor.LogicalTile{}
	for scan.Execute() {
		tiles = append(tiles, scan.GetOutput())
	}
	return tiles, nil
}

// scanSamples resolves the sample table and scans it in a transaction of its own.
// column_ids of nil means every column.
func (s *Storage) scanSamples(db_oid, table_oid uint32, column_ids []int) ([]*executor.LogicalTile, error) {
	name := SamplesTableName(db_oid, table_oid)
	t := s.txns.BeginTransaction()

	data_table, err := s.catalog.GetTableWithName(s.db_name, name, t)
	if err != nil {
		s.txns.AbortTransaction(t)
		return nil, err
	}
	if column_ids == nil {
		column_ids = executor.AllColumns(data_table)
	}

	tiles, err := s.getTuplesWithSeqScan(data_table, column_ids, t)
	if err != nil {
		s.txns.AbortTransaction(t)
		return nil, err
	}
	if err := s.txns.CommitTransaction(t); err != nil {
		return nil, err
	}
	return tiles, nil
}

// GetTupleSamples returns every sampled row of (db_oid, table_oid) with all columns.
// The result is nil when the table has not been sampled.
func (s *Storage) GetTupleSamples(db_oid, table_oid uint32) []*executor.LogicalTile {
	tiles, err := s.scanSamples(db_oid, table_oid, nil)
	if err != nil {
		pkg.DebugLog("no tuple samples for", SamplesTableName(db_oid, table_oid), err)
		return nil
	}
	return tiles
}

// GetColumnSamples appends the sampled values of one column to column_samples, in scan order.
// Nothing is appended when the table has not been sampled.
func (s *Storage) GetColumnSamples(db_oid, table_oid uint32, column_id int, column_samples *[]any) {
	tiles, err := s.scanSamples(db_oid, table_oid, []int{column_id})
	if err != nil {
		pkg.DebugLog("no column samples for", SamplesTableName(db_oid, table_oid), err)
		return
	}

	pkg.DebugLog("Result tiles count:", len(tiles))
	for _, tile := range tiles {
		pkg.DebugLog("Tuple count:", tile.GetTupleCount())
		for tuple_id := 0; tuple_id < tile.GetTupleCount(); tuple_id++ {
			*column_samples = append(*column_samples, tile.GetValue(tuple_id, 0))
		}
	}
}

// Stats reports how many rows the sample table of (db_oid, table_oid) holds.
func (s *Storage) Stats(db_oid, table_oid uint32) (int, bool) {
	table, err := s.catalog.GetTableWithName(s.db_name, SamplesTableName(db_oid, table_oid), nil)
	if err != nil {
		return 0, false
	}
	return table.Heap().Len(), true
}
