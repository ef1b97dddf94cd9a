package executor

import "github.com/tobsdb/samplestore/internal/storage"

// LogicalTile is one batch of scan output.
// Column positions inside the tile follow ColumnIDs, not the table layout.
type LogicalTile struct {
	column_ids []int
	tuples     []storage.Tuple
}

func NewLogicalTile(column_ids []int, tuples []storage.Tuple) *LogicalTile {
	return &LogicalTile{column_ids, tuples}
}

func (lt *LogicalTile) GetTupleCount() int { return len(lt.tuples) }

func (lt *LogicalTile) GetColumnCount() int { return len(lt.column_ids) }

// GetValue returns the value at column position col of tuple tuple_id.
func (lt *LogicalTile) GetValue(tuple_id, col int) any {
	return lt.tuples[tuple_id][col]
}

// ColumnIDs lists the source table column of each tile column.
func (lt *LogicalTile) ColumnIDs() []int { return lt.column_ids }

func (lt *LogicalTile) Tuples() []storage.Tuple { return lt.tuples }
