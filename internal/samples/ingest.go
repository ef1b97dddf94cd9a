package samples

import (
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/executor"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

// InsertSampleTuple runs a single row insert of tuple into samples_table under t.
// The tuple belongs to the table afterwards.
func (s *Storage) InsertSampleTuple(samples_table *catalog.Table, tuple storage.Tuple, t *txn.Transaction) bool {
	if !t.IsActive() {
		return false
	}

	ctx := executor.NewExecutorContext(t)
	node := executor.NewInsertPlan(samples_table, tuple)
	insert := executor.NewInsertExecutor(node, ctx)
	if err := insert.Init(); err != nil {
		pkg.DebugLog("failed to init sample insert;", err)
		return false
	}
	return insert.Execute()
}
