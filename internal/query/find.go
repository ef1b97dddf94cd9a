package query

import (
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/executor"
	"github.com/tobsdb/samplestore/internal/txn"
)

type FindArgs struct {
	Where QueryArg `json:"where"`
	// 0 returns every match
	Take int `json:"take"`
}

// FindMany scans table as seen by t and returns the matching rows keyed by column name, in id order.
func FindMany(table *catalog.Table, t *txn.Transaction, args FindArgs) ([]map[string]any, error) {
	predicate, err := Where(table.Schema(), args.Where)
	if err != nil {
		return nil, err
	}

	plan := executor.NewSeqScanPlan(table, predicate, executor.AllColumns(table))
	scan := executor.NewSeqScanExecutor(plan, executor.NewExecutorContext(t))
	if err := scan.Init(); err != nil {
		return nil, err
	}

	names := table.Schema().ColumnNames()
	found_rows := []map[string]any{}
	for scan.Execute() {
		tile := scan.GetOutput()
		for tuple_id := 0; tuple_id < tile.GetTupleCount(); tuple_id++ {
			row := make(map[string]any, len(names))
			for col, name := range names {
				row[name] = tile.GetValue(tuple_id, col)
			}
			found_rows = append(found_rows, row)
			if args.Take > 0 && len(found_rows) == args.Take {
				return found_rows, nil
			}
		}
	}
	return found_rows, nil
}
