package catalog

import (
	"sort"

	"github.com/tobsdb/samplestore/pkg"
)

type Database struct {
	oid    uint32
	name   string
	hidden bool

	// committed tables, guarded by the catalog lock
	tables pkg.Map[string, *Table]
}

func newDatabase(oid uint32, name string, hidden bool) *Database {
	return &Database{oid: oid, name: name, hidden: hidden, tables: pkg.Map[string, *Table]{}}
}

func (d *Database) Oid() uint32 { return d.oid }

func (d *Database) Name() string { return d.name }

func (d *Database) IsHidden() bool { return d.hidden }

func sortTables(tables []*Table) {
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].db_oid != tables[j].db_oid {
			return tables[i].db_oid < tables[j].db_oid
		}
		return tables[i].oid < tables[j].oid
	})
}
