package samples

import "strconv"

// SamplesTableName names the sample table of a user table.
// Oids are decimal so the "_" separator can never appear inside either part.
func SamplesTableName(db_oid, table_oid uint32) string {
	return strconv.FormatUint(uint64(db_oid), 10) + "_" + strconv.FormatUint(uint64(table_oid), 10)
}
