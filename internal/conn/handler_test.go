package conn_test

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"testing"

	"github.com/tobsdb/samplestore/internal/auth"
	"github.com/tobsdb/samplestore/internal/config"
	. "github.com/tobsdb/samplestore/internal/conn"
	"github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/internal/sampler"
	"github.com/tobsdb/samplestore/internal/samples"
	"gotest.tools/assert"
)

const testSchema = `
$TABLE a {
	b Int
	c String optional(true)
}`

func reqEncode(v map[string]any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func newTestEngine(t *testing.T) *engine.Engine {
	cfg, err := config.LoadWithEnvironment(map[string]string{
		"TDB_IN_MEM": "true",
		"TDB_USER":   "root",
		"TDB_PASS":   "root",
	})
	assert.NilError(t, err)
	e, err := engine.Open(cfg, samples.WithSamplerFactory(sampler.NewFactory(sampler.WithRand(rand.New(rand.NewSource(1))))))
	assert.NilError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func newPopulatedTestEngine(t *testing.T, n int) *engine.Engine {
	e := newTestEngine(t)
	res := CreateTablesReqHandler(e, reqEncode(map[string]any{"db": "app", "schema": testSchema}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)

	rows := []map[string]any{}
	for i := 1; i <= n; i++ {
		rows = append(rows, map[string]any{"b": i})
	}
	if n > 0 {
		res = InsertReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "data": rows}))
		assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	}
	return e
}

func TestCreateDBReqHandler(t *testing.T) {
	e := newTestEngine(t)

	res := CreateDBReqHandler(e, reqEncode(map[string]any{"name": "app"}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	assert.Equal(t, res.Message, "Created database app")

	t.Run("duplicate", func(t *testing.T) {
		res := CreateDBReqHandler(e, reqEncode(map[string]any{"name": "app"}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("samples database is reserved", func(t *testing.T) {
		res := CreateDBReqHandler(e, reqEncode(map[string]any{"name": "samples_db"}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("missing name", func(t *testing.T) {
		res := CreateDBReqHandler(e, reqEncode(map[string]any{}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
		assert.Equal(t, res.Message, "Missing db name")
	})
}

func TestCreateTablesReqHandler(t *testing.T) {
	e := newTestEngine(t)

	res := CreateTablesReqHandler(e, reqEncode(map[string]any{"db": "app", "schema": testSchema}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	infos := res.Data.([]TableInfo)
	assert.Equal(t, len(infos), 1)
	assert.DeepEqual(t, infos[0].Columns, []string{"b", "c"})
	assert.Assert(t, !infos[0].Sampled)

	t.Run("table exists", func(t *testing.T) {
		res := CreateTablesReqHandler(e, reqEncode(map[string]any{"db": "app", "schema": testSchema}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("invalid schema", func(t *testing.T) {
		res := CreateTablesReqHandler(e, reqEncode(map[string]any{"db": "app", "schema": "$TABLE x {\n y Foo\n}"}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestInsertReqHandler(t *testing.T) {
	e := newPopulatedTestEngine(t, 0)

	res := InsertReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "data": []map[string]any{{"b": 1}, {"b": 2, "c": "x"}}}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	assert.Equal(t, res.Data, 2)

	t.Run("table not found", func(t *testing.T) {
		res := InsertReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "z", "data": []map[string]any{{"b": 1}}}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	t.Run("type mismatch", func(t *testing.T) {
		res := InsertReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "data": []map[string]any{{"b": "one"}}}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("no rows", func(t *testing.T) {
		res := InsertReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a"}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})
}

func TestSamplesReqHandlers(t *testing.T) {
	e := newPopulatedTestEngine(t, 5)
	table := reqEncode(map[string]any{"db": "app", "table": "a"})

	t.Run("not sampled yet", func(t *testing.T) {
		res := TupleSamplesReqHandler(e, table)
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	res := CollectSamplesReqHandler(e, table)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	info := res.Data.(TableInfo)
	assert.Assert(t, info.Sampled)
	assert.Equal(t, info.SampleRows, 5)
	assert.Equal(t, info.Pending, 0)

	t.Run("tuple samples", func(t *testing.T) {
		res := TupleSamplesReqHandler(e, table)
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		data := res.Data.(TupleSamplesResponse)
		assert.DeepEqual(t, data.Columns, []string{"b", "c"})
		assert.Equal(t, len(data.Tiles), 1)
		assert.Equal(t, len(data.Tiles[0]), 5)
		assert.DeepEqual(t, data.Tiles[0][0], []any{int64(1), nil})
	})

	t.Run("column samples", func(t *testing.T) {
		res := ColumnSamplesReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "column": "b"}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.DeepEqual(t, res.Data, []any{int64(1), int64(2), int64(3), int64(4), int64(5)})
	})

	t.Run("unknown column", func(t *testing.T) {
		res := ColumnSamplesReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "column": "z"}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})

	t.Run("delete samples", func(t *testing.T) {
		res := DeleteSamplesReqHandler(e, table)
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, res.Data, "success")

		res = DeleteSamplesReqHandler(e, table)
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)

		res = ColumnSamplesReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "column": "b"}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, len(res.Data.([]any)), 0)
	})

	t.Run("trigger refresh", func(t *testing.T) {
		res := TriggerRefreshReqHandler(e, table)
		assert.Equal(t, res.Status, http.StatusAccepted, res.Message)
		assert.Equal(t, e.Refresher().Pending(), 1)

		res = TriggerRefreshReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "z"}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})
}

func TestListTablesReqHandler(t *testing.T) {
	e := newPopulatedTestEngine(t, 3)

	res := ListTablesReqHandler(e)
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	infos := res.Data.([]TableInfo)
	assert.Equal(t, len(infos), 1)
	assert.Equal(t, infos[0].Table, "a")
	assert.Equal(t, infos[0].Rows, 3)
	assert.Equal(t, infos[0].Pending, 3)
}

func TestUserReqHandlers(t *testing.T) {
	e := newTestEngine(t)

	res := CreateUserReqHandler(e, reqEncode(map[string]any{"name": "test", "password": "test", "role": 2}))
	assert.Equal(t, res.Status, http.StatusCreated, res.Message)
	user := e.ValidateUser("test", "test")
	assert.Assert(t, user != nil)
	assert.Equal(t, user.Role, auth.UserRoleReadOnly)

	t.Run("duplicate", func(t *testing.T) {
		res := CreateUserReqHandler(e, reqEncode(map[string]any{"name": "test", "password": "x"}))
		assert.Equal(t, res.Status, http.StatusConflict, res.Message)
	})

	t.Run("invalid role", func(t *testing.T) {
		res := CreateUserReqHandler(e, reqEncode(map[string]any{"name": "other", "password": "x", "role": 7}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("delete", func(t *testing.T) {
		res := DeleteUserReqHandler(e, reqEncode(map[string]any{"name": "test"}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		res = DeleteUserReqHandler(e, reqEncode(map[string]any{"name": "test"}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})
}

func TestActionHandler(t *testing.T) {
	e := newPopulatedTestEngine(t, 1)
	reader, err := e.CreateUser("reader", "r", auth.UserRoleReadOnly)
	assert.NilError(t, err)
	writer, err := e.CreateUser("writer", "w", auth.UserRoleReadWrite)
	assert.NilError(t, err)
	table := reqEncode(map[string]any{"db": "app", "table": "a"})

	t.Run("read only user cannot write", func(t *testing.T) {
		res := ActionHandler(e, RequestActionCollectSamples, reader, table)
		assert.Equal(t, res.Status, http.StatusForbidden, res.Message)
		assert.Equal(t, res.Message, auth.InsufficientPermissions.Error())
	})

	t.Run("read only user can read", func(t *testing.T) {
		res := ActionHandler(e, RequestActionListTables, reader, nil)
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
	})

	t.Run("writer cannot create databases", func(t *testing.T) {
		res := ActionHandler(e, RequestActionCreateDB, writer, reqEncode(map[string]any{"name": "x"}))
		assert.Equal(t, res.Status, http.StatusForbidden, res.Message)
	})

	t.Run("writer can collect samples", func(t *testing.T) {
		res := ActionHandler(e, RequestActionCollectSamples, writer, table)
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
	})

	t.Run("no user", func(t *testing.T) {
		res := ActionHandler(e, RequestActionListTables, nil, nil)
		assert.Equal(t, res.Status, http.StatusForbidden, res.Message)
	})

	t.Run("unknown action", func(t *testing.T) {
		res := ActionHandler(e, RequestAction("nope"), writer, nil)
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
		assert.Equal(t, res.Message, "unknown action: nope")
	})
}

func TestFindManyReqHandler(t *testing.T) {
	e := newPopulatedTestEngine(t, 5)

	res := FindManyReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "where": map[string]any{"b": map[string]any{"gte": 4}}}))
	assert.Equal(t, res.Status, http.StatusOK, res.Message)
	rows := res.Data.([]map[string]any)
	assert.Equal(t, len(rows), 2)
	assert.Equal(t, rows[0]["b"], int64(4))

	t.Run("take", func(t *testing.T) {
		res := FindManyReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "take": 1}))
		assert.Equal(t, res.Status, http.StatusOK, res.Message)
		assert.Equal(t, len(res.Data.([]map[string]any)), 1)
	})

	t.Run("bad where", func(t *testing.T) {
		res := FindManyReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "a", "where": map[string]any{"z": 1}}))
		assert.Equal(t, res.Status, http.StatusBadRequest, res.Message)
	})

	t.Run("table not found", func(t *testing.T) {
		res := FindManyReqHandler(e, reqEncode(map[string]any{"db": "app", "table": "z"}))
		assert.Equal(t, res.Status, http.StatusNotFound, res.Message)
	})
}
