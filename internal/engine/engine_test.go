package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path"
	"testing"
	"time"

	"github.com/tobsdb/samplestore/internal/auth"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/config"
	. "github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/internal/sampler"
	"github.com/tobsdb/samplestore/internal/samples"
	"gotest.tools/assert"
)

const testSchema = `
$TABLE user {
	id Int
	name String default("anon")
	joined Date optional(true)
}

$TABLE post {
	title String
}
`

func testConfig(t *testing.T, environment map[string]string) *config.Config {
	cfg, err := config.LoadWithEnvironment(environment)
	assert.NilError(t, err)
	return cfg
}

func memConfig(t *testing.T) *config.Config {
	return testConfig(t, map[string]string{"TDB_IN_MEM": "true", "TDB_USER": "root", "TDB_PASS": "secret"})
}

func openEngine(t *testing.T, cfg *config.Config) *Engine {
	e, err := Open(cfg, samples.WithSamplerFactory(sampler.NewFactory(sampler.WithRand(rand.New(rand.NewSource(1))))))
	assert.NilError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpen(t *testing.T) {
	t.Run("bootstraps samples database", func(t *testing.T) {
		e := openEngine(t, memConfig(t))

		s, err := e.Samples()
		assert.NilError(t, err)
		db, err := e.Catalog().GetDatabase(s.DatabaseName(), nil)
		assert.NilError(t, err)
		assert.Assert(t, db.IsHidden())

		again, err := e.Samples()
		assert.NilError(t, err)
		assert.Equal(t, again, s)
	})

	t.Run("root user", func(t *testing.T) {
		e := openEngine(t, memConfig(t))

		assert.Assert(t, e.ValidateUser("root", "secret") != nil)
		assert.Assert(t, e.ValidateUser("root", "wrong") == nil)
		assert.Assert(t, e.ValidateUser("", "") == nil)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := memConfig(t)
		cfg.SampleCount = 0
		_, err := Open(cfg)
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("samples database name taken", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testConfig(t, map[string]string{"TDB_DATA_PATH": dir})
		e := openEngine(t, cfg)
		_, err := e.CreateUserTables(testSchema, "stats")
		assert.NilError(t, err)
		assert.NilError(t, e.WriteToFile())

		cfg = testConfig(t, map[string]string{"TDB_DATA_PATH": dir, "TDB_SAMPLES_DB": "stats"})
		_, err = Open(cfg)
		assert.ErrorContains(t, err, "failed to create samples database stats")
	})
}

func TestCreateUserTables(t *testing.T) {
	e := openEngine(t, memConfig(t))

	tables, err := e.CreateUserTables(testSchema, "app")
	assert.NilError(t, err)
	assert.Equal(t, len(tables), 2)
	assert.Equal(t, tables[0].Name(), "user")
	assert.Equal(t, tables[1].Name(), "post")

	t.Run("existing database", func(t *testing.T) {
		more, err := e.CreateUserTables("$TABLE comment {\n body String\n}", "app")
		assert.NilError(t, err)
		assert.Equal(t, more[0].DatabaseOid(), tables[0].DatabaseOid())
	})

	t.Run("all or nothing", func(t *testing.T) {
		_, err := e.CreateUserTables("$TABLE tag {\n name String\n}\n$TABLE post {\n title String\n}", "app")
		assert.Assert(t, errors.Is(err, catalog.ErrTableExists))

		_, err = e.Table("app", "tag")
		assert.Assert(t, errors.Is(err, catalog.ErrTableNotFound))
	})

	t.Run("bad schema", func(t *testing.T) {
		_, err := e.CreateUserTables("$TABLE broken {\n a Nope\n}", "app")
		assert.ErrorContains(t, err, "Invalid field type: Nope")
	})
}

func TestInsertRows(t *testing.T) {
	e := openEngine(t, memConfig(t))
	_, err := e.CreateUserTables(testSchema, "app")
	assert.NilError(t, err)

	n, err := e.InsertRows("app", "user", []map[string]any{
		{"id": 1, "name": "a"},
		{"id": 2},
		{"id": 3, "joined": "2024-01-02T03:04:05Z"},
	})
	assert.NilError(t, err)
	assert.Equal(t, n, 3)

	table, err := e.Table("app", "user")
	assert.NilError(t, err)
	assert.Equal(t, table.Heap().Len(), 3)
	assert.Equal(t, e.Refresher().ModificationCount(table.DatabaseOid(), table.Oid()), 3)

	rows := table.VisibleRows(nil)
	assert.Equal(t, rows[1][1], "anon")
	assert.Assert(t, rows[2][2].(time.Time).Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	t.Run("bad row aborts", func(t *testing.T) {
		_, err := e.InsertRows("app", "user", []map[string]any{
			{"id": 4},
			{"id": "five"},
		})
		assert.ErrorContains(t, err, "row 1")
		assert.Equal(t, table.Heap().Len(), 3)
		assert.Equal(t, e.Refresher().ModificationCount(table.DatabaseOid(), table.Oid()), 3)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := e.InsertRows("app", "user", []map[string]any{{"id": 4, "age": 3}})
		assert.ErrorContains(t, err, "unknown column age")
	})

	t.Run("missing table", func(t *testing.T) {
		_, err := e.InsertRows("app", "nope", []map[string]any{{"id": 4}})
		assert.Assert(t, errors.Is(err, catalog.ErrTableNotFound))
	})
}

func TestCollectSamples(t *testing.T) {
	e := openEngine(t, memConfig(t))
	_, err := e.CreateUserTables(testSchema, "app")
	assert.NilError(t, err)
	_, err = e.InsertRows("app", "post", []map[string]any{{"title": "a"}, {"title": "b"}})
	assert.NilError(t, err)

	table, err := e.CollectSamples("app", "post")
	assert.NilError(t, err)
	assert.Equal(t, e.Refresher().ModificationCount(table.DatabaseOid(), table.Oid()), 0)

	s, err := e.Samples()
	assert.NilError(t, err)
	values := []any{}
	s.GetColumnSamples(table.DatabaseOid(), table.Oid(), 0, &values)
	assert.DeepEqual(t, values, []any{"a", "b"})

	result, err := e.DeleteSamples("app", "post")
	assert.NilError(t, err)
	assert.Equal(t, result, samples.ResultSuccess)
	assert.Assert(t, s.GetTupleSamples(table.DatabaseOid(), table.Oid()) == nil)

	t.Run("missing table", func(t *testing.T) {
		_, err := e.CollectSamples("app", "nope")
		assert.Assert(t, errors.Is(err, catalog.ErrTableNotFound))
		_, err = e.DeleteSamples("app", "nope")
		assert.Assert(t, errors.Is(err, catalog.ErrTableNotFound))
	})
}

func TestSamplesDatabaseHidden(t *testing.T) {
	e := openEngine(t, memConfig(t))
	_, err := e.CreateUserTables(testSchema, "app")
	assert.NilError(t, err)
	_, err = e.InsertRows("app", "post", []map[string]any{{"title": "a"}, {"title": "b"}})
	assert.NilError(t, err)
	table, err := e.CollectSamples("app", "post")
	assert.NilError(t, err)

	s, err := e.Samples()
	assert.NilError(t, err)
	samples_table := samples.SamplesTableName(table.DatabaseOid(), table.Oid())

	_, err = e.Table(s.DatabaseName(), samples_table)
	assert.Assert(t, errors.Is(err, catalog.ErrDatabaseNotFound))

	_, err = e.InsertRows(s.DatabaseName(), samples_table, []map[string]any{{"title": "forged"}})
	assert.Assert(t, errors.Is(err, catalog.ErrDatabaseNotFound))

	_, err = e.CreateUserTables("$TABLE extra {\n body String\n}", s.DatabaseName())
	assert.Assert(t, errors.Is(err, catalog.ErrDatabaseNotFound))
	_, err = e.Catalog().GetTableWithName(s.DatabaseName(), "extra", nil)
	assert.Assert(t, errors.Is(err, catalog.ErrTableNotFound))

	values := []any{}
	s.GetColumnSamples(table.DatabaseOid(), table.Oid(), 0, &values)
	assert.DeepEqual(t, values, []any{"a", "b"})
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	environment := map[string]string{"TDB_DATA_PATH": dir, "TDB_USER": "root", "TDB_PASS": "secret"}

	e := openEngine(t, testConfig(t, environment))
	_, err := e.CreateUserTables(testSchema, "app")
	assert.NilError(t, err)
	_, err = e.InsertRows("app", "user", []map[string]any{
		{"id": 1, "name": "a", "joined": "2024-01-02T03:04:05Z"},
		{"id": 2},
	})
	assert.NilError(t, err)
	_, err = e.CollectSamples("app", "user")
	assert.NilError(t, err)
	assert.NilError(t, e.WriteToFile())

	_, err = os.Stat(path.Join(dir, "meta.tdb"))
	assert.NilError(t, err)
	pages, err := os.ReadDir(path.Join(dir, "app", "user"))
	assert.NilError(t, err)
	assert.Equal(t, len(pages), 1)

	reloaded := openEngine(t, testConfig(t, environment))

	table, err := reloaded.Table("app", "user")
	assert.NilError(t, err)
	assert.Equal(t, table.Heap().Len(), 2)
	rows := table.VisibleRows(nil)
	assert.Equal(t, rows[0][0], int64(1))
	assert.Assert(t, rows[0][2].(time.Time).Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, rows[1][1], "anon")
	assert.Assert(t, rows[1][2] == nil)

	col := table.Schema().Columns[1]
	assert.Equal(t, col.Default, "anon")

	_, err = reloaded.Table("app", "post")
	assert.NilError(t, err)

	t.Run("samples are not persisted", func(t *testing.T) {
		s, err := reloaded.Samples()
		assert.NilError(t, err)
		_, ok := s.Stats(table.DatabaseOid(), table.Oid())
		assert.Assert(t, !ok)
	})

	t.Run("rewrites replace old pages", func(t *testing.T) {
		assert.NilError(t, reloaded.WriteToFile())
		assert.NilError(t, reloaded.WriteToFile())
		pages, err := os.ReadDir(path.Join(dir, "app", "user"))
		assert.NilError(t, err)
		assert.Equal(t, len(pages), 1)
	})

	t.Run("users are persisted", func(t *testing.T) {
		assert.Assert(t, reloaded.ValidateUser("root", "secret") != nil)
		assert.Equal(t, len(reloaded.Users), 1)
	})

	t.Run("new rows continue the id sequence", func(t *testing.T) {
		_, err := reloaded.InsertRows("app", "user", []map[string]any{{"id": 3}})
		assert.NilError(t, err)
		assert.Equal(t, table.Heap().LastID(), int64(3))
	})
}

func TestReadEmptyDir(t *testing.T) {
	e := openEngine(t, testConfig(t, map[string]string{"TDB_DATA_PATH": t.TempDir()}))
	assert.Equal(t, len(e.Catalog().ListTables(nil, false)), 0)
}

func TestRun(t *testing.T) {
	t.Run("writes on interval", func(t *testing.T) {
		dir := t.TempDir()
		e := openEngine(t, testConfig(t, map[string]string{"TDB_DATA_PATH": dir, "TDB_WRITE_INTERVAL": "10"}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			e.Run(ctx)
			close(done)
		}()

		_, err := e.CreateUserTables(testSchema, "app")
		assert.NilError(t, err)

		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, err := os.Stat(path.Join(dir, "meta.tdb")); err == nil {
				break
			}
			assert.Assert(t, time.Now().Before(deadline), "meta file was never written")
			time.Sleep(5 * time.Millisecond)
		}

		cancel()
		<-done
	})

	t.Run("in memory returns on cancel", func(t *testing.T) {
		e := openEngine(t, memConfig(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e.Run(ctx)
	})
}

func TestUsers(t *testing.T) {
	e := openEngine(t, memConfig(t))

	user, err := e.CreateUser("reader", "pw", auth.UserRoleReadOnly)
	assert.NilError(t, err)
	assert.Equal(t, user.Role, auth.UserRoleReadOnly)
	assert.Equal(t, e.ValidateUser("reader", "pw"), user)

	_, err = e.CreateUser("reader", "other", auth.UserRoleAdmin)
	assert.ErrorContains(t, err, "user reader already exists")

	assert.NilError(t, e.DeleteUser("reader"))
	assert.Assert(t, e.ValidateUser("reader", "pw") == nil)
	assert.Assert(t, errors.Is(e.DeleteUser("reader"), ErrUserNotFound))
}
