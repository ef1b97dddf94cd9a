package export

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/internal/storage"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/internal/types"
)

type StoreTestSuite struct {
	suite.Suite
	mock  sqlmock.Sqlmock
	db    *sql.DB
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)
	s.store = NewStore(s.db)
}

func (s *StoreTestSuite) TearDownTest() {
	s.db.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestInitializeSchema() {
	s.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sample_sets`).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sample_rows`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(s.T(), s.store.InitializeSchema())
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestInitializeSchema_Error() {
	s.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sample_sets`).WillReturnError(errors.New("access denied"))

	err := s.store.InitializeSchema()
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "failed to create sample_sets table")
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestSaveSampleSet() {
	set := SampleSet{
		DatabaseOid:  1,
		TableOid:     2,
		SourceTable:  "app.users",
		SamplesTable: "1_2",
		Columns:      []string{"id", "name"},
		Rows:         []storage.Tuple{{int64(1), "a"}, {int64(2), nil}},
		CollectedAt:  time.Now(),
	}

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`INSERT INTO sample_sets`).
		WithArgs(uint32(1), uint32(2), "app.users", "1_2", `["id","name"]`, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	s.mock.ExpectExec(`INSERT INTO sample_rows`).
		WithArgs(int64(7), 0, `[1,"a"]`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectExec(`INSERT INTO sample_rows`).
		WithArgs(int64(7), 1, `[2,null]`).
		WillReturnResult(sqlmock.NewResult(2, 1))
	s.mock.ExpectCommit()

	id, err := s.store.SaveSampleSet(set)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(7), id)
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestSaveSampleSet_RowError() {
	set := SampleSet{SourceTable: "app.users", Columns: []string{"id"}, Rows: []storage.Tuple{{int64(1)}}}

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`INSERT INTO sample_sets`).WillReturnResult(sqlmock.NewResult(3, 1))
	s.mock.ExpectExec(`INSERT INTO sample_rows`).WillReturnError(errors.New("disk full"))
	s.mock.ExpectRollback()

	_, err := s.store.SaveSampleSet(set)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "failed to save sample row 0 of set 3")
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestSaveSampleSet_NilDB() {
	_, err := NewStore(nil).SaveSampleSet(SampleSet{})
	assert.EqualError(s.T(), err, "database connection is nil")
}

func (s *StoreTestSuite) TestHook() {
	c := catalog.New()
	m := txn.NewManager()
	tx := m.BeginTransaction()
	_, err := c.CreateDatabase("app", tx)
	require.NoError(s.T(), err)
	table, err := c.CreateTable("app", "users", catalog.NewSchema(
		catalog.Column{Name: "id", Type: types.FieldTypeInt},
	), tx, false)
	require.NoError(s.T(), err)
	require.NoError(s.T(), table.Insert(tx, storage.Tuple{5}))
	require.NoError(s.T(), m.CommitTransaction(tx))

	store, err := samples.Open(samples.Deps{Catalog: c, Txns: m})
	require.NoError(s.T(), err)
	tx = m.BeginTransaction()
	_, err = store.CollectSamplesForTable(table, tx)
	require.NoError(s.T(), err)
	require.NoError(s.T(), m.CommitTransaction(tx))

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`INSERT INTO sample_sets`).
		WithArgs(uint32(1), uint32(2), "app.users", "1_2", `["id"]`, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectExec(`INSERT INTO sample_rows`).
		WithArgs(int64(1), 0, `[5]`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectCommit()

	assert.NoError(s.T(), Hook(s.store, store)(table))
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open("not a dsn")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid export dsn")
}
