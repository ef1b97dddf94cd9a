package samples

import (
	"errors"
	"fmt"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/executor"
	"github.com/tobsdb/samplestore/internal/sampler"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

const (
	DefaultDatabaseName = "samples_db"
	DefaultSampleCount  = 1000
)

type Deps struct {
	Catalog *catalog.Catalog
	Txns    *txn.Manager
}

type Option func(*Storage)

func WithDatabaseName(name string) Option { return func(s *Storage) { s.db_name = name } }

// WithSampleCount sets the most rows kept per sample table.
func WithSampleCount(n int) Option { return func(s *Storage) { s.sample_count = n } }

func WithRefreshMode(mode RefreshMode) Option { return func(s *Storage) { s.mode = mode } }

func WithSamplerFactory(f sampler.Factory) Option { return func(s *Storage) { s.new_sampler = f } }

func WithTileSize(n int) Option { return func(s *Storage) { s.tile_size = n } }

// Storage manages the sample tables kept in the hidden samples database.
type Storage struct {
	catalog *catalog.Catalog
	txns    *txn.Manager

	db_name      string
	sample_count int
	mode         RefreshMode
	new_sampler  sampler.Factory
	tile_size    int
}

// Open creates the samples database and returns the handle that owns it.
// It must run once per catalog: a second Open on the same catalog fails with catalog.ErrDatabaseExists.
func Open(deps Deps, opts ...Option) (*Storage, error) {
	if deps.Catalog == nil || deps.Txns == nil {
		return nil, errors.New("samples storage needs a catalog and a transaction manager")
	}

	s := &Storage{
		catalog:      deps.Catalog,
		txns:         deps.Txns,
		db_name:      DefaultDatabaseName,
		sample_count: DefaultSampleCount,
		mode:         RefreshTwoPhase,
		new_sampler:  sampler.NewFactory(),
		tile_size:    executor.DefaultTileSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.db_name == "" {
		return nil, errors.New("samples database name cannot be empty")
	}
	if s.sample_count <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", s.sample_count)
	}
	if !s.mode.IsValid() {
		return nil, fmt.Errorf("invalid refresh mode: %s", s.mode)
	}

	if err := s.createSamplesDatabase(); err != nil {
		return nil, fmt.Errorf("failed to create samples database %s: %w", s.db_name, err)
	}
	pkg.InfoLog("created samples database", s.db_name)
	return s, nil
}

func (s *Storage) createSamplesDatabase() error {
	t := s.txns.BeginTransaction()
	if _, err := s.catalog.CreateHiddenDatabase(s.db_name, t); err != nil {
		s.txns.AbortTransaction(t)
		return err
	}
	return s.txns.CommitTransaction(t)
}

func (s *Storage) DatabaseName() string { return s.db_name }

func (s *Storage) SampleCount() int { return s.sample_count }

func (s *Storage) Mode() RefreshMode { return s.mode }
