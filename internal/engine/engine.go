package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tobsdb/samplestore/internal/auth"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/config"
	"github.com/tobsdb/samplestore/internal/export"
	"github.com/tobsdb/samplestore/internal/refresher"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
)

type UserMap = pkg.Map[string, *auth.User]

type Engine struct {
	Locker sync.RWMutex
	cfg    *config.Config

	catalog *catalog.Catalog
	txns    *txn.Manager

	samplesOnce    sync.Once
	samples        *samples.Storage
	samplesErr     error
	samplesOptions []samples.Option

	refresher *refresher.Refresher
	exporter  *export.Store

	Users       UserMap
	last_change time.Time
	lastWrite   time.Time
}

// Open builds the engine described by cfg: it loads persisted user data,
// creates the samples database and wires the refresher.
// Extra options are passed to the samples storage after the ones derived from cfg.
func Open(cfg *config.Config, opts ...samples.Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	GobRegisterTypes()

	e := &Engine{
		cfg:     cfg,
		catalog: catalog.New(),
		txns:    txn.NewManager(),
		Users:   UserMap{},
	}

	mode, _ := samples.ParseRefreshMode(cfg.RefreshMode)
	e.samplesOptions = append([]samples.Option{
		samples.WithDatabaseName(cfg.SamplesDB),
		samples.WithSampleCount(cfg.SampleCount),
		samples.WithRefreshMode(mode),
		samples.WithTileSize(cfg.TileSize),
	}, opts...)

	if err := e.ReadFromFile(); err != nil {
		return nil, err
	}

	s, err := e.Samples()
	if err != nil {
		return nil, err
	}

	refresh_opts := refresher.Options{
		Threshold: cfg.RefreshThresh,
		Interval:  cfg.RefreshInterval,
		Workers:   cfg.RefreshWorkers,
	}
	if cfg.ExportDSN != "" {
		e.exporter, err = export.Open(cfg.ExportDSN)
		if err != nil {
			return nil, err
		}
		if err := e.exporter.InitializeSchema(); err != nil {
			e.exporter.Close()
			return nil, err
		}
		refresh_opts.OnRefreshed = export.Hook(e.exporter, s)
		pkg.InfoLog("exporting sample sets")
	}
	e.refresher = refresher.New(e.catalog, e.txns, s, refresh_opts)

	if cfg.Username != "" {
		user, err := auth.NewUser(cfg.Username, cfg.Password, auth.UserRoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("failed to create root user: %w", err)
		}
		pkg.LockWrap(e, func() {
			for id, u := range e.Users {
				if u.Name == user.Name {
					e.Users.Delete(id)
				}
			}
			e.Users.Set(user.Id, user)
		})
	}

	e.lastWrite = time.Now()
	return e, nil
}

func (e *Engine) GetLocker() *sync.RWMutex { return &e.Locker }

// Samples returns the samples storage, creating it on the first call.
func (e *Engine) Samples() (*samples.Storage, error) {
	e.samplesOnce.Do(func() {
		e.samples, e.samplesErr = samples.Open(samples.Deps{Catalog: e.catalog, Txns: e.txns}, e.samplesOptions...)
	})
	return e.samples, e.samplesErr
}

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func (e *Engine) Txns() *txn.Manager { return e.txns }

func (e *Engine) Refresher() *refresher.Refresher { return e.refresher }

func (e *Engine) Config() *config.Config { return e.cfg }

// ValidateUser returns the user matching name and password, or nil.
func (e *Engine) ValidateUser(name, password string) *auth.User {
	if name == "" {
		return nil
	}
	return pkg.RLockGet(e, func() *auth.User {
		for _, u := range e.Users {
			if u.Name == name && u.ValidateUser(password) {
				return u
			}
		}
		return nil
	})
}

// Run starts background refreshing and, unless in memory, writes the data to disk
// every write interval in which something was committed. It returns once ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.refresher.Start(ctx)
	defer e.refresher.Stop()

	if e.cfg.InMem {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Duration(e.cfg.WriteInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.changedSinceWrite() {
				continue
			}
			if err := e.WriteToFile(); err != nil {
				pkg.ErrorLog("failed to write database;", err)
			}
		case <-ctx.Done():
			if err := e.WriteToFile(); err != nil {
				pkg.ErrorLog("failed to write database;", err)
			}
			return
		}
	}
}

func (e *Engine) changedSinceWrite() bool {
	e.Locker.RLock()
	defer e.Locker.RUnlock()
	return e.txns.LastCommit().After(e.lastWrite) || e.last_change.After(e.lastWrite)
}

func (e *Engine) Close() error {
	if e.exporter != nil {
		return e.exporter.Close()
	}
	return nil
}
