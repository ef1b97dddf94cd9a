package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/internal/txn"
	"github.com/tobsdb/samplestore/pkg"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreshold = 1000
	DefaultInterval  = 5 * time.Minute
	DefaultWorkers   = 4
)

type tableID struct{ db, table uint32 }

type Options struct {
	// Modifications after which a table is due for a refresh.
	Threshold int
	// Age after which a table is due for a refresh. Zero turns the periodic pass off.
	Interval time.Duration
	Workers  int
	// OnRefreshed runs after every successful refresh. Errors are logged, not returned.
	OnRefreshed func(table *catalog.Table) error
}

// Refresher decides when sample tables go stale and rebuilds them,
// either on request through Trigger or periodically once started.
type Refresher struct {
	catalog *catalog.Catalog
	txns    *txn.Manager
	samples *samples.Storage
	opts    Options

	mu                sync.RWMutex
	lastRefresh       map[tableID]time.Time
	modificationCount map[tableID]int

	queue  *goconcurrentqueue.FIFO
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(c *catalog.Catalog, txns *txn.Manager, s *samples.Storage, opts Options) *Refresher {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Refresher{
		catalog:           c,
		txns:              txns,
		samples:           s,
		opts:              opts,
		lastRefresh:       make(map[tableID]time.Time),
		modificationCount: make(map[tableID]int),
		queue:             goconcurrentqueue.NewFIFO(),
	}
}

// RecordModification counts n changed rows of a table.
func (r *Refresher) RecordModification(db_oid, table_oid uint32, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modificationCount[tableID{db_oid, table_oid}] += n
}

func (r *Refresher) ModificationCount(db_oid, table_oid uint32) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modificationCount[tableID{db_oid, table_oid}]
}

func (r *Refresher) LastRefresh(db_oid, table_oid uint32) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	last, ok := r.lastRefresh[tableID{db_oid, table_oid}]
	return last, ok
}

// ShouldRefresh reports whether the table was never sampled, changed past the
// threshold, or was sampled longer ago than the interval.
func (r *Refresher) ShouldRefresh(db_oid, table_oid uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shouldRefreshLocked(tableID{db_oid, table_oid})
}

func (r *Refresher) shouldRefreshLocked(id tableID) bool {
	if r.modificationCount[id] >= r.opts.Threshold {
		return true
	}
	last, exists := r.lastRefresh[id]
	if !exists {
		return true
	}
	return r.opts.Interval > 0 && time.Since(last) >= r.opts.Interval
}

// Refresh rebuilds the sample table of table in a transaction of its own.
// Modifications recorded while it runs stay counted.
func (r *Refresher) Refresh(table *catalog.Table) error {
	if table == nil {
		return errors.New("no table to refresh")
	}
	id := tableID{table.DatabaseOid(), table.Oid()}
	r.mu.RLock()
	seen := r.modificationCount[id]
	r.mu.RUnlock()

	t := r.txns.BeginTransaction()
	result, err := r.samples.CollectSamplesForTable(table, t)
	if err != nil || result != samples.ResultSuccess {
		r.txns.AbortTransaction(t)
		return fmt.Errorf("refresh %s: %w", table, err)
	}
	if err := r.txns.CommitTransaction(t); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastRefresh[id] = time.Now()
	r.modificationCount[id] -= seen
	r.mu.Unlock()

	if r.opts.OnRefreshed != nil {
		if err := r.opts.OnRefreshed(table); err != nil {
			pkg.WithFields(pkg.Fields{"table": table.String()}).Error("refresh hook failed: ", err)
		}
	}
	return nil
}

// Trigger queues table for the worker started by Start.
func (r *Refresher) Trigger(table *catalog.Table) error {
	if table == nil {
		return errors.New("no table to refresh")
	}
	return r.queue.Enqueue(tableID{table.DatabaseOid(), table.Oid()})
}

func (r *Refresher) Pending() int { return r.queue.GetLen() }

// StaleTables lists the user tables due for a refresh.
func (r *Refresher) StaleTables() []*catalog.Table {
	stale := []*catalog.Table{}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, table := range r.catalog.ListTables(nil, false) {
		if r.shouldRefreshLocked(tableID{table.DatabaseOid(), table.Oid()}) {
			stale = append(stale, table)
		}
	}
	return stale
}

// RefreshAll refreshes every stale user table with at most Workers running at once.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	stale := r.StaleTables()
	if len(stale) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)
	for _, table := range stale {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return r.Refresh(table)
		})
	}
	err := eg.Wait()
	pkg.WithFields(pkg.Fields{"tables": len(stale)}).Debug("refresh pass done")
	return err
}

// Start runs the trigger worker and, if an interval is set, the periodic pass.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.drainQueue(ctx)

	if r.opts.Interval > 0 {
		r.wg.Add(1)
		go r.periodic(ctx)
	}
}

// Stop halts the goroutines started by Start and waits for them to return.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
}

func (r *Refresher) drainQueue(ctx context.Context) {
	defer r.wg.Done()
	for {
		v, err := r.queue.DequeueOrWaitForNextElementContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pkg.ErrorLog("refresh queue:", err)
			continue
		}

		id := v.(tableID)
		table, err := r.catalog.GetTableWithOid(id.db, id.table, nil)
		if err != nil {
			pkg.DebugLog("skipping refresh of dropped table", id.db, id.table)
			continue
		}
		if err := r.Refresh(table); err != nil {
			pkg.ErrorLog(err)
		}
	}
}

func (r *Refresher) periodic(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				pkg.ErrorLog("periodic refresh:", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
