package sampler

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/storage"
)

// Sampler draws a bounded set of rows from one table.
type Sampler interface {
	AcquireSampleTuples(max_count int) error
	// GetSampledTuples hands the sampled rows to the caller.
	// Later calls return nil until the next AcquireSampleTuples.
	GetSampledTuples() []storage.Tuple
}

type Factory func(table *catalog.Table) Sampler

type Option func(*TupleSampler)

func WithRand(r *rand.Rand) Option {
	return func(s *TupleSampler) { s.rand = r }
}

// TupleSampler keeps a uniform reservoir sample of the committed rows of a table.
type TupleSampler struct {
	table   *catalog.Table
	rand    *rand.Rand
	sampled []storage.Tuple
}

func NewTupleSampler(table *catalog.Table, opts ...Option) *TupleSampler {
	s := &TupleSampler{table: table}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

func NewFactory(opts ...Option) Factory {
	return func(table *catalog.Table) Sampler { return NewTupleSampler(table, opts...) }
}

// AcquireSampleTuples samples up to max_count rows.
// Sampled rows come back in the table's scan order.
func (s *TupleSampler) AcquireSampleTuples(max_count int) error {
	if max_count <= 0 {
		return fmt.Errorf("sample count must be positive, got %d", max_count)
	}
	if s.table == nil {
		return fmt.Errorf("no table to sample")
	}

	rows := s.table.VisibleRows(nil)

	reservoir := make([]int, 0, min(max_count, len(rows)))
	for i := range rows {
		if i < max_count {
			reservoir = append(reservoir, i)
			continue
		}
		if j := s.rand.Intn(i + 1); j < max_count {
			reservoir[j] = i
		}
	}
	sort.Ints(reservoir)

	s.sampled = make([]storage.Tuple, len(reservoir))
	for i, idx := range reservoir {
		s.sampled[i] = rows[idx].Copy()
	}
	return nil
}

func (s *TupleSampler) GetSampledTuples() []storage.Tuple {
	out := s.sampled
	s.sampled = nil
	return out
}
