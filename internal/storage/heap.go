package storage

import (
	"sync"

	"github.com/tobsdb/samplestore/pkg"
	sorted "github.com/tobshub/go-sortedmap"
)

// Heap holds the committed rows of one table, ordered by row id.
type Heap struct {
	locker  sync.RWMutex
	Map     *sorted.SortedMap[int64, *Record]
	next_id int64
}

func recordComparisonFunc(a, b *Record) bool { return a.ID < b.ID }

func NewHeap() *Heap {
	return &Heap{Map: sorted.New[int64, *Record](0, recordComparisonFunc)}
}

func (h *Heap) GetLocker() *sync.RWMutex { return &h.locker }

// Append stores tuples under fresh ids and returns the ids in the same order.
// The heap takes ownership of the tuples.
func (h *Heap) Append(tuples ...Tuple) []int64 {
	h.locker.Lock()
	defer h.locker.Unlock()

	ids := make([]int64, 0, len(tuples))
	for _, tuple := range tuples {
		h.next_id++
		rec := &Record{ID: h.next_id, Values: tuple}
		h.Map.Insert(rec.ID, rec)
		ids = append(ids, rec.ID)
	}
	return ids
}

func (h *Heap) Get(id int64) (Tuple, bool) {
	return pkg.RLockLookup(h, func() (Tuple, bool) {
		rec, ok := h.Map.Get(id)
		if !ok {
			return nil, false
		}
		return rec.Values, true
	})
}

// Snapshot returns the rows present at call time, in id order.
// Records are shared with the heap and must be treated as read-only.
func (h *Heap) Snapshot() []*Record {
	h.locker.RLock()
	defer h.locker.RUnlock()

	records := make([]*Record, 0, h.Map.Len())
	iterCh, err := h.Map.IterCh()
	if err != nil {
		// empty map
		return records
	}
	for rec := range iterCh.Records() {
		records = append(records, rec.Val)
	}
	return records
}

func (h *Heap) Len() int { return pkg.RLockGet(h, h.Map.Len) }

// LastID is the highest id handed out so far.
func (h *Heap) LastID() int64 {
	return pkg.RLockGet(h, func() int64 { return h.next_id })
}

// Restore loads previously persisted records, keeping their ids.
func (h *Heap) Restore(records []*Record) {
	h.locker.Lock()
	defer h.locker.Unlock()
	for _, rec := range records {
		if !h.Map.Insert(rec.ID, rec) {
			h.Map.Replace(rec.ID, rec)
		}
		if rec.ID > h.next_id {
			h.next_id = rec.ID
		}
	}
}
