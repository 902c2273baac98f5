// Package memory provides an in-process RecordStore. It backs local
// development and every service-level test; the mongodb package provides
// the remote equivalent with the same semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"aidmap/internal/domain/entities"
	"aidmap/internal/store"
)

// RecordStore keeps records in two structures: a primary id → record map
// and a geohash-sorted view rebuilt lazily for range scans. Subscriber
// callbacks are fanned out after the write lock is released so a callback
// may call back into the store.
type RecordStore struct {
	mu          sync.RWMutex
	records     map[string]*entities.UserRecord
	sorted      []*entities.UserRecord
	dirty       bool
	subscribers map[string]map[int]store.ChangeFunc
	nextSubID   int
	lastStamp   time.Time
}

// compile-time interface check
var _ store.RecordStore = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:     make(map[string]*entities.UserRecord),
		subscribers: make(map[string]map[int]store.ChangeFunc),
	}
}

// Get returns a copy of the record for id, or store.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, id string) (*entities.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByGeohashRange returns copies of all records with start <= geohash <= end,
// ordered by geohash. The scan binary-searches the sorted view, rebuilding it
// first if writes have invalidated it.
func (s *RecordStore) GetByGeohashRange(ctx context.Context, start, end string) ([]*entities.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuildIndex()
	lo := sort.Search(len(s.sorted), func(i int) bool {
		return s.sorted[i].Geohash >= start
	})

	var out []*entities.UserRecord
	for i := lo; i < len(s.sorted) && s.sorted[i].Geohash <= end; i++ {
		out = append(out, s.sorted[i].Clone())
	}
	return out, nil
}

// rebuildIndex refreshes the geohash-sorted view. Caller must hold the
// write lock.
func (s *RecordStore) rebuildIndex() {
	if !s.dirty {
		return
	}
	s.sorted = s.sorted[:0]
	for _, rec := range s.records {
		s.sorted = append(s.sorted, rec)
	}
	sort.Slice(s.sorted, func(i, j int) bool {
		return s.sorted[i].Geohash < s.sorted[j].Geohash
	})
	s.dirty = false
}

// Merge applies the patch with upsert semantics and notifies subscribers.
func (s *RecordStore) Merge(ctx context.Context, id string, patch entities.RecordPatch) error {
	s.mu.Lock()

	rec, exists := s.records[id]
	if !exists {
		rec = &entities.UserRecord{ID: id}
		s.records[id] = rec
	}
	s.dirty = true

	if patch.Name != nil {
		rec.Name = *patch.Name
	}
	if patch.Mobile != nil {
		rec.Mobile = *patch.Mobile
	}
	if patch.Lat != nil {
		rec.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		rec.Lng = *patch.Lng
	}
	if patch.Geohash != nil {
		rec.Geohash = *patch.Geohash
	}
	if patch.Situation != nil {
		s2 := *patch.Situation
		rec.Situation = &s2
	}
	if patch.Offer != nil {
		o := *patch.Offer
		rec.Offer = &o
	}
	if patch.ResolvedAt != nil {
		t := *patch.ResolvedAt
		rec.ResolvedAt = &t
	}
	if patch.DeleteOffer {
		rec.Offer = nil
	}
	if patch.AddVolunteer != nil && !rec.HasVolunteer(patch.AddVolunteer.ID) {
		rec.Volunteers = append(rec.Volunteers, *patch.AddVolunteer)
	}
	rec.UpdatedAt = s.stamp()

	snapshot := rec.Clone()
	subs := s.subscribersFor(id)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.Clone())
	}
	return nil
}

// Delete removes the record and notifies subscribers with a nil record.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, exists := s.records[id]
	delete(s.records, id)
	s.dirty = true
	subs := s.subscribersFor(id)
	s.mu.Unlock()

	if exists {
		for _, fn := range subs {
			fn(nil)
		}
	}
	return nil
}

// Subscribe registers fn for changes to id. The cancel func is idempotent.
func (s *RecordStore) Subscribe(ctx context.Context, id string, fn store.ChangeFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscribers[id]; !exists {
		s.subscribers[id] = make(map[int]store.ChangeFunc)
	}
	s.nextSubID++
	subID := s.nextSubID
	s.subscribers[id][subID] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subscribers[id]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(s.subscribers, id)
			}
		}
	}, nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// stamp returns a strictly increasing timestamp. Wall-clock reads can
// repeat within a tick; per-write monotonicity is part of the contract.
func (s *RecordStore) stamp() time.Time {
	now := time.Now()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

// subscribersFor snapshots the callbacks registered for id. Caller must
// hold the lock.
func (s *RecordStore) subscribersFor(id string) []store.ChangeFunc {
	subs := s.subscribers[id]
	if len(subs) == 0 {
		return nil
	}
	out := make([]store.ChangeFunc, 0, len(subs))
	for _, fn := range subs {
		out = append(out, fn)
	}
	return out
}
