package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"aidmap/internal/domain/entities"
	"aidmap/internal/geo"
	"aidmap/internal/store"
)

// ProximityIndex answers "which user records are near this point" by
// translating a search disk into geohash cover ranges and scanning each
// range against the record store.
type ProximityIndex struct {
	store store.RecordStore
	log   *zap.Logger
}

func NewProximityIndex(recordStore store.RecordStore, log *zap.Logger) *ProximityIndex {
	return &ProximityIndex{
		store: recordStore,
		log:   log,
	}
}

// Query returns all records whose geohash falls within the cover ranges of
// the disk around (lat, lng), deduplicated by id. The result may include a
// thin margin of records just outside the strict radius — cover ranges
// over-cover, and no exact-distance trim is applied.
//
// The range scans run concurrently and are merged only after every scan has
// settled. If any scan fails the whole query degrades to an empty result:
// discovery must never take the map down, it just shows nothing.
func (p *ProximityIndex) Query(ctx context.Context, lat, lng, radiusMeters float64) []*entities.UserRecord {
	bounds := geo.QueryBounds(lat, lng, radiusMeters)

	type scan struct {
		records []*entities.UserRecord
		err     error
	}
	scans := make([]scan, len(bounds))

	var wg sync.WaitGroup
	for i, b := range bounds {
		wg.Add(1)
		go func(i int, b geo.Bounds) {
			defer wg.Done()
			records, err := p.store.GetByGeohashRange(ctx, b.Start, b.End)
			scans[i] = scan{records: records, err: err}
		}(i, b)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var merged []*entities.UserRecord
	for _, sc := range scans {
		if sc.err != nil {
			p.log.Error("proximity range scan failed",
				zap.Float64("lat", lat),
				zap.Float64("lng", lng),
				zap.Float64("radius_m", radiusMeters),
				zap.Error(sc.err))
			return nil
		}
		for _, rec := range sc.records {
			if rec == nil || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			merged = append(merged, rec)
		}
	}
	return merged
}
