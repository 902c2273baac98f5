package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aidmap/internal/config"
	"aidmap/internal/domain/entities"
)

func viewportConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Map.DebounceWindow = 5 * time.Millisecond
	return cfg
}

func noopQuery(ctx context.Context, lat, lng, radiusMeters float64) []*entities.UserRecord {
	return nil
}

func TestViewportLifecycle(t *testing.T) {
	cfg := viewportConfig()
	c := NewViewportController(cfg, noopQuery, func([]*entities.UserRecord) {}, zap.NewNop())
	defer c.Close()

	assert.Equal(t, ViewportUninitialized, c.State())
	assert.True(t, c.NeedsFix())

	vp := c.Viewport()
	assert.Equal(t, cfg.Map.DefaultCenterLat, vp.Center.Lat)
	assert.Equal(t, cfg.Map.DefaultCenterLng, vp.Center.Lng)
	assert.Equal(t, cfg.Map.DefaultZoom, vp.Zoom)

	// A camera change before any fix does not leave Uninitialized.
	c.SetCamera(entities.Coordinates{Lat: 25.2, Lng: 55.3}, 12)
	assert.Equal(t, ViewportUninitialized, c.State())

	c.ApplyFix(25.3132839, 55.3719379)
	assert.Equal(t, ViewportLocated, c.State())
	assert.False(t, c.NeedsFix())
	assert.Equal(t, 25.3132839, c.Viewport().Center.Lat)

	c.SetCamera(entities.Coordinates{Lat: 25.2, Lng: 55.3}, 12)
	assert.Equal(t, ViewportTracking, c.State())

	// A later fix recenters but stays in Tracking.
	c.ApplyFix(24.4539, 54.3773)
	assert.Equal(t, ViewportTracking, c.State())
}

func TestViewportStaleFixWantsRefresh(t *testing.T) {
	cfg := viewportConfig()
	cfg.Map.LocationFixMaxAge = time.Millisecond
	c := NewViewportController(cfg, noopQuery, func([]*entities.UserRecord) {}, zap.NewNop())
	defer c.Close()

	c.ApplyFix(25.3132839, 55.3719379)
	assert.False(t, c.NeedsFix())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, c.NeedsFix())
}

func TestViewportDebouncesCameraBursts(t *testing.T) {
	var queries atomic.Int32
	query := func(ctx context.Context, lat, lng, r float64) []*entities.UserRecord {
		queries.Add(1)
		return nil
	}

	results := make(chan struct{}, 16)
	c := NewViewportController(viewportConfig(), query, func([]*entities.UserRecord) {
		results <- struct{}{}
	}, zap.NewNop())
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.SetCamera(entities.Coordinates{Lat: 25.2 + float64(i)*0.001, Lng: 55.3}, 12)
	}

	select {
	case <-results:
	case <-time.After(time.Second):
		t.Fatal("no query settled after the burst")
	}
	// Let any stragglers fire before counting.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), queries.Load(), "a burst must collapse into one query")
}

func TestViewportLastRequestWins(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	query := func(ctx context.Context, lat, lng, r float64) []*entities.UserRecord {
		call := calls.Add(1)
		if call == 1 {
			close(firstStarted)
			<-release
		}
		return []*entities.UserRecord{{ID: fmt.Sprintf("result-%d", call)}}
	}

	results := make(chan []*entities.UserRecord, 4)
	c := NewViewportController(viewportConfig(), query, func(records []*entities.UserRecord) {
		results <- records
	}, zap.NewNop())
	defer c.Close()

	c.Refresh()
	select {
	case <-firstStarted:
	case <-time.After(time.Second):
		t.Fatal("first query never started")
	}

	// Second query is issued while the first is still in flight and
	// resolves immediately.
	c.Refresh()

	select {
	case records := <-results:
		require.Len(t, records, 1)
		assert.Equal(t, "result-2", records[0].ID)
	case <-time.After(time.Second):
		t.Fatal("second query never delivered")
	}

	// Releasing the superseded query must not deliver its stale result.
	close(release)
	select {
	case records := <-results:
		t.Fatalf("stale result delivered: %v", records)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestViewportBoundsDeriveRadius(t *testing.T) {
	var gotRadius atomic.Value
	query := func(ctx context.Context, lat, lng, r float64) []*entities.UserRecord {
		gotRadius.Store(r)
		return nil
	}

	results := make(chan struct{}, 4)
	cfg := viewportConfig()
	c := NewViewportController(cfg, query, func([]*entities.UserRecord) {
		results <- struct{}{}
	}, zap.NewNop())
	defer c.Close()

	c.ApplyFix(25.3132839, 55.3719379)
	<-results

	// Bounds roughly 2km tall / 2km wide around the center.
	c.SetBounds(entities.MapBounds{
		North: 25.3223,
		South: 25.3043,
		East:  55.3819,
		West:  55.3619,
	})
	<-results

	radius, ok := gotRadius.Load().(float64)
	require.True(t, ok)
	assert.Greater(t, radius, 500.0)
	assert.Less(t, radius, 5000.0)
	assert.NotEqual(t, cfg.Map.DefaultRadiusMeters, radius)
}
