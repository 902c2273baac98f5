package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"aidmap/internal/config"
	"aidmap/internal/domain/entities"
	"aidmap/internal/geo"
	"aidmap/pkg/debounce"
)

// ViewportState is the camera lifecycle: a fresh controller sits on the
// fallback center, a device location fix moves it to Located, and the first
// user-driven camera change moves it to Tracking. There is no terminal
// state; the controller lives as long as its map view.
type ViewportState int

const (
	ViewportUninitialized ViewportState = iota
	ViewportLocated
	ViewportTracking
)

func (s ViewportState) String() string {
	switch s {
	case ViewportLocated:
		return "located"
	case ViewportTracking:
		return "tracking"
	default:
		return "uninitialized"
	}
}

// QueryFunc runs a proximity query. ProximityIndex.Query satisfies it.
type QueryFunc func(ctx context.Context, lat, lng, radiusMeters float64) []*entities.UserRecord

// ResultFunc receives the records of the most recent settled query.
type ResultFunc func(records []*entities.UserRecord)

// ViewportController owns map camera state and the re-query trigger.
// Camera changes are coalesced through a debouncer so rapid pan/zoom bursts
// issue one query, and query results are applied last-request-wins: a
// result whose query was superseded before it resolved is discarded.
type ViewportController struct {
	query    QueryFunc
	listener ResultFunc
	log      *zap.Logger

	mu        sync.Mutex
	state     ViewportState
	viewport  entities.Viewport
	fixAt     time.Time
	fixMaxAge time.Duration

	defaultRadius float64
	deb           *debounce.Debouncer
	generation    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewViewportController(cfg *config.Config, query QueryFunc, listener ResultFunc, log *zap.Logger) *ViewportController {
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewportController{
		query:    query,
		listener: listener,
		log:      log,
		state:    ViewportUninitialized,
		viewport: entities.Viewport{
			Center: entities.Coordinates{
				Lat: cfg.Map.DefaultCenterLat,
				Lng: cfg.Map.DefaultCenterLng,
			},
			Zoom: cfg.Map.DefaultZoom,
		},
		fixMaxAge:     cfg.Map.LocationFixMaxAge,
		defaultRadius: cfg.Map.DefaultRadiusMeters,
		deb:           debounce.New(cfg.Map.DebounceWindow),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// State returns the current lifecycle state.
func (c *ViewportController) State() ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Viewport returns a snapshot of the camera.
func (c *ViewportController) Viewport() entities.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// NeedsFix reports whether the controller wants a device location fix:
// either it never had one or the last one is older than the cache window.
func (c *ViewportController) NeedsFix() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixAt.IsZero() || time.Since(c.fixAt) > c.fixMaxAge
}

// ApplyFix recenters on a one-shot device location fix. From
// Uninitialized the controller transitions to Located; a later fix in
// Tracking only recenters.
func (c *ViewportController) ApplyFix(lat, lng float64) {
	c.mu.Lock()
	c.viewport.Center = entities.Coordinates{Lat: lat, Lng: lng}
	c.fixAt = time.Now()
	if c.state == ViewportUninitialized {
		c.state = ViewportLocated
	}
	c.mu.Unlock()

	c.Refresh()
}

// SetCamera records a user-driven center/zoom change.
func (c *ViewportController) SetCamera(center entities.Coordinates, zoom int) {
	c.mu.Lock()
	c.viewport.Center = center
	c.viewport.Zoom = zoom
	if c.state != ViewportUninitialized {
		c.state = ViewportTracking
	}
	c.mu.Unlock()

	c.Refresh()
}

// SetBounds records the visible rectangle reported by the map widget. The
// query radius derives from these bounds once the debounce window settles.
func (c *ViewportController) SetBounds(b entities.MapBounds) {
	c.mu.Lock()
	bounds := b
	c.viewport.Bounds = &bounds
	if c.state != ViewportUninitialized {
		c.state = ViewportTracking
	}
	c.mu.Unlock()

	c.Refresh()
}

// Refresh schedules a re-query after the quiescence window. Bursts of
// camera events collapse into one query; only the newest in-flight query
// may deliver results.
func (c *ViewportController) Refresh() {
	c.deb.Trigger(c.runQuery)
}

func (c *ViewportController) runQuery() {
	c.mu.Lock()
	center := c.viewport.Center
	radius := c.defaultRadius
	if c.viewport.Bounds != nil {
		ne := c.viewport.Bounds.NorthEast()
		radius = geo.Distance(center.Lat, center.Lng, ne.Lat, ne.Lng)
	}
	c.mu.Unlock()

	gen := c.generation.Add(1)
	go func() {
		records := c.query(c.ctx, center.Lat, center.Lng, radius)
		if c.generation.Load() != gen {
			// Superseded while in flight; discard, never apply.
			c.log.Debug("discarding stale query result",
				zap.Uint64("generation", gen))
			return
		}
		c.listener(records)
	}()
}

// Close cancels outstanding queries and stops the debouncer.
func (c *ViewportController) Close() {
	c.deb.Stop()
	c.cancel()
}
