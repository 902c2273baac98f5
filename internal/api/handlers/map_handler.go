package handlers

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aidmap/internal/api/middleware"
	"aidmap/internal/config"
	"aidmap/internal/domain/entities"
	"aidmap/internal/prefs"
	"aidmap/internal/services"
)

// MapHandler serves the discovery surface. Visibility toggles are scoped
// per session: a bearer session that sets its own toggles sees those, and
// nobody else does. The file-backed store only holds the shared defaults
// anonymous clients fall back to.
type MapHandler struct {
	proximity *services.ProximityIndex
	prefs     *prefs.Store
	cfg       *config.Config
	log       *zap.Logger

	mu      sync.Mutex
	session map[string]entities.Preferences // session token → toggles
}

func NewMapHandler(proximity *services.ProximityIndex, prefStore *prefs.Store, cfg *config.Config, log *zap.Logger) *MapHandler {
	return &MapHandler{
		proximity: proximity,
		prefs:     prefStore,
		cfg:       cfg,
		log:       log,
		session:   make(map[string]entities.Preferences),
	}
}

// prefsFor resolves the visibility toggles for a request: the session's
// own toggles when it has set any, the shared defaults otherwise.
func (h *MapHandler) prefsFor(c *gin.Context) entities.Preferences {
	if token := middleware.BearerToken(c); token != "" {
		h.mu.Lock()
		p, ok := h.session[token]
		h.mu.Unlock()
		if ok {
			return p
		}
	}
	return h.prefs.Get()
}

// Nearby handles GET /map/nearby — a one-shot discovery query. Visibility
// toggles default to the persisted preferences and may be overridden per
// request.
func (h *MapHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	radius := h.cfg.Map.DefaultRadiusMeters
	if raw := c.Query("radius"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r > 0 {
			radius = r
		}
	}

	visibility := h.prefsFor(c)
	if raw := c.Query("show_needy"); raw != "" {
		visibility.ShowNeedy = raw == "true"
	}
	if raw := c.Query("show_volunteers"); raw != "" {
		visibility.ShowVolunteers = raw == "true"
	}

	records := h.proximity.Query(c.Request.Context(), lat, lng, radius)
	cl := services.Classify(records, visibility)

	c.JSON(http.StatusOK, gin.H{
		"needy":           cl.Needy,
		"volunteers":      cl.Volunteers,
		"needy_count":     len(cl.Needy),
		"volunteer_count": len(cl.Volunteers),
	})
}

// GetPreferences handles GET /preferences
func (h *MapHandler) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.prefsFor(c))
}

// SetPreferences handles PUT /preferences. A bearer session updates only
// its own toggles; an anonymous request rewrites the shared defaults.
func (h *MapHandler) SetPreferences(c *gin.Context) {
	var p entities.Preferences
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if token := middleware.BearerToken(c); token != "" {
		h.mu.Lock()
		h.session[token] = p
		h.mu.Unlock()
		c.JSON(http.StatusOK, p)
		return
	}

	if err := h.prefs.Set(p); err != nil {
		h.log.Error("persisting preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save preferences"})
		return
	}
	c.JSON(http.StatusOK, p)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sessionMessage is a client → server map session event.
type sessionMessage struct {
	Type  string  `json:"type"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Zoom  int     `json:"zoom"`
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`

	// Visibility toggles, "prefs" events only. Pointers so an event may
	// flip one toggle without resetting the other.
	ShowNeedy      *bool `json:"show_needy,omitempty"`
	ShowVolunteers *bool `json:"show_volunteers,omitempty"`
}

// markersMessage is the server → client marker-set push.
type markersMessage struct {
	Type           string                 `json:"type"`
	Needy          []*entities.UserRecord `json:"needy"`
	Volunteers     []*entities.UserRecord `json:"volunteers"`
	NeedyCount     int                    `json:"needy_count"`
	VolunteerCount int                    `json:"volunteer_count"`
}

// Session handles GET /map/session — a websocket carrying the live map
// loop: the client streams camera events, the server debounces them into
// proximity queries and pushes back classified marker sets. One viewport
// controller and one set of visibility toggles live per connection and die
// with it; toggles seed from the request's scope and change via "prefs"
// events without touching any other session.
func (h *MapHandler) Session(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(v); err != nil {
			h.log.Debug("map session write failed", zap.Error(err))
		}
	}

	var prefMu sync.Mutex
	visibility := h.prefsFor(c)
	getVisibility := func() entities.Preferences {
		prefMu.Lock()
		defer prefMu.Unlock()
		return visibility
	}

	ctrl := services.NewViewportController(h.cfg, h.proximity.Query, func(records []*entities.UserRecord) {
		cl := services.Classify(records, getVisibility())
		send(markersMessage{
			Type:           "markers",
			Needy:          cl.Needy,
			Volunteers:     cl.Volunteers,
			NeedyCount:     len(cl.Needy),
			VolunteerCount: len(cl.Volunteers),
		})
	}, h.log)
	defer ctrl.Close()

	if ctrl.NeedsFix() {
		send(gin.H{"type": "need_fix"})
	}
	ctrl.Refresh()

	for {
		var msg sessionMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "fix":
			ctrl.ApplyFix(msg.Lat, msg.Lng)
		case "camera":
			ctrl.SetCamera(entities.Coordinates{Lat: msg.Lat, Lng: msg.Lng}, msg.Zoom)
		case "bounds":
			ctrl.SetBounds(entities.MapBounds{
				North: msg.North,
				South: msg.South,
				East:  msg.East,
				West:  msg.West,
			})
		case "prefs":
			prefMu.Lock()
			if msg.ShowNeedy != nil {
				visibility.ShowNeedy = *msg.ShowNeedy
			}
			if msg.ShowVolunteers != nil {
				visibility.ShowVolunteers = *msg.ShowVolunteers
			}
			prefMu.Unlock()
			ctrl.Refresh()
		case "refresh":
			ctrl.Refresh()
		}
	}
}
