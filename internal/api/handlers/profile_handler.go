package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aidmap/internal/api/middleware"
	"aidmap/internal/domain/entities"
	"aidmap/internal/identity"
	"aidmap/internal/services"
	"aidmap/internal/store"
)

// ProfileHandler exposes the signed-in identity's own record. It keeps one
// live ProfileSync per identity, created on first use and torn down on
// account deletion or identity sign-out.
type ProfileHandler struct {
	store store.RecordStore
	ids   *identity.Service
	log   *zap.Logger

	mu    sync.Mutex
	syncs map[string]*services.ProfileSync
}

func NewProfileHandler(recordStore store.RecordStore, ids *identity.Service, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		store: recordStore,
		ids:   ids,
		log:   log,
		syncs: make(map[string]*services.ProfileSync),
	}
}

// sync returns the identity's ProfileSync, starting its subscription on
// first use. The subscription outlives the request that created it, so it
// runs under the background context rather than the request's.
func (h *ProfileHandler) sync(ident *entities.Identity) (*services.ProfileSync, error) {
	h.mu.Lock()
	ps, exists := h.syncs[ident.ID]
	if !exists {
		ps = services.NewProfileSync(h.store, h.ids, ident, h.log)
		h.syncs[ident.ID] = ps
	}
	h.mu.Unlock()

	if err := ps.Start(context.Background()); err != nil {
		return nil, err
	}
	return ps, nil
}

// drop stops and forgets an identity's ProfileSync.
func (h *ProfileHandler) drop(id string) {
	h.mu.Lock()
	ps, exists := h.syncs[id]
	delete(h.syncs, id)
	h.mu.Unlock()

	if exists {
		ps.Stop()
	}
}

type RequestHelpRequest struct {
	Name      string  `json:"name" binding:"required"`
	Situation string  `json:"situation" binding:"required"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// RequestHelp handles POST /profile/request-help
func (h *ProfileHandler) RequestHelp(c *gin.Context) {
	var req RequestHelpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	ps.SetLocation(req.Lat, req.Lng)
	if err := ps.RequestHelp(c.Request.Context(), req.Name, req.Situation); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "your request has been sent"})
}

type OfferHelpRequest struct {
	Offer string `json:"offer" binding:"required"`
}

// OfferHelp handles POST /profile/offer-help
func (h *ProfileHandler) OfferHelp(c *gin.Context) {
	var req OfferHelpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ps.OfferHelp(c.Request.Context(), req.Offer); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "your help offer has been broadcasted"})
}

// StopOffering handles POST /profile/stop-offering
func (h *ProfileHandler) StopOffering(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ps.StopOffering(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "you are no longer offering help"})
}

// Resolve handles POST /profile/resolve
func (h *ProfileHandler) Resolve(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ps.Resolve(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "your request has been closed"})
}

// CommitToHelp handles POST /records/:id/commit
func (h *ProfileHandler) CommitToHelp(c *gin.Context) {
	targetID := c.Param("id")

	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ps.CommitToHelp(c.Request.Context(), targetID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "thank you for stepping up"})
}

// DeleteAccount handles DELETE /profile
func (h *ProfileHandler) DeleteAccount(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	err = ps.DeleteAccount(c.Request.Context())
	h.drop(ident.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "your account has been deleted"})
}

// GetProfile handles GET /profile — the confirmed record, or 404 before
// the first write.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	ps, err := h.sync(ident)
	if err != nil {
		h.fail(c, err)
		return
	}

	rec := ps.Confirmed()
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Live handles GET /profile/live — a websocket pushing the identity's own
// record after every change, deletion included (pushed as null). The
// subscription is released when the connection drops.
func (h *ProfileHandler) Live(c *gin.Context) {
	ident := middleware.GetIdentity(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan *entities.UserRecord, 8)
	cancel, err := h.store.Subscribe(c.Request.Context(), ident.ID, func(rec *entities.UserRecord) {
		select {
		case events <- rec:
		default:
			// Slow consumer: skip intermediate states, the next event
			// carries the full document anyway.
		}
	})
	if err != nil {
		h.log.Error("subscribing for live profile", zap.String("id", ident.ID), zap.Error(err))
		return
	}
	defer cancel()

	// Push the current state first so the client does not wait for the
	// next write.
	if rec, err := h.store.Get(c.Request.Context(), ident.ID); err == nil {
		events <- rec
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec := <-events:
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// fail maps service errors onto HTTP statuses following the error
// taxonomy: validation and pending-resubmission are client errors with
// user-facing messages, everything else is a degraded write.
func (h *ProfileHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNameTooShort),
		errors.Is(err, services.ErrDescriptionTooShort):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrOperationPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.log.Error("profile operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong, please try again"})
	}
}
