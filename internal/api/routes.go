package api

import (
	"github.com/gin-gonic/gin"

	"aidmap/internal/api/handlers"
	"aidmap/internal/api/middleware"
	"aidmap/internal/identity"
)

type Router struct {
	authHandler    *handlers.AuthHandler
	mapHandler     *handlers.MapHandler
	profileHandler *handlers.ProfileHandler
	ids            *identity.Service
}

func NewRouter(
	authHandler *handlers.AuthHandler,
	mapHandler *handlers.MapHandler,
	profileHandler *handlers.ProfileHandler,
	ids *identity.Service,
) *Router {
	return &Router{
		authHandler:    authHandler,
		mapHandler:     mapHandler,
		profileHandler: profileHandler,
		ids:            ids,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Phone verification (no auth yet)
	auth := engine.Group("/auth")
	{
		auth.POST("/otp", r.authHandler.RequestOTP)
		auth.POST("/verify", r.authHandler.VerifyOTP)
		auth.POST("/signout", r.authHandler.SignOut)
	}

	// Discovery endpoints; anyone can browse the map
	engine.GET("/map/nearby", r.mapHandler.Nearby)
	engine.GET("/map/session", r.mapHandler.Session)
	engine.GET("/preferences", r.mapHandler.GetPreferences)
	engine.PUT("/preferences", r.mapHandler.SetPreferences)

	// Profile endpoints require a verified identity
	profile := engine.Group("/")
	profile.Use(middleware.Auth(r.ids))
	{
		profile.GET("/profile", r.profileHandler.GetProfile)
		profile.GET("/profile/live", r.profileHandler.Live)
		profile.POST("/profile/request-help", r.profileHandler.RequestHelp)
		profile.POST("/profile/offer-help", r.profileHandler.OfferHelp)
		profile.POST("/profile/stop-offering", r.profileHandler.StopOffering)
		profile.POST("/profile/resolve", r.profileHandler.Resolve)
		profile.DELETE("/profile", r.profileHandler.DeleteAccount)
		profile.POST("/records/:id/commit", r.profileHandler.CommitToHelp)
	}
}
