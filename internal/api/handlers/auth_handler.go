package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aidmap/internal/api/middleware"
	"aidmap/internal/identity"
)

type AuthHandler struct {
	ids      *identity.Service
	profiles *ProfileHandler
	log      *zap.Logger
}

func NewAuthHandler(ids *identity.Service, profiles *ProfileHandler, log *zap.Logger) *AuthHandler {
	return &AuthHandler{ids: ids, profiles: profiles, log: log}
}

type RequestOTPRequest struct {
	Mobile string `json:"mobile" binding:"required"`
}

// RequestOTP handles POST /auth/otp
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challengeID, err := h.ids.VerifyPhone(c.Request.Context(), req.Mobile)
	if errors.Is(err, identity.ErrInvalidPhone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only UAE numbers are supported at the moment"})
		return
	}
	if err != nil {
		h.log.Error("issuing challenge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send verification code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"challenge_id": challengeID})
}

type VerifyOTPRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// VerifyOTP handles POST /auth/verify
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, token, err := h.ids.ConfirmChallenge(c.Request.Context(), req.ChallengeID, req.Code)
	switch {
	case errors.Is(err, identity.ErrChallengeNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification expired, request a new code"})
		return
	case errors.Is(err, identity.ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong code"})
		return
	case err != nil:
		h.log.Error("confirming challenge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"identity": ident,
	})
}

// SignOut handles POST /auth/signout. The identity's live profile sync is
// released along with the token — the subscription must not outlive the
// session that needed it. Invalidating an unknown token is not an error;
// the outcome is the same.
func (h *AuthHandler) SignOut(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing bearer token"})
		return
	}
	if ident := h.ids.Current(token); ident != nil {
		h.profiles.drop(ident.ID)
	}
	h.ids.SignOut(token)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}
