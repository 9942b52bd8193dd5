package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/services"
)

type AuthHandler struct {
	log     *logger.Logger
	authSvc services.AuthService
}

func NewAuthHandler(log *logger.Logger, authSvc services.AuthService) *AuthHandler {
	return &AuthHandler{
		log:     log.With("handler", "AuthHandler"),
		authSvc: authSvc,
	}
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	token, err := h.authSvc.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"access_token": token})
}
