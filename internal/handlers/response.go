package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulight/edulight-backend/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the error taxonomy onto HTTP statuses so every
// handler surfaces failures the same way.
func RespondAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrAccess):
		RespondError(c, http.StatusForbidden, "access_denied", err)
	case errors.Is(err, apperr.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation", err)
	case errors.Is(err, apperr.ErrFormat), errors.Is(err, apperr.ErrParse):
		RespondError(c, http.StatusUnprocessableEntity, "unprocessable", err)
	case errors.Is(err, apperr.ErrConfiguration):
		RespondError(c, http.StatusServiceUnavailable, "misconfigured", err)
	case errors.Is(err, apperr.ErrExternal):
		RespondError(c, http.StatusBadGateway, "external_service", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
