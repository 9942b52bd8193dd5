package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/edulight/edulight-backend/internal/apperr"
)

func TestRespondAppErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: lecture missing", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: wrong group", apperr.ErrAccess), http.StatusForbidden, "access_denied"},
		{fmt.Errorf("%w: no materials", apperr.ErrValidation), http.StatusBadRequest, "validation"},
		{fmt.Errorf("%w: not a pdf", apperr.ErrFormat), http.StatusUnprocessableEntity, "unprocessable"},
		{fmt.Errorf("%w: broken xref", apperr.ErrParse), http.StatusUnprocessableEntity, "unprocessable"},
		{fmt.Errorf("%w: missing key", apperr.ErrConfiguration), http.StatusServiceUnavailable, "misconfigured"},
		{fmt.Errorf("%w: provider down", apperr.ErrExternal), http.StatusBadGateway, "external_service"},
		{fmt.Errorf("something else"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			RespondAppError(c, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if env.Error.Code != tc.code {
				t.Errorf("code = %q, want %q", env.Error.Code, tc.code)
			}
			if env.Error.Message == "" {
				t.Error("message must carry the error text")
			}
		})
	}
}

func TestRespondErrorNilError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondError(c, http.StatusInternalServerError, "internal", nil)

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error.Message != "unknown error" {
		t.Errorf("message = %q", env.Error.Message)
	}
}
