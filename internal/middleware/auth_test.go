package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/requestdata"
	"github.com/edulight/edulight-backend/internal/types"
)

type stubAuthService struct {
	actors map[string]requestdata.Actor
}

func (s *stubAuthService) Login(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubAuthService) ActorFromToken(_ context.Context, token string) (requestdata.Actor, error) {
	actor, ok := s.actors[token]
	if !ok {
		return requestdata.Actor{}, errors.New("invalid token")
	}
	return actor, nil
}

func newAuthTestRouter(auth *stubAuthService) (*gin.Engine, *requestdata.Actor) {
	gin.SetMode(gin.TestMode)
	var seen requestdata.Actor
	r := gin.New()
	mw := NewAuthMiddleware(logger.NewNop(), auth)
	r.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		actor, _ := requestdata.GetActor(c.Request.Context())
		seen = actor
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestRequireAuthBearerHeader(t *testing.T) {
	userID := uuid.New()
	auth := &stubAuthService{actors: map[string]requestdata.Actor{
		"valid": {UserID: userID, Role: types.RoleStudent},
	}}
	router, seen := newAuthTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen.UserID != userID {
		t.Fatalf("actor not propagated: %+v", seen)
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	userID := uuid.New()
	auth := &stubAuthService{actors: map[string]requestdata.Actor{
		"valid": {UserID: userID, Role: types.RoleTeacher},
	}}
	router, seen := newAuthTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected?token=valid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen.Role != types.RoleTeacher {
		t.Fatalf("actor not propagated: %+v", seen)
	}
}

func TestRequireAuthMissingToken(t *testing.T) {
	router, _ := newAuthTestRouter(&stubAuthService{actors: map[string]requestdata.Actor{}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	router, _ := newAuthTestRouter(&stubAuthService{actors: map[string]requestdata.Actor{}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthNilUserRejected(t *testing.T) {
	auth := &stubAuthService{actors: map[string]requestdata.Actor{
		"anon": {UserID: uuid.Nil, Role: types.RoleStudent},
	}}
	router, _ := newAuthTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected?token=anon", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
