package services

import (
	"context"
	"errors"
	"testing"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
	"github.com/google/uuid"
)

func newAuthFixture(t *testing.T) (AuthService, testRepos) {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	gdb := newTestDB(t)
	r := newTestRepos(gdb)
	svc, err := NewAuthService(logger.NewNop(), r.user)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc, r
}

func seedUser(t *testing.T, r testRepos, login, password, role string, groupID *uuid.UUID) *types.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &types.User{
		ID:           uuid.New(),
		Login:        login,
		PasswordHash: hash,
		FullName:     "Test User",
		Role:         role,
		GroupID:      groupID,
	}
	if _, err := r.user.Create(context.Background(), nil, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestLoginAndTokenRoundTrip(t *testing.T) {
	svc, r := newAuthFixture(t)
	ctx := context.Background()

	gid := uuid.New()
	user := seedUser(t, r, "anna", "s3cret", types.RoleStudent, &gid)

	token, err := svc.Login(ctx, "anna", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := svc.ActorFromToken(ctx, token)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if actor.UserID != user.ID || actor.Role != types.RoleStudent {
		t.Fatalf("actor = %+v, want user %s role student", actor, user.ID)
	}
	if actor.GroupID == nil || *actor.GroupID != gid {
		t.Fatalf("group claim lost: %+v", actor.GroupID)
	}
}

func TestLoginTeacherHasNoGroupClaim(t *testing.T) {
	svc, r := newAuthFixture(t)
	ctx := context.Background()

	seedUser(t, r, "teacher", "s3cret", types.RoleTeacher, nil)

	token, err := svc.Login(ctx, "teacher", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := svc.ActorFromToken(ctx, token)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if actor.GroupID != nil {
		t.Fatalf("unexpected group claim: %v", actor.GroupID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, r := newAuthFixture(t)
	seedUser(t, r, "anna", "s3cret", types.RoleStudent, nil)

	_, err := svc.Login(context.Background(), "anna", "wrong")
	if !errors.Is(err, apperr.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newAuthFixture(t)

	// Unknown logins and wrong passwords are indistinguishable to the caller.
	_, err := svc.Login(context.Background(), "ghost", "s3cret")
	if !errors.Is(err, apperr.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
}

func TestActorFromTamperedToken(t *testing.T) {
	svc, r := newAuthFixture(t)
	seedUser(t, r, "anna", "s3cret", types.RoleStudent, nil)

	token, err := svc.Login(context.Background(), "anna", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ActorFromToken(context.Background(), token+"x"); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestActorFromExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "-1")
	gdb := newTestDB(t)
	r := newTestRepos(gdb)
	svc, err := NewAuthService(logger.NewNop(), r.user)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	seedUser(t, r, "anna", "s3cret", types.RoleStudent, nil)

	token, err := svc.Login(context.Background(), "anna", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ActorFromToken(context.Background(), token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	gdb := newTestDB(t)
	r := newTestRepos(gdb)

	_, err := NewAuthService(logger.NewNop(), r.user)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
