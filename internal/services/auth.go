package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
	"github.com/edulight/edulight-backend/internal/requestdata"
	"github.com/edulight/edulight-backend/internal/utils"
)

// AuthService issues and validates the access tokens the middleware
// resolves into an Actor. The pipeline itself never authenticates; it only
// consumes the resolved identity.
type AuthService interface {
	Login(ctx context.Context, login, password string) (string, error)
	ActorFromToken(ctx context.Context, tokenString string) (requestdata.Actor, error)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	GroupID string `json:"group_id,omitempty"`
}

type authService struct {
	log      *logger.Logger
	userRepo repos.UserRepo

	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(log *logger.Logger, userRepo repos.UserRepo) (AuthService, error) {
	slog := log.With("service", "AuthService")

	secret := utils.GetEnv("JWT_SECRET_KEY", "", slog)
	if secret == "" {
		return nil, fmt.Errorf("%w: missing JWT_SECRET_KEY", apperr.ErrConfiguration)
	}
	ttlMinutes := utils.GetEnvAsInt("JWT_ACCESS_TTL_MINUTES", 8*60, slog)

	return &authService{
		log:          slog,
		userRepo:     userRepo,
		jwtSecretKey: secret,
		accessTTL:    time.Duration(ttlMinutes) * time.Minute,
	}, nil
}

func (as *authService) Login(ctx context.Context, login, password string) (string, error) {
	user, err := as.userRepo.GetByLogin(ctx, nil, login)
	if err != nil {
		return "", fmt.Errorf("%w: invalid login or password", apperr.ErrAccess)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid login or password", apperr.ErrAccess)
	}

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: user.Role,
	}
	if user.GroupID != nil {
		claims.GroupID = user.GroupID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (as *authService) ActorFromToken(_ context.Context, tokenString string) (requestdata.Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return requestdata.Actor{}, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return requestdata.Actor{}, fmt.Errorf("invalid or expired token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return requestdata.Actor{}, fmt.Errorf("invalid user id in token: %w", err)
	}

	actor := requestdata.Actor{UserID: userID, Role: claims.Role}
	if claims.GroupID != "" {
		if gid, err := uuid.Parse(claims.GroupID); err == nil {
			actor.GroupID = &gid
		}
	}
	return actor, nil
}

// HashPassword is used by seeding and user-provisioning code paths.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
