package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
)

const tokenTTL = 5 * time.Hour

// Resolver turns an opaque session credential into a stable user identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*entity.User, error)
}

type userRepo interface {
	Find(ctx context.Context, id string) (*entity.User, error)
	Save(ctx context.Context, user *entity.User) error
}

// Service signs and verifies the HS256 session tokens the webapp stores in
// its cookie, and confirms the user still exists in the store.
type Service struct {
	secretKey string
	users     userRepo
}

func NewService(secretKey string, users userRepo) *Service {
	return &Service{
		secretKey: secretKey,
		users:     users,
	}
}

// Issue signs a token for the user and persists the user record.
func (that *Service) Issue(ctx context.Context, user *entity.User) (string, error) {
	if err := that.users.Save(ctx, user); err != nil {
		return "", fmt.Errorf("failed to save user: %w", err)
	}

	claims := jwt.MapClaims{
		"id":       user.ID,
		"username": user.Name,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(that.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Resolve verifies the token and returns the user it identifies.
func (that *Service) Resolve(ctx context.Context, tokenString string) (*entity.User, error) {
	if tokenString == "" {
		return nil, apperror.ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(that.secretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, apperror.ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.ErrUnauthenticated
	}

	id, _ := claims["id"].(string)
	if id == "" {
		return nil, apperror.ErrUnauthenticated
	}

	user, err := that.users.Find(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}
