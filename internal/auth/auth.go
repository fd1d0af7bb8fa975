// Package auth issues and verifies bearer tokens and resolves them to users.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/realworld-apps/conduit/internal/model"
	"github.com/realworld-apps/conduit/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing token")
)

type Service struct {
	store    store.Store
	secret   []byte
	tokenTTL time.Duration
}

func NewService(st store.Store, secret string, tokenTTL time.Duration) *Service {
	return &Service{store: st, secret: []byte(secret), tokenTTL: tokenTTL}
}

// IssueToken signs a token carrying the user id, expiring after the
// service TTL.
func (s *Service) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and validates a token and returns the user id it
// carries. Any failure (bad signature, expired, malformed, wrong
// algorithm) reports ok=false; callers treat that as "no identity", not
// as an error.
func (s *Service) VerifyToken(tokenString string) (int64, bool) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return 0, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	id, ok := claims["id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(id), true
}

// Authenticate resolves an Authorization header value to a stored user.
// Accepts "Token <jwt>" and "Bearer <jwt>" schemes.
func (s *Service) Authenticate(ctx context.Context, header string) (model.User, error) {
	tokenString := stripScheme(header)
	if tokenString == "" {
		return model.User{}, ErrMissingToken
	}
	userID, ok := s.VerifyToken(tokenString)
	if !ok {
		return model.User{}, ErrInvalidToken
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, ErrInvalidToken
		}
		return model.User{}, err
	}
	return user, nil
}

func stripScheme(header string) string {
	header = strings.TrimSpace(header)
	for _, scheme := range []string{"Token ", "Bearer "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}
