// Package session exposes the signed-in user to the sync engine.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/diarysync/internal/client/client"
)

// Provider supplies the bearer credential and the user it belongs to.
type Provider interface {
	Token(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}

// Claims accepts both the registered subject and the UserID claim issued
// by the API.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// TokenSession wraps a static bearer token. The token is not verified
// here; the server does that on every request.
type TokenSession struct {
	token  string
	userID string
}

// NewTokenSession parses token and extracts the user id. An empty token
// yields a session whose calls fail with client.ErrUnauthorized.
func NewTokenSession(token string) (*TokenSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &TokenSession{}, nil
	}

	userID, err := userIDFromToken(token)
	if err != nil {
		return nil, err
	}
	return &TokenSession{token: token, userID: userID}, nil
}

func userIDFromToken(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parsing session token: %w", err)
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("session token carries no user id")
}

func (s *TokenSession) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", client.ErrUnauthorized
	}
	return s.token, nil
}

func (s *TokenSession) UserID(context.Context) (string, error) {
	if s.userID == "" {
		return "", client.ErrUnauthorized
	}
	return s.userID, nil
}
