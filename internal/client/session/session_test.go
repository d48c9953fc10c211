package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/diarysync/internal/client/client"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestNewTokenSession_UserIDClaim(t *testing.T) {
	tok := signed(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u-42",
	})

	s, err := NewTokenSession(tok)
	require.NoError(t, err)

	id, err := s.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-42", id)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestNewTokenSession_SubjectClaim(t *testing.T) {
	s, err := NewTokenSession(signed(t, jwt.RegisteredClaims{Subject: "u-7"}))
	require.NoError(t, err)

	id, err := s.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-7", id)
}

func TestNewTokenSession_Errors(t *testing.T) {
	_, err := NewTokenSession("not-a-jwt")
	assert.Error(t, err)

	_, err = NewTokenSession(signed(t, jwt.RegisteredClaims{}))
	assert.Error(t, err)
}

func TestEmptyToken_IsUnauthorized(t *testing.T) {
	s, err := NewTokenSession("  ")
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	_, err = s.UserID(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}
