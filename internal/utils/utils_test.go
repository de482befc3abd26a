package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/eventflow/internal/model"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	u := &model.User{ID: "5b0f3e1c-7a44-4d8e-9d0a-2f1e6c3b9a10", Email: "a@example.com",
		Roles: []model.Role{model.RoleUser, model.RoleOrganizer}}

	tok, err := NewAccessToken("secret", u, 15)
	require.NoError(t, err)

	actor, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, actor.UserID)
	require.Equal(t, u.Email, actor.Email)
	require.Equal(t, u.Roles, actor.Roles)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	u := &model.User{ID: "u-1", Roles: []model.Role{model.RoleAdmin}}

	tok, err := NewAccessToken("secret", u, 15)
	require.NoError(t, err)
	_, err = ParseAccessToken("other-secret", tok.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewAccessToken("secret", u, -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", expired.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseAccessToken("secret", "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken_HashIsStable(t *testing.T) {
	rt, err := NewRefreshToken(7)
	require.NoError(t, err)
	require.Len(t, rt.Raw, 96)
	require.Equal(t, HashRefreshRaw(rt.Raw), HashRefreshRaw(rt.Raw))
	require.Len(t, HashRefreshRaw(rt.Raw), 64)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, VerifyPassword(h, "s3cret!"))
	require.False(t, VerifyPassword(h, "wrong"))
}
