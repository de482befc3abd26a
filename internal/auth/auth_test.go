package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/eventflow/internal/auth"
	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository/memstore"
	"github.com/iliyamo/eventflow/internal/utils"
)

const secret = "test-secret"

func newService() *auth.Service {
	return auth.New(memstore.New(), auth.Settings{
		JWTSecret:      secret,
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     bcrypt.MinCost,
	}, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	s, err := svc.Register(ctx, "Alice", " Alice@Example.com ", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", s.User.Email)
	require.Equal(t, []model.Role{model.RoleUser}, s.User.Roles)

	actor, err := utils.ParseAccessToken(secret, s.Access.Token)
	require.NoError(t, err)
	require.Equal(t, s.User.ID, actor.UserID)

	_, err = svc.Register(ctx, "Other", "alice@example.com", "hunter22")
	require.ErrorIs(t, err, model.ErrEmailTaken)

	_, err = svc.Login(ctx, "ALICE@example.com", "hunter22")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ghost@example.com", "hunter22")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	svc := newService()
	for _, tc := range []struct{ name, email, pass string }{
		{"", "a@example.com", "secret1"},
		{"A", "not-an-email", "secret1"},
		{"A", "a@example.com", "short"},
	} {
		_, err := svc.Register(context.Background(), tc.name, tc.email, tc.pass)
		require.ErrorIs(t, err, model.ErrInvalidInput, tc)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	s, err := svc.Register(ctx, "Bob", "bob@example.com", "hunter22")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, s.Refresh.Raw)
	require.NoError(t, err)
	require.NotEqual(t, s.Refresh.Raw, next.Refresh.Raw)

	// the old token was spent
	_, err = svc.Refresh(ctx, s.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	require.NoError(t, svc.Logout(ctx, next.Refresh.Raw))
	_, err = svc.Refresh(ctx, next.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	require.NoError(t, svc.Logout(ctx, "never-issued"))
}

func TestLogoutAllAndMe(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	s1, err := svc.Register(ctx, "Carol", "carol@example.com", "hunter22")
	require.NoError(t, err)
	s2, err := svc.Login(ctx, "carol@example.com", "hunter22")
	require.NoError(t, err)

	actor := model.Actor{UserID: s1.User.ID}
	me, err := svc.Me(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, "Carol", me.Name)

	require.NoError(t, svc.LogoutAll(ctx, actor))
	for _, raw := range []string{s1.Refresh.Raw, s2.Refresh.Raw} {
		_, err := svc.Refresh(ctx, raw)
		require.ErrorIs(t, err, model.ErrInvalidCredentials)
	}

	_, err = svc.Me(ctx, model.Actor{})
	require.ErrorIs(t, err, model.ErrUnauthenticated)
}
