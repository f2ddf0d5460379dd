package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
	"github.com/kassandra-hq/kassandra/internal/auth"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	tokens := auth.NewManager("test-secret", time.Hour, "kassandra")
	sessions := auth.NewSessionCache(store, nil, nil)
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	return New(store, sessions, tokens, authzSvc, nil), store
}

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	assert.True(t, first.Admin, "bootstrap user becomes admin")

	second, err := svc.Register(ctx, RegisterParams{Username: "bob", Password: "correcthorse"})
	require.NoError(t, err)
	assert.False(t, second.Admin)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{Username: "", Password: "correcthorse"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterParams{Username: "alice", Password: "short"})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestLoginAndLogout(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, "alice", "correcthorse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, u.ID, result.User.ID)

	sess, err := store.GetSessionByTokenHash(ctx, auth.HashToken(result.Token))
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)

	require.NoError(t, svc.Logout(ctx, result.Token))
	_, err = store.GetSessionByTokenHash(ctx, auth.HashToken(result.Token))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Logging out twice is harmless.
	assert.NoError(t, svc.Logout(ctx, result.Token))
}

func TestLoginBadCredentials(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "correcthorse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials, "unknown users get the same error as bad passwords")
}

func TestSetAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, RegisterParams{Username: "root", Password: "correcthorse"})
	require.NoError(t, err)
	u, err := svc.Register(ctx, RegisterParams{Username: "bob", Password: "correcthorse"})
	require.NoError(t, err)

	_, err = svc.SetAdmin(ctx, u.ID, u.ID, true)
	assert.ErrorIs(t, err, authz.ErrAccessDenied, "non-admins cannot change admin flags")

	promoted, err := svc.SetAdmin(ctx, admin.ID, u.ID, true)
	require.NoError(t, err)
	assert.True(t, promoted.Admin)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterParams{Username: "alice", Password: "correcthorse"})
	require.NoError(t, err)

	name := "Alice L."
	updated, err := svc.UpdateProfile(ctx, u.ID, UpdateProfileParams{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", updated.DisplayName)

	newPassword := "battery-staple"
	_, err = svc.UpdateProfile(ctx, u.ID, UpdateProfileParams{Password: &newPassword})
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice", "battery-staple")
	assert.NoError(t, err)
}
