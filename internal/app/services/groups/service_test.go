package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, user.User, user.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	svc := New(store, store, authzSvc, nil)

	admin, err := store.CreateUser(ctx, user.User{Username: "admin", Admin: true})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, user.User{Username: "bob"})
	require.NoError(t, err)
	return svc, store, admin, bob
}

func TestCreateAdminOnly(t *testing.T) {
	svc, _, admin, bob := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, bob.ID, CreateParams{Name: "qa"})
	assert.ErrorIs(t, err, authz.ErrAccessDenied)

	g, err := svc.Create(ctx, admin.ID, CreateParams{Name: "qa"})
	require.NoError(t, err)
	assert.Equal(t, "qa", g.Name)

	_, err = svc.Create(ctx, admin.ID, CreateParams{Name: "  "})
	assert.Error(t, err)
}

func TestMembership(t *testing.T) {
	svc, store, admin, bob := newService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, admin.ID, CreateParams{Name: "qa"})
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, admin.ID, g.ID, bob.ID))
	// Adding twice is a no-op.
	require.NoError(t, svc.AddMember(ctx, admin.ID, g.ID, bob.ID))

	got, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, got.MemberIDs)

	ids, err := store.ListGroupIDsForUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{g.ID}, ids)

	require.NoError(t, svc.RemoveMember(ctx, admin.ID, g.ID, bob.ID))
	got, err = svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, got.MemberIDs)

	err = svc.AddMember(ctx, admin.ID, g.ID, "no-such-user")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDeleteGroup(t *testing.T) {
	svc, store, admin, bob := newService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, admin.ID, CreateParams{Name: "qa"})
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, admin.ID, g.ID, bob.ID))

	assert.ErrorIs(t, svc.Delete(ctx, bob.ID, g.ID), authz.ErrAccessDenied)
	require.NoError(t, svc.Delete(ctx, admin.ID, g.ID))

	ids, err := store.ListGroupIDsForUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, ids, "membership rows go with the group")
}
