package activitylog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	return New(store, authzSvc, nil), store
}

func TestRecordAndSubscribe(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	ch, cancel := svc.Subscribe(4)
	defer cancel()

	svc.Record(ctx, activity.Event{ActorID: "u1", Action: "create", EntityKind: "product", EntityID: "p1"})

	select {
	case e := <-ch:
		assert.Equal(t, "create", e.Action)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, activity.OriginREST, e.Origin, "origin defaults to rest")
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	// Recording after cancel must not block or panic.
	svc.Record(ctx, activity.Event{ActorID: "u1", Action: "update", EntityKind: "product", EntityID: "p1"})
}

func TestRecordOriginFromContext(t *testing.T) {
	svc, store := newService(t)
	ctx := activity.WithOrigin(context.Background(), activity.OriginAssistant)

	svc.Record(ctx, activity.Event{ActorID: "u1", Action: "create", EntityKind: "task", EntityID: "t1"})

	events, err := store.ListEvents(context.Background(), storage.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, activity.OriginAssistant, events[0].Origin)
}

func TestListScopedToAccess(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	admin, err := store.CreateUser(ctx, user.User{Username: "admin", Admin: true})
	require.NoError(t, err)
	alice, err := store.CreateUser(ctx, user.User{Username: "alice"})
	require.NoError(t, err)

	mine, err := store.CreateProduct(ctx, product.Product{Name: "Atlas", OwnerID: alice.ID})
	require.NoError(t, err)
	_, err = store.CreateACLEntry(ctx, product.ACLEntry{ProductID: mine.ID, UserID: alice.ID})
	require.NoError(t, err)
	other, err := store.CreateProduct(ctx, product.Product{Name: "Borealis", OwnerID: admin.ID})
	require.NoError(t, err)

	svc.Record(ctx, activity.Event{ActorID: alice.ID, Action: "create", EntityKind: "product", EntityID: mine.ID, ProductID: mine.ID})
	svc.Record(ctx, activity.Event{ActorID: admin.ID, Action: "create", EntityKind: "product", EntityID: other.ID, ProductID: other.ID})

	visible, err := svc.List(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ProductID)

	all, err := svc.List(ctx, admin.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVisible(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	admin, err := store.CreateUser(ctx, user.User{Username: "admin", Admin: true})
	require.NoError(t, err)
	alice, err := store.CreateUser(ctx, user.User{Username: "alice"})
	require.NoError(t, err)

	p, err := store.CreateProduct(ctx, product.Product{Name: "Atlas", OwnerID: alice.ID})
	require.NoError(t, err)
	_, err = store.CreateACLEntry(ctx, product.ACLEntry{ProductID: p.ID, UserID: alice.ID})
	require.NoError(t, err)

	productEvent := activity.Event{ProductID: p.ID}
	assert.True(t, svc.Visible(ctx, alice.ID, productEvent))
	assert.True(t, svc.Visible(ctx, admin.ID, productEvent))

	systemEvent := activity.Event{}
	assert.False(t, svc.Visible(ctx, alice.ID, systemEvent), "events without a product are admin only")
	assert.True(t, svc.Visible(ctx, admin.ID, systemEvent))
}
