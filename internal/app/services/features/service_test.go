package features

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	alice   user.User
	bob     user.User
	version version.Version
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	activitySvc := activitylog.New(store, authzSvc, nil)
	svc := New(store, authzSvc, activitySvc, nil)

	alice, err := store.CreateUser(ctx, user.User{Username: "alice"})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, user.User{Username: "bob"})
	require.NoError(t, err)

	p, err := store.CreateProduct(ctx, product.Product{Name: "Atlas", OwnerID: alice.ID})
	require.NoError(t, err)
	_, err = store.CreateACLEntry(ctx, product.ACLEntry{ProductID: p.ID, UserID: alice.ID})
	require.NoError(t, err)
	v, err := store.CreateVersion(ctx, version.Version{ProductID: p.ID, Name: "1.0"})
	require.NoError(t, err)

	return &fixture{store: store, svc: svc, alice: alice, bob: bob, version: v}
}

func TestCreateFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Search"})
	require.NoError(t, err)
	assert.Equal(t, feature.PriorityMedium, created.Priority, "priority defaults to medium")

	high, err := f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Export", Priority: feature.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, feature.PriorityHigh, high.Priority)

	_, err = f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Bad", Priority: "urgent"})
	assert.Error(t, err, "unknown priority is rejected")

	_, err = f.svc.Create(ctx, f.bob.ID, CreateParams{VersionID: f.version.ID, Name: "Nope"})
	assert.True(t, errors.Is(err, authz.ErrAccessDenied))
}

func TestUpdateFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Search"})
	require.NoError(t, err)

	low := feature.PriorityLow
	desc := "full-text search"
	updated, err := f.svc.Update(ctx, f.alice.ID, created.ID, UpdateParams{Priority: &low, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, feature.PriorityLow, updated.Priority)
	assert.Equal(t, "full-text search", updated.Description)

	bad := feature.Priority("urgent")
	_, err = f.svc.Update(ctx, f.alice.ID, created.ID, UpdateParams{Priority: &bad})
	assert.Error(t, err)

	_, err = f.svc.Update(ctx, f.bob.ID, created.ID, UpdateParams{Description: &desc})
	assert.True(t, errors.Is(err, authz.ErrAccessDenied))
}

func TestDeleteFeatureCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Search"})
	require.NoError(t, err)
	sp, err := f.store.CreateSprint(ctx, sprint.Sprint{FeatureID: created.ID, Name: "Sprint 1", Status: sprint.StatusPlanned})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, created.ID))

	_, err = f.store.GetFeature(ctx, created.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = f.store.GetSprint(ctx, sp.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListFeaturesInheritsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice.ID, CreateParams{VersionID: f.version.ID, Name: "Search"})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, f.alice.ID, f.version.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.List(ctx, f.bob.ID, f.version.ID)
	assert.True(t, errors.Is(err, authz.ErrAccessDenied))

	_, err = f.store.CreateACLEntry(ctx, product.ACLEntry{ProductID: f.version.ProductID, UserID: f.bob.ID})
	require.NoError(t, err)
	list, err = f.svc.List(ctx, f.bob.ID, f.version.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
