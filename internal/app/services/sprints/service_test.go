package sprints

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
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
	feature feature.Feature
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
	ft, err := store.CreateFeature(ctx, feature.Feature{VersionID: v.ID, Name: "Search", Priority: feature.PriorityMedium})
	require.NoError(t, err)

	return &fixture{store: store, svc: svc, alice: alice, bob: bob, feature: ft}
}

func TestCreateSprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice.ID, CreateParams{FeatureID: f.feature.ID, Name: "Sprint 1"})
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusPlanned, created.Status)

	_, err = f.svc.Create(ctx, f.bob.ID, CreateParams{FeatureID: f.feature.ID, Name: "Sprint 2"})
	assert.True(t, errors.Is(err, authz.ErrAccessDenied))

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -7)
	_, err = f.svc.Create(ctx, f.alice.ID, CreateParams{FeatureID: f.feature.ID, Name: "Bad", StartDate: &start, EndDate: &end})
	assert.Error(t, err, "end before start")
}

func TestStatusWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sp, err := f.svc.Create(ctx, f.alice.ID, CreateParams{FeatureID: f.feature.ID, Name: "Sprint 1"})
	require.NoError(t, err)

	completed := sprint.StatusCompleted
	_, err = f.svc.Update(ctx, f.alice.ID, sp.ID, UpdateParams{Status: &completed})
	assert.Error(t, err, "planned cannot jump straight to completed")

	active := sprint.StatusActive
	updated, err := f.svc.Update(ctx, f.alice.ID, sp.ID, UpdateParams{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusActive, updated.Status)

	updated, err = f.svc.Update(ctx, f.alice.ID, sp.ID, UpdateParams{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusCompleted, updated.Status)
}

func TestCloseOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	sp, err := f.svc.Create(ctx, f.alice.ID, CreateParams{FeatureID: f.feature.ID, Name: "Overdue", StartDate: &start, EndDate: &end})
	require.NoError(t, err)

	active := sprint.StatusActive
	_, err = f.svc.Update(ctx, f.alice.ID, sp.ID, UpdateParams{Status: &active})
	require.NoError(t, err)

	// An active sprint without an end date is left alone.
	open, err := f.svc.Create(ctx, f.alice.ID, CreateParams{FeatureID: f.feature.ID, Name: "Open-ended"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.alice.ID, open.ID, UpdateParams{Status: &active})
	require.NoError(t, err)

	closed, err := f.svc.CloseOverdue(ctx, end.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := f.store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusCompleted, got.Status)

	still, err := f.store.GetSprint(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusActive, still.Status)

	events, err := f.store.ListEvents(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	var sawSystem bool
	for _, e := range events {
		if e.Origin == activity.OriginSystem && e.EntityID == sp.ID {
			sawSystem = true
		}
	}
	assert.True(t, sawSystem, "auto-close is recorded with a system origin")
}
