package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
)

type fixture struct {
	store  *memory.Store
	svc    *Service
	alice  user.User
	bob    user.User
	sprint sprint.Sprint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	activitySvc := activitylog.New(store, authzSvc, nil)
	svc := New(store, store, authzSvc, activitySvc, nil)

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
	sp, err := store.CreateSprint(ctx, sprint.Sprint{FeatureID: ft.ID, Name: "Sprint 1", Status: sprint.StatusPlanned})
	require.NoError(t, err)

	return &fixture{store: store, svc: svc, alice: alice, bob: bob, sprint: sp}
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice.ID, CreateParams{
		SprintID:      f.sprint.ID,
		Title:         "Index docs",
		EstimateHours: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusOpen, created.Status)

	_, err = f.svc.Create(ctx, f.bob.ID, CreateParams{SprintID: f.sprint.ID, Title: "Sneak in"})
	assert.True(t, errors.Is(err, authz.ErrAccessDenied))

	_, err = f.svc.Create(ctx, f.alice.ID, CreateParams{SprintID: f.sprint.ID, Title: "  "})
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, f.alice.ID, CreateParams{SprintID: f.sprint.ID, Title: "Bad", EstimateHours: -1})
	assert.Error(t, err)
}

func TestAssigneeNeedsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice.ID, CreateParams{
		SprintID:   f.sprint.ID,
		Title:      "Index docs",
		AssigneeID: f.bob.ID,
	})
	assert.Error(t, err, "bob cannot see the product")

	// Once granted, bob can be assigned.
	tk, err := f.svc.Create(ctx, f.alice.ID, CreateParams{SprintID: f.sprint.ID, Title: "Index docs"})
	require.NoError(t, err)

	productID, err := f.svc.authz.ResolveProduct(ctx, authz.KindSprint, f.sprint.ID)
	require.NoError(t, err)
	_, err = f.store.CreateACLEntry(ctx, product.ACLEntry{ProductID: productID, UserID: f.bob.ID})
	require.NoError(t, err)

	assignee := f.bob.ID
	updated, err := f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{AssigneeID: &assignee})
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, updated.AssigneeID)

	// Unassigning is always allowed.
	none := ""
	updated, err = f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{AssigneeID: &none})
	require.NoError(t, err)
	assert.Empty(t, updated.AssigneeID)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, f.alice.ID, CreateParams{SprintID: f.sprint.ID, Title: "Index docs"})
	require.NoError(t, err)

	done := task.StatusDone
	_, err = f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{Status: &done})
	assert.Error(t, err, "open cannot jump straight to done")

	inProgress := task.StatusInProgress
	updated, err := f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, updated.Status)

	updated, err = f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, updated.Status)

	bogus := task.Status("paused")
	_, err = f.svc.Update(ctx, f.alice.ID, tk.ID, UpdateParams{Status: &bogus})
	assert.Error(t, err)
}

func TestGetListDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, f.alice.ID, CreateParams{SprintID: f.sprint.ID, Title: "Index docs"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.alice.ID, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	_, err = f.svc.Get(ctx, f.bob.ID, tk.ID)
	assert.True(t, errors.Is(err, authz.ErrAccessDenied), "task access is inherited from the product")

	list, err := f.svc.List(ctx, f.alice.ID, f.sprint.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, tk.ID))
	list, err = f.svc.List(ctx, f.alice.ID, f.sprint.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
