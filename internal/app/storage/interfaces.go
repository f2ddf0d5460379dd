package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/group"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
)

// ErrNotFound is returned (possibly wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// SessionStore persists login sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, s user.Session) (user.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error)
	TouchSession(ctx context.Context, id string, lastSeen time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// GroupStore persists user groups and their membership join table.
type GroupStore interface {
	CreateGroup(ctx context.Context, g group.Group) (group.Group, error)
	UpdateGroup(ctx context.Context, g group.Group) (group.Group, error)
	GetGroup(ctx context.Context, id string) (group.Group, error)
	ListGroups(ctx context.Context) ([]group.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// ProductStore persists products. DeleteProduct cascades to versions,
// features, sprints, tasks and ACL entries.
type ProductStore interface {
	CreateProduct(ctx context.Context, p product.Product) (product.Product, error)
	UpdateProduct(ctx context.Context, p product.Product) (product.Product, error)
	GetProduct(ctx context.Context, id string) (product.Product, error)
	ListProducts(ctx context.Context) ([]product.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// ACLStore persists product ACL entries.
type ACLStore interface {
	CreateACLEntry(ctx context.Context, e product.ACLEntry) (product.ACLEntry, error)
	GetACLEntry(ctx context.Context, id string) (product.ACLEntry, error)
	ListACLEntries(ctx context.Context, productID string) ([]product.ACLEntry, error)
	DeleteACLEntry(ctx context.Context, id string) error
}

// VersionStore persists versions.
type VersionStore interface {
	CreateVersion(ctx context.Context, v version.Version) (version.Version, error)
	UpdateVersion(ctx context.Context, v version.Version) (version.Version, error)
	GetVersion(ctx context.Context, id string) (version.Version, error)
	ListVersions(ctx context.Context, productID string) ([]version.Version, error)
	DeleteVersion(ctx context.Context, id string) error
}

// FeatureStore persists features.
type FeatureStore interface {
	CreateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error)
	UpdateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error)
	GetFeature(ctx context.Context, id string) (feature.Feature, error)
	ListFeatures(ctx context.Context, versionID string) ([]feature.Feature, error)
	DeleteFeature(ctx context.Context, id string) error
}

// SprintStore persists sprints.
type SprintStore interface {
	CreateSprint(ctx context.Context, s sprint.Sprint) (sprint.Sprint, error)
	UpdateSprint(ctx context.Context, s sprint.Sprint) (sprint.Sprint, error)
	GetSprint(ctx context.Context, id string) (sprint.Sprint, error)
	ListSprints(ctx context.Context, featureID string) ([]sprint.Sprint, error)
	ListSprintsByStatus(ctx context.Context, status sprint.Status) ([]sprint.Sprint, error)
	DeleteSprint(ctx context.Context, id string) error
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	UpdateTask(ctx context.Context, t task.Task) (task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	ListTasks(ctx context.Context, sprintID string) ([]task.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// ActivityFilter narrows an activity listing.
type ActivityFilter struct {
	// ProductIDs restricts events to the given products. Nil means no
	// product restriction (admin view).
	ProductIDs []string
	ActorID    string
	Limit      int
}

// ActivityStore persists audit events.
type ActivityStore interface {
	CreateEvent(ctx context.Context, e activity.Event) (activity.Event, error)
	ListEvents(ctx context.Context, filter ActivityFilter) ([]activity.Event, error)
}
