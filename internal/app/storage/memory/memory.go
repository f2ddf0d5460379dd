package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/group"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu sync.RWMutex

	users    map[string]user.User
	sessions map[string]user.Session // keyed by session ID
	groups   map[string]group.Group
	members  map[string]map[string]bool // groupID -> userID set
	products map[string]product.Product
	acl      map[string]product.ACLEntry
	versions map[string]version.Version
	features map[string]feature.Feature
	sprints  map[string]sprint.Sprint
	tasks    map[string]task.Task
	events   []activity.Event
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.GroupStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.ACLStore = (*Store)(nil)
var _ storage.VersionStore = (*Store)(nil)
var _ storage.FeatureStore = (*Store)(nil)
var _ storage.SprintStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		sessions: make(map[string]user.Session),
		groups:   make(map[string]group.Group),
		members:  make(map[string]map[string]bool),
		products: make(map[string]product.Product),
		acl:      make(map[string]product.ACLEntry),
		versions: make(map[string]version.Version),
		features: make(map[string]feature.Feature),
		sprints:  make(map[string]sprint.Sprint),
		tasks:    make(map[string]task.Task),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return user.User{}, fmt.Errorf("username %s already taken", u.Username)
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, notFound("user", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, notFound("user", username)
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// SessionStore implementation -------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess user.Session) (user.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = time.Now().UTC()
	if sess.LastSeen.IsZero() {
		sess.LastSeen = sess.CreatedAt
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (user.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			return sess, nil
		}
	}
	return user.Session{}, notFound("session", tokenHash)
}

func (s *Store) TouchSession(_ context.Context, id string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return notFound("session", id)
	}
	sess.LastSeen = lastSeen
	s.sessions[id] = sess
	return nil
}

func (s *Store) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			delete(s.sessions, id)
			return nil
		}
	}
	return notFound("session", tokenHash)
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// GroupStore implementation ---------------------------------------------------

func (s *Store) CreateGroup(_ context.Context, g group.Group) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return group.Group{}, fmt.Errorf("group name %s already taken", g.Name)
		}
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.MemberIDs = nil
	s.groups[g.ID] = g
	s.members[g.ID] = make(map[string]bool)
	return g, nil
}

func (s *Store) UpdateGroup(_ context.Context, g group.Group) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.groups[g.ID]
	if !ok {
		return group.Group{}, notFound("group", g.ID)
	}
	g.CreatedAt = original.CreatedAt
	g.UpdatedAt = time.Now().UTC()
	g.MemberIDs = nil
	s.groups[g.ID] = g
	return s.groupWithMembersLocked(g.ID)
}

func (s *Store) GetGroup(_ context.Context, id string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupWithMembersLocked(id)
}

func (s *Store) groupWithMembersLocked(id string) (group.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return group.Group{}, notFound("group", id)
	}
	for userID := range s.members[id] {
		g.MemberIDs = append(g.MemberIDs, userID)
	}
	sort.Strings(g.MemberIDs)
	return g, nil
}

func (s *Store) ListGroups(_ context.Context) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]group.Group, 0, len(s.groups))
	for id := range s.groups {
		g, err := s.groupWithMembersLocked(id)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return notFound("group", id)
	}
	delete(s.groups, id)
	delete(s.members, id)
	for entryID, entry := range s.acl {
		if entry.GroupID == id {
			delete(s.acl, entryID)
		}
	}
	return nil
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return notFound("group", groupID)
	}
	if _, ok := s.users[userID]; !ok {
		return notFound("user", userID)
	}
	s.members[groupID][userID] = true
	return nil
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return notFound("group", groupID)
	}
	delete(s.members[groupID], userID)
	return nil
}

func (s *Store) ListGroupIDsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for groupID, set := range s.members {
		if set[userID] {
			result = append(result, groupID)
		}
	}
	sort.Strings(result)
	return result, nil
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return product.Product{}, notFound("product", p.ID)
	}
	p.OwnerID = original.OwnerID
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, notFound("product", id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DeleteProduct removes the product and every descendant record, mirroring
// the ON DELETE CASCADE behaviour of the postgres store.
func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return notFound("product", id)
	}
	delete(s.products, id)

	for entryID, entry := range s.acl {
		if entry.ProductID == id {
			delete(s.acl, entryID)
		}
	}
	for versionID, v := range s.versions {
		if v.ProductID != id {
			continue
		}
		delete(s.versions, versionID)
		for featureID, f := range s.features {
			if f.VersionID != versionID {
				continue
			}
			delete(s.features, featureID)
			for sprintID, sp := range s.sprints {
				if sp.FeatureID != featureID {
					continue
				}
				delete(s.sprints, sprintID)
				for taskID, t := range s.tasks {
					if t.SprintID == sprintID {
						delete(s.tasks, taskID)
					}
				}
			}
		}
	}
	return nil
}

// ACLStore implementation -----------------------------------------------------

func (s *Store) CreateACLEntry(_ context.Context, e product.ACLEntry) (product.ACLEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[e.ProductID]; !ok {
		return product.ACLEntry{}, notFound("product", e.ProductID)
	}
	// Idempotent: an equivalent entry is returned as-is.
	for _, existing := range s.acl {
		if existing.ProductID == e.ProductID && existing.UserID == e.UserID && existing.GroupID == e.GroupID {
			return existing, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	s.acl[e.ID] = e
	return e, nil
}

func (s *Store) GetACLEntry(_ context.Context, id string) (product.ACLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.acl[id]
	if !ok {
		return product.ACLEntry{}, notFound("acl entry", id)
	}
	return e, nil
}

func (s *Store) ListACLEntries(_ context.Context, productID string) ([]product.ACLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []product.ACLEntry
	for _, e := range s.acl {
		if e.ProductID == productID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteACLEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.acl[id]; !ok {
		return notFound("acl entry", id)
	}
	delete(s.acl, id)
	return nil
}

// VersionStore implementation -------------------------------------------------

func (s *Store) CreateVersion(_ context.Context, v version.Version) (version.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[v.ProductID]; !ok {
		return version.Version{}, notFound("product", v.ProductID)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.versions[v.ID] = v
	return v, nil
}

func (s *Store) UpdateVersion(_ context.Context, v version.Version) (version.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.versions[v.ID]
	if !ok {
		return version.Version{}, notFound("version", v.ID)
	}
	v.ProductID = original.ProductID
	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	s.versions[v.ID] = v
	return v, nil
}

func (s *Store) GetVersion(_ context.Context, id string) (version.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return version.Version{}, notFound("version", id)
	}
	return v, nil
}

func (s *Store) ListVersions(_ context.Context, productID string) ([]version.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []version.Version
	for _, v := range s.versions {
		if v.ProductID == productID {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteVersion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[id]; !ok {
		return notFound("version", id)
	}
	delete(s.versions, id)
	for featureID, f := range s.features {
		if f.VersionID != id {
			continue
		}
		delete(s.features, featureID)
		for sprintID, sp := range s.sprints {
			if sp.FeatureID != featureID {
				continue
			}
			delete(s.sprints, sprintID)
			for taskID, t := range s.tasks {
				if t.SprintID == sprintID {
					delete(s.tasks, taskID)
				}
			}
		}
	}
	return nil
}

// FeatureStore implementation -------------------------------------------------

func (s *Store) CreateFeature(_ context.Context, f feature.Feature) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[f.VersionID]; !ok {
		return feature.Feature{}, notFound("version", f.VersionID)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	s.features[f.ID] = f
	return f, nil
}

func (s *Store) UpdateFeature(_ context.Context, f feature.Feature) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.features[f.ID]
	if !ok {
		return feature.Feature{}, notFound("feature", f.ID)
	}
	f.VersionID = original.VersionID
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	s.features[f.ID] = f
	return f, nil
}

func (s *Store) GetFeature(_ context.Context, id string) (feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.features[id]
	if !ok {
		return feature.Feature{}, notFound("feature", id)
	}
	return f, nil
}

func (s *Store) ListFeatures(_ context.Context, versionID string) ([]feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []feature.Feature
	for _, f := range s.features {
		if f.VersionID == versionID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteFeature(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.features[id]; !ok {
		return notFound("feature", id)
	}
	delete(s.features, id)
	for sprintID, sp := range s.sprints {
		if sp.FeatureID != id {
			continue
		}
		delete(s.sprints, sprintID)
		for taskID, t := range s.tasks {
			if t.SprintID == sprintID {
				delete(s.tasks, taskID)
			}
		}
	}
	return nil
}

// SprintStore implementation --------------------------------------------------

func (s *Store) CreateSprint(_ context.Context, sp sprint.Sprint) (sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.features[sp.FeatureID]; !ok {
		return sprint.Sprint{}, notFound("feature", sp.FeatureID)
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now
	s.sprints[sp.ID] = sp
	return sp, nil
}

func (s *Store) UpdateSprint(_ context.Context, sp sprint.Sprint) (sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.sprints[sp.ID]
	if !ok {
		return sprint.Sprint{}, notFound("sprint", sp.ID)
	}
	sp.FeatureID = original.FeatureID
	sp.CreatedAt = original.CreatedAt
	sp.UpdatedAt = time.Now().UTC()
	s.sprints[sp.ID] = sp
	return sp, nil
}

func (s *Store) GetSprint(_ context.Context, id string) (sprint.Sprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.sprints[id]
	if !ok {
		return sprint.Sprint{}, notFound("sprint", id)
	}
	return sp, nil
}

func (s *Store) ListSprints(_ context.Context, featureID string) ([]sprint.Sprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []sprint.Sprint
	for _, sp := range s.sprints {
		if sp.FeatureID == featureID {
			result = append(result, sp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListSprintsByStatus(_ context.Context, status sprint.Status) ([]sprint.Sprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []sprint.Sprint
	for _, sp := range s.sprints {
		if sp.Status == status {
			result = append(result, sp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteSprint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sprints[id]; !ok {
		return notFound("sprint", id)
	}
	delete(s.sprints, id)
	for taskID, t := range s.tasks {
		if t.SprintID == id {
			delete(s.tasks, taskID)
		}
	}
	return nil
}

// TaskStore implementation ----------------------------------------------------

func (s *Store) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sprints[t.SprintID]; !ok {
		return task.Task{}, notFound("sprint", t.SprintID)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tasks[t.ID]
	if !ok {
		return task.Task{}, notFound("task", t.ID)
	}
	t.SprintID = original.SprintID
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, notFound("task", id)
	}
	return t, nil
}

func (s *Store) ListTasks(_ context.Context, sprintID string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []task.Task
	for _, t := range s.tasks {
		if t.SprintID == sprintID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return notFound("task", id)
	}
	delete(s.tasks, id)
	return nil
}

// ActivityStore implementation ------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, e activity.Event) (activity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, e)
	return e, nil
}

func (s *Store) ListEvents(_ context.Context, filter storage.ActivityFilter) ([]activity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := map[string]bool{}
	for _, id := range filter.ProductIDs {
		allowed[id] = true
	}

	var result []activity.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.ProductIDs != nil && !allowed[e.ProductID] {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}
