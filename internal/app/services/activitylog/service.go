package activitylog

import (
	"context"
	"sync"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

const defaultListLimit = 100

// Service persists audit events and fans them out to live subscribers such
// as the activity stream websocket.
type Service struct {
	store storage.ActivityStore
	authz *authz.Service
	log   *logger.Logger

	mu      sync.RWMutex
	subs    map[int]chan activity.Event
	nextSub int
}

// New creates the activity service.
func New(store storage.ActivityStore, authzSvc *authz.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("activity")
	}
	return &Service{
		store: store,
		authz: authzSvc,
		log:   log,
		subs:  map[int]chan activity.Event{},
	}
}

// Record stores an event and notifies subscribers. The origin is taken from
// the context when the event does not carry one. Recording failures are
// logged, not propagated: audit problems must not fail the mutation itself.
func (s *Service) Record(ctx context.Context, e activity.Event) {
	if e.Origin == "" {
		e.Origin = activity.OriginFrom(ctx)
	}
	created, err := s.store.CreateEvent(ctx, e)
	if err != nil {
		s.log.WithError(err).WithField("action", e.Action).Error("record activity event")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- created:
		default:
			// Slow subscriber: drop rather than block the mutation path.
		}
	}
}

// Subscribe registers a live event listener. The returned cancel func must
// be called to release it.
func (s *Service) Subscribe(buffer int) (<-chan activity.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan activity.Event, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// List returns recent events the actor may see: admins see everything,
// other users only events of products they can access.
func (s *Service) List(ctx context.Context, actorID string, limit int) ([]activity.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := storage.ActivityFilter{Limit: limit}

	productIDs, unrestricted, err := s.authz.AccessibleProductIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !unrestricted {
		filter.ProductIDs = productIDs
	}
	return s.store.ListEvents(ctx, filter)
}

// Visible reports whether the actor may see a single event.
func (s *Service) Visible(ctx context.Context, actorID string, e activity.Event) bool {
	if e.ProductID == "" {
		u, err := s.authz.IsAdmin(ctx, actorID)
		return err == nil && u
	}
	allowed, err := s.authz.CanAccess(ctx, actorID, e.ProductID)
	return err == nil && allowed
}
