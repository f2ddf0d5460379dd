package sprints

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages sprints. Access is inherited from the parent product.
// Status moves planned → active → completed, one step at a time.
type Service struct {
	sprints  storage.SprintStore
	authz    *authz.Service
	activity *activitylog.Service
	log      *logger.Logger
}

// New creates the sprints service.
func New(sprints storage.SprintStore, authzSvc *authz.Service, activitySvc *activitylog.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sprints")
	}
	return &Service{sprints: sprints, authz: authzSvc, activity: activitySvc, log: log}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	FeatureID string     `json:"feature_id"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Create adds a planned sprint under a feature the actor can access.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (sprint.Sprint, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return sprint.Sprint{}, errors.New("name is required")
	}
	sp := sprint.Sprint{FeatureID: params.FeatureID, Name: name, Status: sprint.StatusPlanned}
	if params.StartDate != nil {
		sp.StartDate = params.StartDate.UTC()
	}
	if params.EndDate != nil {
		sp.EndDate = params.EndDate.UTC()
	}
	if !sp.StartDate.IsZero() && !sp.EndDate.IsZero() && sp.EndDate.Before(sp.StartDate) {
		return sprint.Sprint{}, errors.New("end_date must not precede start_date")
	}

	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindFeature, params.FeatureID)
	if err != nil {
		return sprint.Sprint{}, err
	}

	created, err := s.sprints.CreateSprint(ctx, sp)
	if err != nil {
		return sprint.Sprint{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "create",
		EntityKind: "sprint",
		EntityID:   created.ID,
		ProductID:  productID,
		Detail:     created.Name,
	})
	return created, nil
}

// Get returns a sprint the actor can access.
func (s *Service) Get(ctx context.Context, actorID, id string) (sprint.Sprint, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindSprint, id); err != nil {
		return sprint.Sprint{}, err
	}
	return s.sprints.GetSprint(ctx, id)
}

// List returns a feature's sprints for actors with access.
func (s *Service) List(ctx context.Context, actorID, featureID string) ([]sprint.Sprint, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindFeature, featureID); err != nil {
		return nil, err
	}
	return s.sprints.ListSprints(ctx, featureID)
}

// UpdateParams are the editable sprint fields.
type UpdateParams struct {
	Name      *string        `json:"name"`
	StartDate *time.Time     `json:"start_date"`
	EndDate   *time.Time     `json:"end_date"`
	Status    *sprint.Status `json:"status"`
}

// Update edits a sprint the actor can access. Status changes must follow
// the workflow order.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (sprint.Sprint, error) {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindSprint, id)
	if err != nil {
		return sprint.Sprint{}, err
	}
	sp, err := s.sprints.GetSprint(ctx, id)
	if err != nil {
		return sprint.Sprint{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return sprint.Sprint{}, errors.New("name is required")
		}
		sp.Name = name
	}
	if params.StartDate != nil {
		sp.StartDate = params.StartDate.UTC()
	}
	if params.EndDate != nil {
		sp.EndDate = params.EndDate.UTC()
	}
	if !sp.StartDate.IsZero() && !sp.EndDate.IsZero() && sp.EndDate.Before(sp.StartDate) {
		return sprint.Sprint{}, errors.New("end_date must not precede start_date")
	}
	if params.Status != nil && *params.Status != sp.Status {
		if !params.Status.Valid() {
			return sprint.Sprint{}, fmt.Errorf("invalid status %q", *params.Status)
		}
		if !sp.Status.CanTransition(*params.Status) {
			return sprint.Sprint{}, fmt.Errorf("cannot move sprint from %s to %s", sp.Status, *params.Status)
		}
		sp.Status = *params.Status
	}

	updated, err := s.sprints.UpdateSprint(ctx, sp)
	if err != nil {
		return sprint.Sprint{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "update",
		EntityKind: "sprint",
		EntityID:   updated.ID,
		ProductID:  productID,
		Detail:     fmt.Sprintf("%s (%s)", updated.Name, updated.Status),
	})
	return updated, nil
}

// Delete removes a sprint and its tasks.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindSprint, id)
	if err != nil {
		return err
	}
	if err := s.sprints.DeleteSprint(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "delete",
		EntityKind: "sprint",
		EntityID:   id,
		ProductID:  productID,
	})
	return nil
}

// CloseOverdue completes active sprints whose end date has passed. Run by
// the scheduler; events are recorded with a system origin.
func (s *Service) CloseOverdue(ctx context.Context, now time.Time) (int, error) {
	active, err := s.sprints.ListSprintsByStatus(ctx, sprint.StatusActive)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, sp := range active {
		if sp.EndDate.IsZero() || !sp.EndDate.Before(now) {
			continue
		}
		productID, err := s.authz.ResolveProduct(ctx, authz.KindSprint, sp.ID)
		if err != nil {
			s.log.WithError(err).WithField("sprint_id", sp.ID).Error("resolve sprint product")
			continue
		}
		sp.Status = sprint.StatusCompleted
		if _, err := s.sprints.UpdateSprint(ctx, sp); err != nil {
			s.log.WithError(err).WithField("sprint_id", sp.ID).Error("close overdue sprint")
			continue
		}
		s.activity.Record(activity.WithOrigin(ctx, activity.OriginSystem), activity.Event{
			ActorID:    "system",
			Action:     "update",
			EntityKind: "sprint",
			EntityID:   sp.ID,
			ProductID:  productID,
			Detail:     fmt.Sprintf("%s auto-completed", sp.Name),
		})
		closed++
	}
	if closed > 0 {
		s.log.WithField("count", closed).Info("closed overdue sprints")
	}
	return closed, nil
}
