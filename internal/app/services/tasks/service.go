package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages tasks, the leaves of the hierarchy. Access is inherited
// from the product four levels up. Status moves open → in_progress → done.
type Service struct {
	tasks    storage.TaskStore
	users    storage.UserStore
	authz    *authz.Service
	activity *activitylog.Service
	log      *logger.Logger
}

// New creates the tasks service.
func New(tasks storage.TaskStore, users storage.UserStore, authzSvc *authz.Service, activitySvc *activitylog.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tasks")
	}
	return &Service{tasks: tasks, users: users, authz: authzSvc, activity: activitySvc, log: log}
}

// checkAssignee verifies the assignee exists and can access the product the
// task belongs to. Assigning work to someone who cannot see it would strand
// the task.
func (s *Service) checkAssignee(ctx context.Context, assigneeID, productID string) error {
	if assigneeID == "" {
		return nil
	}
	if _, err := s.users.GetUser(ctx, assigneeID); err != nil {
		return err
	}
	allowed, err := s.authz.CanAccess(ctx, assigneeID, productID)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.New("assignee has no access to the product")
	}
	return nil
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	SprintID      string  `json:"sprint_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	AssigneeID    string  `json:"assignee_id"`
	EstimateHours float64 `json:"estimate_hours"`
}

// Create adds an open task under a sprint the actor can access.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (task.Task, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return task.Task{}, errors.New("title is required")
	}
	if params.EstimateHours < 0 {
		return task.Task{}, errors.New("estimate_hours must not be negative")
	}
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindSprint, params.SprintID)
	if err != nil {
		return task.Task{}, err
	}
	if err := s.checkAssignee(ctx, params.AssigneeID, productID); err != nil {
		return task.Task{}, err
	}

	created, err := s.tasks.CreateTask(ctx, task.Task{
		SprintID:      params.SprintID,
		Title:         title,
		Description:   strings.TrimSpace(params.Description),
		Status:        task.StatusOpen,
		AssigneeID:    params.AssigneeID,
		EstimateHours: params.EstimateHours,
	})
	if err != nil {
		return task.Task{}, err
	}

	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "create",
		EntityKind: "task",
		EntityID:   created.ID,
		ProductID:  productID,
		Detail:     created.Title,
	})
	return created, nil
}

// Get returns a task the actor can access.
func (s *Service) Get(ctx context.Context, actorID, id string) (task.Task, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindTask, id); err != nil {
		return task.Task{}, err
	}
	return s.tasks.GetTask(ctx, id)
}

// List returns a sprint's tasks for actors with access.
func (s *Service) List(ctx context.Context, actorID, sprintID string) ([]task.Task, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindSprint, sprintID); err != nil {
		return nil, err
	}
	return s.tasks.ListTasks(ctx, sprintID)
}

// UpdateParams are the editable task fields. A nil field is left unchanged;
// AssigneeID set to an empty string unassigns the task.
type UpdateParams struct {
	Title         *string      `json:"title"`
	Description   *string      `json:"description"`
	Status        *task.Status `json:"status"`
	AssigneeID    *string      `json:"assignee_id"`
	EstimateHours *float64     `json:"estimate_hours"`
}

// Update edits a task the actor can access. Status changes must follow the
// workflow order.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (task.Task, error) {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindTask, id)
	if err != nil {
		return task.Task{}, err
	}
	t, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return task.Task{}, errors.New("title is required")
		}
		t.Title = title
	}
	if params.Description != nil {
		t.Description = strings.TrimSpace(*params.Description)
	}
	if params.Status != nil && *params.Status != t.Status {
		if !params.Status.Valid() {
			return task.Task{}, fmt.Errorf("invalid status %q", *params.Status)
		}
		if !t.Status.CanTransition(*params.Status) {
			return task.Task{}, fmt.Errorf("cannot move task from %s to %s", t.Status, *params.Status)
		}
		t.Status = *params.Status
	}
	if params.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *params.AssigneeID, productID); err != nil {
			return task.Task{}, err
		}
		t.AssigneeID = *params.AssigneeID
	}
	if params.EstimateHours != nil {
		if *params.EstimateHours < 0 {
			return task.Task{}, errors.New("estimate_hours must not be negative")
		}
		t.EstimateHours = *params.EstimateHours
	}

	updated, err := s.tasks.UpdateTask(ctx, t)
	if err != nil {
		return task.Task{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "update",
		EntityKind: "task",
		EntityID:   updated.ID,
		ProductID:  productID,
		Detail:     fmt.Sprintf("%s (%s)", updated.Title, updated.Status),
	})
	return updated, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindTask, id)
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "delete",
		EntityKind: "task",
		EntityID:   id,
		ProductID:  productID,
	})
	return nil
}
