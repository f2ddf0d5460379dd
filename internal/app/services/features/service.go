package features

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages features. Access is inherited from the parent product
// through the version.
type Service struct {
	features storage.FeatureStore
	authz    *authz.Service
	activity *activitylog.Service
	log      *logger.Logger
}

// New creates the features service.
func New(features storage.FeatureStore, authzSvc *authz.Service, activitySvc *activitylog.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("features")
	}
	return &Service{features: features, authz: authzSvc, activity: activitySvc, log: log}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	VersionID   string           `json:"version_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Priority    feature.Priority `json:"priority"`
}

// Create adds a feature under a version the actor can access. Priority
// defaults to medium.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (feature.Feature, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return feature.Feature{}, errors.New("name is required")
	}
	if params.Priority == "" {
		params.Priority = feature.PriorityMedium
	}
	if !params.Priority.Valid() {
		return feature.Feature{}, fmt.Errorf("invalid priority %q", params.Priority)
	}
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindVersion, params.VersionID)
	if err != nil {
		return feature.Feature{}, err
	}

	created, err := s.features.CreateFeature(ctx, feature.Feature{
		VersionID:   params.VersionID,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		Priority:    params.Priority,
	})
	if err != nil {
		return feature.Feature{}, err
	}

	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "create",
		EntityKind: "feature",
		EntityID:   created.ID,
		ProductID:  productID,
		Detail:     created.Name,
	})
	return created, nil
}

// Get returns a feature the actor can access.
func (s *Service) Get(ctx context.Context, actorID, id string) (feature.Feature, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindFeature, id); err != nil {
		return feature.Feature{}, err
	}
	return s.features.GetFeature(ctx, id)
}

// List returns a version's features for actors with access.
func (s *Service) List(ctx context.Context, actorID, versionID string) ([]feature.Feature, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindVersion, versionID); err != nil {
		return nil, err
	}
	return s.features.ListFeatures(ctx, versionID)
}

// UpdateParams are the editable feature fields.
type UpdateParams struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Priority    *feature.Priority `json:"priority"`
}

// Update edits a feature the actor can access.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (feature.Feature, error) {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindFeature, id)
	if err != nil {
		return feature.Feature{}, err
	}
	f, err := s.features.GetFeature(ctx, id)
	if err != nil {
		return feature.Feature{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return feature.Feature{}, errors.New("name is required")
		}
		f.Name = name
	}
	if params.Description != nil {
		f.Description = strings.TrimSpace(*params.Description)
	}
	if params.Priority != nil {
		if !params.Priority.Valid() {
			return feature.Feature{}, fmt.Errorf("invalid priority %q", *params.Priority)
		}
		f.Priority = *params.Priority
	}

	updated, err := s.features.UpdateFeature(ctx, f)
	if err != nil {
		return feature.Feature{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "update",
		EntityKind: "feature",
		EntityID:   updated.ID,
		ProductID:  productID,
		Detail:     updated.Name,
	})
	return updated, nil
}

// Delete removes a feature and its sprints and tasks.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindFeature, id)
	if err != nil {
		return err
	}
	if err := s.features.DeleteFeature(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "delete",
		EntityKind: "feature",
		EntityID:   id,
		ProductID:  productID,
	})
	return nil
}
