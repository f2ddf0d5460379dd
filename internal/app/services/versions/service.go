package versions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/version"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages versions. Access is inherited from the parent product.
type Service struct {
	versions storage.VersionStore
	authz    *authz.Service
	activity *activitylog.Service
	log      *logger.Logger
}

// New creates the versions service.
func New(versions storage.VersionStore, authzSvc *authz.Service, activitySvc *activitylog.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("versions")
	}
	return &Service{versions: versions, authz: authzSvc, activity: activitySvc, log: log}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	ProductID   string     `json:"product_id"`
	Name        string     `json:"name"`
	ReleaseDate *time.Time `json:"release_date"`
}

// Create adds a version under a product the actor can access.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (version.Version, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return version.Version{}, errors.New("name is required")
	}
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindProduct, params.ProductID); err != nil {
		return version.Version{}, err
	}

	v := version.Version{ProductID: params.ProductID, Name: name}
	if params.ReleaseDate != nil {
		v.ReleaseDate = params.ReleaseDate.UTC()
	}
	created, err := s.versions.CreateVersion(ctx, v)
	if err != nil {
		return version.Version{}, err
	}

	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "create",
		EntityKind: "version",
		EntityID:   created.ID,
		ProductID:  created.ProductID,
		Detail:     created.Name,
	})
	return created, nil
}

// Get returns a version the actor can access.
func (s *Service) Get(ctx context.Context, actorID, id string) (version.Version, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindVersion, id); err != nil {
		return version.Version{}, err
	}
	return s.versions.GetVersion(ctx, id)
}

// List returns a product's versions for actors with access.
func (s *Service) List(ctx context.Context, actorID, productID string) ([]version.Version, error) {
	if _, err := s.authz.RequireEntity(ctx, actorID, authz.KindProduct, productID); err != nil {
		return nil, err
	}
	return s.versions.ListVersions(ctx, productID)
}

// UpdateParams are the editable version fields.
type UpdateParams struct {
	Name        *string    `json:"name"`
	ReleaseDate *time.Time `json:"release_date"`
}

// Update edits a version the actor can access.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (version.Version, error) {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindVersion, id)
	if err != nil {
		return version.Version{}, err
	}
	v, err := s.versions.GetVersion(ctx, id)
	if err != nil {
		return version.Version{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return version.Version{}, errors.New("name is required")
		}
		v.Name = name
	}
	if params.ReleaseDate != nil {
		v.ReleaseDate = params.ReleaseDate.UTC()
	}

	updated, err := s.versions.UpdateVersion(ctx, v)
	if err != nil {
		return version.Version{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "update",
		EntityKind: "version",
		EntityID:   updated.ID,
		ProductID:  productID,
		Detail:     updated.Name,
	})
	return updated, nil
}

// Delete removes a version and its features, sprints and tasks.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	productID, err := s.authz.RequireEntity(ctx, actorID, authz.KindVersion, id)
	if err != nil {
		return err
	}
	if err := s.versions.DeleteVersion(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "delete",
		EntityKind: "version",
		EntityID:   id,
		ProductID:  productID,
	})
	return nil
}
