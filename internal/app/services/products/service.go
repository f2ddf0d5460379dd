package products

import (
	"context"
	"errors"
	"strings"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages products, the root of the hierarchy and the anchor of all
// access control.
type Service struct {
	products storage.ProductStore
	acl      storage.ACLStore
	authz    *authz.Service
	activity *activitylog.Service
	log      *logger.Logger
}

// New creates the products service.
func New(products storage.ProductStore, acl storage.ACLStore, authzSvc *authz.Service, activitySvc *activitylog.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("products")
	}
	return &Service{products: products, acl: acl, authz: authzSvc, activity: activitySvc, log: log}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create adds a product owned by the actor. The creator is granted access
// immediately so the product is never orphaned.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (product.Product, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return product.Product{}, errors.New("name is required")
	}

	created, err := s.products.CreateProduct(ctx, product.Product{
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		OwnerID:     actorID,
	})
	if err != nil {
		return product.Product{}, err
	}
	if _, err := s.acl.CreateACLEntry(ctx, product.ACLEntry{
		ProductID: created.ID,
		UserID:    actorID,
	}); err != nil {
		return product.Product{}, err
	}

	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "create",
		EntityKind: "product",
		EntityID:   created.ID,
		ProductID:  created.ID,
		Detail:     created.Name,
	})
	s.log.WithField("product", created.Name).WithField("owner_id", actorID).Info("product created")
	return created, nil
}

// Get returns a product the actor can access.
func (s *Service) Get(ctx context.Context, actorID, id string) (product.Product, error) {
	if err := s.authz.Require(ctx, actorID, id); err != nil {
		return product.Product{}, err
	}
	return s.products.GetProduct(ctx, id)
}

// List returns the products visible to the actor. Filtering happens here,
// not in clients: a product the actor cannot access is never returned.
func (s *Service) List(ctx context.Context, actorID string) ([]product.Product, error) {
	all, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	_, unrestricted, err := s.authz.AccessibleProductIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if unrestricted {
		return all, nil
	}

	visible := make([]product.Product, 0, len(all))
	for _, p := range all {
		allowed, err := s.authz.CanAccess(ctx, actorID, p.ID)
		if err != nil {
			return nil, err
		}
		if allowed {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// UpdateParams are the editable product fields.
type UpdateParams struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update edits a product the actor can access.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (product.Product, error) {
	if err := s.authz.Require(ctx, actorID, id); err != nil {
		return product.Product{}, err
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return product.Product{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return product.Product{}, errors.New("name is required")
		}
		p.Name = name
	}
	if params.Description != nil {
		p.Description = strings.TrimSpace(*params.Description)
	}

	updated, err := s.products.UpdateProduct(ctx, p)
	if err != nil {
		return product.Product{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "update",
		EntityKind: "product",
		EntityID:   updated.ID,
		ProductID:  updated.ID,
		Detail:     updated.Name,
	})
	return updated, nil
}

// Delete removes a product and everything beneath it: versions, features,
// sprints, tasks and ACL entries.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.authz.Require(ctx, actorID, id); err != nil {
		return err
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "delete",
		EntityKind: "product",
		EntityID:   id,
		ProductID:  id,
		Detail:     p.Name,
	})
	s.log.WithField("product", p.Name).Info("product deleted")
	return nil
}

// Grant adds an ACL entry on a product and records it.
func (s *Service) Grant(ctx context.Context, actorID string, entry product.ACLEntry) (product.ACLEntry, error) {
	created, err := s.authz.Grant(ctx, actorID, entry)
	if err != nil {
		return product.ACLEntry{}, err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "grant",
		EntityKind: "acl_entry",
		EntityID:   created.ID,
		ProductID:  created.ProductID,
	})
	return created, nil
}

// Revoke removes an ACL entry and records it.
func (s *Service) Revoke(ctx context.Context, actorID, entryID string) error {
	entry, err := s.acl.GetACLEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.authz.Revoke(ctx, actorID, entryID); err != nil {
		return err
	}
	s.activity.Record(ctx, activity.Event{
		ActorID:    actorID,
		Action:     "revoke",
		EntityKind: "acl_entry",
		EntityID:   entryID,
		ProductID:  entry.ProductID,
	})
	return nil
}

// ListACL returns a product's ACL entries for actors with access.
func (s *Service) ListACL(ctx context.Context, actorID, productID string) ([]product.ACLEntry, error) {
	return s.authz.ListEntries(ctx, actorID, productID)
}
