package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/metrics"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// ErrAccessDenied is returned when a user lacks access to a product or to an
// entity beneath it.
var ErrAccessDenied = errors.New("access denied")

// Entity kinds accepted by ResolveProduct.
const (
	KindProduct = "product"
	KindVersion = "version"
	KindFeature = "feature"
	KindSprint  = "sprint"
	KindTask    = "task"
)

// Service answers access questions for the product hierarchy. Access is
// granted at the product level, per user or per group, and every descendant
// entity inherits the product's ACL. Admins bypass all checks.
type Service struct {
	users    storage.UserStore
	groups   storage.GroupStore
	products storage.ProductStore
	acl      storage.ACLStore
	versions storage.VersionStore
	features storage.FeatureStore
	sprints  storage.SprintStore
	tasks    storage.TaskStore
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// New creates the authorization service.
func New(
	users storage.UserStore,
	groups storage.GroupStore,
	products storage.ProductStore,
	acl storage.ACLStore,
	versions storage.VersionStore,
	features storage.FeatureStore,
	sprints storage.SprintStore,
	tasks storage.TaskStore,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewDefault("authz")
	}
	return &Service{
		users:    users,
		groups:   groups,
		products: products,
		acl:      acl,
		versions: versions,
		features: features,
		sprints:  sprints,
		tasks:    tasks,
		metrics:  m,
		log:      log,
	}
}

// ResolveProduct walks an entity's ancestor chain up to its product and
// returns the product ID. A broken chain surfaces as storage.ErrNotFound so
// callers treat the entity as nonexistent rather than leaking its presence.
func (s *Service) ResolveProduct(ctx context.Context, kind, id string) (string, error) {
	switch kind {
	case KindProduct:
		if _, err := s.products.GetProduct(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	case KindVersion:
		v, err := s.versions.GetVersion(ctx, id)
		if err != nil {
			return "", err
		}
		return s.ResolveProduct(ctx, KindProduct, v.ProductID)
	case KindFeature:
		f, err := s.features.GetFeature(ctx, id)
		if err != nil {
			return "", err
		}
		return s.ResolveProduct(ctx, KindVersion, f.VersionID)
	case KindSprint:
		sp, err := s.sprints.GetSprint(ctx, id)
		if err != nil {
			return "", err
		}
		return s.ResolveProduct(ctx, KindFeature, sp.FeatureID)
	case KindTask:
		t, err := s.tasks.GetTask(ctx, id)
		if err != nil {
			return "", err
		}
		return s.ResolveProduct(ctx, KindSprint, t.SprintID)
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// CanAccess reports whether the user may see and mutate the product. Admins
// always can; otherwise a per-user entry or an entry for any group the user
// belongs to grants access.
func (s *Service) CanAccess(ctx context.Context, userID, productID string) (bool, error) {
	allowed, err := s.canAccess(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		if allowed {
			s.metrics.RecordACLDecision("allow")
		} else {
			s.metrics.RecordACLDecision("deny")
		}
	}
	return allowed, nil
}

func (s *Service) canAccess(ctx context.Context, userID, productID string) (bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.Admin {
		return true, nil
	}

	entries, err := s.acl.ListACLEntries(ctx, productID)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	groupSet := map[string]bool{}
	groupIDs, err := s.groups.ListGroupIDsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range groupIDs {
		groupSet[id] = true
	}

	for _, e := range entries {
		if e.IsUserEntry() {
			if e.UserID == userID {
				return true, nil
			}
			continue
		}
		if groupSet[e.GroupID] {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether the user has the admin flag.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.Admin, nil
}

// RequireAdmin returns ErrAccessDenied for non-admin users.
func (s *Service) RequireAdmin(ctx context.Context, userID string) error {
	admin, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !admin {
		return ErrAccessDenied
	}
	return nil
}

// Require returns ErrAccessDenied when the user may not access the product.
func (s *Service) Require(ctx context.Context, userID, productID string) error {
	allowed, err := s.CanAccess(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.WithField("user_id", userID).WithField("product_id", productID).Debug("access denied")
		return ErrAccessDenied
	}
	return nil
}

// RequireEntity resolves an entity to its product and requires access to it.
// It returns the product ID for callers that need it for audit events.
func (s *Service) RequireEntity(ctx context.Context, userID, kind, id string) (string, error) {
	productID, err := s.ResolveProduct(ctx, kind, id)
	if err != nil {
		return "", err
	}
	if err := s.Require(ctx, userID, productID); err != nil {
		return "", err
	}
	return productID, nil
}

// AccessibleProductIDs returns the products the user may see. For admins it
// returns unrestricted=true and a nil slice, meaning every product.
func (s *Service) AccessibleProductIDs(ctx context.Context, userID string) (ids []string, unrestricted bool, err error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if u.Admin {
		return nil, true, nil
	}

	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, p := range products {
		allowed, err := s.canAccess(ctx, userID, p.ID)
		if err != nil {
			return nil, false, err
		}
		if allowed {
			ids = append(ids, p.ID)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, false, nil
}

// Grant adds an ACL entry for a user or a group on a product. The actor must
// have access to the product (or be an admin). Grants are idempotent.
func (s *Service) Grant(ctx context.Context, actorID string, entry product.ACLEntry) (product.ACLEntry, error) {
	if (entry.UserID == "") == (entry.GroupID == "") {
		return product.ACLEntry{}, errors.New("exactly one of user_id and group_id must be set")
	}
	if err := s.Require(ctx, actorID, entry.ProductID); err != nil {
		return product.ACLEntry{}, err
	}
	if entry.UserID != "" {
		if _, err := s.users.GetUser(ctx, entry.UserID); err != nil {
			return product.ACLEntry{}, err
		}
	} else {
		if _, err := s.groups.GetGroup(ctx, entry.GroupID); err != nil {
			return product.ACLEntry{}, err
		}
	}

	created, err := s.acl.CreateACLEntry(ctx, entry)
	if err != nil {
		return product.ACLEntry{}, err
	}
	s.log.WithField("product_id", entry.ProductID).
		WithField("actor_id", actorID).
		Info("access granted")
	return created, nil
}

// Revoke removes an ACL entry. The actor must have access to the entry's
// product. Revoking the product owner's last entry is allowed; admins can
// always restore access.
func (s *Service) Revoke(ctx context.Context, actorID, entryID string) error {
	entry, err := s.acl.GetACLEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.Require(ctx, actorID, entry.ProductID); err != nil {
		return err
	}
	if err := s.acl.DeleteACLEntry(ctx, entryID); err != nil {
		return err
	}
	s.log.WithField("product_id", entry.ProductID).
		WithField("actor_id", actorID).
		Info("access revoked")
	return nil
}

// ListEntries returns the ACL entries of a product, visible to any user with
// access to it.
func (s *Service) ListEntries(ctx context.Context, actorID, productID string) ([]product.ACLEntry, error) {
	if err := s.Require(ctx, actorID, productID); err != nil {
		return nil, err
	}
	return s.acl.ListACLEntries(ctx, productID)
}
