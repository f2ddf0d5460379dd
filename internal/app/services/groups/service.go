package groups

import (
	"context"
	"errors"
	"strings"

	"github.com/kassandra-hq/kassandra/internal/app/domain/group"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Service manages user groups. Groups exist so access can be granted to a
// team at once; management is admin only, while any authenticated user may
// read groups to pick grant targets.
type Service struct {
	groups storage.GroupStore
	users  storage.UserStore
	authz  *authz.Service
	log    *logger.Logger
}

// New creates the groups service.
func New(groups storage.GroupStore, users storage.UserStore, authzSvc *authz.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("groups")
	}
	return &Service{groups: groups, users: users, authz: authzSvc, log: log}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create adds a group. Admin only.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (group.Group, error) {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return group.Group{}, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return group.Group{}, errors.New("name is required")
	}

	created, err := s.groups.CreateGroup(ctx, group.Group{
		Name:        name,
		Description: strings.TrimSpace(params.Description),
	})
	if err != nil {
		return group.Group{}, err
	}
	s.log.WithField("group", created.Name).Info("group created")
	return created, nil
}

// UpdateParams are the editable group fields.
type UpdateParams struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update edits a group. Admin only.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (group.Group, error) {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return group.Group{}, err
	}
	g, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return group.Group{}, errors.New("name is required")
		}
		g.Name = name
	}
	if params.Description != nil {
		g.Description = strings.TrimSpace(*params.Description)
	}
	return s.groups.UpdateGroup(ctx, g)
}

// Get returns a group with its member IDs.
func (s *Service) Get(ctx context.Context, id string) (group.Group, error) {
	return s.groups.GetGroup(ctx, id)
}

// List returns all groups.
func (s *Service) List(ctx context.Context) ([]group.Group, error) {
	return s.groups.ListGroups(ctx)
}

// Delete removes a group and, through it, any access its members inherited.
// Admin only.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.log.WithField("group_id", id).Info("group deleted")
	return nil
}

// AddMember puts a user in a group. Admin only. Adding twice is a no-op.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.groups.AddGroupMember(ctx, groupID, userID)
}

// RemoveMember takes a user out of a group. Admin only.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, userID string) error {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return err
	}
	return s.groups.RemoveGroupMember(ctx, groupID, userID)
}
