package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/auth"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// ErrUsernameTaken is returned when registering an existing username.
var ErrUsernameTaken = errors.New("username already taken")

// Service manages user accounts and login sessions.
type Service struct {
	users    storage.UserStore
	sessions *auth.SessionCache
	tokens   *auth.Manager
	authz    *authz.Service
	log      *logger.Logger
}

// New creates the accounts service.
func New(users storage.UserStore, sessions *auth.SessionCache, tokens *auth.Manager, authzSvc *authz.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{users: users, sessions: sessions, tokens: tokens, authz: authzSvc, log: log}
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (p RegisterParams) validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return errors.New("username is required")
	}
	if len(p.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// Register creates a new account. The very first account becomes an admin so
// a fresh installation can be bootstrapped without manual database edits.
func (s *Service) Register(ctx context.Context, params RegisterParams) (user.User, error) {
	if err := params.validate(); err != nil {
		return user.User{}, err
	}
	username := strings.TrimSpace(params.Username)

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return user.User{}, ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return user.User{}, err
	}

	created, err := s.users.CreateUser(ctx, user.User{
		Username:     username,
		DisplayName:  strings.TrimSpace(params.DisplayName),
		Email:        strings.TrimSpace(params.Email),
		PasswordHash: hash,
		Admin:        count == 0,
	})
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("username", created.Username).WithField("admin", created.Admin).Info("user registered")
	return created, nil
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      user.User `json:"user"`
}

// Login verifies credentials, issues a token and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginResult{}, auth.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return LoginResult{}, err
	}

	token, expiresAt, err := s.tokens.IssueToken(u)
	if err != nil {
		return LoginResult{}, err
	}
	if _, err := s.sessions.Create(ctx, user.Session{
		UserID:    u.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: expiresAt,
	}); err != nil {
		return LoginResult{}, err
	}

	s.log.WithField("username", u.Username).Info("user logged in")
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Logout revokes the session behind a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.sessions.Delete(ctx, auth.HashToken(token))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.users.GetUser(ctx, id)
}

// List returns all users. Any authenticated user may list users so they can
// pick assignees and grant access.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.users.ListUsers(ctx)
}

// UpdateProfileParams are the caller-editable account fields.
type UpdateProfileParams struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
}

// UpdateProfile lets a user edit their own account.
func (s *Service) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) (user.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if params.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*params.DisplayName)
	}
	if params.Email != nil {
		u.Email = strings.TrimSpace(*params.Email)
	}
	if params.Password != nil {
		if len(*params.Password) < 8 {
			return user.User{}, errors.New("password must be at least 8 characters")
		}
		hash, err := auth.HashPassword(*params.Password)
		if err != nil {
			return user.User{}, err
		}
		u.PasswordHash = hash
	}
	return s.users.UpdateUser(ctx, u)
}

// SetAdmin toggles another user's admin flag. Admin only.
func (s *Service) SetAdmin(ctx context.Context, actorID, userID string, admin bool) (user.User, error) {
	if err := s.authz.RequireAdmin(ctx, actorID); err != nil {
		return user.User{}, err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	u.Admin = admin
	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("username", u.Username).WithField("admin", admin).Info("admin flag changed")
	return updated, nil
}
