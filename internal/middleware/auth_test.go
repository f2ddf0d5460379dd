package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
	"github.com/kassandra-hq/kassandra/internal/auth"
)

type authFixture struct {
	tokens   *auth.Manager
	sessions *auth.SessionCache
	store    *memory.Store
	user     user.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), user.User{Username: "alice"})
	require.NoError(t, err)
	return &authFixture{
		tokens:   auth.NewManager("secret", time.Hour, "test"),
		sessions: auth.NewSessionCache(store, nil, nil),
		store:    store,
		user:     u,
	}
}

// issue signs a token and opens a matching session.
func (f *authFixture) issue(t *testing.T) string {
	t.Helper()
	token, expiresAt, err := f.tokens.IssueToken(f.user)
	require.NoError(t, err)
	_, err = f.sessions.Create(context.Background(), user.Session{
		UserID:    f.user.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return token
}

func (f *authFixture) handler(captured *string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Auth(f.tokens, f.sessions, nil)(next)
}

func TestAuthValidToken(t *testing.T) {
	f := newAuthFixture(t)
	token := f.issue(t)

	var seenUserID string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler(&seenUserID).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.user.ID, seenUserID)
}

func TestAuthMissingOrMalformedHeader(t *testing.T) {
	f := newAuthFixture(t)
	var seenUserID string
	h := f.handler(&seenUserID)

	for _, header := range []string{"", "Bearer", "Basic dXNlcjpwYXNz", "token-without-scheme"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	assert.Empty(t, seenUserID)
}

func TestAuthRevokedSession(t *testing.T) {
	f := newAuthFixture(t)
	token := f.issue(t)

	// Signature still valid, but the session is gone.
	require.NoError(t, f.sessions.Delete(context.Background(), auth.HashToken(token)))

	var seenUserID string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler(&seenUserID).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seenUserID)
}

func TestAuthSessionUserMismatch(t *testing.T) {
	f := newAuthFixture(t)
	token, expiresAt, err := f.tokens.IssueToken(f.user)
	require.NoError(t, err)
	_, err = f.sessions.Create(context.Background(), user.Session{
		UserID:    "someone-else",
		TokenHash: auth.HashToken(token),
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)

	var seenUserID string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler(&seenUserID).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "u-1")
	assert.Equal(t, "u-1", UserID(ctx))
	assert.Empty(t, UserID(context.Background()))
}
