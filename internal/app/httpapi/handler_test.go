package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/kassandra-hq/kassandra/internal/app"
	"github.com/kassandra-hq/kassandra/internal/config"
)

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Server.RateLimitRPS = 0 // no limiter in tests

	application, err := app.New(&cfg, app.Stores{}, nil, nil)
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(application, &cfg, nil))
	t.Cleanup(server.Close)
	return &testServer{t: t, server: server}
}

func (ts *testServer) do(method, path, token string, body interface{}) (*http.Response, []byte) {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(ts.t, err)
	resp.Body.Close()
	return resp, buf.Bytes()
}

// registerAndLogin creates an account and returns its token and user ID.
func (ts *testServer) registerAndLogin(username string) (token, userID string) {
	ts.t.Helper()
	resp, _ := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "correcthorse",
	})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "correcthorse",
	})
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)

	var result struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(ts.t, json.Unmarshal(body, &result))
	return result.Token, result.User.ID
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	token, _ := ts.registerAndLogin("alice")

	resp, body := ts.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		Username string `json:"username"`
		Admin    bool   `json:"admin"`
	}
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "alice", me.Username)
	assert.True(t, me.Admin, "first registered user is admin")

	// Logout revokes the session even though the token is still signed.
	resp, _ = ts.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthenticatedRequests(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(http.MethodGet, "/api/products", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProductACLOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	_, _ = ts.registerAndLogin("admin") // soak up the admin bootstrap
	aliceToken, _ := ts.registerAndLogin("alice")
	bobToken, bobID := ts.registerAndLogin("bob")

	// Alice creates a product.
	resp, body := ts.do(http.MethodPost, "/api/products", aliceToken, map[string]string{"name": "Atlas"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	// Bob cannot see it: filtered from the list, 403 on direct access.
	resp, body = ts.do(http.MethodGet, "/api/products", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Empty(t, list)

	resp, _ = ts.do(http.MethodGet, "/api/products/"+created.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice grants bob access.
	resp, body = ts.do(http.MethodPost, "/api/products/"+created.ID+"/acl", aliceToken, map[string]string{"user_id": bobID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entry struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &entry))

	resp, _ = ts.do(http.MethodGet, "/api/products/"+created.ID, bobToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Revoking flips it back.
	resp, _ = ts.do(http.MethodDelete, "/api/acl/"+entry.ID, aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(http.MethodGet, "/api/products/"+created.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHierarchyOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.registerAndLogin("alice")

	resp, body := ts.do(http.MethodPost, "/api/products", token, map[string]string{"name": "Atlas"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	productID := idOf(t, body)

	resp, body = ts.do(http.MethodPost, fmt.Sprintf("/api/products/%s/versions", productID), token, map[string]string{"name": "1.0"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	versionID := idOf(t, body)

	resp, body = ts.do(http.MethodPost, fmt.Sprintf("/api/versions/%s/features", versionID), token, map[string]string{"name": "Search", "priority": "high"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	featureID := idOf(t, body)

	resp, body = ts.do(http.MethodPost, fmt.Sprintf("/api/features/%s/sprints", featureID), token, map[string]string{"name": "Sprint 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sprintID := idOf(t, body)

	resp, body = ts.do(http.MethodPost, fmt.Sprintf("/api/sprints/%s/tasks", sprintID), token, map[string]interface{}{
		"title":          "Index docs",
		"estimate_hours": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := idOf(t, body)

	// Invalid status jump is a 400.
	resp, _ = ts.do(http.MethodPatch, "/api/tasks/"+taskID, token, map[string]string{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = ts.do(http.MethodPatch, "/api/tasks/"+taskID, token, map[string]string{"status": "in_progress"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Deleting the product cascades; the task is gone.
	resp, _ = ts.do(http.MethodDelete, "/api/products/"+productID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(http.MethodGet, "/api/tasks/"+taskID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivityOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.registerAndLogin("admin")
	aliceToken, _ := ts.registerAndLogin("alice")
	bobToken, _ := ts.registerAndLogin("bob")

	resp, _ := ts.do(http.MethodPost, "/api/products", aliceToken, map[string]string{"name": "Atlas"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(http.MethodGet, "/api/activity", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var aliceEvents []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &aliceEvents))
	assert.NotEmpty(t, aliceEvents)

	resp, body = ts.do(http.MethodGet, "/api/activity", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bobEvents []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &bobEvents))
	assert.Empty(t, bobEvents, "bob cannot see atlas activity")

	resp, body = ts.do(http.MethodGet, "/api/activity", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var adminEvents []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &adminEvents))
	assert.NotEmpty(t, adminEvents, "admins see all activity")
}

func TestGroupsAdminOnlyOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.registerAndLogin("admin")
	aliceToken, aliceID := ts.registerAndLogin("alice")

	resp, _ := ts.do(http.MethodPost, "/api/groups", aliceToken, map[string]string{"name": "qa"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "group management is admin-only")

	resp, body := ts.do(http.MethodPost, "/api/groups", adminToken, map[string]string{"name": "qa"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	groupID := idOf(t, body)

	resp, _ = ts.do(http.MethodPut, fmt.Sprintf("/api/groups/%s/members/%s", groupID, aliceID), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = ts.do(http.MethodGet, "/api/groups/"+groupID, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g struct {
		MemberIDs []string `json:"member_ids"`
	}
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, []string{aliceID}, g.MemberIDs)
}

func TestAssistantUnconfigured(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.registerAndLogin("alice")

	resp, _ := ts.do(http.MethodPost, "/api/assistant/chat", token, map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func idOf(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NotEmpty(t, payload.ID)
	return payload.ID
}
