package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kassandra-hq/kassandra/internal/app/domain/feature"
	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/services/accounts"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/services/features"
	"github.com/kassandra-hq/kassandra/internal/app/services/groups"
	"github.com/kassandra-hq/kassandra/internal/app/services/products"
	"github.com/kassandra-hq/kassandra/internal/app/services/sprints"
	"github.com/kassandra-hq/kassandra/internal/app/services/tasks"
	"github.com/kassandra-hq/kassandra/internal/app/services/versions"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/assistant"
	"github.com/kassandra-hq/kassandra/internal/httputil"
	"github.com/kassandra-hq/kassandra/internal/middleware"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// Handler exposes the REST API. Access control lives in the services; the
// handler's job is decoding, dispatch and error mapping, so the assistant
// tools and these routes can never diverge in what they allow.
type Handler struct {
	Accounts  *accounts.Service
	Groups    *groups.Service
	Products  *products.Service
	Versions  *versions.Service
	Features  *features.Service
	Sprints   *sprints.Service
	Tasks     *tasks.Service
	Activity  *activitylog.Service
	Assistant *assistant.Service
	Stream    *StreamHub
	Log       *logger.Logger
}

// Register attaches all authenticated API routes to the router.
func (h *Handler) Register(api *mux.Router) {
	if h.Log == nil {
		h.Log = logger.NewDefault("httpapi")
	}

	api.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)

	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.updateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/admin", h.setAdmin).Methods(http.MethodPut)

	api.HandleFunc("/groups", h.listGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups", h.createGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}", h.getGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", h.updateGroup).Methods(http.MethodPatch)
	api.HandleFunc("/groups/{id}", h.deleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/members/{userID}", h.addGroupMember).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}/members/{userID}", h.removeGroupMember).Methods(http.MethodDelete)

	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.updateProduct).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/acl", h.listACL).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/acl", h.grantAccess).Methods(http.MethodPost)
	api.HandleFunc("/acl/{entryID}", h.revokeAccess).Methods(http.MethodDelete)

	api.HandleFunc("/products/{id}/versions", h.listVersions).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/versions", h.createVersion).Methods(http.MethodPost)
	api.HandleFunc("/versions/{id}", h.getVersion).Methods(http.MethodGet)
	api.HandleFunc("/versions/{id}", h.updateVersion).Methods(http.MethodPatch)
	api.HandleFunc("/versions/{id}", h.deleteVersion).Methods(http.MethodDelete)

	api.HandleFunc("/versions/{id}/features", h.listFeatures).Methods(http.MethodGet)
	api.HandleFunc("/versions/{id}/features", h.createFeature).Methods(http.MethodPost)
	api.HandleFunc("/features/{id}", h.getFeature).Methods(http.MethodGet)
	api.HandleFunc("/features/{id}", h.updateFeature).Methods(http.MethodPatch)
	api.HandleFunc("/features/{id}", h.deleteFeature).Methods(http.MethodDelete)

	api.HandleFunc("/features/{id}/sprints", h.listSprints).Methods(http.MethodGet)
	api.HandleFunc("/features/{id}/sprints", h.createSprint).Methods(http.MethodPost)
	api.HandleFunc("/sprints/{id}", h.getSprint).Methods(http.MethodGet)
	api.HandleFunc("/sprints/{id}", h.updateSprint).Methods(http.MethodPatch)
	api.HandleFunc("/sprints/{id}", h.deleteSprint).Methods(http.MethodDelete)

	api.HandleFunc("/sprints/{id}/tasks", h.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/sprints/{id}/tasks", h.createTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", h.getTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", h.updateTask).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)

	api.HandleFunc("/activity", h.listActivity).Methods(http.MethodGet)
	if h.Stream != nil {
		api.HandleFunc("/activity/stream", h.Stream.Serve).Methods(http.MethodGet)
	}
	api.HandleFunc("/assistant/chat", h.assistantChat).Methods(http.MethodPost)
}

// RegisterPublic attaches the unauthenticated auth routes.
func (h *Handler) RegisterPublic(root *mux.Router) {
	root.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	root.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
}

// writeServiceError maps service errors onto HTTP statuses. Access denials
// are 403 rather than 404: the caller proved the entity exists by naming it,
// but entities behind a broken or missing chain surface as 404 already.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.NotFound(w, "")
	case errors.Is(err, authz.ErrAccessDenied):
		httputil.Forbidden(w, "")
	case errors.Is(err, accounts.ErrUsernameTaken):
		httputil.Conflict(w, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

// --- auth --------------------------------------------------------------------

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var params accounts.RegisterParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	created, err := h.Accounts.Register(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	result, err := h.Accounts.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		httputil.Unauthorized(w, "invalid credentials")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 {
		token = token[7:] // strip "Bearer "
	}
	if err := h.Accounts.Logout(r.Context(), token); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

// --- users -------------------------------------------------------------------

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Accounts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var params accounts.UpdateProfileParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Accounts.UpdateProfile(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Admin bool `json:"admin"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	updated, err := h.Accounts.SetAdmin(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], payload.Admin)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// --- groups ------------------------------------------------------------------

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	list, err := h.Groups.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var params groups.CreateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	created, err := h.Groups.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.Groups.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	var params groups.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Groups.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.Groups.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addGroupMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Groups.AddMember(r.Context(), middleware.UserID(r.Context()), vars["id"], vars["userID"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Groups.RemoveMember(r.Context(), middleware.UserID(r.Context()), vars["id"], vars["userID"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- products ----------------------------------------------------------------

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var params products.CreateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	created, err := h.Products.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var params products.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Products.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- ACL ---------------------------------------------------------------------

func (h *Handler) listACL(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Products.ListACL(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) grantAccess(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string `json:"user_id"`
		GroupID string `json:"group_id"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	created, err := h.Products.Grant(r.Context(), middleware.UserID(r.Context()), product.ACLEntry{
		ProductID: mux.Vars(r)["id"],
		UserID:    payload.UserID,
		GroupID:   payload.GroupID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) revokeAccess(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Revoke(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["entryID"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- versions ----------------------------------------------------------------

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Versions.List(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	var params versions.CreateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	params.ProductID = mux.Vars(r)["id"]
	created, err := h.Versions.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.Versions.Get(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) updateVersion(w http.ResponseWriter, r *http.Request) {
	var params versions.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Versions.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteVersion(w http.ResponseWriter, r *http.Request) {
	if err := h.Versions.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- features ----------------------------------------------------------------

func (h *Handler) listFeatures(w http.ResponseWriter, r *http.Request) {
	list, err := h.Features.List(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createFeature(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string           `json:"name"`
		Description string           `json:"description"`
		Priority    feature.Priority `json:"priority"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	created, err := h.Features.Create(r.Context(), middleware.UserID(r.Context()), features.CreateParams{
		VersionID:   mux.Vars(r)["id"],
		Name:        payload.Name,
		Description: payload.Description,
		Priority:    payload.Priority,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getFeature(w http.ResponseWriter, r *http.Request) {
	f, err := h.Features.Get(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

func (h *Handler) updateFeature(w http.ResponseWriter, r *http.Request) {
	var params features.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Features.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.Features.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sprints -----------------------------------------------------------------

func (h *Handler) listSprints(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sprints.List(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createSprint(w http.ResponseWriter, r *http.Request) {
	var params sprints.CreateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	params.FeatureID = mux.Vars(r)["id"]
	created, err := h.Sprints.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getSprint(w http.ResponseWriter, r *http.Request) {
	sp, err := h.Sprints.Get(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sp)
}

func (h *Handler) updateSprint(w http.ResponseWriter, r *http.Request) {
	var params sprints.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Sprints.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteSprint(w http.ResponseWriter, r *http.Request) {
	if err := h.Sprints.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tasks -------------------------------------------------------------------

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.Tasks.List(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var params tasks.CreateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	params.SprintID = mux.Vars(r)["id"]
	created, err := h.Tasks.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var params tasks.UpdateParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}
	updated, err := h.Tasks.Update(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Delete(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- activity & assistant ----------------------------------------------------

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}
	events, err := h.Activity.List(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) assistantChat(w http.ResponseWriter, r *http.Request) {
	if h.Assistant == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}
	var payload struct {
		Messages []assistant.Message `json:"messages"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if len(payload.Messages) == 0 {
		httputil.BadRequest(w, "messages is required")
		return
	}
	reply, err := h.Assistant.Chat(r.Context(), middleware.UserID(r.Context()), payload.Messages)
	if err != nil {
		h.Log.WithError(err).Error("assistant chat")
		httputil.WriteError(w, http.StatusBadGateway, "assistant request failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
