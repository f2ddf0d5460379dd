package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/sprint"
	"github.com/kassandra-hq/kassandra/internal/app/domain/task"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/features"
	"github.com/kassandra-hq/kassandra/internal/app/services/products"
	"github.com/kassandra-hq/kassandra/internal/app/services/sprints"
	"github.com/kassandra-hq/kassandra/internal/app/services/tasks"
	"github.com/kassandra-hq/kassandra/internal/app/services/versions"
	"github.com/kassandra-hq/kassandra/internal/middleware"
)

// Handler executes a tool call. The context carries the acting user, so the
// services apply exactly the same access checks as the REST API.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool couples a function definition shown to the model with its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     Handler
}

// Registry holds the tools offered to the model.
type Registry struct {
	order  []string
	byName map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Tool{}}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.byName[t.Name] = t
}

// Definitions returns the tool list in OpenAI function format.
func (r *Registry) Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

// Dispatch runs a named tool. Failures, including access denials, come back
// as the tool's output so the model can relay them instead of the request
// aborting.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	t, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name), false
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		return "error: " + err.Error(), false
	}
	return out, true
}

// Services are the domain services the built-in tools operate on.
type Services struct {
	Products *products.Service
	Versions *versions.Service
	Features *features.Service
	Sprints  *sprints.Service
	Tasks    *tasks.Service
	Activity *activitylog.Service
}

func asJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

// DefaultRegistry builds the registry covering the product hierarchy. Every
// tool resolves the acting user from the context and goes through the same
// services as the REST handlers.
func DefaultRegistry(s Services) *Registry {
	r := NewRegistry()

	r.Register(Tool{
		Name:        "list_products",
		Description: "List the products the current user can access.",
		Parameters:  objectSchema(nil, map[string]interface{}{}),
		Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
			list, err := s.Products.List(ctx, middleware.UserID(ctx))
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	r.Register(Tool{
		Name:        "create_product",
		Description: "Create a new product owned by the current user.",
		Parameters: objectSchema([]string{"name"}, map[string]interface{}{
			"name":        strProp("Product name."),
			"description": strProp("Optional description."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params products.CreateParams
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			created, err := s.Products.Create(ctx, middleware.UserID(ctx), params)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "delete_product",
		Description: "Delete a product and everything under it: versions, features, sprints and tasks.",
		Parameters: objectSchema([]string{"product_id"}, map[string]interface{}{
			"product_id": strProp("ID of the product to delete."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				ProductID string `json:"product_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			if err := s.Products.Delete(ctx, middleware.UserID(ctx), params.ProductID); err != nil {
				return "", err
			}
			return `{"deleted":true}`, nil
		},
	})

	r.Register(Tool{
		Name:        "grant_access",
		Description: "Grant a user or a group access to a product. Set exactly one of user_id and group_id.",
		Parameters: objectSchema([]string{"product_id"}, map[string]interface{}{
			"product_id": strProp("Product to grant access on."),
			"user_id":    strProp("User to grant access to."),
			"group_id":   strProp("Group to grant access to."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var entry product.ACLEntry
			if err := json.Unmarshal(args, &entry); err != nil {
				return "", err
			}
			created, err := s.Products.Grant(ctx, middleware.UserID(ctx), entry)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "list_versions",
		Description: "List the versions of a product.",
		Parameters: objectSchema([]string{"product_id"}, map[string]interface{}{
			"product_id": strProp("Product whose versions to list."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				ProductID string `json:"product_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			list, err := s.Versions.List(ctx, middleware.UserID(ctx), params.ProductID)
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	r.Register(Tool{
		Name:        "create_version",
		Description: "Create a version under a product.",
		Parameters: objectSchema([]string{"product_id", "name"}, map[string]interface{}{
			"product_id":   strProp("Parent product ID."),
			"name":         strProp("Version name, e.g. \"2.1\"."),
			"release_date": strProp("Optional planned release date, RFC 3339."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				ProductID   string `json:"product_id"`
				Name        string `json:"name"`
				ReleaseDate string `json:"release_date"`
			}
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", err
			}
			params := versions.CreateParams{ProductID: raw.ProductID, Name: raw.Name}
			if raw.ReleaseDate != "" {
				ts, err := time.Parse(time.RFC3339, raw.ReleaseDate)
				if err != nil {
					return "", fmt.Errorf("release_date: %w", err)
				}
				params.ReleaseDate = &ts
			}
			created, err := s.Versions.Create(ctx, middleware.UserID(ctx), params)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "list_features",
		Description: "List the features of a version.",
		Parameters: objectSchema([]string{"version_id"}, map[string]interface{}{
			"version_id": strProp("Version whose features to list."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				VersionID string `json:"version_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			list, err := s.Features.List(ctx, middleware.UserID(ctx), params.VersionID)
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	r.Register(Tool{
		Name:        "create_feature",
		Description: "Create a feature under a version. Priority is low, medium or high.",
		Parameters: objectSchema([]string{"version_id", "name"}, map[string]interface{}{
			"version_id":  strProp("Parent version ID."),
			"name":        strProp("Feature name."),
			"description": strProp("Optional description."),
			"priority":    strProp("low, medium or high. Defaults to medium."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params features.CreateParams
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			created, err := s.Features.Create(ctx, middleware.UserID(ctx), params)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "list_sprints",
		Description: "List the sprints of a feature.",
		Parameters: objectSchema([]string{"feature_id"}, map[string]interface{}{
			"feature_id": strProp("Feature whose sprints to list."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				FeatureID string `json:"feature_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			list, err := s.Sprints.List(ctx, middleware.UserID(ctx), params.FeatureID)
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	r.Register(Tool{
		Name:        "create_sprint",
		Description: "Create a planned sprint under a feature.",
		Parameters: objectSchema([]string{"feature_id", "name"}, map[string]interface{}{
			"feature_id": strProp("Parent feature ID."),
			"name":       strProp("Sprint name."),
			"start_date": strProp("Optional start date, RFC 3339."),
			"end_date":   strProp("Optional end date, RFC 3339."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				FeatureID string `json:"feature_id"`
				Name      string `json:"name"`
				StartDate string `json:"start_date"`
				EndDate   string `json:"end_date"`
			}
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", err
			}
			params := sprints.CreateParams{FeatureID: raw.FeatureID, Name: raw.Name}
			if raw.StartDate != "" {
				ts, err := time.Parse(time.RFC3339, raw.StartDate)
				if err != nil {
					return "", fmt.Errorf("start_date: %w", err)
				}
				params.StartDate = &ts
			}
			if raw.EndDate != "" {
				ts, err := time.Parse(time.RFC3339, raw.EndDate)
				if err != nil {
					return "", fmt.Errorf("end_date: %w", err)
				}
				params.EndDate = &ts
			}
			created, err := s.Sprints.Create(ctx, middleware.UserID(ctx), params)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "update_sprint_status",
		Description: "Move a sprint along its workflow: planned to active, active to completed.",
		Parameters: objectSchema([]string{"sprint_id", "status"}, map[string]interface{}{
			"sprint_id": strProp("Sprint to update."),
			"status":    strProp("New status: active or completed."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				SprintID string        `json:"sprint_id"`
				Status   sprint.Status `json:"status"`
			}
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", err
			}
			updated, err := s.Sprints.Update(ctx, middleware.UserID(ctx), raw.SprintID, sprints.UpdateParams{Status: &raw.Status})
			if err != nil {
				return "", err
			}
			return asJSON(updated)
		},
	})

	r.Register(Tool{
		Name:        "list_tasks",
		Description: "List the tasks of a sprint.",
		Parameters: objectSchema([]string{"sprint_id"}, map[string]interface{}{
			"sprint_id": strProp("Sprint whose tasks to list."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				SprintID string `json:"sprint_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			list, err := s.Tasks.List(ctx, middleware.UserID(ctx), params.SprintID)
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	r.Register(Tool{
		Name:        "create_task",
		Description: "Create an open task under a sprint. The assignee must have access to the product.",
		Parameters: objectSchema([]string{"sprint_id", "title"}, map[string]interface{}{
			"sprint_id":      strProp("Parent sprint ID."),
			"title":          strProp("Task title."),
			"description":    strProp("Optional description."),
			"assignee_id":    strProp("Optional user to assign."),
			"estimate_hours": numProp("Optional effort estimate in hours."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params tasks.CreateParams
			if err := json.Unmarshal(args, &params); err != nil {
				return "", err
			}
			created, err := s.Tasks.Create(ctx, middleware.UserID(ctx), params)
			if err != nil {
				return "", err
			}
			return asJSON(created)
		},
	})

	r.Register(Tool{
		Name:        "update_task_status",
		Description: "Move a task along its workflow: open to in_progress, in_progress to done.",
		Parameters: objectSchema([]string{"task_id", "status"}, map[string]interface{}{
			"task_id": strProp("Task to update."),
			"status":  strProp("New status: in_progress or done."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				TaskID string      `json:"task_id"`
				Status task.Status `json:"status"`
			}
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", err
			}
			updated, err := s.Tasks.Update(ctx, middleware.UserID(ctx), raw.TaskID, tasks.UpdateParams{Status: &raw.Status})
			if err != nil {
				return "", err
			}
			return asJSON(updated)
		},
	})

	r.Register(Tool{
		Name:        "assign_task",
		Description: "Assign a task to a user, or pass an empty user_id to unassign.",
		Parameters: objectSchema([]string{"task_id"}, map[string]interface{}{
			"task_id": strProp("Task to assign."),
			"user_id": strProp("Assignee. Empty clears the assignment."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				TaskID string `json:"task_id"`
				UserID string `json:"user_id"`
			}
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", err
			}
			updated, err := s.Tasks.Update(ctx, middleware.UserID(ctx), raw.TaskID, tasks.UpdateParams{AssigneeID: &raw.UserID})
			if err != nil {
				return "", err
			}
			return asJSON(updated)
		},
	})

	r.Register(Tool{
		Name:        "recent_activity",
		Description: "Show recent changes across the products the current user can access.",
		Parameters: objectSchema(nil, map[string]interface{}{
			"limit": numProp("Maximum number of events, default 20."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var raw struct {
				Limit int `json:"limit"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &raw); err != nil {
					return "", err
				}
			}
			if raw.Limit <= 0 {
				raw.Limit = 20
			}
			list, err := s.Activity.List(ctx, middleware.UserID(ctx), raw.Limit)
			if err != nil {
				return "", err
			}
			return asJSON(list)
		},
	})

	return r
}
