package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassandra-hq/kassandra/internal/app/domain/product"
	"github.com/kassandra-hq/kassandra/internal/app/domain/user"
	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/app/services/authz"
	"github.com/kassandra-hq/kassandra/internal/app/services/features"
	"github.com/kassandra-hq/kassandra/internal/app/services/products"
	"github.com/kassandra-hq/kassandra/internal/app/services/sprints"
	"github.com/kassandra-hq/kassandra/internal/app/services/tasks"
	"github.com/kassandra-hq/kassandra/internal/app/services/versions"
	"github.com/kassandra-hq/kassandra/internal/app/storage"
	"github.com/kassandra-hq/kassandra/internal/app/storage/memory"
)

// fakeClient scripts the model's responses and records what it was sent.
type fakeClient struct {
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return openai.ChatCompletionResponse{}, ErrNoReply
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}
}

func toolResponse(name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       "call-1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

type env struct {
	store *memory.Store
	reg   *Registry
	alice user.User
	bob   user.User
	prod  product.Product
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	authzSvc := authz.New(store, store, store, store, store, store, store, store, nil, nil)
	activitySvc := activitylog.New(store, authzSvc, nil)
	svcs := Services{
		Products: products.New(store, store, authzSvc, activitySvc, nil),
		Versions: versions.New(store, authzSvc, activitySvc, nil),
		Features: features.New(store, authzSvc, activitySvc, nil),
		Sprints:  sprints.New(store, authzSvc, activitySvc, nil),
		Tasks:    tasks.New(store, store, authzSvc, activitySvc, nil),
		Activity: activitySvc,
	}

	alice, err := store.CreateUser(ctx, user.User{Username: "alice"})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, user.User{Username: "bob"})
	require.NoError(t, err)
	prod, err := store.CreateProduct(ctx, product.Product{Name: "Atlas", OwnerID: alice.ID})
	require.NoError(t, err)
	_, err = store.CreateACLEntry(ctx, product.ACLEntry{ProductID: prod.ID, UserID: alice.ID})
	require.NoError(t, err)

	return &env{store: store, reg: DefaultRegistry(svcs), alice: alice, bob: bob, prod: prod}
}

func newTestService(client chatClient, reg *Registry) *Service {
	return newWithClient(client, Config{Model: "test-model", MaxToolRounds: 4}, reg, nil, nil)
}

func TestChatPlainReply(t *testing.T) {
	e := newEnv(t)
	client := &fakeClient{responses: []openai.ChatCompletionResponse{textResponse("Hello!")}}
	svc := newTestService(client, e.reg)

	reply, err := svc.Chat(context.Background(), e.alice.ID, []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	// The tool definitions go out with every request.
	require.Len(t, client.requests, 1)
	assert.NotEmpty(t, client.requests[0].Tools)
	assert.Equal(t, openai.ChatMessageRoleSystem, client.requests[0].Messages[0].Role)
}

func TestChatToolRound(t *testing.T) {
	e := newEnv(t)
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		toolResponse("list_products", `{}`),
		textResponse("You can access Atlas."),
	}}
	svc := newTestService(client, e.reg)

	reply, err := svc.Chat(context.Background(), e.alice.ID, []Message{{Role: "user", Content: "what can I see?"}})
	require.NoError(t, err)
	assert.Equal(t, "You can access Atlas.", reply)

	// The second request carries the tool output with alice's product.
	require.Len(t, client.requests, 2)
	last := client.requests[1].Messages[len(client.requests[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Contains(t, last.Content, "Atlas")
}

func TestChatToolRespectsACL(t *testing.T) {
	e := newEnv(t)
	args, _ := json.Marshal(map[string]string{"product_id": e.prod.ID})
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		toolResponse("list_versions", string(args)),
		textResponse("You do not have access to that product."),
	}}
	svc := newTestService(client, e.reg)

	// Bob has no grant on Atlas: the tool reports the denial as output and
	// the conversation still completes.
	reply, err := svc.Chat(context.Background(), e.bob.ID, []Message{{Role: "user", Content: "show atlas versions"}})
	require.NoError(t, err)
	assert.Contains(t, reply, "do not have access")

	last := client.requests[1].Messages[len(client.requests[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.True(t, strings.HasPrefix(last.Content, "error:"), "denial surfaces as tool output, got %q", last.Content)
}

func TestChatToolMutationRecordsAssistantOrigin(t *testing.T) {
	e := newEnv(t)
	args, _ := json.Marshal(map[string]string{"name": "Borealis"})
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		toolResponse("create_product", string(args)),
		textResponse("Created Borealis."),
	}}
	svc := newTestService(client, e.reg)

	_, err := svc.Chat(context.Background(), e.alice.ID, []Message{{Role: "user", Content: "make a product Borealis"}})
	require.NoError(t, err)

	events, err := e.store.ListEvents(context.Background(), storage.ActivityFilter{})
	require.NoError(t, err)
	var found bool
	for _, ev := range events {
		if ev.Action == "create" && ev.EntityKind == "product" && ev.Detail == "Borealis" {
			found = true
			assert.Equal(t, "assistant", string(ev.Origin))
			assert.Equal(t, e.alice.ID, ev.ActorID)
		}
	}
	assert.True(t, found)
}

func TestChatUnknownTool(t *testing.T) {
	e := newEnv(t)
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		toolResponse("drop_database", `{}`),
		textResponse("I cannot do that."),
	}}
	svc := newTestService(client, e.reg)

	reply, err := svc.Chat(context.Background(), e.alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "I cannot do that.", reply)

	last := client.requests[1].Messages[len(client.requests[1].Messages)-1]
	assert.Contains(t, last.Content, "unknown tool")
}

func TestChatRoundLimit(t *testing.T) {
	e := newEnv(t)
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		toolResponse("list_products", `{}`),
		toolResponse("list_products", `{}`),
		toolResponse("list_products", `{}`),
		toolResponse("list_products", `{}`),
		toolResponse("list_products", `{}`),
	}}
	svc := newTestService(client, e.reg)

	_, err := svc.Chat(context.Background(), e.alice.ID, nil)
	assert.Error(t, err)
}
