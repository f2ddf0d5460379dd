package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kassandra-hq/kassandra/internal/app/domain/activity"
	"github.com/kassandra-hq/kassandra/internal/metrics"
	"github.com/kassandra-hq/kassandra/internal/middleware"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

const systemPrompt = `You are Kassandra's project assistant. You help users manage
products, versions, features, sprints and tasks through the provided tools.
You only see what the current user is allowed to see; when a tool reports an
access error, tell the user plainly that they lack access. Keep answers short
and concrete, and prefer calling tools over guessing IDs or state.`

// ErrNoReply is returned when the model produces no usable answer.
var ErrNoReply = errors.New("assistant produced no reply")

// chatClient is the slice of the OpenAI client the service uses. Tests plug
// in a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the assistant.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxToolRounds int
}

// Message is one turn of a conversation, role "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service runs tool-calling conversations against an OpenAI-compatible API.
// Every tool call executes as the requesting user, so the assistant can
// never see or change more than that user could through the REST API.
type Service struct {
	client    chatClient
	model     string
	maxRounds int
	registry  *Registry
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates the assistant service.
func New(cfg Config, registry *Registry, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assistant")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg, registry, m, log)
}

func newWithClient(client chatClient, cfg Config, registry *Registry, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assistant")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}
	return &Service{
		client:    client,
		model:     model,
		maxRounds: maxRounds,
		registry:  registry,
		metrics:   m,
		log:       log,
	}
}

// Chat runs one conversation turn for the user and returns the assistant's
// reply. The model may call tools repeatedly, up to the round limit.
func (s *Service) Chat(ctx context.Context, userID string, history []Message) (string, error) {
	ctx = middleware.WithUserID(ctx, userID)
	ctx = activity.WithOrigin(ctx, activity.OriginAssistant)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	for round := 0; round < s.maxRounds; round++ {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    s.model,
			Messages: messages,
			Tools:    s.registry.Definitions(),
		})
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoReply
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			if choice.Content == "" {
				return "", ErrNoReply
			}
			return choice.Content, nil
		}

		messages = append(messages, choice)
		for _, call := range choice.ToolCalls {
			output := s.runTool(ctx, userID, call)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    output,
			})
		}
	}
	return "", fmt.Errorf("tool call limit of %d rounds reached", s.maxRounds)
}

func (s *Service) runTool(ctx context.Context, userID string, call openai.ToolCall) string {
	output, ok := s.registry.Dispatch(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordToolCall(call.Function.Name, outcome)
	}
	s.log.WithField("tool", call.Function.Name).
		WithField("user_id", userID).
		WithField("outcome", outcome).
		Debug("tool call")
	return output
}
