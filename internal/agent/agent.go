// Package agent drives the tool-orchestrated conversation loop: it calls
// the generation model with the tenant's history and the knowledge tools,
// executes requested tool calls, and feeds results back until the model
// produces a final answer or the turn ceiling is reached.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/log"
)

// ErrGenerationFailed indicates the generation provider was unreachable,
// returned a malformed response, or timed out.
var ErrGenerationFailed = errors.New("generation failed")

// FallbackResponse is returned when the model yields no usable text.
const FallbackResponse = "I'm sorry, I had trouble processing your request. Could you try again?"

// DefaultSystemPrompt instructs the model to ground answers in the
// knowledge base. Search-first is a behavioral contract the model is
// asked to follow, not a constraint the loop enforces.
const DefaultSystemPrompt = `You are a helpful assistant. Check your knowledge base before answering any questions. Only respond to questions using information from tool calls. If no relevant information is found in the tool calls, say that you have no specific information on the topic.

Use the search tool for every question before providing any response. Save important facts the user shares with the save tool, and use the update tool when new information replaces something already known, such as the user's name or preferences.`

// Engine is the slice of the knowledge pipeline the tools need.
type Engine interface {
	Retrieve(ctx context.Context, tenantID, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
	Ingest(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error)
	Upsert(ctx context.Context, tenantID, content, category string) (knowledge.Resource, error)
}

// Message is one prior turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles accepted in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config contains all required parameters for the Agent.
type Config struct {
	Genkit    *genkit.Genkit
	Engine    Engine
	Logger    log.Logger
	ModelName string

	// MaxTurns caps model generations per conversation turn. Zero
	// uses the default of 5.
	MaxTurns int

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// RetryConfig tunes model call retries; zero-value uses defaults.
	RetryConfig RetryConfig

	// RateLimiter proactively throttles model calls (nil = default).
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Engine == nil {
		return errors.New("knowledge engine is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Agent is stateless after construction; concurrent Converse calls for
// different tenants share nothing but the limiter and the stores.
type Agent struct {
	g            *genkit.Genkit
	engine       Engine
	logger       log.Logger
	modelName    string
	systemPrompt string
	maxTurns     int
	toolRefs     []ai.ToolRef
	retryConfig  RetryConfig
	rateLimiter  *rate.Limiter
}

// New creates an Agent and registers its tools with Genkit.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	return &Agent{
		g:            cfg.Genkit,
		engine:       cfg.Engine,
		logger:       cfg.Logger,
		modelName:    cfg.ModelName,
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
		toolRefs:     defineTools(cfg.Genkit),
		retryConfig:  retryConfig,
		rateLimiter:  rl,
	}, nil
}

// Converse runs one chat turn for a tenant: prior history plus the new
// user message go to the model, requested tools are executed against the
// tenant's knowledge base, and the model's final text comes back.
//
// systemPrompt overrides the agent's default when non-empty, letting
// callers run differently-voiced assistants over the same knowledge base.
// Tool side effects are not rolled back if a later generation fails.
func (a *Agent) Converse(ctx context.Context, tenantID, systemPrompt, userMessage string, history []Message) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenant id is required", knowledge.ErrValidation)
	}
	if strings.TrimSpace(userMessage) == "" {
		return "", fmt.Errorf("%w: message is required", knowledge.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = a.systemPrompt
	}

	messages, err := buildMessages(history, userMessage)
	if err != nil {
		return "", err
	}

	lastText := ""
	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.generateWithRetry(ctx,
			ai.WithModelName(a.modelName),
			ai.WithSystem(systemPrompt),
			ai.WithMessages(messages...),
			ai.WithTools(a.toolRefs...),
			ai.WithReturnToolRequests(true),
		)
		if err != nil {
			return FallbackResponse, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}

		if text := resp.Text(); text != "" {
			lastText = text
		}

		toolReqs := resp.ToolRequests()
		if len(toolReqs) == 0 {
			if lastText == "" {
				return FallbackResponse, nil
			}
			return lastText, nil
		}

		messages = append(messages, resp.Message)
		messages = append(messages, a.executeToolRequests(ctx, tenantID, turn, toolReqs))
	}

	// Ceiling reached. The loop terminates with whatever text the
	// model produced along the way rather than erroring out.
	a.logger.Warn("turn ceiling reached",
		"tenant_id", tenantID,
		"max_turns", a.maxTurns)
	if lastText == "" {
		return FallbackResponse, nil
	}
	return lastText, nil
}

// executeToolRequests runs each requested tool and packs the results into
// a single tool-role message for the next model turn.
func (a *Agent) executeToolRequests(ctx context.Context, tenantID string, turn int, reqs []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(reqs))
	for _, req := range reqs {
		var output string
		call, err := parseToolCall(req)
		if err != nil {
			a.logger.Warn("rejected tool request",
				"tenant_id", tenantID,
				"tool", req.Name,
				"error", err)
			output = fmt.Sprintf("Tool request could not be handled: %v.", err)
		} else {
			output = a.execute(ctx, tenantID, call)
		}

		a.logger.Debug("tool executed",
			"tenant_id", tenantID,
			"turn", turn,
			"tool", req.Name)

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: output,
		}))
	}
	return &ai.Message{Role: ai.RoleTool, Content: parts}
}

// buildMessages converts transport history to model messages and appends
// the new user message. Blank entries are dropped, matching the lenient
// treatment of malformed history elsewhere in the API.
func buildMessages(history []Message, userMessage string) ([]*ai.Message, error) {
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(content)))
		case RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(content)))
		default:
			return nil, fmt.Errorf("%w: unknown message role %q", knowledge.ErrValidation, m.Role)
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(userMessage)))
	return messages, nil
}
