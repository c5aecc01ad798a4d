package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Tool names the model can request. The set is closed: the loop matches
// on these variants rather than dispatching dynamically by name.
const (
	toolSearch = "search"
	toolSave   = "save"
	toolUpdate = "update"
)

// Textual fallbacks returned as tool results when a tool fails or finds
// nothing. Tool failure is recoverable and must never abort the loop.
const (
	msgNoResults    = "No relevant information found."
	msgSearchFailed = "Unable to search the knowledge base."
	msgSaveFailed   = "Unable to save the information."
	msgUpdateFailed = "Unable to update the information."
)

// searchResultCap bounds how many matches are folded into one tool result.
const searchResultCap = 3

// SearchInput asks the knowledge base a question.
type SearchInput struct {
	Question string `json:"question" jsonschema_description:"the user's question"`
}

// SaveInput appends a new durable fact to the knowledge base.
type SaveInput struct {
	Content  string `json:"content" jsonschema_description:"the important information to save"`
	Category string `json:"category,omitempty" jsonschema_description:"category or type of information (e.g. company_info, preferences, facts)"`
}

// UpdateInput replaces the current fact in a category.
type UpdateInput struct {
	Content  string `json:"content" jsonschema_description:"the information to save or update, with full context"`
	Category string `json:"category" jsonschema_description:"category whose existing information this replaces (e.g. user_name, user_location)"`
}

// toolCall is the decoded form of a model tool request: exactly one of
// the typed inputs is populated, selected by name.
type toolCall struct {
	name   string
	search SearchInput
	save   SaveInput
	update UpdateInput
}

// parseToolCall decodes a raw tool request into the closed tool union.
// Unknown names and undecodable inputs are errors; the caller converts
// them to a textual tool result, not a loop failure.
func parseToolCall(req *ai.ToolRequest) (toolCall, error) {
	call := toolCall{name: req.Name}

	raw, err := json.Marshal(req.Input)
	if err != nil {
		return toolCall{}, fmt.Errorf("encoding input for tool %q: %w", req.Name, err)
	}

	switch req.Name {
	case toolSearch:
		err = json.Unmarshal(raw, &call.search)
	case toolSave:
		err = json.Unmarshal(raw, &call.save)
	case toolUpdate:
		err = json.Unmarshal(raw, &call.update)
	default:
		return toolCall{}, fmt.Errorf("unknown tool %q", req.Name)
	}
	if err != nil {
		return toolCall{}, fmt.Errorf("decoding input for tool %q: %w", req.Name, err)
	}
	return call, nil
}

// execute runs one tool call for a tenant and always returns a textual
// result the model can read. Failures become fallback messages.
func (a *Agent) execute(ctx context.Context, tenantID string, call toolCall) string {
	switch call.name {
	case toolSearch:
		return a.execSearch(ctx, tenantID, call.search)
	case toolSave:
		return a.execSave(ctx, tenantID, call.save)
	case toolUpdate:
		return a.execUpdate(ctx, tenantID, call.update)
	default:
		// parseToolCall already rejects unknown names.
		return fmt.Sprintf("Unknown tool %q.", call.name)
	}
}

func (a *Agent) execSearch(ctx context.Context, tenantID string, in SearchInput) string {
	matches, err := a.engine.Retrieve(ctx, tenantID, in.Question)
	if err != nil {
		a.logger.Warn("search tool failed", "tenant_id", tenantID, "error", err)
		return msgSearchFailed
	}
	if len(matches) == 0 {
		return msgNoResults
	}

	var sb strings.Builder
	for i, m := range matches {
		if i == searchResultCap {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func (a *Agent) execSave(ctx context.Context, tenantID string, in SaveInput) string {
	if _, err := a.engine.Ingest(ctx, tenantID, in.Content, in.Category); err != nil {
		a.logger.Warn("save tool failed", "tenant_id", tenantID, "error", err)
		return msgSaveFailed
	}
	return "Information saved to the knowledge base."
}

func (a *Agent) execUpdate(ctx context.Context, tenantID string, in UpdateInput) string {
	if _, err := a.engine.Upsert(ctx, tenantID, in.Content, in.Category); err != nil {
		a.logger.Warn("update tool failed", "tenant_id", tenantID, "error", err)
		return msgUpdateFailed
	}
	return fmt.Sprintf("Information %q updated in the knowledge base.", in.Category)
}

// defineTools registers the three tools so the model sees their schemas.
// The loop requests raw tool calls back and executes them itself, so the
// registered bodies are never invoked in normal operation.
func defineTools(g *genkit.Genkit) []ai.ToolRef {
	search := genkit.DefineTool(g, toolSearch,
		"get information from your knowledge base to answer questions.",
		func(ctx *ai.ToolContext, input SearchInput) (string, error) {
			return "", fmt.Errorf("tool %q is dispatched by the conversation loop", toolSearch)
		})
	save := genkit.DefineTool(g, toolSave,
		"Save important information from user messages to the knowledge base for future reference",
		func(ctx *ai.ToolContext, input SaveInput) (string, error) {
			return "", fmt.Errorf("tool %q is dispatched by the conversation loop", toolSave)
		})
	update := genkit.DefineTool(g, toolUpdate,
		"Update or save information that replaces existing data in the same category (e.g. user name, preferences, personal details)",
		func(ctx *ai.ToolContext, input UpdateInput) (string, error) {
			return "", fmt.Errorf("tool %q is dispatched by the conversation loop", toolUpdate)
		})

	return []ai.ToolRef{search, save, update}
}
