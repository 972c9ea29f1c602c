package wire

import (
	"strings"

	"github.com/tidwall/gjson"
)

// IsOpenAIPath reports whether pathname indicates the caller wants
// OpenAI-compat framing regardless of which backend is current (spec.md
// §4.3: "When the caller pathname indicates OpenAI style (/openai/ or
// /v1/)..."). Shared by the adapters (to pick an upstream endpoint) and
// the proxy (to pick a frame normalization mode).
func IsOpenAIPath(pathname string) bool {
	return strings.Contains(pathname, "/openai/") || strings.Contains(pathname, "/v1/")
}

// OpenAIChatRequest is the OpenAI-compat chat/completions request shape.
type OpenAIChatRequest struct {
	Model            string              `json:"model"`
	Messages         []OpenAIChatMessage `json:"messages"`
	Stream           *bool               `json:"stream,omitempty"`
	Temperature      *float64            `json:"temperature,omitempty"`
	MaxTokens        *int                `json:"max_tokens,omitempty"`
	TopP             *float64            `json:"top_p,omitempty"`
	FrequencyPenalty *float64            `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64            `json:"presence_penalty,omitempty"`
}

type OpenAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChunk is one SSE `data: <json>` payload in a chat.completion.chunk
// stream (spec.md §4.7.F).
type OpenAIChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChunkChoice `json:"choices"`
	Usage   *OpenAIUsage       `json:"usage,omitempty"`
}

type OpenAIChunkChoice struct {
	Index        int              `json:"index"`
	Delta        OpenAIChunkDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

type OpenAIChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ValidateOpenAIChat checks the minimal required shape: a model name and a
// non-empty messages array. Failures are returned as a *ValidationError
// naming every offending field path (spec.md §7).
func ValidateOpenAIChat(body []byte) error {
	if !gjson.ValidBytes(body) {
		return &ValidationError{
			Message: "malformed json",
			Fields:  []FieldError{{Field: "", Message: "body is not valid JSON"}},
		}
	}
	var fields []FieldError
	model := gjson.GetBytes(body, "model")
	if !model.Exists() || model.String() == "" {
		fields = append(fields, FieldError{Field: "model", Message: "required"})
	}
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		fields = append(fields, FieldError{Field: "messages", Message: "required, must be a non-empty array"})
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "missing required field(s)", Fields: fields}
	}
	return nil
}

// SSETerminator is the fixed terminating frame written after the last data
// chunk on an OpenAI-compat SSE stream.
const SSETerminator = "data: [DONE]\n\n"

// FormatSSE frames one JSON payload as an SSE `data:` line.
func FormatSSE(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}

// OpenAIModelsResponse is the /v1/models response shape.
type OpenAIModelsResponse struct {
	Object string             `json:"object"`
	Data   []OpenAIModelEntry `json:"data"`
}

type OpenAIModelEntry struct {
	ID         string `json:"id"`
	Object     string `json:"object"`
	OwnedBy    string `json:"owned_by,omitempty"`
	Permission []any  `json:"permission,omitempty"`
}
