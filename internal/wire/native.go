// Package wire defines the canonical request/response/message shapes for
// both backend wire protocols and the tunnel envelope (spec.md §4.1), plus
// gjson/sjson helpers for rewriting individual fields on a raw JSON body
// without a full unmarshal/marshal round trip (which would risk reordering
// fields or losing numeric precision on a pass-through body).
package wire

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// NativeChatRequest is the Ollama-style native chat/generate request shape.
type NativeChatRequest struct {
	Model    string              `json:"model"`
	Messages []NativeChatMessage `json:"messages,omitempty"`
	Prompt   string              `json:"prompt,omitempty"`
	Stream   *bool               `json:"stream,omitempty"`
	Options  *NativeOptions      `json:"options,omitempty"`
}

type NativeChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type NativeOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// NativeStreamFrame is one NDJSON line from a native streaming response.
// A frame missing `done` is treated as done=false (spec.md §4.7 edge case).
type NativeStreamFrame struct {
	Model              string `json:"model"`
	CreatedAt          string `json:"created_at,omitempty"`
	Message            *NativeChatMessage `json:"message,omitempty"`
	Response           string `json:"response,omitempty"`
	Done               bool   `json:"done"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

// ValidateNativeChat checks the minimal required shape: a model name and
// either messages or a prompt. Failures are returned as a *ValidationError
// naming every offending field path (spec.md §7).
func ValidateNativeChat(body []byte) error {
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
	hasMessages := gjson.GetBytes(body, "messages").IsArray()
	hasPrompt := gjson.GetBytes(body, "prompt").Exists()
	if !hasMessages && !hasPrompt {
		fields = append(fields,
			FieldError{Field: "messages", Message: "required unless \"prompt\" is set"},
			FieldError{Field: "prompt", Message: "required unless \"messages\" is set"},
		)
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "missing required field(s)", Fields: fields}
	}
	return nil
}

// RewriteModel replaces the top-level "model" field of a raw JSON body
// in place, preserving every other byte of the document. Used by C7 to
// rewrite the effective model just before dispatch.
func RewriteModel(body []byte, model string) ([]byte, error) {
	return sjson.SetBytes(body, "model", model)
}

// RewriteStream replaces the top-level "stream" field.
func RewriteStream(body []byte, stream bool) ([]byte, error) {
	return sjson.SetBytes(body, "stream", stream)
}

// NativeModelsResponse is the /api/tags response shape.
type NativeModelsResponse struct {
	Models []NativeModelEntry `json:"models"`
}

type NativeModelEntry struct {
	Name       string              `json:"name"`
	Size       int64               `json:"size,omitempty"`
	ModifiedAt string              `json:"modified_at,omitempty"`
	Digest     string              `json:"digest,omitempty"`
	Details    *NativeModelDetails `json:"details,omitempty"`
}

type NativeModelDetails struct {
	Format            string `json:"format,omitempty"`
	Family            string `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
}

// NativeVersionResponse is the /api/version response shape.
type NativeVersionResponse struct {
	Version string `json:"version"`
}

// DecodeNativeStreamFrame decodes one NDJSON line into a NativeStreamFrame.
func DecodeNativeStreamFrame(line []byte) (NativeStreamFrame, error) {
	var f NativeStreamFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return NativeStreamFrame{}, err
	}
	return f, nil
}
