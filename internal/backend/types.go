package backend

import "encoding/json"

// ChatMessage is one turn in a chat request, shared by both wire families
// after normalization by internal/wire.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the adapter-facing chat call. Raw carries the original
// request body so an adapter can pass it through largely unmodified,
// rewriting only the fields the spec requires (model, stream).
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Raw         json.RawMessage
}

// CompletionRequest is the adapter-facing text-completion call.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Raw         json.RawMessage
}

// EmbeddingsRequest is the adapter-facing embeddings call. Inputs
// preserves caller order; GenerateEmbeddings must preserve it in the
// response too.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingsResponse mirrors the OpenAI embeddings shape regardless of
// which backend produced it (C7 normalizes Native responses into this
// shape, per spec.md §4.7.F).
type EmbeddingsResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
	Usage Usage       `json:"usage"`
}

// Embedding is one vector in an EmbeddingsResponse, at its caller-supplied
// input index.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Usage carries token accounting populated by C7 on terminal task
// transitions.
type Usage struct {
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// Model is one entry in a backend's model inventory (spec.md §3 "Model
// inventory entry").
type Model struct {
	Name       string          `json:"name"`
	Size       int64           `json:"size,omitempty"`
	Family     string          `json:"family,omitempty"`
	Parameters string          `json:"parameters,omitempty"`
	ModifiedAt string          `json:"modified_at,omitempty"`
	Digest     string          `json:"digest,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// VersionInfo is the result of GetVersion.
type VersionInfo struct {
	Version string `json:"version"`
	Backend ID     `json:"backend"`
}

// Sink is the caller-facing output stream for a streaming call: either the
// local HTTP response body or a tunnel stream frame writer (spec.md
// GLOSSARY "Sink"). Write is called once per upstream chunk, in arrival
// order; Close signals no further chunks will be written.
type Sink interface {
	Write(chunk []byte) error
	Close() error
}
