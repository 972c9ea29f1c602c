package wire

import (
	"encoding/json"
	"fmt"
)

// NativeFrameToOpenAIChunk converts one native NDJSON frame into an
// OpenAI chat.completion.chunk, per spec.md §4.7.F. nowMillis/nowSeconds
// are passed in rather than read from time.Now so callers can keep the
// id/created fields deterministic in tests.
func NativeFrameToOpenAIChunk(f NativeStreamFrame, nowMillis, nowSeconds int64) OpenAIChunk {
	var finish *string
	if f.Done {
		s := "stop"
		finish = &s
	}

	var content string
	if f.Message != nil {
		content = f.Message.Content
	} else {
		content = f.Response
	}

	delta := OpenAIChunkDelta{Content: content}

	return OpenAIChunk{
		ID:      fmt.Sprintf("chatcmpl-%d", nowMillis),
		Object:  "chat.completion.chunk",
		Created: nowSeconds,
		Model:   f.Model,
		Choices: []OpenAIChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

// NativeResponseToOpenAI wraps a full (non-streaming) native response in
// the analogous OpenAI chat.completion shape.
type OpenAICompletion struct {
	ID      string                    `json:"id"`
	Object  string                    `json:"object"`
	Created int64                     `json:"created"`
	Model   string                    `json:"model"`
	Choices []OpenAICompletionChoice  `json:"choices"`
	Usage   OpenAIUsage               `json:"usage"`
}

type OpenAICompletionChoice struct {
	Index        int               `json:"index"`
	Message      OpenAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

func NativeResponseToOpenAI(f NativeStreamFrame, nowMillis, nowSeconds int64) OpenAICompletion {
	var content string
	if f.Message != nil {
		content = f.Message.Content
	} else {
		content = f.Response
	}
	return OpenAICompletion{
		ID:      fmt.Sprintf("chatcmpl-%d", nowMillis),
		Object:  "chat.completion",
		Created: nowSeconds,
		Model:   f.Model,
		Choices: []OpenAICompletionChoice{{
			Index:        0,
			Message:      OpenAIChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: OpenAIUsage{
			PromptTokens:     f.PromptEvalCount,
			CompletionTokens: f.EvalCount,
			TotalTokens:      f.PromptEvalCount + f.EvalCount,
		},
	}
}

// MarshalChunk is a small convenience wrapper so callers don't import
// encoding/json solely to serialize an OpenAIChunk before framing it as SSE.
func MarshalChunk(v any) ([]byte, error) {
	return json.Marshal(v)
}

// OpenAIEmbeddingResponse is the /v1/embeddings response shape the proxy
// aggregates Native's per-input embedding calls into (spec.md §4.7
// "aggregates into a single OpenAI-shaped response").
type OpenAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Data   []OpenAIEmbeddingData `json:"data"`
	Model  string                `json:"model"`
	Usage  OpenAIUsage           `json:"usage"`
}

type OpenAIEmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}
