package backend

import "context"

// Adapter is the unified service façade one concrete backend variant
// implements (spec.md §4.3). The backend identifier is fixed at
// construction and immutable thereafter.
type Adapter interface {
	// ID returns the fixed backend identifier this adapter was built for.
	ID() ID

	// BaseURL returns the adapter's configured base URL, trailing slash
	// stripped.
	BaseURL() string

	// Chat streams a chat completion into sink. Non-streaming callers
	// still go through this path with req.Stream == false; the adapter
	// performs a single request and writes the full body once.
	Chat(ctx context.Context, req ChatRequest, sink Sink, pathname string) error

	// Complete is the text-completion analogue of Chat.
	Complete(ctx context.Context, req CompletionRequest, sink Sink, pathname string) error

	// CheckStatus probes the backend's health endpoint. Failures are
	// swallowed and reported as false, never returned as an error.
	CheckStatus(ctx context.Context) bool

	// ListModels returns the backend's model inventory. Failures are
	// swallowed and reported as an empty list, never returned as an
	// error.
	ListModels(ctx context.Context) []Model

	// GetModelInfo returns detail for one model by name. Returns
	// ErrModelNotFound if absent.
	GetModelInfo(ctx context.Context, name string) (Model, error)

	// GenerateEmbeddings produces embeddings, preserving input order.
	GenerateEmbeddings(ctx context.Context, req EmbeddingsRequest) (EmbeddingsResponse, error)

	// GetVersion returns the backend's reported version. Returns
	// {Version: "unknown"} on failure, never an error.
	GetVersion(ctx context.Context) VersionInfo
}

// HealthProber is implemented by adapters that support an explicit,
// narrower health probe distinct from CheckStatus (used by the registry's
// detectBackends, which wants a bounded-timeout probe rather than the
// full adapter context).
type HealthProber interface {
	Probe(ctx context.Context) (available bool, version string, err error)
}
