// Package proxy implements the Streaming Proxy & Task Engine (spec.md
// §4.7 / C7): the per-request dispatcher that owns task records, rewrites
// the effective model, forwards chat/completion calls through the current
// backend adapter, normalizes wire formats, and emits usage events.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/wire"
)

// Kind distinguishes chat from completion requests; both share the same
// dispatch lifecycle (spec.md §4.7).
type Kind int

const (
	KindChat Kind = iota
	KindComplete
)

// BackendSource resolves the currently active backend and its adapter
// (satisfied by *registry.Registry).
type BackendSource interface {
	Current(ctx context.Context) backend.ID
	Adapter(id backend.ID) backend.Adapter
}

// ModelResolver resolves the effective model for a request (satisfied by
// *resolver.Resolver).
type ModelResolver interface {
	GetEffectiveModel(ctx context.Context, id backend.ID, requested string) string
}

// Request is the (request, pathname) half of the "(request, sink,
// pathname) triple plus the chosen adapter" spec.md §4.7 describes.
type Request struct {
	Kind     Kind
	Body     []byte
	Stream   bool
	Model    string
	Pathname string
	DeviceID string
}

// StreamHeaders is the Content-Type/caching header set the caller (the
// HTTP surface) should apply before writing any bytes, chosen per spec.md
// §4.7 step 4.a.
type StreamHeaders struct {
	ContentType  string
	CacheControl string
	Connection   string
}

// Engine owns every Task for its lifetime and drives the per-request
// dispatch described in spec.md §4.7.
type Engine struct {
	backends BackendSource
	models   ModelResolver
	metrics  *metrics.Registry
	logger   *slog.Logger

	tasks sync.Map // taskID string -> *Task
	now   func() time.Time
}

// New constructs an Engine. metricsReg/logger may be nil.
func New(backends BackendSource, models ModelResolver, metricsReg *metrics.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backends: backends, models: models, metrics: metricsReg, logger: logger, now: time.Now}
}

// Task returns the task record for id, if still tracked.
func (e *Engine) Task(id string) (*Task, bool) {
	v, ok := e.tasks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// HeadersFor implements spec.md §4.7 step 4.a's content-type selection.
func HeadersFor(currentBackend backend.ID, pathname string) StreamHeaders {
	if wire.IsOpenAIPath(pathname) || currentBackend == backend.OpenAICompat {
		return StreamHeaders{ContentType: "text/event-stream", CacheControl: "no-cache", Connection: "keep-alive"}
	}
	return StreamHeaders{ContentType: "application/x-ndjson"}
}

// Dispatch implements the full lifecycle of spec.md §4.7 steps 1-6 for
// chat/completion requests. Pre-dispatch validation/task-creation
// failures never create a running task (spec.md §4.7 "Failure
// semantics").
func (e *Engine) Dispatch(ctx context.Context, req Request, sink backend.Sink) (*Task, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	currentID := e.backends.Current(ctx)
	if currentID == "" {
		return nil, fmt.Errorf("proxy: no backend currently available")
	}
	adapter := e.backends.Adapter(currentID)
	if adapter == nil {
		return nil, fmt.Errorf("proxy: backend %q is not registered", currentID)
	}

	effectiveModel := e.models.GetEffectiveModel(ctx, currentID, req.Model)
	body, err := wire.RewriteModel(req.Body, effectiveModel)
	if err != nil {
		return nil, fmt.Errorf("proxy: rewrite model field: %w", err)
	}

	task, err := e.newTask(effectiveModel, req.DeviceID)
	if err != nil {
		return nil, err
	}
	e.tasks.Store(task.ID, task)
	task.State = Running

	if e.metrics != nil {
		e.metrics.TasksInFlight.WithLabelValues(string(currentID)).Inc()
	}

	mode := determineFrameMode(currentID, req.Pathname, req.Stream)
	wrapped := &taskSink{underlying: sink, task: task, engine: e, mode: mode, backendID: currentID}

	var dispatchErr error
	switch req.Kind {
	case KindChat:
		dispatchErr = adapter.Chat(ctx, backend.ChatRequest{Raw: body, Stream: req.Stream}, wrapped, req.Pathname)
	case KindComplete:
		dispatchErr = adapter.Complete(ctx, backend.CompletionRequest{Raw: body, Stream: req.Stream}, wrapped, req.Pathname)
	default:
		dispatchErr = fmt.Errorf("proxy: unknown request kind %d", req.Kind)
	}

	if dispatchErr != nil {
		// The adapter may not have called Close on a pre-dispatch error
		// (e.g. connection refused before any bytes were written); ensure
		// the task still reaches a terminal state exactly once.
		e.finish(task, Failed, dispatchErr)
		if e.metrics != nil {
			e.metrics.TasksInFlight.WithLabelValues(string(currentID)).Dec()
		}
		return task, dispatchErr
	}

	if e.metrics != nil {
		e.metrics.TasksInFlight.WithLabelValues(string(currentID)).Dec()
	}
	return task, nil
}

// DispatchEmbeddings implements spec.md §4.7 "For embeddings on Native,
// the proxy fans out one backend call per input item... and aggregates
// into a single OpenAI-shaped response." The per-item fan-out itself
// lives in the adapter (backend.Adapter.GenerateEmbeddings); this layer
// owns the task record and the OpenAI response shape.
func (e *Engine) DispatchEmbeddings(ctx context.Context, req backend.EmbeddingsRequest, deviceID string) (wire.OpenAIEmbeddingResponse, *Task, error) {
	currentID := e.backends.Current(ctx)
	if currentID == "" {
		return wire.OpenAIEmbeddingResponse{}, nil, fmt.Errorf("proxy: no backend currently available")
	}
	adapter := e.backends.Adapter(currentID)
	if adapter == nil {
		return wire.OpenAIEmbeddingResponse{}, nil, fmt.Errorf("proxy: backend %q is not registered", currentID)
	}

	effectiveModel := e.models.GetEffectiveModel(ctx, currentID, req.Model)
	req.Model = effectiveModel

	task, err := e.newTask(effectiveModel, deviceID)
	if err != nil {
		return wire.OpenAIEmbeddingResponse{}, nil, err
	}
	e.tasks.Store(task.ID, task)
	task.State = Running

	result, err := adapter.GenerateEmbeddings(ctx, req)
	if err != nil {
		e.finish(task, Failed, err)
		return wire.OpenAIEmbeddingResponse{}, task, err
	}

	data := make([]wire.OpenAIEmbeddingData, len(result.Data))
	for i, d := range result.Data {
		data[i] = wire.OpenAIEmbeddingData{Object: "embedding", Index: d.Index, Embedding: d.Embedding}
	}
	e.finish(task, Completed, nil)
	return wire.OpenAIEmbeddingResponse{Object: "list", Data: data, Model: effectiveModel}, task, nil
}

func (e *Engine) validate(req Request) error {
	switch req.Kind {
	case KindChat:
		if wire.IsOpenAIPath(req.Pathname) {
			return wire.ValidateOpenAIChat(req.Body)
		}
		return wire.ValidateNativeChat(req.Body)
	case KindComplete:
		if wire.IsOpenAIPath(req.Pathname) {
			return wire.ValidateOpenAIChat(req.Body)
		}
		return wire.ValidateNativeChat(req.Body)
	default:
		return fmt.Errorf("proxy: unknown request kind %d", req.Kind)
	}
}

func (e *Engine) newTask(model, deviceID string) (*Task, error) {
	id, err := generateTaskID(e.now())
	if err != nil {
		return nil, err
	}
	return &Task{ID: id, Model: model, DeviceID: deviceID, State: Pending, CreatedAt: e.now()}, nil
}

// finish transitions task to its terminal state exactly once and emits
// the usage event + metrics spec.md §4.7 step 6 requires ("emit a usage
// event (prompt_tokens, completion_tokens, task identifiers) for
// downstream accounting"). Earnings computation itself is out of scope
// for this node (DESIGN.md Open Question decision): only the usage event
// is emitted.
func (e *Engine) finish(task *Task, state State, err error) {
	if task.State == Completed || task.State == Failed {
		return
	}
	task.State = state
	task.Err = err

	backendID := e.backends.Current(context.Background())
	if e.metrics != nil {
		e.metrics.TasksTotal.WithLabelValues(string(backendID), string(state)).Inc()
		e.metrics.TaskDuration.WithLabelValues(string(backendID)).Observe(e.now().Sub(task.CreatedAt).Seconds())
		e.metrics.UpstreamTokens.WithLabelValues(string(backendID), "prompt").Add(float64(task.Usage.PromptEvalCount))
		e.metrics.UpstreamTokens.WithLabelValues(string(backendID), "completion").Add(float64(task.Usage.EvalCount))
	}

	logLevel := slog.LevelInfo
	if state == Failed {
		logLevel = slog.LevelWarn
	}
	e.logger.Log(context.Background(), logLevel, "usage.completed",
		"task_id", task.ID,
		"model", task.Model,
		"state", string(state),
		"prompt_tokens", task.Usage.PromptEvalCount,
		"completion_tokens", task.Usage.EvalCount,
		"error", errString(err),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
