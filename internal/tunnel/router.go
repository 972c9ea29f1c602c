package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/security"
	"github.com/meshnode/meshnode/internal/wire"
)

// ErrTunnelBusy is returned by Send when the bounded write queue is full
// for longer than writeQueueTimeout (spec.md §5 "Shared resources": "channel
// full ⇒ caller blocks (backpressure) or gets a TunnelBusy error after 1 s").
var ErrTunnelBusy = errors.New("tunnel: write queue busy")

const (
	writeQueueSize    = 64
	writeQueueTimeout = 1 * time.Second
)

// ProxyEngine is the subset of *proxy.Engine the router drives remote
// invocations through.
type ProxyEngine interface {
	Dispatch(ctx context.Context, req proxy.Request, sink backend.Sink) (*proxy.Task, error)
	DispatchEmbeddings(ctx context.Context, req backend.EmbeddingsRequest, deviceID string) (wire.OpenAIEmbeddingResponse, *proxy.Task, error)
}

// BackendSource resolves the currently active backend for model reporting
// (satisfied by *registry.Registry).
type BackendSource interface {
	Current(ctx context.Context) backend.ID
	Adapter(id backend.ID) backend.Adapter
}

// Router is a single-threaded dispatcher over one duplex Peer (spec.md
// §4.8), grounded on the teacher's device-pairing read loop
// (internal/node/manager.go's readLoop/sendEnvelope) generalized from a
// fixed device-tool message set to the tunnel's closed taxonomy.
type Router struct {
	peer     Peer
	engine   ProxyEngine
	backends BackendSource
	deviceID string
	logger   *slog.Logger
	metrics  *metrics.Registry

	writeCh chan []byte
	active  sync.Map // taskID string -> context.CancelFunc

	limiter *security.RateLimiter
	audit   *security.AuditLogger

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Router. metricsReg/logger may be nil.
func New(peer Peer, engine ProxyEngine, backends BackendSource, deviceID string, metricsReg *metrics.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		peer:     peer,
		engine:   engine,
		backends: backends,
		deviceID: deviceID,
		logger:   logger,
		metrics:  metricsReg,
		limiter:  security.NewRateLimiter(security.RateLimitConfig{}),
		writeCh:  make(chan []byte, writeQueueSize),
		closed:   make(chan struct{}),
	}
}

// WithSecurity attaches the rate limiter and audit logger serving this
// router's peer connection (SPEC_FULL.md §7). Both are optional; a nil
// audit logger simply skips event recording.
func (r *Router) WithSecurity(limiter *security.RateLimiter, audit *security.AuditLogger) *Router {
	if limiter != nil {
		r.limiter = limiter
	}
	r.audit = audit
	return r
}

// Run drives the read loop and the serialized writer until ctx is
// cancelled or the peer is closed. It blocks; callers should run it in its
// own goroutine.
func (r *Router) Run(ctx context.Context) error {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		r.writeLoop(ctx)
	}()

	err := r.readLoop(ctx)

	r.closeOnce.Do(func() { close(r.closed) })
	r.active.Range(func(_, v any) bool {
		v.(context.CancelFunc)()
		return true
	})
	<-writeDone
	return err
}

// writeLoop is the tunnel's single serialized writer (spec.md §5 "Tunnel
// write side: a single serialized writer").
func (r *Router) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		case data := <-r.writeCh:
			if err := r.peer.WriteMessage(ctx, data); err != nil {
				r.logger.Warn("tunnel: write failed", "error", err)
				return
			}
		}
	}
}

// Send enqueues an envelope for the serialized writer. Blocks the caller
// (backpressure) up to writeQueueTimeout, then returns ErrTunnelBusy
// (spec.md §5 "policy is caller-chosen" — this router chooses the
// bounded-wait-then-error policy).
func (r *Router) Send(ctx context.Context, env wire.Envelope) error {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("tunnel: encode envelope: %w", err)
	}
	timer := time.NewTimer(writeQueueTimeout)
	defer timer.Stop()
	select {
	case r.writeCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTunnelBusy
	}
}

// readLoop reads envelopes off the peer and dispatches them. Because the
// router is single-threaded per spec.md §4.8 ("A single-threaded
// dispatcher"), handleEnvelope itself never blocks the loop on upstream
// I/O — long-running work (chat/completion/embeddings dispatch) runs in
// its own goroutine per taskId, while reads continue. Per-sink
// backpressure (pausing reads until a *specific* sink drains) is therefore
// realized inside tunnelSink.Write, which blocks the dispatch goroutine
// it belongs to via Send's bounded wait, not the shared read loop.
func (r *Router) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := r.peer.ReadMessage(ctx)
		if err != nil {
			return err
		}
		if err := security.ValidateMessageSize(data, 0); err != nil {
			r.logger.Warn("tunnel: dropping oversized message", "error", err)
			continue
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			r.logger.Warn("tunnel: dropping invalid message", "error", err)
			continue
		}

		r.handleEnvelope(ctx, env)
	}
}

func (r *Router) handleEnvelope(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.Ping:
		r.replyPong(ctx, env)
	case wire.Pong:
		// Liveness ack; nothing to do.
	case wire.ContextPing:
		r.replyContextPong(ctx, env)
	case wire.ContextPong:
		// Liveness ack within request scope; nothing to do.
	case wire.DeviceRegisterResponse, wire.DeviceRegisterAck:
		r.logger.Info("tunnel: device registration acknowledged", "type", env.Type)
	case wire.DeviceModelReportResponse:
		r.logger.Debug("tunnel: model report acknowledged")
	case wire.DeviceHeartbeatReportResponse:
		r.logger.Debug("tunnel: heartbeat acknowledged")
	case wire.TaskRequest:
		if r.rateLimited(ctx, env, wire.TaskResponse) {
			return
		}
		r.dispatchEmbeddingsOrProxy(ctx, env)
	case wire.ChatRequestStream:
		if r.rateLimited(ctx, env, wire.ChatResponseStream) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindChat, true, "/v1/chat/completions", wire.ChatResponseStream)
	case wire.ChatRequestNoStream:
		if r.rateLimited(ctx, env, wire.ChatResponse) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindChat, false, "/v1/chat/completions", wire.ChatResponse)
	case wire.CompletionRequestStream:
		if r.rateLimited(ctx, env, wire.CompletionResponseStream) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindComplete, true, "/v1/completions", wire.CompletionResponseStream)
	case wire.CompletionRequestNoStream:
		if r.rateLimited(ctx, env, wire.CompletionResponse) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindComplete, false, "/v1/completions", wire.CompletionResponse)
	case wire.GenerateRequestStream:
		if r.rateLimited(ctx, env, wire.TaskStream) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindComplete, true, "/api/generate", wire.TaskStream)
	case wire.GenerateRequestNoStream:
		if r.rateLimited(ctx, env, wire.TaskResponse) {
			return
		}
		r.dispatchChatOrCompletion(ctx, env, proxy.KindComplete, false, "/api/generate", wire.TaskResponse)
	case wire.ProxyRequest:
		if r.rateLimited(ctx, env, wire.TaskResponse) {
			return
		}
		r.dispatchEmbeddingsOrProxy(ctx, env)
	default:
		r.logger.Warn("tunnel: unhandled message type", "type", env.Type)
	}
}

// rateLimited enforces the per-peer tunnel_message bucket (spec.md §6
// tunnel_messages_per_min) on every task-creating envelope. On rejection it
// replies with a task error frame and records an audit event, then reports
// true so the caller skips dispatch.
func (r *Router) rateLimited(ctx context.Context, env wire.Envelope, responseType wire.MessageType) bool {
	if err := r.limiter.Allow("tunnel_message"); err != nil {
		var payload wire.TaskPayload
		_ = json.Unmarshal(env.Payload, &payload)
		r.sendTaskError(ctx, env.From, payload.TaskID, responseType, err)
		if r.audit != nil {
			r.audit.Log(security.AuditEvent{
				Type:   security.EventRateLimit,
				PeerID: env.From,
				TaskID: payload.TaskID,
				Detail: "tunnel_message",
			})
		}
		return true
	}
	return false
}

func (r *Router) replyPong(ctx context.Context, env wire.Envelope) {
	_ = r.Send(ctx, wire.Envelope{Type: wire.Pong, From: r.deviceID, To: env.From, Timestamp: time.Now().Unix()})
}

func (r *Router) replyContextPong(ctx context.Context, env wire.Envelope) {
	var ping wire.ContextPingPayload
	if err := json.Unmarshal(env.Payload, &ping); err != nil {
		r.logger.Warn("tunnel: invalid context-ping payload", "error", err)
		return
	}
	payload, _ := json.Marshal(wire.ContextPingPayload{RequestID: ping.RequestID, Timestamp: time.Now().Unix()})
	_ = r.Send(ctx, wire.Envelope{Type: wire.ContextPong, From: r.deviceID, To: env.From, Payload: payload, Timestamp: time.Now().Unix()})
}

// dispatchChatOrCompletion handles the chat/completion/generate request
// families: each carries a TaskPayload whose Data is the wire-format
// request body, correlated by TaskID (spec.md §4.8 "Routing rules").
func (r *Router) dispatchChatOrCompletion(ctx context.Context, env wire.Envelope, kind proxy.Kind, stream bool, pathname string, responseType wire.MessageType) {
	var payload wire.TaskPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		r.logger.Warn("tunnel: invalid task payload", "type", env.Type, "error", err)
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	r.active.Store(payload.TaskID, cancel)

	sink := &tunnelSink{
		router:       r,
		taskID:       payload.TaskID,
		peerID:       env.From,
		responseType: responseType,
		cancel:       cancel,
	}

	go func() {
		defer func() {
			r.active.Delete(payload.TaskID)
			cancel()
		}()
		req := proxy.Request{
			Kind: kind, Body: payload.Data, Stream: stream,
			Model: payload.Model, Pathname: pathname, DeviceID: r.deviceID,
		}
		if _, err := r.engine.Dispatch(taskCtx, req, sink); err != nil {
			r.logger.Warn("tunnel: dispatch failed", "task_id", payload.TaskID, "error", err)
		}
	}()
}

// dispatchEmbeddingsOrProxy handles task_request/proxy_request: spec.md
// §4.8 describes task_request as "remote invocation of
// chat/completion/embeddings/proxy" without a dedicated embeddings
// message family, so embeddings and arbitrary-proxy calls share this
// generic envelope, distinguished by whether payload.Data decodes as an
// embeddings input list (DESIGN.md Open Question decision).
func (r *Router) dispatchEmbeddingsOrProxy(ctx context.Context, env wire.Envelope) {
	var payload wire.TaskPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		r.logger.Warn("tunnel: invalid task payload", "type", env.Type, "error", err)
		return
	}

	var embReq struct {
		Input []string `json:"input"`
	}
	if err := json.Unmarshal(payload.Data, &embReq); err == nil && len(embReq.Input) > 0 {
		go func() {
			resp, _, err := r.engine.DispatchEmbeddings(ctx, backend.EmbeddingsRequest{Model: payload.Model, Input: embReq.Input}, r.deviceID)
			if err != nil {
				r.sendTaskError(ctx, env.From, payload.TaskID, wire.TaskResponse, err)
				return
			}
			data, _ := json.Marshal(resp)
			r.sendTaskFrame(ctx, env.From, payload.TaskID, wire.TaskResponse, data, true)
		}()
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	r.active.Store(payload.TaskID, cancel)
	sink := &tunnelSink{router: r, taskID: payload.TaskID, peerID: env.From, responseType: wire.TaskStream, cancel: cancel}
	go func() {
		defer func() {
			r.active.Delete(payload.TaskID)
			cancel()
		}()
		req := proxy.Request{Kind: proxy.KindChat, Body: payload.Data, Stream: true, Model: payload.Model, Pathname: "/api/chat", DeviceID: r.deviceID}
		if _, err := r.engine.Dispatch(taskCtx, req, sink); err != nil {
			r.logger.Warn("tunnel: proxy_request dispatch failed", "task_id", payload.TaskID, "error", err)
		}
	}()
}

func (r *Router) sendTaskFrame(ctx context.Context, to, taskID string, msgType wire.MessageType, data json.RawMessage, done bool) {
	payload, _ := json.Marshal(wire.TaskPayload{TaskID: taskID, Data: data, Done: done})
	if err := r.Send(ctx, wire.Envelope{Type: msgType, From: r.deviceID, To: to, Payload: payload, Timestamp: time.Now().Unix()}); err != nil {
		r.logger.Warn("tunnel: send task frame failed", "task_id", taskID, "error", err)
	}
}

func (r *Router) sendTaskError(ctx context.Context, to, taskID string, msgType wire.MessageType, err error) {
	payload, _ := json.Marshal(wire.TaskPayload{TaskID: taskID, Done: true, Error: err.Error()})
	_ = r.Send(ctx, wire.Envelope{Type: msgType, From: r.deviceID, To: to, Payload: payload, Timestamp: time.Now().Unix()})
}

// ReportModels sends device_model_report for the currently active backend
// (spec.md §4.8 "publish inventory derived from C6").
func (r *Router) ReportModels(ctx context.Context, to string) error {
	id := r.backends.Current(ctx)
	adapter := r.backends.Adapter(id)
	if adapter == nil {
		return fmt.Errorf("tunnel: no adapter for current backend %q", id)
	}
	models := adapter.ListModels(ctx)
	wireModels := make([]wire.Model, len(models))
	for i, m := range models {
		wireModels[i] = wire.Model{Name: m.Name, Size: m.Size, Family: m.Family, ModifiedAt: m.ModifiedAt, Digest: m.Digest}
	}
	payload, err := json.Marshal(wire.DeviceModelReportPayload{DeviceID: r.deviceID, Models: wireModels})
	if err != nil {
		return err
	}
	return r.Send(ctx, wire.Envelope{Type: wire.DeviceModelReport, From: r.deviceID, To: to, Payload: payload, Timestamp: time.Now().Unix()})
}
