package tunnel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/wire"
)

// tunnelSink adapts one in-flight remote invocation to backend.Sink: each
// Write becomes a correlated response frame sent back over the tunnel,
// Close sends the final (done=true) frame. Per spec.md §4.8 "Backpressure:
// if a sink cannot accept a chunk, the router pauses reads from the peer
// channel until the sink drains" — here, "the sink" is this goroutine's
// own Send call, which blocks (up to writeQueueTimeout) on the shared
// bounded write queue; a slow consumer therefore only stalls its own
// dispatch goroutine, not the router's read loop for other tasks.
type tunnelSink struct {
	router       *Router
	taskID       string
	peerID       string
	responseType wire.MessageType
	cancel       context.CancelFunc

	closeOnce sync.Once
}

// Write implements backend.Sink.
func (s *tunnelSink) Write(chunk []byte) error {
	payload, err := json.Marshal(wire.TaskPayload{TaskID: s.taskID, Data: append(json.RawMessage(nil), chunk...), Done: false})
	if err != nil {
		return err
	}
	ctx, cancelTimeout := context.WithTimeout(context.Background(), writeQueueTimeout+time.Second)
	defer cancelTimeout()
	if err := s.router.Send(ctx, wire.Envelope{
		Type: s.responseType, From: s.router.deviceID, To: s.peerID, Payload: payload, Timestamp: time.Now().Unix(),
	}); err != nil {
		// Cancellation: a send failure means the peer can no longer accept
		// chunks for this task; tear down the upstream request through C7
		// (spec.md §4.8 "Cancellation").
		s.cancel()
		return err
	}
	return nil
}

// Close implements backend.Sink.
func (s *tunnelSink) Close() error {
	var sendErr error
	s.closeOnce.Do(func() {
		payload, err := json.Marshal(wire.TaskPayload{TaskID: s.taskID, Done: true})
		if err != nil {
			sendErr = err
			return
		}
		ctx, cancelTimeout := context.WithTimeout(context.Background(), writeQueueTimeout+time.Second)
		defer cancelTimeout()
		sendErr = s.router.Send(ctx, wire.Envelope{
			Type: s.responseType, From: s.router.deviceID, To: s.peerID, Payload: payload, Timestamp: time.Now().Unix(),
		})
	})
	return sendErr
}

var _ backend.Sink = (*tunnelSink)(nil)
