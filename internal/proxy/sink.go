package proxy

import (
	"bytes"
	"sync"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/wire"
)

// frameMode decides whether taskSink transforms bytes in flight (spec.md
// §4.7.F "Format normalization").
type frameMode int

const (
	// framePassthrough forwards every chunk byte-for-byte (spec.md: "The
	// reverse direction (OpenAI->native) is not performed; a caller asking
	// for native framing from an OpenAI backend receives SSE bytes
	// untouched.").
	framePassthrough frameMode = iota
	// frameNativeToOpenAIStream converts each native NDJSON line to an
	// OpenAI SSE chunk.
	frameNativeToOpenAIStream
	// frameNativeToOpenAIJSON converts one full native JSON response into
	// an OpenAI chat.completion JSON body.
	frameNativeToOpenAIJSON
)

// determineFrameMode implements spec.md §4.7.F: normalization only
// applies "when the caller requested an OpenAI path but the current
// backend is Native".
func determineFrameMode(currentBackend backend.ID, pathname string, stream bool) frameMode {
	if currentBackend != backend.Native || !wire.IsOpenAIPath(pathname) {
		return framePassthrough
	}
	if stream {
		return frameNativeToOpenAIStream
	}
	return frameNativeToOpenAIJSON
}

// taskSink wraps the caller's raw backend.Sink, optionally normalizing
// native frames to OpenAI shape in flight, capturing usage counters off
// the terminal native frame, and driving the owning Task to its terminal
// state exactly once on Close (spec.md §3 "A task is created before any
// backend I/O and updated exactly once to a terminal state.").
type taskSink struct {
	underlying backend.Sink
	task       *Task
	engine     *Engine
	mode       frameMode
	backendID  backend.ID

	mu        sync.Mutex
	lineBuf   []byte // partial NDJSON line carried across Write calls
	closeOnce sync.Once
}

// Write implements backend.Sink.
func (s *taskSink) Write(chunk []byte) error {
	switch s.mode {
	case frameNativeToOpenAIStream:
		return s.writeStreamFrames(chunk)
	case frameNativeToOpenAIJSON:
		return s.writeFullJSON(chunk)
	default:
		s.captureUsageIfNative(chunk)
		return s.underlying.Write(chunk)
	}
}

// writeStreamFrames buffers partial lines (HTTP reads do not guarantee
// NDJSON line alignment) and converts each complete native frame to an
// OpenAI SSE chunk before forwarding.
func (s *taskSink) writeStreamFrames(chunk []byte) error {
	s.mu.Lock()
	s.lineBuf = append(s.lineBuf, chunk...)
	buf := s.lineBuf
	var lines [][]byte
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, buf[:idx])
		buf = buf[idx+1:]
	}
	s.lineBuf = append([]byte(nil), buf...)
	s.mu.Unlock()

	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := s.emitFrame(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *taskSink) emitFrame(line []byte) error {
	frame, err := wire.DecodeNativeStreamFrame(line)
	if err != nil {
		// Not a decodable frame; forward the raw line rather than drop
		// data the caller might still need.
		return s.underlying.Write(append(append([]byte(nil), line...), '\n'))
	}
	s.captureUsage(frame)
	now := s.engine.now()
	chunk := wire.NativeFrameToOpenAIChunk(frame, now.UnixMilli(), now.Unix())
	payload, err := wire.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return s.underlying.Write(wire.FormatSSE(payload))
}

// writeFullJSON converts one complete native (non-streaming) response
// body into an OpenAI chat.completion JSON body.
func (s *taskSink) writeFullJSON(body []byte) error {
	frame, err := wire.DecodeNativeStreamFrame(body)
	if err != nil {
		return s.underlying.Write(body)
	}
	s.captureUsage(frame)
	now := s.engine.now()
	completion := wire.NativeResponseToOpenAI(frame, now.UnixMilli(), now.Unix())
	payload, err := wire.MarshalChunk(completion)
	if err != nil {
		return err
	}
	return s.underlying.Write(payload)
}

// captureUsageIfNative opportunistically parses usage off passthrough
// native frames so accounting still works when the caller requested
// native framing directly (no normalization in play).
func (s *taskSink) captureUsageIfNative(chunk []byte) {
	if s.backendID != backend.Native {
		return
	}
	for _, line := range bytes.Split(chunk, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if frame, err := wire.DecodeNativeStreamFrame(line); err == nil {
			s.captureUsage(frame)
		}
	}
}

func (s *taskSink) captureUsage(f wire.NativeStreamFrame) {
	if !f.Done {
		return
	}
	s.task.Usage = Usage{
		TotalDuration:      f.TotalDuration,
		LoadDuration:       f.LoadDuration,
		PromptEvalCount:    f.PromptEvalCount,
		PromptEvalDuration: f.PromptEvalDuration,
		EvalCount:          f.EvalCount,
		EvalDuration:       f.EvalDuration,
	}
}

// Close implements backend.Sink. Flushes any trailing frame normalization
// state, writes the SSE terminator when normalizing to OpenAI stream
// shape, and finalizes the task exactly once.
func (s *taskSink) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		trailing := s.lineBuf
		s.lineBuf = nil
		s.mu.Unlock()

		if s.mode == frameNativeToOpenAIStream {
			if len(bytes.TrimSpace(trailing)) > 0 {
				if err := s.emitFrame(trailing); err != nil {
					closeErr = err
				}
			}
			if err := s.underlying.Write([]byte(wire.SSETerminator)); err != nil && closeErr == nil {
				closeErr = err
			}
		}

		if err := s.underlying.Close(); err != nil && closeErr == nil {
			closeErr = err
		}

		state := Completed
		if closeErr != nil {
			state = Failed
		}
		s.engine.finish(s.task, state, closeErr)
	})
	return closeErr
}

var _ backend.Sink = (*taskSink)(nil)
