package httpapi

import (
	"net/http"
)

// responseSink adapts an http.ResponseWriter to backend.Sink, flushing
// after every chunk so a streaming caller sees bytes as they arrive
// instead of buffered until the handler returns (spec.md §4.7 step 4:
// "each upstream chunk is written to the sink as it arrives").
type responseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func newResponseSink(w http.ResponseWriter) *responseSink {
	flusher, _ := w.(http.Flusher)
	return &responseSink{w: w, flusher: flusher}
}

func (s *responseSink) Write(chunk []byte) error {
	if _, err := s.w.Write(chunk); err != nil {
		return err
	}
	s.wrote = true
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Close is a no-op: the HTTP response body ends when the handler returns.
func (s *responseSink) Close() error { return nil }
