package proxy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is one node of a Task's lifecycle (spec.md §3 "Task"). State
// transitions are pending -> running -> (completed|failed); terminal
// states are final.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
)

// Usage mirrors the counters a backend reports on the terminal frame of a
// chat/completion call (spec.md §3).
type Usage struct {
	TotalDuration      int64
	LoadDuration       int64
	PromptEvalCount    int
	PromptEvalDuration int64
	EvalCount          int
	EvalDuration       int64
}

// Task is the per-request record the Streaming Proxy owns exclusively for
// its lifetime (spec.md §3 "Ownership"). Referenced only by ID elsewhere.
type Task struct {
	ID        string
	Model     string
	DeviceID  string
	State     State
	Usage     Usage
	Err       error
	CreatedAt time.Time
}

const taskIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// generateTaskID produces "task_<ms_epoch>_<rand36>" (spec.md §3). The
// random suffix is drawn from a uuid.NewRandom's entropy rather than raw
// crypto/rand, the way the teacher sources its device/correlation IDs from
// google/uuid, then base-36 encoded to match the spec's literal token shape.
func generateTaskID(now time.Time) (string, error) {
	suffix, err := randomBase36(9)
	if err != nil {
		return "", fmt.Errorf("proxy: generate task id: %w", err)
	}
	return fmt.Sprintf("task_%d_%s", now.UnixMilli(), suffix), nil
}

func randomBase36(n int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	raw := id[:]
	if n > len(raw) {
		n = len(raw)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = taskIDAlphabet[int(raw[i])%len(taskIDAlphabet)]
	}
	return string(out), nil
}
