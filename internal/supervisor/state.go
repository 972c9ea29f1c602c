// Package supervisor implements the process lifecycle manager for a single
// supervised backend binary (spec.md §4.4): spawn, readiness probing,
// graceful/forceful stop, restart, status/metrics collection, PID
// persistence, crash handling.
package supervisor

import "time"

// State is one node of the supervisor's state machine (spec.md §4.4).
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StartConfig carries the argv/env a backend was last started with, so
// Restart can replay it without the caller re-specifying everything
// (spec.md §3 "Process record": "config (last-applied start options)").
type StartConfig struct {
	Command string
	Args    []string
	Env     []string
}

// Status is the combined view returned by Supervisor.Status (spec.md
// §4.4 "Status"): PID liveness, HTTP reachability, and sampled resource
// metrics.
type Status struct {
	State      State
	PID        int // 0 if unknown/not running
	IsRunning  bool
	StartTime  time.Time
	Restarts   int
	RSSBytes   int64
	CPUPercent float64
	Crashes24h int
}
