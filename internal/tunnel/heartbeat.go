package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshnode/meshnode/internal/wire"
)

// ResourceSampler reports point-in-time resource usage for the heartbeat
// payload (satisfied by *supervisor.Supervisor's Status, or a host-level
// sampler when no backend process is supervised locally).
type ResourceSampler interface {
	SampleCPUPercent() float64
	SampleMemPercent() float64
	SampleGPUPercent() float64
	LocalIP() string
}

// HeartbeatJob emits device_heartbeat_report on a cron schedule (spec.md
// §4.8 "Heartbeat"), grounded on the teacher's cron.Job interface
// (internal/cron/jobs.go) in place of the teacher's bare ticker-based
// heartbeatLoop (internal/node/manager.go).
type HeartbeatJob struct {
	Router       *Router
	Backends     BackendSource
	Sampler      ResourceSampler
	DeviceID     string
	GatewayID    string
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/30 * * * * *"-equivalent handled by caller; cron.v3 here is minute-granularity, see Schedule().
}

// Name implements cron.Job.
func (j *HeartbeatJob) Name() string { return "tunnel_heartbeat:" + j.DeviceID }

// Schedule implements cron.Job. robfig/cron/v3's standard parser is
// minute-granularity; spec.md's 30s default is approximated as "every
// minute" here and the sub-minute cadence is left to a future
// seconds-enabled parser (DESIGN.md Open Question decision).
func (j *HeartbeatJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run implements cron.Job: emits one device_heartbeat_report.
func (j *HeartbeatJob) Run(ctx context.Context) error {
	id := j.Backends.Current(ctx)
	var currentModel string
	if adapter := j.Backends.Adapter(id); adapter != nil {
		if models := adapter.ListModels(ctx); len(models) > 0 {
			currentModel = models[0].Name
		}
	}

	deviceInfo, err := json.Marshal(map[string]any{
		"backend":   string(id),
		"sampledAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("tunnel: marshal device info: %w", err)
	}

	payload, err := json.Marshal(wire.DeviceHeartbeatPayload{
		DeviceID:     j.DeviceID,
		IP:           j.Sampler.LocalIP(),
		CPUPercent:   j.Sampler.SampleCPUPercent(),
		MemPercent:   j.Sampler.SampleMemPercent(),
		GPUPercent:   j.Sampler.SampleGPUPercent(),
		CurrentModel: currentModel,
		DeviceInfo:   deviceInfo,
	})
	if err != nil {
		return fmt.Errorf("tunnel: marshal heartbeat payload: %w", err)
	}

	return j.Router.Send(ctx, wire.Envelope{
		Type:      wire.DeviceHeartbeatReport,
		From:      j.DeviceID,
		To:        j.GatewayID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
}
