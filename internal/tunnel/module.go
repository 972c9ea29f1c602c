package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/cron"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/registry"
	"github.com/meshnode/meshnode/internal/security"
	"github.com/meshnode/meshnode/internal/supervisor"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

type moduleConfig struct {
	GatewayURL        string                   `yaml:"gatewayURL"`
	DeviceID          string                   `yaml:"deviceId"`
	GatewayID         string                   `yaml:"gatewayId"`
	HeartbeatSchedule string                   `yaml:"heartbeatSchedule"`
	RateLimit         security.RateLimitConfig `yaml:"rateLimit"`
	AuditLogPath      string                   `yaml:"auditLogPath"`
	URLFilter         security.URLFilterConfig `yaml:"urlFilter"`
}

// Module wires a tunnel Router plus heartbeat scheduler into the runtime
// (SPEC_FULL.md §4.8, §4.10). Dialing the gateway is deferred to Start so
// a misconfigured/offline gateway never blocks Provision.
type Module struct {
	cfg         moduleConfig
	router      *Router
	scheduler   *cron.Scheduler
	cancel      context.CancelFunc
	logger      *slog.Logger
	auditFile   *os.File
	auditLogger *security.AuditLogger
	urlFilter   *security.URLFilter
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tunnel",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	return node.Decode(&m.cfg)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.cfg.GatewayURL == "" {
		// No gateway configured: tunnel stays dormant. Not all deployments
		// federate through a gateway (spec.md's node can run standalone
		// behind just the local HTTP surface).
		return nil
	}

	regSvc, ok := ctx.GetService("registry")
	if !ok {
		return fmt.Errorf("tunnel: registry service not provisioned yet")
	}
	reg := regSvc.(*registry.Registry)

	proxySvc, ok := ctx.GetService("proxy")
	if !ok {
		return fmt.Errorf("tunnel: proxy service not provisioned yet")
	}
	eng := proxySvc.(*proxy.Engine)

	var metricsReg *metrics.Registry
	if svc, ok := ctx.GetService("metrics"); ok {
		metricsReg = svc.(*metrics.Registry)
	}

	var sampler ResourceSampler = &SupervisorSampler{}
	if svc, ok := ctx.GetService("supervisor." + string(reg.Current(context.Background()))); ok {
		if sup, ok := svc.(*supervisor.Supervisor); ok {
			sampler = &SupervisorSampler{Supervisor: sup}
		}
	}

	m.logger = ctx.Logger
	m.scheduler = cron.NewScheduler(ctx.Logger)

	var auditWriter *os.File
	if m.cfg.AuditLogPath != "" {
		f, err := os.OpenFile(m.cfg.AuditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("tunnel: open audit log: %w", err)
		}
		auditWriter = f
		m.auditFile = f
	}
	m.auditLogger = security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditWriter})
	m.urlFilter = security.NewURLFilter(m.cfg.URLFilter)

	placeholderRouter := New(nil, eng, reg, m.cfg.DeviceID, metricsReg, ctx.Logger)
	placeholderRouter.WithSecurity(security.NewRateLimiter(m.cfg.RateLimit), m.auditLogger)
	if err := m.scheduler.RegisterJob(&HeartbeatJob{
		Router: placeholderRouter, Backends: reg, Sampler: sampler,
		DeviceID: m.cfg.DeviceID, GatewayID: m.cfg.GatewayID, Logger: ctx.Logger,
		ScheduleExpr: m.cfg.HeartbeatSchedule,
	}); err != nil {
		return fmt.Errorf("tunnel: register heartbeat job: %w", err)
	}
	m.router = placeholderRouter

	ctx.RegisterService("tunnel", m.router)
	return nil
}

// Start implements core.Starter: dials the gateway and starts the router
// read/write loops plus the heartbeat scheduler.
func (m *Module) Start() error {
	if m.cfg.GatewayURL == "" {
		return nil
	}
	if m.urlFilter != nil && m.urlFilter.IsConfigured() {
		if err := m.urlFilter.Check(m.cfg.GatewayURL); err != nil {
			return fmt.Errorf("tunnel: gateway URL rejected: %w", err)
		}
	}
	peer, err := DialWebSocketPeer(context.Background(), m.cfg.GatewayURL)
	if err != nil {
		return fmt.Errorf("tunnel: dial gateway: %w", err)
	}
	m.router.peer = peer
	if m.auditLogger != nil {
		m.auditLogger.Log(security.AuditEvent{Type: security.EventPeerConnect, PeerID: m.cfg.GatewayID})
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		if err := m.router.Run(runCtx); err != nil && runCtx.Err() == nil {
			m.logger.Warn("tunnel: router stopped", "error", err)
		}
	}()

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.cfg.GatewayURL == "" {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.scheduler != nil {
		_ = m.scheduler.Stop(ctx)
	}
	if m.router != nil && m.router.peer != nil {
		_ = m.router.peer.Close()
		if m.auditLogger != nil {
			m.auditLogger.Log(security.AuditEvent{Type: security.EventPeerDisconnect, PeerID: m.cfg.GatewayID})
		}
	}
	if m.auditFile != nil {
		_ = m.auditFile.Close()
	}
	return nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
