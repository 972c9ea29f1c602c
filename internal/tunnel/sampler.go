package tunnel

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/meshnode/meshnode/internal/supervisor"
)

// SupervisorSampler implements ResourceSampler by reading the supervised
// backend process's resource gauges off *supervisor.Supervisor.Status
// (spec.md §4.4's RSS/CPU sampling, reused here rather than re-sampling the
// OS independently).
type SupervisorSampler struct {
	Supervisor *supervisor.Supervisor
}

func (s *SupervisorSampler) SampleCPUPercent() float64 {
	if s.Supervisor == nil {
		return 0
	}
	return s.Supervisor.Status(context.Background()).CPUPercent
}

func (s *SupervisorSampler) SampleMemPercent() float64 {
	if s.Supervisor == nil {
		return 0
	}
	rss := s.Supervisor.Status(context.Background()).RSSBytes
	total := totalSystemMemoryBytes()
	if total == 0 {
		return 0
	}
	return float64(rss) / float64(total) * 100
}

// SampleGPUPercent has no signal source in this corpus (no GPU telemetry
// library is wired anywhere in the pack); always reports 0.
func (s *SupervisorSampler) SampleGPUPercent() float64 { return 0 }

// LocalIP returns the first non-loopback IPv4 address, best-effort.
func (s *SupervisorSampler) LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// totalSystemMemoryBytes reads MemTotal from /proc/meminfo on Linux; 0
// elsewhere or on error.
func totalSystemMemoryBytes() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

var _ ResourceSampler = (*SupervisorSampler)(nil)
