// Package probe reads the live host: gopsutil for CPU, memory, network,
// disks and processes, nvidia-smi for the GPU, and a platform-specific
// disk metadata source.
package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// CPU computes total utilisation from successive cpu.Times snapshots.
// Not safe for concurrent use.
type CPU struct {
	cores     int
	prevTotal float64
	prevIdle  float64
}

// NewCPU takes the first times snapshot so the first Percent call has a
// baseline.
func NewCPU(ctx context.Context) (*CPU, error) {
	c := &CPU{cores: 1}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		c.cores = n
	}
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("probe: cpu times: %w", err)
	}
	if len(times) > 0 {
		c.prevTotal, c.prevIdle = splitTimes(times[0])
	}
	return c, nil
}

func splitTimes(t cpu.TimesStat) (total, idle float64) {
	return t.Total(), t.Idle + t.Iowait
}

// Percent is busy time over the interval since the previous call.
func (c *CPU) Percent(ctx context.Context) (float64, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("probe: cpu times: %w: %v", model.ErrTransient, err)
	}
	if len(times) == 0 {
		return 0, model.ErrUnsupported
	}
	total, idle := splitTimes(times[0])
	pct, ok := busyShare(c.prevTotal, c.prevIdle, total, idle)
	c.prevTotal, c.prevIdle = total, idle
	if !ok {
		return 0, model.ErrTransient
	}
	return pct, nil
}

// busyShare is 100 * (1 - idle/total) over the delta of two snapshots.
func busyShare(prevTotal, prevIdle, total, idle float64) (float64, bool) {
	dt := total - prevTotal
	if dt <= 0 {
		return 0, false
	}
	pct := 100 * (1 - (idle-prevIdle)/dt)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return pct, true
}

// FrequencyMHz reports the first package's clock.
func (c *CPU) FrequencyMHz(ctx context.Context) (float64, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("probe: cpu info: %w: %v", model.ErrTransient, err)
	}
	if len(infos) == 0 || infos[0].Mhz <= 0 {
		return 0, model.ErrUnsupported
	}
	return infos[0].Mhz, nil
}

// Cores is the logical core count.
func (c *CPU) Cores() int { return c.cores }

// Memory reports virtual memory usage.
type Memory struct{}

func (Memory) UsedPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("probe: memory: %w: %v", model.ErrTransient, err)
	}
	return vm.UsedPercent, nil
}

// Net sums every interface.
type Net struct{}

func (Net) IOCounters(ctx context.Context) (uint64, uint64, error) {
	stats, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, fmt.Errorf("probe: net counters: %w", err)
	}
	if len(stats) == 0 {
		return 0, 0, fmt.Errorf("probe: net counters: %w", model.ErrUnsupported)
	}
	return stats[0].BytesSent, stats[0].BytesRecv, nil
}

// BlockDevices reads gopsutil disk counters for whole disks only.
type BlockDevices struct {
	// SysBlock is where whole-disk devices are listed. Empty disables the
	// filter.
	SysBlock string
}

// virtualPrefixes are device families that are never physical disks.
var virtualPrefixes = []string{"loop", "ram", "dm-", "sr", "fd"}

func (b BlockDevices) IOCounters(ctx context.Context) (map[string]model.DiskCounters, error) {
	stats, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: disk counters: %w", err)
	}
	out := make(map[string]model.DiskCounters, len(stats))
	for name, st := range stats {
		if !b.wholeDisk(name) {
			continue
		}
		out[name] = model.DiskCounters{
			ReadBytes:   st.ReadBytes,
			WriteBytes:  st.WriteBytes,
			ReadTimeMs:  st.ReadTime,
			WriteTimeMs: st.WriteTime,
		}
	}
	return out, nil
}

func (b BlockDevices) wholeDisk(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	if b.SysBlock == "" {
		return true
	}
	_, err := os.Stat(filepath.Join(b.SysBlock, name))
	return err == nil
}
