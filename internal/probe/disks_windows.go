//go:build windows

package probe

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yusufpapurcu/wmi"

	"github.com/Dicklesworthstone/hwdash/internal/diskid"
	"github.com/Dicklesworthstone/hwdash/internal/model"
)

const storageNamespace = `root\Microsoft\Windows\Storage`

// WMI class shapes. Field names must match the property names.
type win32DiskDrive struct {
	Index    uint32
	Model    string
	DeviceID string
}

type msftPhysicalDisk struct {
	DeviceId     string
	SpindleSpeed uint32
}

type win32DiskPartition struct {
	DeviceID string
}

type win32LogicalDisk struct {
	DeviceID string
}

type perfDiskFormatted struct {
	Name            string
	PercentDiskTime uint64
}

type perfDiskRaw struct {
	Name                 string
	DiskReadBytesPersec  uint64
	DiskWriteBytesPersec uint64
	PercentDiskTime      uint64
}

// PhysicalDisks reads raw PhysicalDisk performance counters, keyed
// "PhysicalDrive<index>".
type PhysicalDisks struct{}

func (PhysicalDisks) IOCounters(ctx context.Context) (map[string]model.DiskCounters, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []perfDiskRaw
	if err := wmi.Query("SELECT Name, DiskReadBytesPersec, DiskWriteBytesPersec, PercentDiskTime FROM Win32_PerfRawData_PerfDisk_PhysicalDisk", &rows); err != nil {
		return nil, fmt.Errorf("probe: physical disk counters: %w", err)
	}
	out := make(map[string]model.DiskCounters, len(rows))
	for _, r := range rows {
		idx, ok := leadingIndex(r.Name)
		if !ok {
			continue
		}
		// PercentDiskTime is raw 100ns ticks of busy time.
		busyMs := r.PercentDiskTime / 10000
		out["PhysicalDrive"+strconv.Itoa(idx)] = model.DiskCounters{
			ReadBytes:  r.DiskReadBytesPersec,
			WriteBytes: r.DiskWriteBytesPersec,
			ReadTimeMs: busyMs,
		}
	}
	return out, nil
}

// leadingIndex parses the "{index} ..." prefix of a performance instance
// name. "_Total" has none.
func leadingIndex(name string) (int, bool) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(fields[0])
	return idx, err == nil
}

// WMIMeta enumerates drives, their rotation rate and drive letters, and
// reads the formatted busy-percent feed.
type WMIMeta struct{}

func (WMIMeta) Drives(ctx context.Context) ([]diskid.Drive, error) {
	var drives []win32DiskDrive
	if err := wmi.Query("SELECT Index, Model, DeviceID FROM Win32_DiskDrive", &drives); err != nil {
		return nil, fmt.Errorf("probe: disk drives: %w", err)
	}
	spindles := spindleSpeeds()

	out := make([]diskid.Drive, 0, len(drives))
	for _, d := range drives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drive := diskid.Drive{Index: int(d.Index), Model: strings.TrimSpace(d.Model)}
		if rpm, ok := spindles[strconv.Itoa(int(d.Index))]; ok && rpm != math.MaxUint32 {
			drive.RotationRate, drive.RotationKnown = rpm, true
		}
		drive.Letters = lettersOf(d.DeviceID)
		out = append(out, drive)
	}
	return out, nil
}

// spindleSpeeds maps MSFT_PhysicalDisk DeviceId to SpindleSpeed. A failed
// query leaves every drive's media unknown.
func spindleSpeeds() map[string]uint32 {
	var disks []msftPhysicalDisk
	if err := wmi.QueryNamespace("SELECT DeviceId, SpindleSpeed FROM MSFT_PhysicalDisk", &disks, storageNamespace); err != nil {
		return nil
	}
	out := make(map[string]uint32, len(disks))
	for _, d := range disks {
		out[d.DeviceId] = d.SpindleSpeed
	}
	return out
}

// lettersOf walks drive -> partitions -> logical disks. Failures yield no
// letters.
func lettersOf(deviceID string) []string {
	var parts []win32DiskPartition
	q := fmt.Sprintf("ASSOCIATORS OF {Win32_DiskDrive.DeviceID='%s'} WHERE AssocClass = Win32_DiskDriveToDiskPartition", escapeWQL(deviceID))
	if err := wmi.Query(q, &parts); err != nil {
		return nil
	}
	var letters []string
	for _, p := range parts {
		var logical []win32LogicalDisk
		q := fmt.Sprintf("ASSOCIATORS OF {Win32_DiskPartition.DeviceID='%s'} WHERE AssocClass = Win32_LogicalDiskToPartition", escapeWQL(p.DeviceID))
		if err := wmi.Query(q, &logical); err != nil {
			continue
		}
		for _, l := range logical {
			letters = append(letters, l.DeviceID)
		}
	}
	return letters
}

func escapeWQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (WMIMeta) BusyPercent(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []perfDiskFormatted
	if err := wmi.Query("SELECT Name, PercentDiskTime FROM Win32_PerfFormattedData_PerfDisk_PhysicalDisk", &rows); err != nil {
		return nil, fmt.Errorf("probe: disk busy feed: %w: %v", model.ErrTransient, err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Name] = float64(r.PercentDiskTime)
	}
	return out, nil
}

// PlatformDisks returns the counter and metadata sources for this OS.
// Without WMI the counters come from gopsutil, keyed by drive letter, and
// every disk resolves degraded.
func PlatformDisks() (*CounterFallback, WMIMeta) {
	return &CounterFallback{Primary: PhysicalDisks{}, Fallback: BlockDevices{}}, WMIMeta{}
}
