//go:build !windows

package probe

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/jaypipes/ghw"

	"github.com/Dicklesworthstone/hwdash/internal/diskid"
	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// BlockMeta enumerates drives through ghw. There is no performance feed
// outside Windows, so busy percent is always derived from counters.
type BlockMeta struct{}

func (BlockMeta) Drives(ctx context.Context) ([]diskid.Drive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := ghw.Block()
	if err != nil {
		return nil, fmt.Errorf("probe: block devices: %w", err)
	}
	drives := make([]diskid.Drive, 0, len(info.Disks))
	for i, d := range info.Disks {
		drive := diskid.Drive{
			Index:      i,
			Model:      strings.Join(strings.Fields(d.Vendor+" "+d.Model), " "),
			DeviceName: d.Name,
		}
		drive.RotationRate, drive.RotationKnown = rotationOf(d.DriveType.String())
		for _, p := range d.Partitions {
			if p == nil || p.MountPoint == "" {
				continue
			}
			drive.Letters = append(drive.Letters, p.MountPoint)
		}
		drives = append(drives, drive)
	}
	return drives, nil
}

func (BlockMeta) BusyPercent(context.Context) (map[string]float64, error) {
	return nil, model.ErrUnsupported
}

// rotationOf maps ghw's drive type onto a nominal rotation rate. ghw does
// not expose RPM, only whether the device rotates.
func rotationOf(driveType string) (uint32, bool) {
	switch driveType {
	case "HDD":
		return 1, true
	case "SSD":
		return 0, true
	default:
		return 0, false
	}
}

// PlatformDisks returns the counter and metadata sources for this OS.
func PlatformDisks() (BlockDevices, BlockMeta) {
	var dev BlockDevices
	if runtime.GOOS == "linux" {
		dev.SysBlock = "/sys/block"
	}
	return dev, BlockMeta{}
}
