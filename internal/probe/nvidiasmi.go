package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

const gpuQuery = "--query-gpu=temperature.gpu,utilization.gpu,fan.speed,memory.used,memory.total,clocks.gr,power.draw"

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// NvidiaSMI reads the first NVIDIA GPU by shelling out to nvidia-smi.
type NvidiaSMI struct {
	Binary  string
	Timeout time.Duration
	Run     Runner
}

// NewNvidiaSMI returns a reader using the nvidia-smi found on PATH.
func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{Binary: "nvidia-smi", Timeout: 800 * time.Millisecond, Run: runCmd}
}

// Open probes the device once. An error means the GPU is unavailable for
// the rest of the process lifetime.
func (g *NvidiaSMI) Open(ctx context.Context) (string, error) {
	if g.Binary == "" {
		return "", errors.New("probe: nvidia-smi binary not set")
	}
	if g.Run == nil {
		g.Run = runCmd
	}
	out, err := g.query(ctx, "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return "", fmt.Errorf("probe: nvidia-smi probe: %w", err)
	}
	name := strings.TrimSpace(firstLine(out))
	if name == "" {
		return "", errors.New("probe: nvidia-smi reported no devices")
	}
	return name, nil
}

// Read samples every field. A failed invocation is a transient miss on
// every field; unsupported fields are unavailable.
func (g *NvidiaSMI) Read(ctx context.Context) model.GPU {
	out, err := g.query(ctx, gpuQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return model.MissingGPU(model.TransientMiss)
	}
	return parseGPURow(firstLine(out))
}

func (g *NvidiaSMI) Close() error { return nil }

func (g *NvidiaSMI) query(ctx context.Context, args ...string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.Run(ctx, g.Binary, args...)
}

// parseGPURow maps one csv row in gpuQuery order onto a GPU sample.
func parseGPURow(line string) model.GPU {
	parts := strings.Split(line, ",")
	field := func(i int) model.Reading {
		if i >= len(parts) {
			return model.Missing(model.TransientMiss)
		}
		return parseField(parts[i])
	}
	power := field(6)
	if power.Valid() {
		power = model.Value(power.Value * 1000)
	}
	return model.GPU{
		TempC:       field(0),
		UtilPercent: field(1),
		FanPercent:  field(2),
		MemUsedMB:   field(3),
		MemTotalMB:  field(4),
		ClockMHz:    field(5),
		PowerMilliW: power,
	}
}

func parseField(s string) model.Reading {
	s = strings.TrimSpace(s)
	switch s {
	case "[N/A]", "N/A", "[Not Supported]", "[Unknown Error]":
		return model.Missing(model.Unavailable)
	}
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return model.Missing(model.TransientMiss)
	}
	return model.Value(f)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func runCmd(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
