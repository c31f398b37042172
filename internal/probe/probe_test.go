package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

func TestParseGPURow(t *testing.T) {
	g := parseGPURow("45, 12, [N/A], 1024, 8192, 1410, 35.50")

	checks := []struct {
		name string
		got  model.Reading
		want model.Reading
	}{
		{"temp", g.TempC, model.Value(45)},
		{"util", g.UtilPercent, model.Value(12)},
		{"fan", g.FanPercent, model.Missing(model.Unavailable)},
		{"mem used", g.MemUsedMB, model.Value(1024)},
		{"mem total", g.MemTotalMB, model.Value(8192)},
		{"clock", g.ClockMHz, model.Value(1410)},
		{"power", g.PowerMilliW, model.Value(35500)},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Fatalf("got %+v, want %+v", c.got, c.want)
			}
		})
	}
}

func TestParseGPURowShort(t *testing.T) {
	g := parseGPURow("45, 12")
	if !g.UtilPercent.Valid() {
		t.Fatalf("util should parse")
	}
	if g.PowerMilliW.Cond != model.TransientMiss {
		t.Fatalf("missing column condition = %v", g.PowerMilliW.Cond)
	}
}

func TestParseField(t *testing.T) {
	cases := []struct {
		in   string
		want model.Reading
	}{
		{" 42 ", model.Value(42)},
		{"87 %", model.Value(87)},
		{"[Not Supported]", model.Missing(model.Unavailable)},
		{"[N/A]", model.Missing(model.Unavailable)},
		{"garbage", model.Missing(model.TransientMiss)},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if got := parseField(c.in); got != c.want {
				t.Fatalf("parseField(%q) = %+v, want %+v", c.in, got, c.want)
			}
		})
	}
}

func fakeRunner(out map[string]string, err error) Runner {
	return func(_ context.Context, _ string, args ...string) (string, error) {
		if err != nil {
			return "", err
		}
		return out[args[0]], nil
	}
}

func TestNvidiaSMIOpenAndRead(t *testing.T) {
	g := &NvidiaSMI{Binary: "nvidia-smi", Run: fakeRunner(map[string]string{
		"--query-gpu=name": "NVIDIA GeForce RTX 4090\n",
		gpuQuery:           "38, 0, 0, 500, 24564, 210, 21.03\n",
	}, nil)}

	name, err := g.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if name != "NVIDIA GeForce RTX 4090" {
		t.Fatalf("name = %q", name)
	}
	sample := g.Read(context.Background())
	if sample.TempC != model.Value(38) || sample.PowerWatts() != model.Value(21) {
		t.Fatalf("sample = %+v", sample)
	}
}

func TestNvidiaSMIOpenFailure(t *testing.T) {
	g := &NvidiaSMI{Binary: "nvidia-smi", Run: fakeRunner(nil, errors.New("exec: not found"))}
	if _, err := g.Open(context.Background()); err == nil {
		t.Fatalf("Open should fail when the tool is missing")
	}
	if got, want := g.Read(context.Background()), model.MissingGPU(model.TransientMiss); got != want {
		t.Fatalf("failed read = %+v, want every field a transient miss", got)
	}
}

func TestNvidiaSMINoDevices(t *testing.T) {
	g := &NvidiaSMI{Binary: "nvidia-smi", Run: fakeRunner(map[string]string{}, nil)}
	if _, err := g.Open(context.Background()); err == nil {
		t.Fatalf("Open should fail on empty output")
	}
}

func TestBusyShare(t *testing.T) {
	cases := []struct {
		name                string
		pt, pi, total, idle float64
		want                float64
		ok                  bool
	}{
		{"half busy", 100, 50, 200, 100, 50, true},
		{"idle", 100, 50, 200, 150, 0, true},
		{"no time passed", 100, 50, 100, 50, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := busyShare(c.pt, c.pi, c.total, c.idle)
			if ok != c.ok || got != c.want {
				t.Fatalf("busyShare = %v,%v want %v,%v", got, ok, c.want, c.ok)
			}
		})
	}
}

func TestWholeDiskFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sda", "nvme0n1"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	b := BlockDevices{SysBlock: dir}

	for name, want := range map[string]bool{
		"sda":       true,
		"sda1":      false,
		"nvme0n1":   true,
		"nvme0n1p2": false,
		"loop0":     false,
	} {
		if got := b.wholeDisk(name); got != want {
			t.Errorf("wholeDisk(%q) = %v, want %v", name, got, want)
		}
	}
	if !(BlockDevices{}).wholeDisk("disk0") {
		t.Errorf("an unset SysBlock should not filter")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n  GPU 0  \nGPU 1\n"); got != "GPU 0" {
		t.Fatalf("firstLine = %q", got)
	}
	if got := firstLine(strings.Repeat(" ", 3)); got != "" {
		t.Fatalf("firstLine of blanks = %q", got)
	}
}

type stubCounters struct {
	out   map[string]model.DiskCounters
	err   error
	calls int
}

func (s *stubCounters) IOCounters(context.Context) (map[string]model.DiskCounters, error) {
	s.calls++
	return s.out, s.err
}

func TestCounterFallback(t *testing.T) {
	letters := map[string]model.DiskCounters{"C:": {ReadBytes: 1}}
	drives := map[string]model.DiskCounters{"PhysicalDrive0": {ReadBytes: 1}}

	t.Run("primary answers first", func(t *testing.T) {
		primary := &stubCounters{out: drives}
		fallback := &stubCounters{out: letters}
		c := &CounterFallback{Primary: primary, Fallback: fallback}

		if _, err := c.IOCounters(context.Background()); err != nil {
			t.Fatal(err)
		}
		primary.err = errors.New("wmi: timeout")
		if _, err := c.IOCounters(context.Background()); err == nil {
			t.Fatalf("later primary failure must surface, not switch sources")
		}
		if c.UsingFallback() || fallback.calls != 0 {
			t.Fatalf("fallback used after primary succeeded")
		}
	})

	t.Run("primary fails first", func(t *testing.T) {
		primary := &stubCounters{err: errors.New("wmi: access denied")}
		fallback := &stubCounters{out: letters}
		c := &CounterFallback{Primary: primary, Fallback: fallback}

		for i := 0; i < 3; i++ {
			got, err := c.IOCounters(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := got["C:"]; !ok {
				t.Fatalf("counters = %v, want drive-letter keys", got)
			}
		}
		if !c.UsingFallback() || primary.calls != 1 {
			t.Fatalf("primary calls = %d, want 1", primary.calls)
		}
	})

	t.Run("cancelled context decides nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		primary := &stubCounters{err: context.Canceled}
		c := &CounterFallback{Primary: primary, Fallback: &stubCounters{out: letters}}
		if _, err := c.IOCounters(ctx); err == nil {
			t.Fatalf("want error on cancelled context")
		}
		if c.UsingFallback() {
			t.Fatalf("cancellation must not switch to the fallback")
		}
	})
}
