package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

func TestPromEmit(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.Emit(model.Emission{Key: model.KeyCPUPercent, Reading: model.Value(41)})
	if got := testutil.ToFloat64(p.values.WithLabelValues(model.KeyCPUPercent)); got != 41 {
		t.Fatalf("cpu gauge = %v, want 41", got)
	}
	if got := testutil.ToFloat64(p.available.WithLabelValues(model.KeyCPUPercent)); got != 1 {
		t.Fatalf("cpu available = %v, want 1", got)
	}

	// A miss keeps the last value and flips availability.
	p.Emit(model.Emission{Key: model.KeyCPUPercent, Reading: model.Missing(model.TransientMiss)})
	if got := testutil.ToFloat64(p.values.WithLabelValues(model.KeyCPUPercent)); got != 41 {
		t.Fatalf("cpu gauge after miss = %v, want 41", got)
	}
	if got := testutil.ToFloat64(p.available.WithLabelValues(model.KeyCPUPercent)); got != 0 {
		t.Fatalf("cpu available after miss = %v, want 0", got)
	}
}

func TestPromObserver(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.TickDone("primary", 3*time.Millisecond)
	p.TickDone("primary", 4*time.Millisecond)
	p.TickDone("ranking", 20*time.Millisecond)
	if got := testutil.ToFloat64(p.ticks.WithLabelValues("primary")); got != 2 {
		t.Fatalf("primary ticks = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(p.tickTime); n != 2 {
		t.Fatalf("tick histogram series = %d, want 2", n)
	}

	p.SourceFailed("gpu", model.TransientMiss)
	if got := testutil.ToFloat64(p.failures.WithLabelValues("gpu", "transient_miss")); got != 1 {
		t.Fatalf("gpu failures = %v, want 1", got)
	}

	p.ShutdownTriggered()
	if got := testutil.ToFloat64(p.shutdowns); got != 1 {
		t.Fatalf("shutdowns = %v, want 1", got)
	}
}

func TestPromHandler(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())
	p.Emit(model.Emission{Key: model.KeyRAM, Reading: model.Value(63)})

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `hwdash_metric_value{key="ram.percent"} 63`) {
		t.Fatalf("exposition missing ram gauge:\n%s", body)
	}
}

func TestPromClockAnomalyIsZeroRate(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.Emit(model.Emission{Key: model.KeyNetDown, Reading: model.Value(12.5)})
	p.Emit(model.Emission{Key: model.KeyNetDown, Reading: model.Missing(model.ClockAnomaly)})

	if got := testutil.ToFloat64(p.values.WithLabelValues(model.KeyNetDown)); got != 0 {
		t.Fatalf("net gauge after clock anomaly = %v, want 0", got)
	}
	if got := testutil.ToFloat64(p.available.WithLabelValues(model.KeyNetDown)); got != 1 {
		t.Fatalf("net available after clock anomaly = %v, want 1", got)
	}
}
