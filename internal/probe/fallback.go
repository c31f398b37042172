package probe

import (
	"context"
	"sync"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// DiskCounterReader is anything that reports per-disk counters.
type DiskCounterReader interface {
	IOCounters(ctx context.Context) (map[string]model.DiskCounters, error)
}

type fallbackChoice int

const (
	undecided fallbackChoice = iota
	usePrimary
	useFallback
)

// CounterFallback picks its counter source on the first call: Primary if
// it answers, Fallback otherwise. The choice holds for the rest of the run
// so the disk key set never changes after the baseline.
type CounterFallback struct {
	Primary  DiskCounterReader
	Fallback DiskCounterReader

	mu     sync.Mutex
	choice fallbackChoice
}

func (c *CounterFallback) IOCounters(ctx context.Context) (map[string]model.DiskCounters, error) {
	switch c.current() {
	case usePrimary:
		return c.Primary.IOCounters(ctx)
	case useFallback:
		return c.Fallback.IOCounters(ctx)
	}

	out, err := c.Primary.IOCounters(ctx)
	if err == nil {
		c.decide(usePrimary)
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	c.decide(useFallback)
	return c.Fallback.IOCounters(ctx)
}

// UsingFallback reports whether the first call fell through to Fallback.
func (c *CounterFallback) UsingFallback() bool { return c.current() == useFallback }

func (c *CounterFallback) current() fallbackChoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.choice
}

func (c *CounterFallback) decide(choice fallbackChoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.choice = choice
}
