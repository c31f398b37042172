//go:build !windows

package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

func TestRotationOf(t *testing.T) {
	cases := []struct {
		driveType string
		rpm       uint32
		known     bool
	}{
		{"HDD", 1, true},
		{"SSD", 0, true},
		{"ODD", 0, false},
		{"Unknown", 0, false},
	}
	for _, c := range cases {
		t.Run(c.driveType, func(t *testing.T) {
			rpm, known := rotationOf(c.driveType)
			if rpm != c.rpm || known != c.known {
				t.Fatalf("rotationOf(%q) = %d,%v", c.driveType, rpm, known)
			}
		})
	}
}

func TestBlockMetaHasNoFeed(t *testing.T) {
	_, err := BlockMeta{}.BusyPercent(context.Background())
	if !errors.Is(err, model.ErrUnsupported) {
		t.Fatalf("BusyPercent err = %v, want ErrUnsupported", err)
	}
}
