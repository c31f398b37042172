package diskid

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

func TestCorrelationName(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		letters []string
		model   string
		want    string
	}{
		{name: "single letter", index: 0, letters: []string{"C:"}, want: "0 C:"},
		{name: "multiple letters", index: 0, letters: []string{"C:", "D:"}, want: "0 C:, D:"},
		{name: "model fallback", index: 2, model: "Samsung  SSD   970 EVO ", want: "2 Samsung SSD 970 EVO"},
		{name: "bare index", index: 3, want: "3"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := CorrelationName(test.index, test.letters, test.model); got != test.want {
				t.Errorf("CorrelationName() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	counterKeys := []string{"PhysicalDrive0", "PhysicalDrive1", "PhysicalDrive2"}
	drives := []Drive{
		{Index: 0, Model: "NVMe A", RotationKnown: true, RotationRate: 0, Letters: []string{"C:", "D:"}},
		{Index: 1, Model: "WDC Blue", RotationKnown: true, RotationRate: 7200},
		{Index: 5, Model: "USB stick", RotationKnown: true},
		{Index: 2, Model: "Mystery", RotationKnown: false, Letters: []string{"E:"}},
	}

	got := Resolve(counterKeys, drives, nil)
	want := []model.DiskIdentity{
		{
			BusyCounterKey:  "PhysicalDrive0",
			ControllerIndex: 0,
			DriveLetters:    []string{"C:", "D:"},
			Media:           model.MediaSSD,
			CorrelationName: "0 C:, D:",
			Label:           "C:, D:",
		},
		{
			BusyCounterKey:  "PhysicalDrive1",
			ControllerIndex: 1,
			DriveLetters:    []string{},
			Media:           model.MediaHDD,
			CorrelationName: "1 WDC Blue",
			Label:           "Disk 1",
		},
		{
			BusyCounterKey:  "PhysicalDrive2",
			ControllerIndex: 2,
			DriveLetters:    []string{"E:"},
			Media:           model.MediaUnknown,
			CorrelationName: "2 E:",
			Label:           "E:",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestResolveDegradedOnMetadataFailure(t *testing.T) {
	drives := []Drive{{Index: 0, Letters: []string{"C:"}, RotationKnown: true}}
	got := Resolve([]string{"PhysicalDrive1", "PhysicalDrive0"}, drives, errors.New("wmi: access denied"))

	if len(got) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(got))
	}
	for i, key := range []string{"PhysicalDrive0", "PhysicalDrive1"} {
		id := got[i]
		if id.BusyCounterKey != key || id.Label != key {
			t.Errorf("identity %d = %+v, want raw key %s", i, id, key)
		}
		if id.Media != model.MediaUnknown || !id.Degraded() || id.CorrelationName != "" {
			t.Errorf("identity %d not degraded: %+v", i, id)
		}
	}
}

func TestResolveUsesDeviceName(t *testing.T) {
	drives := []Drive{
		{Index: 0, DeviceName: "nvme0n1", RotationKnown: true, Letters: []string{"/", "/boot", "/"}},
		{Index: 1, DeviceName: "sda", RotationKnown: true, RotationRate: 1, Letters: []string{"/mnt/data"}},
	}
	got := Resolve([]string{"nvme0n1", "sda", "loop0"}, drives, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(got))
	}
	if got[0].BusyCounterKey != "loop0" || !got[0].Degraded() {
		t.Errorf("loop0 should be degraded: %+v", got[0])
	}
	if got[1].Label != "/, /boot" || got[1].Media != model.MediaSSD {
		t.Errorf("nvme0n1 = %+v", got[1])
	}
	if got[2].Media != model.MediaHDD || got[2].CorrelationName != "1 /mnt/data" {
		t.Errorf("sda = %+v", got[2])
	}
}

// Names below were recorded from Win32_PerfFormattedData_PerfDisk_PhysicalDisk.
func TestFeedMatch(t *testing.T) {
	feed := NewFeed(map[string]float64{
		"_Total":    40,
		"0 C: D:":   12.5,
		"1  E:":     80,
		"2 F:":      3,
		"10 Z:":     99,
		"3 WDC Red": 7,
	})

	tests := []struct {
		name   string
		id     model.DiskIdentity
		want   float64
		wantOK bool
	}{
		{
			name:   "syntactic mismatch resolved by prefix",
			id:     model.DiskIdentity{ControllerIndex: 0, CorrelationName: "0 C:, D:"},
			want:   12.5,
			wantOK: true,
		},
		{
			name:   "exact after whitespace normalisation",
			id:     model.DiskIdentity{ControllerIndex: 1, CorrelationName: "1 E:"},
			want:   80,
			wantOK: true,
		},
		{
			name:   "model-based name",
			id:     model.DiskIdentity{ControllerIndex: 3, CorrelationName: "3 WDC Red"},
			want:   7,
			wantOK: true,
		},
		{
			name:   "index 1 prefix does not match index 10",
			id:     model.DiskIdentity{ControllerIndex: 1, CorrelationName: "1 Q:"},
			want:   80,
			wantOK: true,
		},
		{
			name: "no entry for index",
			id:   model.DiskIdentity{ControllerIndex: 4, CorrelationName: "4 G:"},
		},
		{
			name: "degraded identity",
			id:   Degraded("PhysicalDrive0"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := feed.Match(test.id)
			if ok != test.wantOK || got != test.want {
				t.Errorf("Match() = (%f, %v), want (%f, %v)", got, ok, test.want, test.wantOK)
			}
		})
	}
	if feed.Len() != 5 {
		t.Errorf("Len() = %d, want 5 (_Total dropped)", feed.Len())
	}
}
