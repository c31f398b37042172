// Package diskid reconciles the independently keyed disk enumerations a
// platform exposes (byte counters keyed by OS device name, drive metadata
// keyed by controller index, and a busy-percent feed keyed by a display
// name) into one identity per physical disk.
package diskid

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// Drive is one entry from the metadata enumeration.
type Drive struct {
	// Index is the controller index reported by the metadata source.
	Index int
	Model string
	// DeviceName is the byte-counter key for this drive when the platform
	// knows it directly (e.g. "sda"). Empty means "PhysicalDrive<Index>".
	DeviceName string
	// RotationRate in RPM; only meaningful when RotationKnown.
	RotationRate  uint32
	RotationKnown bool
	// Letters are the logical volumes (drive letters or mount points)
	// reached by walking partitions.
	Letters []string
}

// CounterKey is the byte-counter key the drive should match.
func (d Drive) CounterKey() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return "PhysicalDrive" + strconv.Itoa(d.Index)
}

// Media classifies the drive. A failed or absent rotation reading is
// Unknown rather than a guess.
func (d Drive) Media() model.MediaType {
	switch {
	case !d.RotationKnown:
		return model.MediaUnknown
	case d.RotationRate == 0:
		return model.MediaSSD
	default:
		return model.MediaHDD
	}
}

// Resolve builds the canonical identity list. counterKeys is the set of
// disks that have byte counters and is the source of truth for which disks
// exist. When metaErr is non-nil every disk is degraded to its raw key.
// Metadata drives without a counter entry are ignored; counter keys with no
// metadata entry are reported degraded. The result is sorted by counter key.
func Resolve(counterKeys []string, drives []Drive, metaErr error) []model.DiskIdentity {
	canonical := make(map[string]struct{}, len(counterKeys))
	for _, k := range counterKeys {
		canonical[k] = struct{}{}
	}

	resolved := make(map[string]model.DiskIdentity, len(counterKeys))
	if metaErr == nil {
		for _, d := range drives {
			key := d.CounterKey()
			if _, ok := canonical[key]; !ok {
				continue
			}
			if _, dup := resolved[key]; dup {
				continue
			}
			resolved[key] = identityFor(key, d)
		}
	}

	out := make([]model.DiskIdentity, 0, len(canonical))
	for key := range canonical {
		id, ok := resolved[key]
		if !ok {
			id = Degraded(key)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusyCounterKey < out[j].BusyCounterKey })
	return out
}

// Degraded is the identity of a disk known only by its counter key.
func Degraded(key string) model.DiskIdentity {
	return model.DiskIdentity{
		BusyCounterKey:  key,
		ControllerIndex: model.NoController,
		Media:           model.MediaUnknown,
		Label:           key,
	}
}

func identityFor(key string, d Drive) model.DiskIdentity {
	letters := make([]string, 0, len(d.Letters))
	seen := make(map[string]struct{}, len(d.Letters))
	for _, l := range d.Letters {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		letters = append(letters, l)
	}

	label := strings.Join(letters, ", ")
	if label == "" {
		label = "Disk " + strconv.Itoa(d.Index)
	}
	return model.DiskIdentity{
		BusyCounterKey:  key,
		ControllerIndex: d.Index,
		DriveLetters:    letters,
		Media:           d.Media(),
		CorrelationName: CorrelationName(d.Index, letters, d.Model),
		Label:           label,
	}
}

// CorrelationName synthesises the key expected to match the performance
// feed: "{index} {letters}", else "{index} {model}", else "{index}", with
// whitespace collapsed.
func CorrelationName(index int, letters []string, model string) string {
	name := strconv.Itoa(index)
	switch {
	case len(letters) > 0:
		name += " " + strings.Join(letters, ", ")
	case strings.TrimSpace(model) != "":
		name += " " + model
	}
	return Normalize(name)
}

// Normalize collapses runs of whitespace to single spaces and trims.
func Normalize(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Feed is one tick of the performance source: busy percent by display
// name. Names are normalised on construction and "_Total" is dropped.
type Feed struct {
	byName map[string]float64
	names  []string
}

// NewFeed builds a lookup from raw performance-source rows.
func NewFeed(raw map[string]float64) Feed {
	f := Feed{byName: make(map[string]float64, len(raw))}
	for name, v := range raw {
		n := Normalize(name)
		if n == "" || n == "_Total" {
			continue
		}
		f.byName[n] = v
	}
	f.names = make([]string, 0, len(f.byName))
	for n := range f.byName {
		f.names = append(f.names, n)
	}
	sort.Strings(f.names)
	return f
}

// Len returns the number of usable rows.
func (f Feed) Len() int { return len(f.byName) }

// Match finds the busy percent for id: exact correlation-name match first,
// then the first name (in sorted order) starting with "{index} ". Degraded
// identities never match.
func (f Feed) Match(id model.DiskIdentity) (float64, bool) {
	if id.Degraded() || id.CorrelationName == "" {
		return 0, false
	}
	if v, ok := f.byName[id.CorrelationName]; ok {
		return v, true
	}
	prefix := strconv.Itoa(id.ControllerIndex) + " "
	for _, n := range f.names {
		if strings.HasPrefix(n, prefix) {
			return f.byName[n], true
		}
	}
	return 0, false
}
