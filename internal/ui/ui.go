package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// Controller is the part of the scheduler the dashboard drives. Calls may
// block until the scheduler applies them, so they only run inside tea.Cmd
// goroutines.
type Controller interface {
	BeginInteraction()
	EndInteraction()
	Arm()
	Disarm()
}

// Model renders change-gated emissions pushed by the scheduler.
type Model struct {
	ctrl     Controller
	topSlots int

	gpuName string
	disks   []model.DiskIdentity
	latest  map[string]model.Emission

	width  int
	height int
}

// New returns a dashboard that shows topSlots process rows.
func New(ctrl Controller, topSlots int) *Model {
	return &Model{
		ctrl:     ctrl,
		topSlots: topSlots,
		gpuName:  "GPU",
		latest:   make(map[string]model.Emission),
		width:    120,
		height:   40,
	}
}

// Messages
type (
	emissionMsg model.Emission

	// SetupMsg carries what the scheduler learned at startup.
	SetupMsg struct {
		GPUName string
		Disks   []model.DiskIdentity
	}
)

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SetupMsg:
		m.gpuName = msg.GPUName
		m.disks = append([]model.DiskIdentity(nil), msg.Disks...)
	case emissionMsg:
		m.latest[msg.Key] = model.Emission(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, m.interaction()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "a":
			return m, m.toggleArm()
		}
	}
	return m, nil
}

// interaction pauses sampling for the duration of a resize; the scheduler
// debounces the end so a drag only costs one catch-up sample.
func (m *Model) interaction() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.BeginInteraction()
		ctrl.EndInteraction()
		return nil
	}
}

func (m *Model) toggleArm() tea.Cmd {
	e, ok := m.latest[model.KeyShutdown]
	if m.ctrl == nil || !ok {
		return nil
	}
	ctrl := m.ctrl
	if e.Label == "disarmed" {
		return func() tea.Msg { ctrl.Arm(); return nil }
	}
	return func() tea.Msg { ctrl.Disarm(); return nil }
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

const notAvailable = "N/A"

func (m *Model) View() string {
	header := titleStyle.Render("hwdash") + "  " + subtleStyle.Render(m.gpuName)

	cpuCard := card("CPU", strings.Join([]string{
		m.gauge(model.KeyCPUPercent, 24),
		"clock " + m.number(model.KeyCPUGHz, "%.2f GHz"),
		"peaks " + m.peaks(model.PeakCPU),
	}, "\n"))

	gpuCard := card("GPU", strings.Join([]string{
		m.gauge(model.KeyGPUUtil, 24),
		fmt.Sprintf("temp %s  fan %s", m.number(model.KeyGPUTemp, "%.0f°C"), m.number(model.KeyGPUFan, "%.0f%%")),
		fmt.Sprintf("vram %s  clock %s", m.number(model.KeyGPUVRAM, "%.0f%%"), m.number(model.KeyGPUClock, "%.0f MHz")),
		"power " + m.number(model.KeyGPUPower, "%.0f W"),
		fmt.Sprintf("peaks gpu %s, vram %s", m.peaks(model.PeakGPU), m.peaks(model.PeakVRAM)),
	}, "\n"))

	ramCard := card("Memory", strings.Join([]string{
		m.gauge(model.KeyRAM, 24),
		"peaks " + m.peaks(model.PeakRAM),
	}, "\n"))

	netCard := card("Network", fmt.Sprintf("down %s\nup   %s",
		m.number(model.KeyNetDown, "%.3f MB/s"), m.number(model.KeyNetUp, "%.3f MB/s")))

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard, gpuCard, ramCard, netCard)
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, card("Disks", m.diskRows()), card("Top CPU", m.topRows()), card("Idle shutdown", m.shutdownText()))
	footer := subtleStyle.Render("a arm/disarm shutdown · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, line1, line2, footer)
}

func (m *Model) diskRows() string {
	if len(m.disks) == 0 {
		return subtleStyle.Render("no disks")
	}
	rows := make([]string, 0, len(m.disks))
	for _, d := range m.disks {
		key := d.BusyCounterKey
		name := d.Label
		if d.Degraded() {
			name += " (?)"
		}
		rows = append(rows, fmt.Sprintf("%-10s %-7s %s  R %s  W %s",
			truncate(name, 10), d.Media,
			m.gauge(model.DiskBusyKey(key), 12),
			m.number(model.DiskReadKey(key), "%.2f"),
			m.number(model.DiskWriteKey(key), "%.2f")))
	}
	return strings.Join(rows, "\n")
}

func (m *Model) topRows() string {
	rows := make([]string, 0, m.topSlots)
	for slot := 1; slot <= m.topSlots; slot++ {
		e, ok := m.latest[model.TopKey(slot)]
		switch {
		case !ok, !e.Reading.Valid():
			rows = append(rows, fmt.Sprintf("%d. %s", slot, notAvailable))
		case e.Label == "":
			rows = append(rows, fmt.Sprintf("%d. -", slot))
		default:
			rows = append(rows, fmt.Sprintf("%d. %-20s %5.1f%%", slot, truncate(e.Label, 20), e.Reading.Value))
		}
	}
	return strings.Join(rows, "\n")
}

func (m *Model) shutdownText() string {
	e, ok := m.latest[model.KeyShutdown]
	if !ok {
		return subtleStyle.Render("not configured")
	}
	switch e.Label {
	case "armed", "counting":
		return warnStyle.Render(fmt.Sprintf("%s, shutdown in %ds of idle", e.Label, int(e.Reading.Value)))
	case "triggered":
		return warnStyle.Render("shutting down")
	default:
		return e.Label
	}
}

// number formats key's last value, or N/A when it has none.
func (m *Model) number(key, format string) string {
	e, ok := m.latest[key]
	if !ok || !shown(e.Reading) {
		return notAvailable
	}
	return fmt.Sprintf(format, e.Reading.Value)
}

func (m *Model) gauge(key string, width int) string {
	e, ok := m.latest[key]
	if !ok || !shown(e.Reading) {
		return fmt.Sprintf("[%s] %6s", strings.Repeat(gaugeEmpty, width), notAvailable)
	}
	return gaugeBar(e.Reading.Value, width)
}

// shown reports whether r has something to draw. A clock anomaly carries a
// zero rate rather than an error.
func shown(r model.Reading) bool {
	return r.Valid() || r.Cond == model.ClockAnomaly
}

func (m *Model) peaks(metric string) string {
	e, ok := m.latest[model.PeakKey(metric)]
	if !ok || !e.Reading.Valid() {
		return notAvailable
	}
	return peakText(int(e.Reading.Value))
}

func peakText(n int) string {
	switch n {
	case 0:
		return "Never"
	case 1:
		return "1 time"
	default:
		return fmt.Sprintf("%d times", n)
	}
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
