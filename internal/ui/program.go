package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// Program wraps the Bubble Tea program so the scheduler can push into it.
type Program struct {
	prog *tea.Program
}

// NewProgram builds a full-screen program around m, stopped by ctx.
func NewProgram(ctx context.Context, m *Model, opts ...tea.ProgramOption) *Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	return &Program{prog: tea.NewProgram(m, opts...)}
}

// Emit forwards an emission to the render loop. It blocks until the loop
// accepts it, or returns once the program has exited.
func (p *Program) Emit(e model.Emission) { p.prog.Send(emissionMsg(e)) }

// Setup hands the startup facts to the dashboard.
func (p *Program) Setup(gpuName string, disks []model.DiskIdentity) {
	p.prog.Send(SetupMsg{GPUName: gpuName, Disks: disks})
}

// Run blocks until the user quits or ctx is cancelled.
func (p *Program) Run() error {
	_, err := p.prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
