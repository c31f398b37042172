package shutdown

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// CommandAction runs the platform shutdown command.
type CommandAction struct {
	Name string
	Args []string
	// DryRun logs the command instead of running it.
	DryRun bool
	Log    *zap.Logger
}

// NewCommandAction returns the shutdown command for the running OS.
func NewCommandAction(dryRun bool, log *zap.Logger) *CommandAction {
	a := &CommandAction{Name: "shutdown", DryRun: dryRun, Log: log}
	if runtime.GOOS == "windows" {
		a.Args = []string{"/s", "/t", "1"}
	} else {
		a.Args = []string{"-h", "now"}
	}
	return a
}

// Shutdown starts the command and does not wait for the OS to go down.
func (a *CommandAction) Shutdown(ctx context.Context) error {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	if a.DryRun {
		log.Warn("dry run: not shutting down", zap.String("cmd", a.Name), zap.Strings("args", a.Args))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, a.Name, a.Args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", a.Name, err, out)
	}
	log.Info("shutdown command issued", zap.String("cmd", a.Name))
	return nil
}
