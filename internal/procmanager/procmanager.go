// Package procmanager wraps the pm2 invocations the pipeline's runtime
// step and rollback path issue for node projects. Static projects never
// call this package.
package procmanager

import (
	"context"
	"fmt"

	"shiphouse/internal/runner"
)

// Manager issues pm2 commands for a single configured binary.
type Manager struct {
	Bin string
}

// New returns a Manager bound to the given pm2 binary path or name.
func New(bin string) *Manager {
	return &Manager{Bin: bin}
}

// StartOrRestart brings up name under pm2 with cwd as its working
// directory, running startCommand through bash -lc, with env merged
// into the child's environment (including PORT). pm2 itself decides
// whether this is a fresh start or a restart of an existing process
// with the same name; `--update-env` makes sure a changed PORT or
// secret actually takes effect. startCommand is project-controlled and
// trusted per the engine's trust model, so it rides as the one trusted
// tail argument rather than being checked for shell metacharacters
// alongside the engine-built argv ahead of it.
func (m *Manager) StartOrRestart(ctx context.Context, name, cwd, startCommand string, env map[string]string, dryRun bool, sink runner.LogSink) error {
	argv := []string{
		m.Bin, "start", "bash",
		"--name", name,
		"--cwd", cwd,
		"--update-env",
		"--", "-lc", startCommand,
	}
	_, err := runner.RunAllowed(ctx, cwd, argv, runner.Options{Env: env, DryRun: dryRun, ExtraAllowed: []string{m.Bin}, TrustedTailArgs: 1}, sink)
	if err != nil {
		return fmt.Errorf("pm2 start/restart %s: %w", name, err)
	}
	return nil
}

// Restart restarts an already-running process by name, the path
// rollback uses: the release directory changed but the process
// manager needs to be told to re-exec against it.
func (m *Manager) Restart(ctx context.Context, name string, dryRun bool, sink runner.LogSink) error {
	_, err := runner.RunAllowed(ctx, "", []string{m.Bin, "restart", name}, runner.Options{DryRun: dryRun, ExtraAllowed: []string{m.Bin}}, sink)
	if err != nil {
		return fmt.Errorf("pm2 restart %s: %w", name, err)
	}
	return nil
}
