package security

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"sort"
	"strings"
)

// DefaultAllowedCommands is the set of commands the engine may invoke on
// its own behalf. Project-controlled commands (install/test/build/start)
// never go through this allowlist: per the trust model, project code is
// trusted and runs through the unrestricted process runner instead. This
// list only gates argv the engine itself constructs.
var DefaultAllowedCommands = map[string]bool{
	"git":       true,
	"nginx":     true,
	"systemctl": true,
	"pm2":       true,
	"rsync":     true,
	"cp":        true,
}

// SandboxedExecutor provides safe command execution with validation and sandboxing.
type SandboxedExecutor struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool

	// WorkDir is the working directory for command execution.
	WorkDir string

	// Env contains environment variables for the command.
	Env []string

	// AllowShellMetachars allows shell metacharacters in arguments (DANGEROUS!).
	// This should almost always be false.
	AllowShellMetachars bool
}

// NewSandboxedExecutor creates a new sandboxed executor with default settings.
// AllowedCommands starts as a copy of DefaultAllowedCommands: callers (e.g.
// RunAllowed adding an ExtraAllowed command per deploy) mutate their own
// executor's map, never the shared package-level default.
func NewSandboxedExecutor(workDir string) *SandboxedExecutor {
	return &SandboxedExecutor{
		AllowedCommands:     maps.Clone(DefaultAllowedCommands),
		WorkDir:             workDir,
		AllowShellMetachars: false,
	}
}

// Execute runs a command with validation and sandboxing.
// Returns the combined stdout/stderr output and any error.
func (e *SandboxedExecutor) Execute(ctx context.Context, cmdParts []string) ([]byte, error) {
	return e.execute(ctx, cmdParts, len(cmdParts))
}

// ExecuteWithTrustedTail is like Execute, except cmdParts[trustedFrom:] is
// exempt from the shell-metacharacter check. Use this when the tail of an
// otherwise engine-constructed argv carries project-controlled data (e.g. a
// pm2-wrapped start command) that the trust model says should run
// unrestricted, while argv[0] and everything the engine built ahead of it
// are still validated normally.
func (e *SandboxedExecutor) ExecuteWithTrustedTail(ctx context.Context, cmdParts []string, trustedFrom int) ([]byte, error) {
	return e.execute(ctx, cmdParts, trustedFrom)
}

func (e *SandboxedExecutor) execute(ctx context.Context, cmdParts []string, trustedFrom int) ([]byte, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	baseCmd := cmdParts[0]

	// Validate command is allowed
	if !e.AllowedCommands[baseCmd] {
		return nil, fmt.Errorf("command not allowed: %s (must be one of: %v)",
			baseCmd, e.getAllowedCommandsList())
	}

	// Prevent shell metacharacters in arguments unless explicitly allowed
	if !e.AllowShellMetachars {
		for i := 1; i < len(cmdParts) && i < trustedFrom; i++ {
			if containsShellMetachars(cmdParts[i]) {
				return nil, fmt.Errorf("argument %d contains shell metacharacters: %s", i, cmdParts[i])
			}
		}
	}

	// Create command without shell (prevents shell injection)
	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = e.WorkDir
	cmd.Env = e.Env

	// Run command and capture output
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}

	return output, nil
}

// ExecuteQuiet runs a command and discards the output (but still checks for errors).
func (e *SandboxedExecutor) ExecuteQuiet(ctx context.Context, cmdParts []string) error {
	_, err := e.Execute(ctx, cmdParts)
	return err
}

// getAllowedCommandsList returns a sorted list of allowed commands for error messages.
func (e *SandboxedExecutor) getAllowedCommandsList() []string {
	commands := make([]string, 0, len(e.AllowedCommands))
	for cmd := range e.AllowedCommands {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// containsShellMetachars checks if a string contains shell metacharacters.
// These characters can be used for command injection attacks.
func containsShellMetachars(s string) bool {
	dangerous := []string{
		";",  // Command separator
		"|",  // Pipe
		"&",  // Background/AND
		"$",  // Variable expansion
		"`",  // Command substitution
		"\n", // Newline (command separator)
		">",  // Redirect output
		"<",  // Redirect input
		"(",  // Subshell start
		")",  // Subshell end
		"{",  // Brace expansion start
		"}",  // Brace expansion end
		"*",  // Glob wildcard
		"?",  // Glob single char
		"[",  // Glob character class
		"]",  // Glob character class end
		"\\", // Escape character
		"'",  // Single quote (can bypass some protections)
		"\"", // Double quote (can bypass some protections)
	}

	for _, char := range dangerous {
		if strings.Contains(s, char) {
			return true
		}
	}

	return false
}

// ValidateCommandParts validates a command before execution.
// This can be used to pre-validate commands without executing them.
func (e *SandboxedExecutor) ValidateCommandParts(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	baseCmd := cmdParts[0]

	// Validate command is allowed
	if !e.AllowedCommands[baseCmd] {
		return fmt.Errorf("command not allowed: %s", baseCmd)
	}

	// Check for shell metacharacters
	if !e.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

// AddAllowedCommand adds a command to the allowed list.
// Use with caution - only add commands you trust.
func (e *SandboxedExecutor) AddAllowedCommand(cmd string) {
	if e.AllowedCommands == nil {
		e.AllowedCommands = make(map[string]bool)
	}
	e.AllowedCommands[cmd] = true
}

// RemoveAllowedCommand removes a command from the allowed list.
func (e *SandboxedExecutor) RemoveAllowedCommand(cmd string) {
	delete(e.AllowedCommands, cmd)
}

// IsCommandAllowed checks if a command is in the allowed list.
func (e *SandboxedExecutor) IsCommandAllowed(cmd string) bool {
	return e.AllowedCommands[cmd]
}
