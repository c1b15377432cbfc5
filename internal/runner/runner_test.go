package runner

import (
	"context"
	"strings"
	"testing"
)

type captureSink struct {
	lines []string
}

func (c *captureSink) Write(line string) { c.lines = append(c.lines, line) }

func (c *captureSink) joined() string { return strings.Join(c.lines, "\n") }

func TestRunSuccess(t *testing.T) {
	sink := &captureSink{}
	res, err := Run(context.Background(), "echo", []string{"hello"}, Options{}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("Stdout = %q, want to contain hello", res.Stdout)
	}
}

func TestRunFailure(t *testing.T) {
	_, err := Run(context.Background(), "ls", []string{"/nonexistent/path"}, Options{}, nil)
	if err == nil {
		t.Fatal("Run() should fail for nonexistent path")
	}
}

func TestRunRedactsSecrets(t *testing.T) {
	sink := &captureSink{}
	_, err := Run(context.Background(), "env", nil, Options{
		Env:        map[string]string{"API_KEY": "sk-secretvalue"},
		RedactKeys: []string{"API_KEY"},
	}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(sink.joined(), "sk-secretvalue") {
		t.Error("redacted key's value leaked into the log sink")
	}
	if !strings.Contains(sink.joined(), "API_KEY=[redacted]") {
		t.Error("log sink should contain the redaction marker")
	}
}

func TestRunShellSuccess(t *testing.T) {
	res, err := RunShell(context.Background(), "echo shell-output", Options{}, nil)
	if err != nil {
		t.Fatalf("RunShell() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "shell-output") {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

func TestRunDryRunDoesNotExecute(t *testing.T) {
	sink := &captureSink{}
	res, err := Run(context.Background(), "rm", []string{"-rf", "/definitely/not/a/real/path"}, Options{DryRun: true}, sink)
	if err != nil {
		t.Fatalf("Run() dry-run error = %v", err)
	}
	if res.Stdout != "" {
		t.Error("dry-run should not produce real command output")
	}
	if len(sink.lines) != 1 || !strings.Contains(sink.lines[0], "dry-run") {
		t.Errorf("dry-run should log exactly one would-run line, got %v", sink.lines)
	}
}

func TestRunAllowedRejectsUnlistedCommand(t *testing.T) {
	_, err := RunAllowed(context.Background(), "/tmp", []string{"curl", "evil.com"}, Options{}, nil)
	if err == nil {
		t.Error("RunAllowed() should reject a command outside the allowlist")
	}
}

func TestRunAllowedRunsListedCommand(t *testing.T) {
	_, err := RunAllowed(context.Background(), "/tmp", []string{"git", "--version"}, Options{}, nil)
	if err != nil {
		t.Errorf("RunAllowed() with an allow-listed command error = %v", err)
	}
}

func TestRunAllowedExtraAllowedCommand(t *testing.T) {
	_, err := RunAllowed(context.Background(), "/tmp", []string{"echo", "hi"}, Options{}, nil)
	if err == nil {
		t.Fatal("echo should be rejected without ExtraAllowed")
	}

	_, err = RunAllowed(context.Background(), "/tmp", []string{"echo", "hi"}, Options{ExtraAllowed: []string{"echo"}}, nil)
	if err != nil {
		t.Errorf("RunAllowed() with ExtraAllowed error = %v", err)
	}
}

func TestRunAllowedTrustedTailArgs(t *testing.T) {
	argv := []string{"echo", "-n", "hi; rm -rf /tmp/whatever"}

	_, err := RunAllowed(context.Background(), "/tmp", argv, Options{ExtraAllowed: []string{"echo"}}, nil)
	if err == nil {
		t.Fatal("a metacharacter-laden tail should be rejected without TrustedTailArgs")
	}

	_, err = RunAllowed(context.Background(), "/tmp", argv, Options{ExtraAllowed: []string{"echo"}, TrustedTailArgs: 1}, nil)
	if err != nil {
		t.Errorf("RunAllowed() with TrustedTailArgs error = %v", err)
	}
}

func TestRunAllowedDryRun(t *testing.T) {
	sink := &captureSink{}
	_, err := RunAllowed(context.Background(), "/tmp", []string{"systemctl", "reload", "nginx"}, Options{DryRun: true}, sink)
	if err != nil {
		t.Fatalf("RunAllowed() dry-run error = %v", err)
	}
	if len(sink.lines) != 1 {
		t.Errorf("dry-run should log exactly one line, got %v", sink.lines)
	}
}
