// Package vcs implements the git operations the pipeline engine's
// sync step needs: clone a fresh project repo, or fast-forward an
// existing one, then resolve the commit it landed on.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"shiphouse/internal/runner"
	"shiphouse/pkg/fileutil"
)

// Client performs git operations against a single repo directory.
type Client struct {
	RepoDir string
}

// New returns a client bound to repoDir.
func New(repoDir string) *Client {
	return &Client{RepoDir: repoDir}
}

// Sync clones repoURL at branch into RepoDir if it doesn't exist yet,
// or fetches and fast-forwards it otherwise. It returns the resulting
// HEAD commit SHA. In dryRun, no git commands run and an empty commit
// SHA is returned.
func (c *Client) Sync(ctx context.Context, repoURL, branch string, dryRun bool, sink runner.LogSink) (string, error) {
	if dryRun {
		if sink != nil {
			sink.Write(fmt.Sprintf("[dry-run] would sync %s@%s into %s", repoURL, branch, c.RepoDir))
		}
		return "", nil
	}

	gitDir := c.RepoDir + "/.git"
	if !fileutil.DirExists(gitDir) {
		if err := c.clone(ctx, repoURL, branch, sink); err != nil {
			return "", err
		}
	} else {
		if err := c.refresh(ctx, branch, sink); err != nil {
			return "", err
		}
	}

	return c.headCommit(ctx, sink)
}

func (c *Client) clone(ctx context.Context, repoURL, branch string, sink runner.LogSink) error {
	url := normalizeGitURL(repoURL)
	if _, err := runner.RunAllowed(ctx, "", []string{"git", "clone", "--branch", branch, url, c.RepoDir}, runner.Options{}, sink); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, branch string, sink runner.LogSink) error {
	steps := [][]string{
		{"git", "fetch", "--all", "--prune"},
		{"git", "checkout", branch},
		{"git", "pull", "--ff-only"},
	}
	for _, argv := range steps {
		if _, err := runner.RunAllowed(ctx, c.RepoDir, argv, runner.Options{}, sink); err != nil {
			return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
		}
	}
	return nil
}

func (c *Client) headCommit(ctx context.Context, sink runner.LogSink) (string, error) {
	res, err := runner.RunAllowed(ctx, c.RepoDir, []string{"git", "rev-parse", "HEAD"}, runner.Options{}, sink)
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// normalizeGitURL ensures repoURL ends in .git, matching what the
// pipeline records as the canonical remote.
func normalizeGitURL(repoURL string) string {
	if strings.HasSuffix(repoURL, ".git") {
		return repoURL
	}
	return repoURL + ".git"
}
