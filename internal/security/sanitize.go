package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]{1,128}$`)
	idPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRepoURL ensures a repository URL is safe to hand to git clone.
// Only https:// URLs without embedded credentials are accepted; anything
// else could be interpreted as a local path or a command-line flag by
// some git versions.
func ValidateRepoURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid repo URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("repo URL must use https, got %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("repo URL must not embed credentials")
	}
	if u.Host == "" || strings.HasPrefix(rawURL, "-") {
		return fmt.Errorf("repo URL is malformed")
	}
	return nil
}

// ValidateBranchName ensures a branch name is safe to pass to git.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateProjectID ensures a project id is safe for use in file paths,
// URLs, and as an nginx/pm2 identifier.
func ValidateProjectID(id string) error {
	if id == "" {
		return fmt.Errorf("project id cannot be empty")
	}
	if strings.HasPrefix(id, "-") || strings.HasPrefix(id, ".") {
		return fmt.Errorf("project id cannot start with '-' or '.'")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("project id contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// ValidateWithinRoot resolves target and root to their canonical,
// symlink-free form and requires target to be root itself or nested
// under it. It is used for both deployPath (under NGINX_ROOT) and
// buildOutput (under the project's repo root).
//
// Unlike a pure os.Stat check, this tolerates targets that don't exist
// yet: missing path segments are resolved lexically instead of failing,
// since deployPath is often created by this same call chain.
func ValidateWithinRoot(root, target string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving target: %w", err)
	}

	cleanRoot := evalAsFarAsPossible(absRoot)
	cleanTarget := evalAsFarAsPossible(absTarget)

	rel, err := filepath.Rel(cleanRoot, cleanTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root %q", target, root)
	}
	return cleanTarget, nil
}

// evalAsFarAsPossible resolves symlinks for the longest existing prefix
// of path, then reattaches whatever doesn't exist yet.
func evalAsFarAsPossible(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved
	}

	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path
	}
	return filepath.Join(evalAsFarAsPossible(dir), base)
}
