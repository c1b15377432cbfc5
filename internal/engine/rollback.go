package engine

import (
	"context"
	"fmt"
	"time"

	"shiphouse/internal/errs"
	"shiphouse/internal/project"
	"shiphouse/internal/runner"
	"shiphouse/internal/security"
	"shiphouse/internal/webserver"
	"shiphouse/pkg/fileutil"
)

// Rollback re-points a project's current release at its previous one.
// Unlike a deployment, it never creates a deployment record — only a
// synthetic history row — since nothing is built or synced; the
// previous release's artifacts are reused as-is. It shares the
// per-project lock with the pipeline so it can't race an in-flight
// deploy's release step.
func (e *Engine) Rollback(ctx context.Context, projectID string) error {
	e.waitLock(projectID)
	defer e.locks.Unlock(projectID)

	proj, err := e.projects.Get(projectID)
	if err != nil {
		return err
	}

	previousLink := project.PreviousLink(e.cfg.ProjectsDir, projectID)
	target, err := fileutil.ReadSymlink(previousLink)
	if err != nil {
		return errs.New(errs.KindNoPrevious, "project has no previous release to roll back to")
	}
	if !fileutil.DirExists(target) {
		return errs.New(errs.KindNoPrevious, "previous release directory no longer exists")
	}

	commit := rollbackCommitFromReleaseDir(target)

	currentLink := project.CurrentLink(e.cfg.ProjectsDir, projectID)
	if err := fileutil.PromoteRelease(currentLink, previousLink, target); err != nil {
		return fmt.Errorf("promoting previous release: %w", err)
	}

	deployTarget, err := security.ValidateWithinRoot(e.cfg.NginxRoot, proj.DeployPath)
	if err != nil {
		return errs.Wrap(errs.KindPathEscape, "deployPath", err)
	}
	if err := fileutil.UpdateSymlinkAtomic(deployTarget, target); err != nil {
		return fmt.Errorf("updating deploy path symlink: %w", err)
	}

	site := webserver.Site{
		ProjectID:   proj.ID,
		Runtime:     proj.Runtime,
		ServerName:  proj.Domain,
		DeployPath:  proj.DeployPath,
		RuntimePort: proj.RuntimePort,
	}
	var sink runner.LogSink
	if err := e.web.Apply(ctx, site, false, sink); err != nil {
		e.recordRollback(ctx, projectID, "failed", commit, err)
		return err
	}

	_, _, _, startCommand, _, _ := e.templates.ResolveCommands(proj)
	if proj.Runtime == project.RuntimeNode && startCommand != "" {
		if err := e.proc.Restart(ctx, proj.ID, false, sink); err != nil {
			rollbackErr := errs.Wrap(errs.KindCommandFailed, "restarting process after rollback", err)
			e.recordRollback(ctx, projectID, "failed", commit, rollbackErr)
			return rollbackErr
		}
	}

	e.recordRollback(ctx, projectID, "success", commit, nil)

	if _, err := e.projects.Patch(proj.ID, func(pr *project.Project) error {
		now := time.Now()
		pr.LastDeploy = &now
		pr.LastCommit = commit
		return nil
	}); err != nil {
		e.logger.Warn("failed to persist lastDeploy/lastCommit after rollback", "projectId", proj.ID, "error", err)
	}

	return nil
}

func (e *Engine) recordRollback(ctx context.Context, projectID, status, commitOrTarget string, cause error) {
	if e.hist == nil {
		return
	}
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := e.hist.RecordRollback(ctx, projectID, status, time.Now(), commitOrTarget, errMsg); err != nil {
		e.logger.Warn("failed to persist rollback history row", "projectId", projectID, "error", err)
	}
}

// rollbackCommitFromReleaseDir extracts the commit short-sha suffix
// from a releases/<epochMs>-<sha7> directory name, matching the
// naming the release step uses, so a rollback's history row still
// carries a useful commit reference.
func rollbackCommitFromReleaseDir(releaseDir string) string {
	base := releaseDir
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '-' {
			return base[i+1:]
		}
	}
	return ""
}
