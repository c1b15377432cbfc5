package engine

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"shiphouse/internal/deployment"
	"shiphouse/internal/errs"
	"shiphouse/internal/project"
	"shiphouse/internal/runner"
	"shiphouse/internal/security"
	"shiphouse/internal/vcs"
	"shiphouse/internal/webserver"
	"shiphouse/pkg/fileutil"
)

// run drives a single deployment record through the seven-step
// machine. Same-project deployments are fully serialized here by
// spin-waiting on the per-project lock for the run's whole duration —
// this keeps completion order equal to dispatch order within a
// project without needing a second, separate critical section just
// for the release step.
func (e *Engine) run(ctx context.Context, rec *deployment.Record) {
	e.waitLock(rec.ProjectID)
	defer e.locks.Unlock(rec.ProjectID)

	logFile, sink, err := e.openLogSink(rec)
	if err != nil {
		e.logger.Error("failed to open deployment log", "deploymentId", rec.ID, "error", err)
		return
	}
	if logFile != nil {
		defer logFile.Close()
	}

	proj, err := e.projects.Get(rec.ProjectID)
	if err != nil {
		e.fail(rec, "", fmt.Errorf("loading project: %w", err), sink)
		return
	}

	now := time.Now()
	rec, err = e.deployments.Update(rec.ProjectID, rec.ID, func(r *deployment.Record) error {
		r.Status = deployment.StatusRunning
		r.StartedAt = &now
		return nil
	})
	if err != nil {
		e.logger.Error("failed to mark deployment running", "deploymentId", rec.ID, "error", err)
		return
	}

	p := &pipelineRun{engine: e, rec: rec, proj: proj, sink: sink}
	p.execute(ctx)
}

// pipelineRun carries the state threaded through one deployment's
// seven steps.
type pipelineRun struct {
	engine *Engine
	rec    *deployment.Record
	proj   *project.Project
	sink   runner.LogSink

	repoDir       string
	releaseDir    string
	install       string
	build         string
	test          string
	start         string
	templateOwned bool
	builtEnv      map[string]string
	redactKeys    []string
}

func (p *pipelineRun) execute(ctx context.Context) {
	e := p.engine
	p.repoDir = project.RepoDir(e.cfg.ProjectsDir, p.proj.ID)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{deployment.StepSync, p.stepSync},
		{deployment.StepInstall, p.stepInstall},
		{deployment.StepTest, p.stepTest},
		{deployment.StepBuild, p.stepBuild},
		{deployment.StepRelease, p.stepRelease},
		{deployment.StepNginx, p.stepNginx},
		{deployment.StepRuntime, p.stepRuntime},
	}

	for _, s := range steps {
		e.markStep(p.rec, s.name, "running", nil)
		if err := s.fn(ctx); err != nil {
			e.markStep(p.rec, s.name, "failed", err)
			e.fail(p.rec, p.rec.Commit, err, p.sink)
			return
		}
		e.markStep(p.rec, s.name, "success", nil)
	}

	e.succeed(p.rec, p.proj, p.sink)
}

func (p *pipelineRun) stepSync(ctx context.Context) error {
	client := vcs.New(p.repoDir)
	commit, err := client.Sync(ctx, p.proj.Repo, p.proj.Branch, p.rec.DryRun, p.sink)
	if err != nil {
		return errs.Wrap(errs.KindCommandFailed, "sync", err)
	}
	p.rec.Commit = commit

	builtEnv, err := p.engine.buildEnv(p.proj)
	if err != nil {
		return err
	}
	p.builtEnv = builtEnv.Merged()
	p.redactKeys = builtEnv.Keys

	install, build, test, start, templateOwned, err := p.engine.templates.ResolveCommands(p.proj)
	if err != nil {
		return errs.Wrap(errs.KindConfigIncomplete, "resolving commands", err)
	}
	p.install, p.build, p.test, p.start, p.templateOwned = install, build, test, start, templateOwned
	return nil
}

func (p *pipelineRun) stepInstall(ctx context.Context) error {
	cmd := p.install
	if cmd == "" {
		cmd = autoDetectInstall(p.repoDir)
	}
	if cmd == "" {
		return nil
	}
	return p.runShell(ctx, cmd)
}

func (p *pipelineRun) stepTest(ctx context.Context) error {
	if p.test == "" {
		return nil
	}
	return p.runShell(ctx, p.test)
}

func (p *pipelineRun) stepBuild(ctx context.Context) error {
	if p.build == "" {
		if p.templateOwned {
			return errs.New(errs.KindConfigIncomplete, "no build command resolved for project")
		}
		return nil
	}
	return p.runShell(ctx, p.build)
}

func (p *pipelineRun) runShell(ctx context.Context, script string) error {
	_, err := runner.RunShell(ctx, script, runner.Options{
		Cwd:        p.repoDir,
		Env:        p.builtEnv,
		RedactKeys: p.redactKeys,
		DryRun:     p.rec.DryRun,
	}, p.sink)
	if err != nil {
		return errs.Wrap(errs.KindCommandFailed, script, err)
	}
	return nil
}

func autoDetectInstall(repoDir string) string {
	if fileutil.FileExists(filepath.Join(repoDir, "package-lock.json")) {
		return "npm ci"
	}
	if fileutil.FileExists(filepath.Join(repoDir, "package.json")) {
		return "npm install --production"
	}
	return ""
}

func (p *pipelineRun) stepRelease(ctx context.Context) error {
	e := p.engine

	outputRel := p.proj.BuildOutput
	if outputRel == "" {
		outputRel = e.cfg.DefaultBuildOutput
	}
	outputDir, err := security.ValidateWithinRoot(p.repoDir, filepath.Join(p.repoDir, outputRel))
	if err != nil {
		return errs.Wrap(errs.KindPathEscape, "buildOutput", err)
	}

	if p.rec.DryRun {
		p.releaseDir = filepath.Join(project.ReleasesDir(e.cfg.ProjectsDir, p.proj.ID), "dry-run")
		if p.sink != nil {
			p.sink.Write(fmt.Sprintf("[dry-run] would release %s into a new releases/ directory", outputDir))
		}
		return nil
	}

	if !fileutil.DirExists(outputDir) {
		return errs.New(errs.KindValidation, fmt.Sprintf("build output directory %s does not exist", outputDir))
	}

	sha7 := p.rec.Commit
	if len(sha7) > 7 {
		sha7 = sha7[:7]
	}
	releaseName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sha7)
	releaseDir := filepath.Join(project.ReleasesDir(e.cfg.ProjectsDir, p.proj.ID), releaseName)

	if err := security.CreateSecureDir(releaseDir, security.PermDirectory); err != nil {
		return fmt.Errorf("creating release directory: %w", err)
	}

	if _, err := runner.RunAllowed(ctx, "", []string{"rsync", "-a", outputDir + "/", releaseDir + "/"}, runner.Options{}, p.sink); err != nil {
		return errs.Wrap(errs.KindCommandFailed, "copying build output", err)
	}

	currentLink := project.CurrentLink(e.cfg.ProjectsDir, p.proj.ID)
	previousLink := project.PreviousLink(e.cfg.ProjectsDir, p.proj.ID)
	if err := fileutil.PromoteRelease(currentLink, previousLink, releaseDir); err != nil {
		return fmt.Errorf("promoting release: %w", err)
	}

	deployTarget, err := security.ValidateWithinRoot(e.cfg.NginxRoot, p.proj.DeployPath)
	if err != nil {
		return errs.Wrap(errs.KindPathEscape, "deployPath", err)
	}
	if err := fileutil.UpdateSymlinkAtomic(deployTarget, releaseDir); err != nil {
		return fmt.Errorf("updating deploy path symlink: %w", err)
	}

	p.releaseDir = releaseDir
	return nil
}

func (p *pipelineRun) stepNginx(ctx context.Context) error {
	e := p.engine

	if p.proj.Runtime == project.RuntimeNode && p.proj.RuntimePort == 0 && !p.rec.DryRun {
		port := 4000 + rand.Intn(1000)
		updated, err := e.projects.Patch(p.proj.ID, func(pr *project.Project) error {
			pr.RuntimePort = port
			return nil
		})
		if err != nil {
			return fmt.Errorf("persisting assigned runtime port: %w", err)
		}
		p.proj = updated
	}

	site := webserver.Site{
		ProjectID:   p.proj.ID,
		Runtime:     p.proj.Runtime,
		ServerName:  p.proj.Domain,
		DeployPath:  p.proj.DeployPath,
		RuntimePort: p.proj.RuntimePort,
	}
	if err := e.web.Apply(ctx, site, p.rec.DryRun, p.sink); err != nil {
		return err
	}
	return nil
}

func (p *pipelineRun) stepRuntime(ctx context.Context) error {
	if p.proj.Runtime != project.RuntimeNode {
		return nil
	}
	if p.start == "" {
		return nil
	}

	env := make(map[string]string, len(p.builtEnv)+1)
	for k, v := range p.builtEnv {
		env[k] = v
	}
	env["PORT"] = fmt.Sprintf("%d", p.proj.RuntimePort)

	cwd := p.releaseDir
	if cwd == "" {
		cwd = project.CurrentLink(p.engine.cfg.ProjectsDir, p.proj.ID)
	}

	if err := p.engine.proc.StartOrRestart(ctx, p.proj.ID, cwd, p.start, env, p.rec.DryRun, p.sink); err != nil {
		return errs.Wrap(errs.KindCommandFailed, "process manager", err)
	}
	return nil
}

func (e *Engine) markStep(rec *deployment.Record, step, status string, err error) {
	_, updErr := e.deployments.Update(rec.ProjectID, rec.ID, func(r *deployment.Record) error {
		deployment.SetStep(r, step, status, err)
		return nil
	})
	if updErr != nil {
		e.logger.Warn("failed to persist step transition", "deploymentId", rec.ID, "step", step, "error", updErr)
	}
}

func (e *Engine) fail(rec *deployment.Record, commit string, cause error, sink runner.LogSink) {
	if sink != nil {
		sink.Write(fmt.Sprintf("deployment failed: %v", cause))
	}
	now := time.Now()
	_, err := e.deployments.Update(rec.ProjectID, rec.ID, func(r *deployment.Record) error {
		r.Status = deployment.StatusFailed
		r.FinishedAt = &now
		r.Error = cause.Error()
		if commit != "" {
			r.Commit = commit
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to persist failed deployment", "deploymentId", rec.ID, "error", err)
	}

	if e.hist != nil {
		_ = e.hist.RecordDeploy(context.Background(), rec.ID, rec.ProjectID, deployment.StatusFailed, startedAt(rec), &now, commit, cause.Error())
	}
}

func (e *Engine) succeed(rec *deployment.Record, proj *project.Project, sink runner.LogSink) {
	if sink != nil {
		sink.Write("deployment succeeded")
	}
	now := time.Now()
	updated, err := e.deployments.Update(rec.ProjectID, rec.ID, func(r *deployment.Record) error {
		r.Status = deployment.StatusSuccess
		r.FinishedAt = &now
		if rec.Commit != "" {
			r.Commit = rec.Commit
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to persist successful deployment", "deploymentId", rec.ID, "error", err)
		return
	}

	if !rec.DryRun {
		if _, err := e.projects.Patch(proj.ID, func(pr *project.Project) error {
			pr.LastDeploy = &now
			pr.LastCommit = updated.Commit
			return nil
		}); err != nil {
			e.logger.Warn("failed to persist lastDeploy/lastCommit", "projectId", proj.ID, "error", err)
		}
	}

	if e.hist != nil {
		_ = e.hist.RecordDeploy(context.Background(), rec.ID, rec.ProjectID, deployment.StatusSuccess, startedAt(rec), &now, updated.Commit, "")
	}
}

func startedAt(rec *deployment.Record) time.Time {
	if rec.StartedAt != nil {
		return *rec.StartedAt
	}
	return rec.CreatedAt
}

func (e *Engine) buildEnv(p *project.Project) (*project.BuiltEnv, error) {
	return project.BuildEnv(p.Env, e.codec)
}

// waitLock spin-waits for the per-project lock, since LockManager only
// exposes a non-blocking TryLock and the pipeline needs to block until
// any other in-flight deployment or rollback for the same project
// finishes.
func (e *Engine) waitLock(projectID string) {
	for !e.locks.TryLock(projectID) {
		time.Sleep(10 * time.Millisecond)
	}
}
