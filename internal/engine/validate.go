package engine

import (
	"fmt"

	"shiphouse/internal/errs"
	"shiphouse/internal/project"
	"shiphouse/internal/security"
)

// validateProject applies the payload-time path-safety and shape
// rules before a project is admitted for deployment. Most of the
// individual checks already exist on the project record's own fields
// (branch, repo, project id); this just sequences them and adds the
// checks that only make sense with the engine's own configuration
// (deployPath under NGINX_ROOT, a resolvable set of commands).
func (e *Engine) validateProject(p *project.Project) error {
	if err := security.ValidateProjectID(p.ID); err != nil {
		return errs.Wrap(errs.KindValidation, "project id", err)
	}
	if err := security.ValidateRepoURL(p.Repo); err != nil {
		return errs.Wrap(errs.KindValidation, "repo", err)
	}
	if err := security.ValidateBranchName(p.Branch); err != nil {
		return errs.Wrap(errs.KindValidation, "branch", err)
	}
	if p.Runtime != project.RuntimeStatic && p.Runtime != project.RuntimeNode {
		return errs.New(errs.KindValidation, fmt.Sprintf("runtime must be %q or %q, got %q", project.RuntimeStatic, project.RuntimeNode, p.Runtime))
	}
	switch p.Target {
	case project.TargetServer, project.TargetGitHubPages, project.TargetBoth:
	default:
		return errs.New(errs.KindValidation, fmt.Sprintf("unknown target %q", p.Target))
	}

	if _, err := security.ValidateWithinRoot(e.cfg.NginxRoot, p.DeployPath); err != nil {
		return errs.Wrap(errs.KindPathEscape, "deployPath", err)
	}

	install, build, _, _, templateOwned, err := e.templates.ResolveCommands(p)
	if err != nil {
		return errs.Wrap(errs.KindConfigIncomplete, "resolving commands", err)
	}
	if install == "" && build == "" && templateOwned {
		return errs.New(errs.KindConfigIncomplete, fmt.Sprintf("template %q has no install or build command", p.TemplateID))
	}
	if build == "" && templateOwned {
		return errs.New(errs.KindConfigIncomplete, fmt.Sprintf("template %q has no build command", p.TemplateID))
	}
	if build == "" {
		return errs.New(errs.KindConfigIncomplete, "project has no build command")
	}

	return nil
}
