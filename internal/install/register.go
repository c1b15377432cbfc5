package install

import (
	"fmt"
	"path/filepath"

	"shiphouse/internal/config"
	"shiphouse/internal/project"
	"shiphouse/internal/secrets"
)

// registerProject writes the bootstrapped project straight into the
// server's project store, using the SSH host alias set up by setupSSH
// as the clone URL. It never clones or writes a releases/ directory
// itself; the engine's sync step does that on the project's first
// deploy.
func registerProject(c *Config) error {
	cfg := config.FromEnv()
	codec := secrets.NewCodec(cfg.SecretsMasterKey)
	store := project.NewStore(cfg.ProjectsDir, codec)

	repo := fmt.Sprintf("git@%s:%s.git", c.GitHostAlias, c.OwnerRepo)
	deployPath := filepath.Join(cfg.NginxRoot, c.ProjectName)

	p := &project.Project{
		ID:            c.ProjectName,
		Repo:          repo,
		Branch:        "main",
		Runtime:       project.RuntimeStatic,
		Target:        project.TargetServer,
		OwnerID:       project.AdminOwnerID,
		Domain:        c.ProjectDomain,
		DeployPath:    deployPath,
		WebhookSecret: c.WebhookSecret,
	}

	msg := fmt.Sprintf("Registering project %q...", c.ProjectName)
	if err := store.Create(p); err != nil {
		if err == project.ErrExists {
			printWarn(fmt.Sprintf("Project %q already registered; leaving it as-is...", c.ProjectName))
			return nil
		}
		printError(msg)
		return fmt.Errorf("registering project: %w", err)
	}
	printSuccess(msg)
	return nil
}
