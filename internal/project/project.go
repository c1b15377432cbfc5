// Package project implements the on-disk project registry: one JSON
// record and one directory tree per deployable project.
package project

import (
	"path/filepath"
	"time"
)

// AdminOwnerID is the privileged owner whose projects may specify their
// own install/build/test/start commands directly instead of going
// through a command template.
const AdminOwnerID = "admin"

// Runtime kinds.
const (
	RuntimeStatic = "static"
	RuntimeNode   = "node"
)

// Publish targets.
const (
	TargetServer      = "server"
	TargetGitHubPages = "github-pages"
	TargetBoth        = "both"
)

// EnvEntry is a single environment variable on a project. Once
// IsSecret is true on a stored entry it can never become false again;
// the cleartext Value field is mutually exclusive with EncryptedValue.
type EnvEntry struct {
	Key            string  `json:"key"`
	IsSecret       bool    `json:"isSecret"`
	Value          *string `json:"value,omitempty"`
	EncryptedValue *string `json:"encryptedValue,omitempty"`
}

// Project is the full record for a deployable project.
type Project struct {
	ID      string `json:"id"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch"`
	Runtime string `json:"runtime"`
	Target  string `json:"target"`

	BuildCommand   string `json:"buildCommand,omitempty"`
	InstallCommand string `json:"installCommand,omitempty"`
	TestCommand    string `json:"testCommand,omitempty"`
	StartCommand   string `json:"startCommand,omitempty"`
	BuildOutput    string `json:"buildOutput"`

	DeployPath string `json:"deployPath"`
	Domain     string `json:"domain,omitempty"`
	Port       int    `json:"port,omitempty"`

	RuntimePort int `json:"runtimePort,omitempty"`

	OwnerID       string `json:"ownerId"`
	TemplateID    string `json:"templateId,omitempty"`
	WebhookSecret string `json:"webhookSecret,omitempty"`

	Env []EnvEntry `json:"env"`

	LastDeploy *time.Time `json:"lastDeploy,omitempty"`
	LastCommit string     `json:"lastCommit,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UsesTemplate reports whether the project is restricted to a command
// template, i.e. it is not owned by the admin.
func (p *Project) UsesTemplate() bool {
	return p.OwnerID != AdminOwnerID
}

// Dir returns <projectsDir>/<id>.
func Dir(projectsDir, id string) string {
	return filepath.Join(projectsDir, id)
}

// RepoDir returns the project's git working tree path.
func RepoDir(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "repo")
}

// ReleasesDir returns the project's releases directory.
func ReleasesDir(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "releases")
}

// CurrentLink returns the path of the "current" release symlink.
func CurrentLink(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "current")
}

// PreviousLink returns the path of the "previous" release symlink.
func PreviousLink(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "previous")
}

// DeploymentsDir returns the directory holding this project's
// deployment records.
func DeploymentsDir(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "deployments")
}

// ConfigPath returns the path of the project's own JSON record.
func ConfigPath(projectsDir, id string) string {
	return filepath.Join(Dir(projectsDir, id), "deploy-config.json")
}
