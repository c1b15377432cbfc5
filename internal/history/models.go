package history

import "time"

// Kind distinguishes a normal pipeline deployment from a synthetic
// rollback row — the rollback path never creates a deployment record,
// so this index is the only place a rollback is visible after the fact.
const (
	KindDeploy   = "deploy"
	KindRollback = "rollback"
)

// Row represents a single indexed deployment or rollback event.
type Row struct {
	ID           int64
	DeploymentID *string // nil for rollback rows
	ProjectID    string
	Kind         string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	CommitHash   *string
	ErrorMessage *string
}

// ProjectStatus is the latest indexed event for a project plus its
// recent history, the shape the HTTP facade's status views use.
type ProjectStatus struct {
	ProjectID     string `json:"projectId"`
	Latest        *Row   `json:"latest,omitempty"`
	RecentHistory []Row  `json:"recentHistory"`
}
