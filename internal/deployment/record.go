// Package deployment holds the deployment record type, its on-disk
// store, and the per-project lock that serializes release promotion.
package deployment

import "time"

// Status values a deployment record moves through.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Trigger values recording what started a deployment.
const (
	TriggerAPI     = "api"
	TriggerWebhook = "webhook"
)

// Step names, in pipeline order.
const (
	StepSync    = "sync"
	StepInstall = "install"
	StepTest    = "test"
	StepBuild   = "build"
	StepRelease = "release"
	StepNginx   = "nginx"
	StepRuntime = "runtime"
)

// Steps lists the seven pipeline steps in execution order.
var Steps = []string{StepSync, StepInstall, StepTest, StepBuild, StepRelease, StepNginx, StepRuntime}

// StepRecord tracks one step's progress within a deployment.
type StepRecord struct {
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Record is a single deployment attempt for a project.
type Record struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	DryRun    bool   `json:"dryRun"`
	Trigger   string `json:"trigger"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Commit  string `json:"commit,omitempty"`
	LogPath string `json:"logPath"`
	Error   string `json:"error,omitempty"`

	Steps map[string]*StepRecord `json:"steps"`
}

// NewRecord builds a freshly queued record with all seven steps
// initialized to pending.
func NewRecord(id, projectID, logPath string, dryRun bool, trigger string, createdAt time.Time) *Record {
	steps := make(map[string]*StepRecord, len(Steps))
	for _, name := range Steps {
		steps[name] = &StepRecord{Status: "pending"}
	}
	return &Record{
		ID:        id,
		ProjectID: projectID,
		Status:    StatusQueued,
		DryRun:    dryRun,
		Trigger:   trigger,
		CreatedAt: createdAt,
		LogPath:   logPath,
		Steps:     steps,
	}
}

// Terminal reports whether the record has reached success or failed,
// after which the record is immutable.
func (r *Record) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed
}
