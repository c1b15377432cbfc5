// Package engine is the deployment pipeline's core: a bounded
// admission queue, a fixed worker pool, and the seven-step machine
// that turns a queued deployment into a released, reloaded project.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shiphouse/internal/config"
	"shiphouse/internal/deployment"
	"shiphouse/internal/errs"
	"shiphouse/internal/history"
	"shiphouse/internal/procmanager"
	"shiphouse/internal/project"
	"shiphouse/internal/runner"
	"shiphouse/internal/secrets"
	"shiphouse/internal/webserver"
)

// Engine owns the admission queue, the worker pool, and every
// collaborator the pipeline needs to carry a deployment from sync
// through runtime supervision.
type Engine struct {
	cfg config.Config

	projects    *project.Store
	deployments *deployment.Store
	templates   *project.TemplateCatalog
	codec       *secrets.Codec
	hist        *history.History
	locks       *deployment.LockManager
	web         *webserver.Writer
	proc        *procmanager.Manager
	logger      *slog.Logger

	mu     sync.Mutex
	queue  chan *deployment.Record
	active int32

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds an Engine from its configuration and collaborators. The
// queue channel holds only waiting records and has capacity
// cfg.MaxQueueSize; Enqueue counts active plus waiting records against
// that same bound.
func New(cfg config.Config, projects *project.Store, deployments *deployment.Store, templates *project.TemplateCatalog, codec *secrets.Codec, hist *history.History, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:         cfg,
		projects:    projects,
		deployments: deployments,
		templates:   templates,
		codec:       codec,
		hist:        hist,
		locks:       deployment.NewLockManager(),
		web:         webserver.New(cfg.NginxSitesAvailable, cfg.NginxSitesEnabled),
		proc:        procmanager.New(cfg.PM2Bin),
		logger:      logger,
		queue:       make(chan *deployment.Record, cfg.MaxQueueSize),
	}
}

// Start launches MaxConcurrentDeploys worker goroutines (at least one).
// The context passed to Start is handed to every run; cancelling it
// does not stop the workers from taking further records off the queue.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	n := e.cfg.MaxConcurrentDeploys
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop cancels the runs' context and closes the queue, then waits for
// the workers. Records still waiting in the queue are run (under the
// cancelled context) before the workers exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	close(e.queue)
	e.wg.Wait()
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for rec := range e.queue {
		atomic.AddInt32(&e.active, 1)
		e.run(ctx, rec)
		atomic.AddInt32(&e.active, -1)
	}
}

// Enqueue admits a new deployment for projectID. It validates the
// project record, checks the admission bound, persists a queued
// deployment record, and hands it to the queue. Nothing is written if
// admission fails.
func (e *Engine) Enqueue(ctx context.Context, projectID string, dryRun bool, trigger string) (*deployment.Record, error) {
	proj, err := e.projects.Get(projectID)
	if err != nil {
		return nil, err
	}
	if err := e.validateProject(proj); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if int(atomic.LoadInt32(&e.active))+len(e.queue) >= e.cfg.MaxQueueSize {
		return nil, errs.New(errs.KindQueueFull, "deployment queue is full")
	}

	id := uuid.New().String()
	logPath := filepath.Join(e.cfg.LogsDir, projectID, id+".log")
	rec := deployment.NewRecord(id, projectID, logPath, dryRun, trigger, time.Now())

	if err := e.deployments.Create(rec); err != nil {
		return nil, fmt.Errorf("persisting deployment record: %w", err)
	}

	e.queue <- rec
	return rec, nil
}

// GetDeployment looks up a deployment record by id.
func (e *Engine) GetDeployment(id string) (*deployment.Record, error) {
	return e.deployments.Get(id)
}

// ListDeployments returns a project's deployment records, newest
// first.
func (e *Engine) ListDeployments(projectID string) ([]*deployment.Record, error) {
	return e.deployments.ListForProject(projectID)
}

// ReadLog returns the full contents of a deployment's log file.
func (e *Engine) ReadLog(rec *deployment.Record) ([]byte, error) {
	data, err := os.ReadFile(rec.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading deployment log: %w", err)
	}
	return data, nil
}

// openLogSink opens the deployment's append-only log file. Dry runs
// write here too — the "no filesystem mutations" property for dry-run
// carves out the deployment record and its log file as the two
// exceptions, since the operator still needs to see what a dry run
// would have done.
func (e *Engine) openLogSink(rec *deployment.Record) (*os.File, runner.LogSink, error) {
	dir := filepath.Dir(rec.LogPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(rec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening deployment log: %w", err)
	}
	return f, &runner.WriterSink{W: f}, nil
}
