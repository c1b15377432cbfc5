package deployment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"shiphouse/internal/security"
	"shiphouse/pkg/fileutil"
)

// ErrNotFound is returned when a deployment id has no record on disk.
var ErrNotFound = fmt.Errorf("deployment not found")

// Store is the JSON-file-backed CRUD layer over deployment records.
// One file per deployment at
// <projectsDir>/<projectId>/deployments/<deploymentId>.json, plus a
// process-wide index file mapping deploymentId to projectId so a
// lookup by id alone doesn't need to scan every project.
type Store struct {
	mu          sync.Mutex
	projectsDir string
}

// NewStore creates a deployment store rooted at projectsDir.
func NewStore(projectsDir string) *Store {
	return &Store{projectsDir: projectsDir}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.projectsDir, ".deployments-index.json")
}

func deploymentPath(projectsDir, projectID, deploymentID string) string {
	return filepath.Join(projectsDir, projectID, "deployments", deploymentID+".json")
}

// Create persists a brand-new deployment record and registers it in
// the cross-project index.
func (s *Store) Create(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(r); err != nil {
		return err
	}
	return s.addToIndex(r.ID, r.ProjectID)
}

// Get loads a deployment record by id alone, using the index to find
// which project it belongs to.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectID, err := s.lookupIndex(id)
	if err != nil {
		return nil, err
	}
	return s.read(projectID, id)
}

// GetForProject loads a deployment record known to belong to
// projectID, avoiding an index lookup.
func (s *Store) GetForProject(projectID, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(projectID, id)
}

// ListForProject returns every deployment record for a project,
// newest first.
func (s *Store) ListForProject(projectID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.projectsDir, projectID, "deployments")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading deployments dir: %w", err)
	}

	var out []*Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		r, err := s.read(projectID, id)
		if err != nil {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update loads the record, applies mutate, and persists the result.
// It refuses to mutate a record already in a terminal state, matching
// the immutability invariant on success/failed deployments.
func (s *Store) Update(projectID, id string, mutate func(r *Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(projectID, id)
	if err != nil {
		return nil, err
	}
	if r.Terminal() {
		return nil, fmt.Errorf("deployment %s is already terminal (%s)", id, r.Status)
	}

	if err := mutate(r); err != nil {
		return nil, err
	}
	if err := s.write(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) read(projectID, id string) (*Record, error) {
	path := deploymentPath(s.projectsDir, projectID, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading deployment record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing deployment record: %w", err)
	}
	return &r, nil
}

func (s *Store) write(r *Record) error {
	dir := filepath.Join(s.projectsDir, r.ProjectID, "deployments")
	if err := security.CreateSecureDir(dir, security.PermDirectory); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling deployment record: %w", err)
	}

	path := deploymentPath(s.projectsDir, r.ProjectID, r.ID)
	if err := fileutil.AtomicWriteFile(path, data, security.PermConfigFile); err != nil {
		return fmt.Errorf("writing deployment record: %w", err)
	}
	return nil
}

func (s *Store) addToIndex(deploymentID, projectID string) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	idx[deploymentID] = projectID
	return s.saveIndex(idx)
}

func (s *Store) lookupIndex(deploymentID string) (string, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	projectID, ok := idx[deploymentID]
	if !ok {
		return "", ErrNotFound
	}
	return projectID, nil
}

func (s *Store) loadIndex() (map[string]string, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading deployments index: %w", err)
	}
	var idx map[string]string
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing deployments index: %w", err)
	}
	return idx, nil
}

func (s *Store) saveIndex(idx map[string]string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling deployments index: %w", err)
	}
	return fileutil.AtomicWriteFile(s.indexPath(), data, security.PermConfigFile)
}

// SetStep records a step's transition and, for running->success or
// running->failed, its timestamp.
func SetStep(r *Record, step, status string, err error) {
	sr := r.Steps[step]
	if sr == nil {
		sr = &StepRecord{}
		r.Steps[step] = sr
	}
	now := time.Now()
	switch status {
	case "running":
		sr.StartedAt = &now
	case "success", "failed":
		sr.FinishedAt = &now
	}
	sr.Status = status
	if err != nil {
		sr.Error = err.Error()
	}
}
