package project

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"shiphouse/internal/secrets"
	"shiphouse/internal/security"
	"shiphouse/pkg/fileutil"
)

// ErrNotFound is returned when a project id has no record on disk.
var ErrNotFound = fmt.Errorf("project not found")

// ErrExists is returned by Create when the id is already taken.
var ErrExists = fmt.Errorf("project already exists")

// Store is the JSON-file-backed CRUD layer over project records. One
// file per project at <projectsDir>/<id>/deploy-config.json. A
// process-wide mutex serializes writes; readers see a best-effort
// snapshot (last-write-wins, matching the rest of the per-record JSON
// contract described for the deployment store).
type Store struct {
	mu         sync.Mutex
	projectsDir string
	codec      *secrets.Codec
}

// NewStore creates a project store rooted at projectsDir.
func NewStore(projectsDir string, codec *secrets.Codec) *Store {
	return &Store{projectsDir: projectsDir, codec: codec}
}

// Create persists a brand-new project record and lays out its
// directory tree (repo/, releases/, deployments/). Fails ErrExists if
// the id is already taken.
func (s *Store) Create(p *Project) error {
	if err := security.ValidateProjectID(p.ID); err != nil {
		return fmt.Errorf("validating project id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := Dir(s.projectsDir, p.ID)
	if fileutil.PathExists(dir) {
		return ErrExists
	}

	for _, sub := range []string{dir, RepoDir(s.projectsDir, p.ID), ReleasesDir(s.projectsDir, p.ID), DeploymentsDir(s.projectsDir, p.ID)} {
		if err := security.CreateSecureDir(sub, security.PermDirectory); err != nil {
			return fmt.Errorf("creating project directory %s: %w", sub, err)
		}
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	normalized, err := s.normalizeForWrite(p.Env, nil)
	if err != nil {
		return err
	}
	p.Env = normalized

	return s.write(p)
}

// Get loads a single project record by id.
func (s *Store) Get(id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// List returns every project record under the store root, oldest
// first by creation time. Unparseable records are skipped rather than
// failing the whole listing, tolerating manual edits to the JSON
// files on disk.
func (s *Store) List() ([]*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading projects dir: %w", err)
	}

	var out []*Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.read(e.Name())
		if err != nil {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Patch applies a partial update to an existing project. mutate
// receives the loaded record and edits it in place, or returns an
// error to abort without writing. The store's mutex is held from the
// read through the write.
func (s *Store) Patch(id string, mutate func(p *Project) error) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(id)
	if err != nil {
		return nil, err
	}

	if err := mutate(p); err != nil {
		return nil, err
	}

	p.UpdatedAt = time.Now()
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) read(id string) (*Project, error) {
	path := ConfigPath(s.projectsDir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading project record: %w", err)
	}

	var raw rawProject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing project record: %w", err)
	}

	p := raw.toProject()
	p.Env = normalizeEnvOnRead(raw.Env)
	return p, nil
}

func (s *Store) write(p *Project) error {
	dir := Dir(s.projectsDir, p.ID)
	if err := security.CreateSecureDir(dir, security.PermDirectory); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project record: %w", err)
	}

	path := ConfigPath(s.projectsDir, p.ID)
	if err := fileutil.AtomicWriteFile(path, data, security.PermConfigFile); err != nil {
		return fmt.Errorf("writing project record: %w", err)
	}
	return nil
}

// rawProject decodes the on-disk shape, which may carry env either as
// the current entry-list form or the legacy {KEY: value} map form.
type rawProject struct {
	Project
	Env json.RawMessage `json:"env"`
}

func (r *rawProject) toProject() *Project {
	p := r.Project
	return &p
}

func normalizeEnvOnRead(raw json.RawMessage) []EnvEntry {
	if len(raw) == 0 {
		return nil
	}

	var entries []EnvEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		return dropKeylessEntries(entries)
	}

	var legacy map[string]interface{}
	if err := json.Unmarshal(raw, &legacy); err == nil {
		entries = make([]EnvEntry, 0, len(legacy))
		for k, v := range legacy {
			if k == "" {
				continue
			}
			s := fmt.Sprintf("%v", v)
			entries = append(entries, EnvEntry{Key: k, Value: &s})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		return entries
	}

	return nil
}

func dropKeylessEntries(entries []EnvEntry) []EnvEntry {
	out := make([]EnvEntry, 0, len(entries))
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
