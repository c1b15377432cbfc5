package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"shiphouse/pkg/fileutil"
)

// CommandTemplate is a named preset of pipeline commands that
// non-admin-owned projects are restricted to, so an untrusted owner
// cannot smuggle an arbitrary shell command into the engine through
// their own project record.
type CommandTemplate struct {
	ID             string `json:"id"`
	InstallCommand string `json:"installCommand"`
	BuildCommand   string `json:"buildCommand"`
	TestCommand    string `json:"testCommand,omitempty"`
	StartCommand   string `json:"startCommand,omitempty"`
}

// TemplateCatalog is the read-only, JSON-file-backed set of command
// templates at <projectsDir>/.templates.json.
type TemplateCatalog struct {
	path      string
	templates map[string]CommandTemplate
}

// LoadTemplateCatalog reads the catalog file. A missing file is not
// an error — it yields an empty catalog, since a fresh install has no
// templates registered yet.
func LoadTemplateCatalog(projectsDir string) (*TemplateCatalog, error) {
	path := filepath.Join(projectsDir, ".templates.json")

	c := &TemplateCatalog{path: path, templates: make(map[string]CommandTemplate)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading template catalog: %w", err)
	}

	var list []CommandTemplate
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing template catalog: %w", err)
	}
	for _, t := range list {
		c.templates[t.ID] = t
	}
	return c, nil
}

// Get looks up a template by id.
func (c *TemplateCatalog) Get(id string) (CommandTemplate, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// Put adds or replaces a template and persists the catalog via
// tempfile-then-rename, matching the durability requirement called
// out for this file.
func (c *TemplateCatalog) Put(t CommandTemplate) error {
	c.templates[t.ID] = t
	return c.save()
}

func (c *TemplateCatalog) save() error {
	list := make([]CommandTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		list = append(list, t)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling template catalog: %w", err)
	}
	return fileutil.AtomicWriteFile(c.path, data, 0644)
}

// ResolveCommands returns the commands the pipeline should run for a
// project: the admin owner's own fields, or the referenced template's
// fields for everyone else. ConfigIncomplete-shaped errors are left to
// the caller (the engine), which has the error-kind context.
func (c *TemplateCatalog) ResolveCommands(p *Project) (install, build, test, start string, templateOwned bool, err error) {
	if !p.UsesTemplate() {
		return p.InstallCommand, p.BuildCommand, p.TestCommand, p.StartCommand, false, nil
	}

	tmpl, ok := c.Get(p.TemplateID)
	if !ok {
		return "", "", "", "", true, fmt.Errorf("template %q not found for project %q", p.TemplateID, p.ID)
	}
	return tmpl.InstallCommand, tmpl.BuildCommand, tmpl.TestCommand, tmpl.StartCommand, true, nil
}
