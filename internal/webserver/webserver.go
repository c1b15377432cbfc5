// Package webserver renders and installs the per-project nginx site
// config the deployment pipeline's nginx step needs, then tests and
// reloads nginx through the process runner.
package webserver

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"shiphouse/internal/errs"
	"shiphouse/internal/runner"
	"shiphouse/pkg/fileutil"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

var (
	staticTmpl = template.Must(template.ParseFS(defaultTemplates, "templates/static.conf.tmpl"))
	nodeTmpl   = template.Must(template.ParseFS(defaultTemplates, "templates/node.conf.tmpl"))
)

// Site describes the nginx config a single project needs rendered.
type Site struct {
	ProjectID   string
	Runtime     string // "static" or "node"
	ServerName  string // domain, or "_" as the catch-all
	DeployPath  string // required for static
	RuntimePort int    // required for node
}

// Writer installs and reloads nginx site configs under the configured
// sites-available/sites-enabled directories.
type Writer struct {
	SitesAvailable string
	SitesEnabled   string
}

// New returns a Writer bound to the given sites-available/sites-enabled
// directories.
func New(sitesAvailable, sitesEnabled string) *Writer {
	return &Writer{SitesAvailable: sitesAvailable, SitesEnabled: sitesEnabled}
}

// Apply renders site's config, writes it, symlinks it into
// sites-enabled, then runs `nginx -t` and `systemctl reload nginx`
// through runner.RunAllowed. In dryRun, rendering and the file write
// are skipped entirely and both commands are logged only.
func (w *Writer) Apply(ctx context.Context, site Site, dryRun bool, sink runner.LogSink) error {
	confName := fmt.Sprintf("shiphouse-%s.conf", site.ProjectID)
	sitePath := filepath.Join(w.SitesAvailable, confName)
	enabledPath := filepath.Join(w.SitesEnabled, confName)

	if dryRun {
		if sink != nil {
			sink.Write(fmt.Sprintf("[dry-run] would write %s and symlink %s", sitePath, enabledPath))
		}
		if _, err := runner.RunAllowed(ctx, "", []string{"nginx", "-t"}, runner.Options{DryRun: true}, sink); err != nil {
			return err
		}
		_, err := runner.RunAllowed(ctx, "", []string{"systemctl", "reload", "nginx"}, runner.Options{DryRun: true}, sink)
		return err
	}

	rendered, err := render(site)
	if err != nil {
		return err
	}

	if err := os.WriteFile(sitePath, rendered, 0644); err != nil {
		return fmt.Errorf("writing nginx config %s: %w", sitePath, err)
	}

	if !fileutil.SymlinkExists(enabledPath) {
		if err := fileutil.CreateSymlink(enabledPath, sitePath); err != nil {
			return fmt.Errorf("enabling nginx site %s: %w", confName, err)
		}
	}

	if _, err := runner.RunAllowed(ctx, "", []string{"nginx", "-t"}, runner.Options{}, sink); err != nil {
		return errs.Wrap(errs.KindCommandFailed, "nginx config test failed", err)
	}

	if _, err := runner.RunAllowed(ctx, "", []string{"systemctl", "reload", "nginx"}, runner.Options{}, sink); err != nil {
		return errs.Wrap(errs.KindCommandFailed, "nginx reload failed", err)
	}

	return nil
}

func render(site Site) ([]byte, error) {
	serverName := site.ServerName
	if serverName == "" {
		serverName = "_"
	}

	switch site.Runtime {
	case "static":
		data := struct {
			ServerName string
			Root       string
		}{ServerName: serverName, Root: site.DeployPath}
		return execTemplate(staticTmpl, data)
	case "node":
		if site.RuntimePort == 0 {
			return nil, errs.New(errs.KindConfigIncomplete, "node runtime requires a runtimePort to render its nginx config")
		}
		data := struct {
			ServerName  string
			RuntimePort int
		}{ServerName: serverName, RuntimePort: site.RuntimePort}
		return execTemplate(nodeTmpl, data)
	default:
		return nil, errs.New(errs.KindConfigIncomplete, fmt.Sprintf("unknown runtime kind %q", site.Runtime))
	}
}

func execTemplate(tmpl *template.Template, data any) ([]byte, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("rendering nginx template: %w", err)
	}
	return []byte(sb.String()), nil
}
