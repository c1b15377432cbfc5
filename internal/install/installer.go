package install

import (
	"fmt"
	"path/filepath"
)

// Installer manages the installation process
type Installer struct {
	config  *Config
	verbose bool
}

// New creates a new installer instance
func New(config *Config, verbose bool) *Installer {
	return &Installer{
		config:  config,
		verbose: verbose,
	}
}

// Run executes the full installation process
func (i *Installer) Run() error {
	c := i.config

	// Initialize installation log file
	logPath := filepath.Join(c.ShiphouseHome, "deployments.log")

	if err := initInstallLog(logPath); err != nil {
		return fmt.Errorf("initializing log file: %w", err)
	}

	defer closeInstallLog()

	fmt.Println()
	fmt.Println("===========================================")
	fmt.Println("==   Shiphouse installation starting...   ==")
	fmt.Println("===========================================")
	fmt.Println()

	// Install required packages
	packages := []string{"sudo", "git", "gh", "nginx", "certbot", "python3-certbot-nginx", "curl"}

	for _, pkg := range packages {
		if err := ensurePackage(pkg); err != nil {
			return fmt.Errorf("installing package %s: %w", pkg, err)
		}
	}

	// Setup system. Cloning and nginx rendering are left to the
	// server's own sync/release pipeline on first deploy; this only
	// bootstraps the host and hands the project to the project store.
	steps := []struct {
		name string
		fn   func(*Config) error
	}{
		{"creating user", ensureUser},
		{"setting up projects directory", setupProjectsDir},
		{"setting up SSH", setupSSH},
		{"uploading deploy key", uploadDeployKey},
		{"registering project", registerProject},
		{"installing service", installService},
		{"setting up SSL", setupCertbot},
		{"creating webhook", createWebhook},
	}

	for _, step := range steps {
		if err := step.fn(c); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	i.printSuccessSummary()

	return nil
}

func (i *Installer) printSuccessSummary() {
	c := i.config

	fmt.Println()
	fmt.Println("==========================================")
	fmt.Printf("  %sShiphouse Installation Complete!%s\n", colorGreen, colorReset)
	fmt.Println("==========================================")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Binary:      %s/shiphouse\n", c.ShiphouseHome)
	fmt.Printf("  Logs:        %s/deployments.log\n", c.ShiphouseHome)
	fmt.Printf("  Project:     %s/%s\n", c.ProjectsRoot, c.ProjectName)
	fmt.Printf("  Webhook URL: %s\n", c.WebhookURL)
	fmt.Printf("  Project URL: https://%s\n", c.ProjectDomain)
	fmt.Println()
	fmt.Println("Service Management:")
	fmt.Println("  Status:     systemctl status shiphouse")
	fmt.Println("  Logs:       journalctl -u shiphouse -f")
	fmt.Println("  Restart:    systemctl restart shiphouse")
	fmt.Println()
	fmt.Println("Health Check:")
	fmt.Printf("  curl %s/health\n", c.WebhookURL)
	fmt.Println()
	fmt.Println("Webhook Endpoint:")
	fmt.Printf("  %s/webhooks/github/%s\n", c.WebhookURL, c.ProjectName)
	fmt.Println()
	fmt.Println("Next Steps:")
	fmt.Printf("  1. Push to %s to trigger the first deploy\n", c.OwnerRepo)
	fmt.Printf("  2. Check logs: journalctl -u shiphouse -f\n")
	fmt.Println()
}
