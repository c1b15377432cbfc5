package install

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"shiphouse/internal/security"
)

var (
	aptUpdated  = false
	hasSystemd  = false
	installLog  *os.File
	installLogW io.Writer
)

func init() {
	hasSystemd = checkSystemd()
}

// checkSystemd checks if systemd is available on the system
func checkSystemd() bool {
	if _, err := os.Stat("/run/systemd/system"); err != nil {
		return false
	}
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// initInstallLog opens the installation log file for writing
func initInstallLog(logPath string) error {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	installLog = f
	installLogW = f

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(installLogW, "\n=== Installation started at %s ===\n\n", timestamp)

	return nil
}

// closeInstallLog closes the installation log file
func closeInstallLog() {
	if installLog != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		fmt.Fprintf(installLogW, "\n=== Installation completed at %s ===\n\n", timestamp)
		installLog.Close()
		installLog = nil
		installLogW = nil
	}
}

// logToFile writes a message to the installation log if it's open
func logToFile(format string, args ...interface{}) {
	if installLogW != nil {
		fmt.Fprintf(installLogW, format, args...)
	}
}

// runCmd executes a command and shows progress
func runCmd(description string, name string, args ...string) error {
	fmt.Printf("%-70s", description+"...")

	logToFile("[CMD] %s %s\n", name, strings.Join(args, " "))

	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()

	if len(output) > 0 {
		logToFile("%s\n", string(output))
	}

	if err != nil {
		printError("")
		fmt.Printf("%s\n", string(output))
		logToFile("[ERROR] Command failed: %v\n\n", err)
		return fmt.Errorf("command failed: %w\nOutput: %s", err, string(output))
	}

	logToFile("[OK] %s\n\n", description)
	fmt.Printf("%s[OK]%s\n", colorGreen, colorReset)
	return nil
}

// runCmdQuiet executes a command without showing output
func runCmdQuiet(name string, args ...string) error {
	logToFile("[CMD] %s %s\n", name, strings.Join(args, " "))

	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()

	if len(output) > 0 {
		logToFile("%s\n", string(output))
	}

	if err != nil {
		logToFile("[ERROR] Command failed: %v\n\n", err)
	} else {
		logToFile("[OK]\n\n")
	}

	return err
}

// ensurePackage ensures a package is installed via apt
func ensurePackage(pkg string) error {
	if err := runCmdQuiet("dpkg", "-s", pkg); err == nil {
		printSuccess(fmt.Sprintf("Package %s already installed...", pkg))
		return nil
	}

	if !aptUpdated {
		if err := runCmd("Updating apt package index", "apt-get", "update"); err != nil {
			return err
		}
		aptUpdated = true
	}

	return runCmd(fmt.Sprintf("Installing package %s", pkg), "apt-get", "install", "-y", pkg)
}

// ensureUser creates the deploy user if it doesn't exist
func ensureUser(c *Config) error {
	if err := runCmdQuiet("id", "-u", c.DeployUser); err == nil {
		printSuccess(fmt.Sprintf("User %s already exists...", c.DeployUser))
	} else {
		if err := runCmd(fmt.Sprintf("Creating deploy user %s", c.DeployUser), "adduser", "--disabled-password", "--gecos", "", c.DeployUser); err != nil {
			return err
		}
	}

	return runCmd(fmt.Sprintf("Adding %s to group %s", c.DeployUser, c.DeployGroup), "usermod", "-a", "-G", c.DeployGroup, c.DeployUser)
}

// setupProjectsDir creates and configures the projects directory
func setupProjectsDir(c *Config) error {
	if err := runCmd(fmt.Sprintf("Ensuring projects root %s", c.ProjectsRoot), "mkdir", "-p", c.ProjectsRoot); err != nil {
		return err
	}
	return runCmd(fmt.Sprintf("Setting ownership on %s", c.ProjectsRoot), "chown", fmt.Sprintf("%s:%s", c.DeployUser, c.DeployGroup), c.ProjectsRoot)
}

// setupSSH configures SSH keys and config for git access
func setupSSH(c *Config) error {
	sshDir := filepath.Join("/home", c.DeployUser, ".ssh")
	keyPath := filepath.Join(sshDir, c.DeployKeyFile)
	pubKeyPath := keyPath + ".pub"

	if err := runCmd(fmt.Sprintf("Ensuring SSH dir %s", sshDir), "mkdir", "-p", sshDir); err != nil {
		return err
	}
	if err := runCmd(fmt.Sprintf("Setting permissions on %s", sshDir), "chmod", "700", sshDir); err != nil {
		return err
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		if err := generateSSHKey(keyPath, c.ProjectName); err != nil {
			return fmt.Errorf("generating SSH key: %w", err)
		}
		printSuccess(fmt.Sprintf("Generated deploy key %s...", c.DeployKeyFile))

		if err := runCmd("Setting permissions on deploy key", "chmod", "600", keyPath, pubKeyPath); err != nil {
			return err
		}
	} else {
		printSuccess("Deploy key already present; skipping generation...")
	}

	configPath := filepath.Join(sshDir, "config")
	if err := configureSSHConfig(configPath, c.GitHostAlias, keyPath); err != nil {
		return err
	}

	if err := runCmd("Setting permissions on SSH config", "chmod", "600", configPath); err != nil {
		return err
	}
	return runCmd("Setting ownership on SSH files", "chown", "-R", fmt.Sprintf("%s:%s", c.DeployUser, c.DeployGroup), sshDir)
}

// generateSSHKey generates an ED25519 SSH key pair
func generateSSHKey(path, comment string) error {
	logToFile("[CMD] ssh-keygen -t ed25519 -N \"\" -f %s -C %s\n", path, comment)

	cmd := exec.Command("ssh-keygen", "-t", "ed25519", "-N", "", "-f", path, "-C", comment)
	output, err := cmd.CombinedOutput()

	if len(output) > 0 {
		logToFile("%s\n", string(output))
	}

	if err != nil {
		logToFile("[ERROR] ssh-keygen failed: %v\n\n", err)
		return fmt.Errorf("ssh-keygen failed: %w\nOutput: %s", err, string(output))
	}

	logToFile("[OK] SSH key generated\n\n")
	return nil
}

// configureSSHConfig adds or updates SSH config for git host alias
func configureSSHConfig(configPath, hostAlias, keyPath string) error {
	var existingContent string
	if data, err := os.ReadFile(configPath); err == nil {
		existingContent = string(data)
	}

	if strings.Contains(existingContent, fmt.Sprintf("Host %s", hostAlias)) {
		printSuccess(fmt.Sprintf("SSH config for %s already exists...", hostAlias))
		return nil
	}

	fmt.Printf("%-70s", fmt.Sprintf("Adding SSH config for %s...", hostAlias))
	sshConfig := fmt.Sprintf(`
Host %s
    HostName github.com
    IdentityFile %s
    IdentitiesOnly yes
`, hostAlias, keyPath)

	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, security.PermSecretsFile)
	if err != nil {
		printError("")
		return fmt.Errorf("opening SSH config: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(sshConfig); err != nil {
		printError("")
		return fmt.Errorf("writing SSH config: %w", err)
	}

	if err := os.Chmod(configPath, security.PermSecretsFile); err != nil {
		printError("")
		return fmt.Errorf("setting SSH config permissions: %w", err)
	}

	fmt.Printf("%s[OK]%s\n", colorGreen, colorReset)
	return nil
}
