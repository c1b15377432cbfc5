package config

import (
	"os"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	clearShiphouseEnv(t)

	c := FromEnv()
	if c.NginxRoot != "/var/www" {
		t.Errorf("NginxRoot = %v, want default", c.NginxRoot)
	}
	if c.MaxConcurrentDeploys != 1 {
		t.Errorf("MaxConcurrentDeploys = %v, want 1", c.MaxConcurrentDeploys)
	}
	if c.Addr() != "127.0.0.1:5000" {
		t.Errorf("Addr() = %v, want 127.0.0.1:5000", c.Addr())
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearShiphouseEnv(t)
	t.Setenv("NGINX_ROOT", "/srv/www")
	t.Setenv("MAX_QUEUE_SIZE", "30")
	t.Setenv("SHIPHOUSE_PORT", "8080")

	c := FromEnv()
	if c.NginxRoot != "/srv/www" {
		t.Errorf("NginxRoot = %v, want /srv/www", c.NginxRoot)
	}
	if c.MaxQueueSize != 30 {
		t.Errorf("MaxQueueSize = %v, want 30", c.MaxQueueSize)
	}
	if c.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %v", c.Addr())
	}
}

func TestFromEnvInvalidIntFallsBackToDefault(t *testing.T) {
	clearShiphouseEnv(t)
	t.Setenv("MAX_QUEUE_SIZE", "not-a-number")

	c := FromEnv()
	if c.MaxQueueSize != 50 {
		t.Errorf("MaxQueueSize = %v, want default 50 on parse failure", c.MaxQueueSize)
	}
}

func clearShiphouseEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROJECTS_DIR", "LOGS_DIR", "BUILD_DIR", "RELEASES_DIR_NAME",
		"NGINX_ROOT", "NGINX_SITES_AVAILABLE", "NGINX_SITES_ENABLED",
		"PM2_BIN", "MAX_CONCURRENT_DEPLOYS", "MAX_QUEUE_SIZE",
		"SECRETS_MASTER_KEY", "DEFAULT_BUILD_OUTPUT",
		"SHIPHOUSE_ADMIN_TOKEN", "SHIPHOUSE_HOST", "SHIPHOUSE_PORT",
	} {
		old := os.Getenv(k)
		os.Unsetenv(k)
		t.Cleanup(func(k, old string) func() {
			return func() { os.Setenv(k, old) }
		}(k, old))
	}
}
