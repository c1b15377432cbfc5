// Package config collects the environment variables that configure a
// shiphouse server into one place, with the defaults the binary falls
// back to when a variable isn't set.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable the serve command reads from the
// environment before building the rest of the server.
type Config struct {
	ProjectsDir   string
	LogsDir       string
	BuildDir      string
	ReleasesDirName string

	NginxRoot            string
	NginxSitesAvailable  string
	NginxSitesEnabled    string

	PM2Bin string

	MaxConcurrentDeploys int
	MaxQueueSize         int

	SecretsMasterKey   string
	DefaultBuildOutput string

	AdminToken string
	Host       string
	Port       int
}

// FromEnv builds a Config from the process environment, filling in the
// defaults documented for each variable.
func FromEnv() Config {
	return Config{
		ProjectsDir:     getEnv("PROJECTS_DIR", "./data/projects"),
		LogsDir:         getEnv("LOGS_DIR", "./data/logs"),
		BuildDir:        getEnv("BUILD_DIR", "./data/build"),
		ReleasesDirName: getEnv("RELEASES_DIR_NAME", "releases"),

		NginxRoot:           getEnv("NGINX_ROOT", "/var/www"),
		NginxSitesAvailable: getEnv("NGINX_SITES_AVAILABLE", "/etc/nginx/sites-available"),
		NginxSitesEnabled:   getEnv("NGINX_SITES_ENABLED", "/etc/nginx/sites-enabled"),

		PM2Bin: getEnv("PM2_BIN", "pm2"),

		MaxConcurrentDeploys: getEnvInt("MAX_CONCURRENT_DEPLOYS", 1),
		MaxQueueSize:         getEnvInt("MAX_QUEUE_SIZE", 50),

		SecretsMasterKey:   os.Getenv("SECRETS_MASTER_KEY"),
		DefaultBuildOutput: getEnv("DEFAULT_BUILD_OUTPUT", "dist"),

		AdminToken: os.Getenv("SHIPHOUSE_ADMIN_TOKEN"),
		Host:       getEnv("SHIPHOUSE_HOST", "127.0.0.1"),
		Port:       getEnvInt("SHIPHOUSE_PORT", 5000),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// Addr formats the host:port pair the HTTP server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
