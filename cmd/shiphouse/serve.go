package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"shiphouse/internal/config"
	"shiphouse/internal/deployment"
	"shiphouse/internal/engine"
	"shiphouse/internal/history"
	"shiphouse/internal/project"
	"shiphouse/internal/secrets"
	"shiphouse/internal/server"

	"github.com/spf13/cobra"
)

var (
	logFile  string
	dbPath   string
	host     string
	port     int
	testMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment server",
	Long: `Start the HTTP server that receives GitHub webhooks and admin API
calls and drives project deployments through the pipeline.`,
	RunE: runServe,
}

func init() {
	cfg := config.FromEnv()

	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("SHIPHOUSE_LOG_FILE", "./deployments.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("SHIPHOUSE_DB_PATH", "./deployments.db"), "Path to SQLite history database")
	serveCmd.Flags().StringVar(&host, "host", cfg.Host, "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("SHIPHOUSE_SKIP_VALIDATION") == "1", "Enable test mode (skip validation, no history db)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("starting shiphouse", "projectsDir", cfg.ProjectsDir, "nginxRoot", cfg.NginxRoot)

	if err := os.MkdirAll(cfg.ProjectsDir, 0750); err != nil {
		return fmt.Errorf("creating projects dir: %w", err)
	}

	codec := secrets.NewCodec(cfg.SecretsMasterKey)
	projects := project.NewStore(cfg.ProjectsDir, codec)
	deployments := deployment.NewStore(cfg.ProjectsDir)

	templates, err := project.LoadTemplateCatalog(cfg.ProjectsDir)
	if err != nil {
		logger.Error("failed to load template catalog", "error", err)
		return fmt.Errorf("loading template catalog: %w", err)
	}

	var hist *history.History
	if !testMode {
		logger.Info("opening history database", "db", dbPath)
		hist, err = history.NewHistory(dbPath)
		if err != nil {
			logger.Error("failed to open history database", "error", err)
			return fmt.Errorf("opening history database: %w", err)
		}
		defer hist.Close()
	}

	eng := engine.New(cfg, projects, deployments, templates, codec, hist, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eng.Start(ctx)
	defer eng.Stop()

	srv := server.NewServer(eng, projects, codec, cfg.AdminToken, logger, testMode)

	logger.Info("starting http server", "host", cfg.Host, "port", cfg.Port)
	if err := srv.Start(cfg.Host, cfg.Port); err != nil {
		logger.Error("server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
