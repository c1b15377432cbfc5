// Package server implements the HTTP API for shiphouse's deployment
// engine.
//
// This package provides:
//   - Project import and update, and deploy/rollback triggers, all
//     behind the admin bearer token
//   - GitHub webhook intake with HMAC signature verification
//   - Per-IP rate limiting, global and webhook-specific
//   - Health, deployment lookup, and deployment log endpoints
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/engine: the admission queue and seven-step pipeline
//   - internal/project: project configuration, env secrets, templates
//   - internal/secrets: the env-var encryption codec
//
// Security features:
//   - HMAC-SHA256 webhook signature verification
//   - Payload size limits (1MB max)
//   - Rate limiting (global and per-webhook)
//   - Per-project deployment locking, enforced inside the engine
package server
