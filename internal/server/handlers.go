package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shiphouse/internal/deployment"
	"shiphouse/internal/errs"
	"shiphouse/internal/project"
)

// importProjectRequest is the payload for POST /projects/import.
type importProjectRequest struct {
	ID             string          `json:"id"`
	Repo           string          `json:"repo"`
	Branch         string          `json:"branch"`
	Runtime        string          `json:"runtime"`
	Target         string          `json:"target"`
	OwnerID        string          `json:"ownerId"`
	TemplateID     string          `json:"templateId,omitempty"`
	InstallCommand string          `json:"installCommand,omitempty"`
	BuildCommand   string          `json:"buildCommand,omitempty"`
	TestCommand    string          `json:"testCommand,omitempty"`
	StartCommand   string          `json:"startCommand,omitempty"`
	BuildOutput    string          `json:"buildOutput,omitempty"`
	DeployPath     string          `json:"deployPath"`
	Domain         string          `json:"domain,omitempty"`
	WebhookSecret  string          `json:"webhookSecret,omitempty"`
	Env            []project.EnvUpdate `json:"env,omitempty"`
}

func (s *Server) handleImportProject(w http.ResponseWriter, r *http.Request) {
	var req importProjectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.OwnerID == "" {
		req.OwnerID = project.AdminOwnerID
	}

	entries, err := project.NormalizeForWrite(req.Env, nil, s.Codec)
	if err != nil {
		s.respondError(w, err)
		return
	}

	p := &project.Project{
		ID:             req.ID,
		Repo:           req.Repo,
		Branch:         req.Branch,
		Runtime:        req.Runtime,
		Target:         req.Target,
		OwnerID:        req.OwnerID,
		TemplateID:     req.TemplateID,
		InstallCommand: req.InstallCommand,
		BuildCommand:   req.BuildCommand,
		TestCommand:    req.TestCommand,
		StartCommand:   req.StartCommand,
		BuildOutput:    req.BuildOutput,
		DeployPath:     req.DeployPath,
		Domain:         req.Domain,
		WebhookSecret:  req.WebhookSecret,
		Env:            entries,
	}

	if err := s.Projects.Create(p); err != nil {
		if errors.Is(err, project.ErrExists) {
			s.respondJSON(w, http.StatusConflict, map[string]string{"error": "project already exists"})
			return
		}
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, p)
}

// updateProjectRequest carries the optional fields a PATCH may change.
// A nil pointer means "leave as-is".
type updateProjectRequest struct {
	Branch         *string             `json:"branch,omitempty"`
	TemplateID     *string             `json:"templateId,omitempty"`
	InstallCommand *string             `json:"installCommand,omitempty"`
	BuildCommand   *string             `json:"buildCommand,omitempty"`
	TestCommand    *string             `json:"testCommand,omitempty"`
	StartCommand   *string             `json:"startCommand,omitempty"`
	BuildOutput    *string             `json:"buildOutput,omitempty"`
	DeployPath     *string             `json:"deployPath,omitempty"`
	Domain         *string             `json:"domain,omitempty"`
	WebhookSecret  *string             `json:"webhookSecret,omitempty"`
	Env            []project.EnvUpdate `json:"env,omitempty"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req updateProjectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.Projects.Patch(id, func(p *project.Project) error {
		if req.Branch != nil {
			p.Branch = *req.Branch
		}
		if req.TemplateID != nil {
			p.TemplateID = *req.TemplateID
		}
		if req.InstallCommand != nil {
			p.InstallCommand = *req.InstallCommand
		}
		if req.BuildCommand != nil {
			p.BuildCommand = *req.BuildCommand
		}
		if req.TestCommand != nil {
			p.TestCommand = *req.TestCommand
		}
		if req.StartCommand != nil {
			p.StartCommand = *req.StartCommand
		}
		if req.BuildOutput != nil {
			p.BuildOutput = *req.BuildOutput
		}
		if req.DeployPath != nil {
			p.DeployPath = *req.DeployPath
		}
		if req.Domain != nil {
			p.Domain = *req.Domain
		}
		if req.WebhookSecret != nil {
			p.WebhookSecret = *req.WebhookSecret
		}
		if req.Env != nil {
			normalized, err := project.NormalizeForWrite(req.Env, p.Env, s.Codec)
			if err != nil {
				return err
			}
			p.Env = normalized
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown project"})
			return
		}
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, updated)
}

type deployRequest struct {
	DryRun bool `json:"dryRun"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req deployRequest
	if r.ContentLength > 0 {
		if !s.decodeJSON(w, r, &req) {
			return
		}
	}

	rec, err := s.Engine.Enqueue(r.Context(), id, req.DryRun, deployment.TriggerAPI)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown project"})
			return
		}
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	recs, err := s.Engine.ListDeployments(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	rec, err := s.Engine.GetDeployment(id)
	if err != nil {
		if errors.Is(err, deployment.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown deployment"})
			return
		}
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetDeploymentLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	rec, err := s.Engine.GetDeployment(id)
	if err != nil {
		if errors.Is(err, deployment.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown deployment"})
			return
		}
		s.respondError(w, err)
		return
	}

	log, err := s.Engine.ReadLog(rec)
	if err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(log)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	if err := s.Engine.Rollback(r.Context(), id); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown project"})
			return
		}
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "rollback complete"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	proj, err := s.Projects.Get(id)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown project"})
		return
	}

	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}
	if r.Header.Get("X-GitHub-Event") != "push" {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "ignoring non-push event"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read payload"})
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), proj.WebhookSecret) {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
		return
	}

	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	if !strings.HasSuffix(payload.Ref, "/"+proj.Branch) {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "not target branch, skipping"})
		return
	}

	rec, err := s.Engine.Enqueue(r.Context(), id, false, deployment.TriggerWebhook)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Projects.List()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"projectCount": len(projects),
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxPayloadBytes))
	if err := dec.Decode(dst); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError maps a kinded error to the HTTP status the error
// handling design assigns it, falling back to 500 for anything else.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kerr, ok := errs.As(err); ok {
		status = statusForKind(kerr.Kind)
	}
	if status >= 500 {
		s.Logger.Error("request failed", "error", err)
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindPathEscape, errs.KindSecretMissingValue, errs.KindSecretDowngrade,
		errs.KindConfigIncomplete, errs.KindNoPrevious:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindNoPrevious:
		return http.StatusConflict
	case errs.KindQueueFull:
		return http.StatusTooManyRequests
	case errs.KindCommandFailed, errs.KindSecretDecrypt:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
