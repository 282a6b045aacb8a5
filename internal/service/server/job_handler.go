package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/manifest"
	"go.uber.org/zap"
)

const maxManifestBytes = 4 << 20

var manifestMediaTypes = map[string]bool{
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
	"text/x-yaml":        true,
	"application/json":   true,
}

var errCommandsNeedAuth = errors.New("jobs with commands require admin credentials on the server")

// handleListJobs lists running and recently completed jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Registry().List())
}

// handleGetJob returns one job snapshot
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	h, ok := s.jobs.Registry().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// handleSubmitJob starts a job from a YAML or JSON manifest body. Jobs
// carrying commands are refused unless admin credentials are configured.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !manifestMediaTypes[mediaType] {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Errorf("content type %q is not a YAML or JSON manifest", r.Header.Get("Content-Type")))
		return
	}

	job, err := manifest.Decode(io.LimitReader(r.Body, maxManifestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(job.Commands) > 0 && !s.authEnabled() {
		s.logger.Warn("refused job with commands",
			zap.Int("commands", len(job.Commands)),
			zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusForbidden, errCommandsNeedAuth)
		return
	}

	h, err := s.jobs.Submit(s.jobCtx, job)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInsufficientSpace) {
			status = http.StatusInsufficientStorage
		}
		writeError(w, status, err)
		return
	}

	s.logger.Info("job submitted over HTTP",
		zap.String("job_id", h.ID()),
		zap.String("remote_addr", r.RemoteAddr))
	w.Header().Set("Location", "/api/jobs/"+h.ID())
	writeJSON(w, http.StatusAccepted, h.Snapshot())
}

// handleCancelJob cancels a running job
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.jobs.Cancel(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
	case errors.Is(err, domain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrAlreadyCanceled), errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("failed to cancel job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}
