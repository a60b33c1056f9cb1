package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/server/middleware"
	"github.com/jonathan/cv-tailor/internal/types"
)

// handleGenerate runs a generation on the document in the path. The same endpoint
// finishes a deferred generation when the body carries executionResultText.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req types.GenerationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	req.DocumentRef = r.PathValue("id")

	result, err := s.generator.Generate(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if result.Status == types.StatusFailed {
		s.logger.Info("generation failed",
			zap.String("document_id", req.DocumentRef),
			zap.String("kind", string(result.ErrorKind)))
	}
	s.jsonResponse(w, ResultStatus(result), result)
}

// handleCreateVariant creates, or returns the existing, variant of the document in
// the path for the request's context.
func (s *Server) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req types.VariantRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	req.DocumentRef = r.PathValue("id")

	result, err := s.variants.Create(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	s.jsonResponse(w, status, result)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.errorResponse(w, status, publicMessage(err, status))
}
