package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"item not found"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports per-dependency readiness
// @Description Readiness response
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// CancelResponse reports whether a cancellation was requested
// @Description Cancellation response
type CancelResponse struct {
	Cancelled bool `json:"cancelled" example:"true"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database, queue and index connections
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string)}
	status := http.StatusOK

	checks := make(map[string]Pinger, len(s.readiness)+1)
	for name, p := range s.readiness {
		checks[name] = p
	}
	if s.taskQueue != nil {
		checks["queue"] = s.taskQueue
	}

	for name, p := range checks {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleSwaggerDoc serves the registered OpenAPI document
func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api documentation not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Item endpoints

// handleGetItem godoc
// @Summary      Get item
// @Description  Returns an item with its processing status
// @Tags         Items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      200  {object}  domain.Item
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /items/{id} [get]
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.authorizeItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleListChunks godoc
// @Summary      List item chunks
// @Description  Returns the chunks of an item in citation order
// @Tags         Items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      200  {array}   domain.Chunk
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /items/{id}/chunks [get]
func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	item, err := s.authorizeItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	chunks, err := s.ingestionService.ListChunks(r.Context(), item.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []*domain.Chunk{}
	}
	writeJSON(w, http.StatusOK, chunks)
}

// handleProcessItem godoc
// @Summary      Submit item for processing
// @Description  Moves an uploaded item to processing and dispatches an ingestion task
// @Tags         Items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      202  {object}  domain.Task
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "Item not uploaded or task already active"
// @Router       /items/{id}/process [post]
func (s *Server) handleProcessItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.authorizeItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	task, err := s.ingestionService.SubmitForProcessing(r.Context(), item.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// handleCancelItem godoc
// @Summary      Cancel item processing
// @Description  Requests cooperative cancellation of an in-flight item
// @Tags         Items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      200  {object}  CancelResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "Item is not being processed"
// @Router       /items/{id}/cancel [post]
func (s *Server) handleCancelItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.authorizeItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	cancelled, err := s.ingestionService.CancelProcessing(r.Context(), item.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

// handleRetryItem godoc
// @Summary      Retry item processing
// @Description  Restarts processing of an uploaded or failed item. Refusals return 409 with the reason.
// @Tags         Items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Item ID"
// @Success      202  {object}  domain.RetryResult
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  domain.RetryResult
// @Router       /items/{id}/retry [post]
func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.authorizeItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.ingestionService.RetryProcessing(r.Context(), item.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// Task endpoints

// handleGetTask godoc
// @Summary      Get task
// @Description  Returns a snapshot of an ingestion task
// @Tags         Tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.ingestionService.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Tasks are visible to callers that may see their target item
	if _, err := s.authorizeItem(r.Context(), task.TargetID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Admin endpoints

// handleQueueStats godoc
// @Summary      Queue statistics
// @Description  Returns dispatch queue depth and dead-letter counts
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driven.QueueStats
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /admin/queue [get]
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if s.taskQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "task queue not configured")
		return
	}

	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// authorizeItem loads an item and checks the caller's scope. Items outside
// the scope are reported as not found.
func (s *Server) authorizeItem(ctx context.Context, itemID string) (*domain.Item, error) {
	if itemID == "" {
		return nil, domain.ErrInvalidInput
	}

	item, err := s.ingestionService.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	authCtx := GetAuthContext(ctx)
	if authCtx == nil {
		return nil, domain.ErrUnauthorized
	}
	if !authCtx.CanAccessScope(item.OwnerScope) {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// writeServiceError maps domain errors to HTTP statuses
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrTaskActive):
		return http.StatusConflict, domain.ErrTaskActive.Error()
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrStatusConflict):
		return http.StatusConflict, domain.ErrStatusConflict.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
