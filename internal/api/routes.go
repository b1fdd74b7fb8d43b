// Package api provides HTTP API server implementation for the search core service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/newsintel/searchcore/internal/api/middleware"
	"github.com/newsintel/searchcore/internal/callback"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/query"
	"github.com/newsintel/searchcore/internal/storage"
)

const healthCheckTimeout = 2 * time.Second

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// CreateSearchJobRequest is the body of POST /search/jobs (spec.md §6).
	CreateSearchJobRequest struct {
		Query        string     `json:"query"`
		Window       string     `json:"window,omitempty"`
		StartDate    *time.Time `json:"startDate,omitempty"`
		EndDate      *time.Time `json:"endDate,omitempty"`
		PriorityURLs []string   `json:"priorityUrls,omitempty"`
	}

	// CreateJobResponse is returned by both job-creation endpoints.
	CreateJobResponse struct {
		JobID     string `json:"jobId"`
		Status    string `json:"status"`
		StreamURL string `json:"streamUrl"`
	}

	// JobStatusResponse is returned by GET /search/jobs/{jobId} and
	// GET /deep/jobs/{jobId}.
	JobStatusResponse struct {
		JobID           string  `json:"jobId"`
		Status          string  `json:"status"`
		FailureCode     *string `json:"failureCode,omitempty"`
		FailureCategory *string `json:"failureCategory,omitempty"`
	}

	// CreateDeepJobRequest is the body of POST /deep/jobs (spec.md §6).
	CreateDeepJobRequest struct {
		Topic   string `json:"topic"`
		BaseURL string `json:"baseUrl,omitempty"`
	}

	// CallbackRequest is the body of POST /ai/callback (spec.md §4.7/§6).
	CallbackRequest struct {
		SubTaskID     string                  `json:"subTaskId"`
		Status        storage.AiSubTaskStatus `json:"status"`
		ResultJSON    *string                 `json:"result,omitempty"`
		ErrorMessage  *string                 `json:"errorMessage,omitempty"`
		CallbackToken string                  `json:"callbackToken"`
		Evidence      []callback.EvidenceItem `json:"evidence,omitempty"`
	}

	// Route is a declarative HTTP route registration.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"/", s.handleNotFound},
	)

	mux.HandleFunc("POST /search/jobs", s.handleCreateSearchJob)
	mux.HandleFunc("GET /search/jobs/{jobId}", s.handleGetSearchJob)
	mux.HandleFunc("GET /search/jobs/{jobId}/stream", s.handleStreamSearchJob)

	mux.HandleFunc("POST /deep/jobs", s.handleCreateDeepJob)
	mux.HandleFunc("GET /deep/jobs/{jobId}", s.handleGetDeepJob)
	mux.HandleFunc("GET /deep/jobs/{jobId}/stream", s.handleStreamDeepJob)

	mux.HandleFunc("POST /ai/callback", s.handleCallback)

	// SSE streams are long-lived and never retried by a client, so they're
	// exempt from rate limiting the same way health probes are.
	s.exemptFromRateLimit(
		"GET /search/jobs/{jobId}/stream",
		"GET /deep/jobs/{jobId}/stream",
	)
}

// registerPublicRoutes registers routes that bypass rate limiting: health
// endpoints that K8s probes and monitoring tools hit far more often than
// any real client traffic.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)
		middleware.RegisterPublicEndpoint(route.Path)
	}
}

// exemptFromRateLimit marks already-registered patterns as exempt without
// re-registering them on the mux.
func (s *Server) exemptFromRateLimit(patterns ...string) {
	for _, pattern := range patterns {
		middleware.RegisterPublicEndpoint(pattern)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("failed to write ping response", slog.String("error", err.Error()))
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.conn == nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.conn.HealthCheck(ctx); err != nil {
		s.logger.Error("storage health check failed", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "searchcore",
		Version:     "v1.0.0",
		Uptime:      uptime,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("no such route"))
}

// handleCreateSearchJob implements POST /search/jobs: normalizes the
// query, persists the job, opens its Journal, and kicks off the fan-out
// asynchronously so the HTTP response doesn't block on source latency.
func (s *Server) handleCreateSearchJob(w http.ResponseWriter, r *http.Request) {
	var req CreateSearchJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body"))

		return
	}

	normalized, err := query.Normalize(req.Query, req.Window, req.StartDate, req.EndDate)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	job, err := s.searchManager.CreateJob(r.Context(), normalized.Q, req.Window, req.PriorityURLs)
	if err != nil {
		s.logger.Error("create search job failed", slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create search job"))

		return
	}

	if s.fanout != nil {
		go s.runSearchFanout(job.JobID, job.Version, normalized, req.PriorityURLs)
	}

	s.writeJSON(w, r, http.StatusAccepted, CreateJobResponse{
		JobID:     job.JobID,
		Status:    string(job.Status),
		StreamURL: "/search/jobs/" + job.JobID + "/stream",
	})
}

// runSearchFanout drives C3 to completion in the background and applies
// the partial-failure policy (spec.md §4.3) to decide the job's terminal
// status. Runs detached from the originating request's context since the
// job must complete even if the client disconnects before streaming.
func (s *Server) runSearchFanout(jobID string, version int, q query.NormalizedQuery, priorityURLs []string) {
	ctx := context.Background()

	if err := s.searchManager.Start(ctx, jobID, version); err != nil {
		s.logger.Error("start search job failed", slog.String("jobId", jobID), slog.String("error", err.Error()))

		return
	}

	outcome, err := s.fanout.Run(ctx, jobID, q, priorityURLs)
	if err != nil {
		s.logger.Error("search fan-out failed", slog.String("jobId", jobID), slog.String("error", err.Error()))

		return
	}

	job, err := s.searchJobs.Get(ctx, jobID)
	if err != nil {
		s.logger.Error("reload search job failed", slog.String("jobId", jobID), slog.String("error", err.Error()))

		return
	}

	if outcome.Successful > 0 {
		err = s.searchManager.Complete(ctx, jobID, job.Version, "search completed")
	} else {
		reason := failureReasonOrUnknown(outcome.FailureReason)
		err = s.searchManager.Fail(ctx, jobID, job.Version, reason, "all sources failed")
	}

	if err != nil {
		s.logger.Error("finalize search job failed", slog.String("jobId", jobID), slog.String("error", err.Error()))
	}
}

func (s *Server) handleGetSearchJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	job, err := s.searchJobs.Get(r.Context(), jobID)
	if err != nil {
		s.writeJobLookupError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, JobStatusResponse{
		JobID:           job.JobID,
		Status:          string(job.Status),
		FailureCode:     codeString(job.FailureCode),
		FailureCategory: categoryString(job.FailureCategory),
	})
}

func (s *Server) handleStreamSearchJob(w http.ResponseWriter, r *http.Request) {
	s.streamJournal(w, r, r.PathValue("jobId"))
}

// handleCreateDeepJob implements POST /deep/jobs (C6).
func (s *Server) handleCreateDeepJob(w http.ResponseWriter, r *http.Request) {
	var req CreateDeepJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body"))

		return
	}

	if req.Topic == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("topic cannot be empty"))

		return
	}

	job, _, err := s.orchestrator.CreateJob(r.Context(), req.Topic, req.BaseURL)
	if err != nil {
		s.logger.Error("create deep-search job failed", slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create deep-search job"))

		return
	}

	s.writeJSON(w, r, http.StatusAccepted, CreateJobResponse{
		JobID:     job.JobID,
		Status:    string(job.OverallStatus),
		StreamURL: "/deep/jobs/" + job.JobID + "/stream",
	})
}

func (s *Server) handleGetDeepJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	job, err := s.aiJobs.Get(r.Context(), jobID)
	if err != nil {
		s.writeJobLookupError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, JobStatusResponse{
		JobID:  job.JobID,
		Status: string(job.OverallStatus),
	})
}

func (s *Server) handleStreamDeepJob(w http.ResponseWriter, r *http.Request) {
	s.streamJournal(w, r, r.PathValue("jobId"))
}

// handleCallback implements POST /ai/callback (C7). It never fails the
// caller on a duplicate or unknown sub-task; only Rejected (bad token)
// and an internal error return non-2xx, per spec.md §6.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var body CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body"))

		return
	}

	result, err := s.callback.Handle(r.Context(), callback.Request{
		SubTaskID:     body.SubTaskID,
		Status:        body.Status,
		ResultJSON:    body.ResultJSON,
		ErrorMessage:  body.ErrorMessage,
		CallbackToken: body.CallbackToken,
		Evidence:      body.Evidence,
	})
	if err != nil {
		s.logger.Error("callback handling failed", slog.String("subTaskId", body.SubTaskID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to process callback"))

		return
	}

	if result == callback.Rejected {
		WriteErrorResponse(w, r, s.logger, NewProblemDetail(http.StatusUnauthorized, "Unauthorized", "callback token mismatch"))

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeJobLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		WriteErrorResponse(w, r, s.logger, NotFound("job not found"))

		return
	}

	s.logger.Error("job lookup failed", slog.String("error", err.Error()))
	WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load job"))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// failureReasonOrUnknown falls back to failure.CodeUnknown when the
// fan-out couldn't attribute a specific reason (e.g. zero adapters ran).
func failureReasonOrUnknown(reason *failure.Reason) failure.Reason {
	if reason != nil {
		return *reason
	}

	return failure.New(failure.CodeUnknown)
}

func codeString(c *failure.Code) *string {
	if c == nil {
		return nil
	}

	s := string(*c)

	return &s
}

func categoryString(c *failure.Category) *string {
	if c == nil {
		return nil
	}

	s := string(*c)

	return &s
}

func parseLastEventID(r *http.Request) uint64 {
	raw := r.URL.Query().Get("lastEventId")
	if raw == "" {
		return 0
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}

	return v
}
