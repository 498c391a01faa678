package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports each backing component
// @Description Readiness of the backing components
type ReadyResponse struct {
	Status     string            `json:"status" example:"ready"`
	Components map[string]string `json:"components"`
}

// AvailabilityResponse answers an availability check
// @Description Availability of one feature count
type AvailabilityResponse struct {
	CorpusID          string `json:"corpus_id"`
	FeatureCount      int    `json:"feature_count" example:"10"`
	Status            string `json:"status" example:"available" enums:"available,busy,missing"`
	AvailableFeatures []int  `json:"available_features"`
}

// GatedResponse wraps a result that may still be computing. Busy is set
// while a computation is in flight; Retry is set when this request started it.
// @Description Feature result or computation state
type GatedResponse struct {
	Outcome           string `json:"outcome" example:"ready" enums:"ready,busy,dispatched"`
	Busy              bool   `json:"busy"`
	Retry             bool   `json:"retry"`
	FeatureCount      int    `json:"feature_count" example:"10"`
	AvailableFeatures []int  `json:"available_features"`
	Data              any    `json:"data,omitempty"`
}

// DeleteDocumentsRequest lists the texts to remove
type DeleteDocumentsRequest struct {
	DataIDs []string `json:"data_ids"`
}

// AddFilesRequest lists uploads waiting for extraction
type AddFilesRequest struct {
	Files []domain.ExpectedFile `json:"files"`
}

// UpdateScheduleRequest toggles a schedule
type UpdateScheduleRequest struct {
	Enabled bool `json:"enabled"`
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
// @Description  Pings the database, queue and lock backends
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Components: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, p := range s.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "component", name, "error", err)
			resp.Components[name] = "unavailable"
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
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

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.docs()))
}

// Corpus endpoints

// handleListCorpora godoc
// @Summary      List corpora
// @Description  Lists corpora newest first
// @Tags         Corpora
// @Produce      json
// @Param        ready   query     bool  false  "Only corpora whose crawl is ready"
// @Param        offset  query     int   false  "Offset"
// @Param        limit   query     int   false  "Limit (max 100)"
// @Success      200     {array}   domain.Corpus
// @Failure      400     {object}  ErrorResponse
// @Router       /corpora [get]
func (s *Server) handleListCorpora(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	corpora, err := s.corpora.List(r.Context(), domain.ListOptions{
		ReadyOnly: q.Get("ready") == "true",
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if corpora == nil {
		corpora = []*domain.Corpus{}
	}
	writeJSON(w, http.StatusOK, corpora)
}

// handleCreateFromCrawl godoc
// @Summary      Create a web corpus
// @Description  Creates a corpus and schedules the crawl of its endpoint
// @Tags         Corpora
// @Accept       json
// @Produce      json
// @Param        request  body      driving.CreateFromCrawlRequest  true  "Corpus name and endpoint"
// @Success      201      {object}  domain.Corpus
// @Failure      400      {object}  ErrorResponse
// @Router       /corpora/crawl [post]
func (s *Server) handleCreateFromCrawl(w http.ResponseWriter, r *http.Request) {
	var req driving.CreateFromCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	corpus, err := s.corpora.CreateFromCrawl(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corpus)
}

// handleCreateFromUpload godoc
// @Summary      Create a files corpus
// @Description  Creates a corpus waiting for the extraction of its uploads
// @Tags         Corpora
// @Accept       json
// @Produce      json
// @Param        request  body      driving.CreateFromUploadRequest  true  "Corpus name and expected files"
// @Success      201      {object}  domain.Corpus
// @Failure      400      {object}  ErrorResponse
// @Router       /corpora/upload [post]
func (s *Server) handleCreateFromUpload(w http.ResponseWriter, r *http.Request) {
	var req driving.CreateFromUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	corpus, err := s.corpora.CreateFromUpload(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corpus)
}

// handleGetCorpus godoc
// @Summary      Get corpus
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      200  {object}  domain.Corpus
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id} [get]
func (s *Server) handleGetCorpus(w http.ResponseWriter, r *http.Request) {
	corpus, err := s.corpora.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corpus)
}

// handleCorpusSummary godoc
// @Summary      Corpus summary
// @Description  Name, url count, first texts and available feature counts
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      200  {object}  domain.CorpusSummary
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id}/summary [get]
func (s *Server) handleCorpusSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.corpora.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCorpusStatus godoc
// @Summary      Corpus flags
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      200  {object}  domain.CorpusStatus
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id}/status [get]
func (s *Server) handleCorpusStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.corpora.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCrawl godoc
// @Summary      Crawl more pages
// @Tags         Corpora
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Corpus ID"
// @Param        request  body      driving.CrawlRequest  true  "Endpoint"
// @Success      202      {object}  StatusResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /corpora/{id}/crawl [post]
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req driving.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.corpora.Crawl(r.Context(), r.PathValue("id"), req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "scheduled"})
}

// handleAddExpectedFiles godoc
// @Summary      Register uploads
// @Tags         Corpora
// @Accept       json
// @Produce      json
// @Param        id       path      string           true  "Corpus ID"
// @Param        request  body      AddFilesRequest  true  "Expected files"
// @Success      202      {object}  StatusResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /corpora/{id}/files [post]
func (s *Server) handleAddExpectedFiles(w http.ResponseWriter, r *http.Request) {
	var req AddFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.corpora.AddExpectedFiles(r.Context(), r.PathValue("id"), req.Files); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "waiting"})
}

// handleCrawlIsReady godoc
// @Summary      Crawl readiness
// @Description  Ready once the crawl and the integrity check are done
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      200  {object}  domain.Readiness
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id}/crawl-ready [get]
func (s *Server) handleCrawlIsReady(w http.ResponseWriter, r *http.Request) {
	ready, err := s.corpora.CrawlIsReady(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

// handleFileUploadIsReady godoc
// @Summary      Upload readiness
// @Description  Ready once every upload has been extracted
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      200  {object}  domain.Readiness
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id}/upload-ready [get]
func (s *Server) handleFileUploadIsReady(w http.ResponseWriter, r *http.Request) {
	ready, err := s.corpora.FileUploadIsReady(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

// handleCheckIntegrity godoc
// @Summary      Schedule an integrity check
// @Tags         Corpora
// @Produce      json
// @Param        id   path      string  true  "Corpus ID"
// @Success      202  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /corpora/{id}/integrity-check [post]
func (s *Server) handleCheckIntegrity(w http.ResponseWriter, r *http.Request) {
	if err := s.corpora.CheckIntegrity(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "scheduled"})
}

// handleGetDocument godoc
// @Summary      Get a text entry
// @Description  Looks up a text by data id or file id
// @Tags         Corpora
// @Produce      json
// @Param        id     path      string  true  "Corpus ID"
// @Param        docID  path      string  true  "Data ID or file ID"
// @Success      200    {object}  domain.UrlEntry
// @Failure      404    {object}  ErrorResponse
// @Router       /corpora/{id}/documents/{docID} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.corpora.Document(r.Context(), r.PathValue("id"), r.PathValue("docID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocuments godoc
// @Summary      Delete texts
// @Description  Schedules the removal of texts and one integrity check
// @Tags         Corpora
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Corpus ID"
// @Param        request  body      DeleteDocumentsRequest  true  "Data IDs"
// @Success      202      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /corpora/{id}/documents/delete [post]
func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req DeleteDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.corpora.DeleteDocuments(r.Context(), r.PathValue("id"), req.DataIDs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "scheduled"})
}

// Feature endpoints

// handleCheckAvailability godoc
// @Summary      Check feature availability
// @Tags         Features
// @Produce      json
// @Param        id        path      string  true   "Corpus ID"
// @Param        features  query     int     false  "Feature count (default 10)"
// @Success      200       {object}  AvailabilityResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /corpora/{id}/availability [get]
func (s *Server) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r.URL.Query().Get("features"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid features")
		return
	}
	if n == 0 {
		n = domain.DefaultFeatureCount
	}

	a, err := s.features.CheckAvailability(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		CorpusID:          a.CorpusID,
		FeatureCount:      a.FeatureCount,
		Status:            a.Kind.String(),
		AvailableFeatures: nonNil(a.FeatureCounts),
	})
}

// handleRequestFeatures godoc
// @Summary      Get features
// @Description  Returns the ranked features and documents, or starts computing them
// @Tags         Features
// @Produce      json
// @Param        id                path      string  true   "Corpus ID"
// @Param        features          query     int     false  "Feature count"
// @Param        words             query     int     false  "Words per feature"
// @Param        docs_per_feature  query     int     false  "Documents per feature"
// @Param        features_per_doc  query     int     false  "Features per document"
// @Success      200               {object}  GatedResponse  "Ready or busy"
// @Success      202               {object}  GatedResponse  "Computation dispatched"
// @Failure      400               {object}  ErrorResponse
// @Failure      404               {object}  ErrorResponse
// @Router       /corpora/{id}/features [get]
func (s *Server) handleRequestFeatures(w http.ResponseWriter, r *http.Request) {
	params, ok := featureParams(w, r)
	if !ok {
		return
	}
	res, err := s.features.RequestFeatures(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeGated(w, res.Outcome, res.Availability, res.Value)
}

// handleRequestGraph godoc
// @Summary      Get feature graph
// @Description  Returns the force-directed graph of features and documents, or starts computing it
// @Tags         Features
// @Produce      json
// @Param        id                path      string  true   "Corpus ID"
// @Param        features          query     int     false  "Feature count"
// @Param        words             query     int     false  "Words per feature"
// @Param        docs_per_feature  query     int     false  "Documents per feature"
// @Param        features_per_doc  query     int     false  "Features per document"
// @Success      200               {object}  GatedResponse  "Ready or busy"
// @Success      202               {object}  GatedResponse  "Computation dispatched"
// @Failure      400               {object}  ErrorResponse
// @Failure      404               {object}  ErrorResponse
// @Router       /corpora/{id}/graph [get]
func (s *Server) handleRequestGraph(w http.ResponseWriter, r *http.Request) {
	params, ok := featureParams(w, r)
	if !ok {
		return
	}
	res, err := s.features.RequestGraph(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeGated(w, res.Outcome, res.Availability, res.Value)
}

func featureParams(w http.ResponseWriter, r *http.Request) (domain.FeatureParams, bool) {
	q := r.URL.Query()
	params := domain.FeatureParams{CorpusID: r.PathValue("id")}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"features", &params.Features},
		{"words", &params.Words},
		{"docs_per_feature", &params.DocsPerFeature},
		{"features_per_doc", &params.FeaturesPerDoc},
	} {
		n, err := queryInt(q.Get(f.key))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+f.key)
			return params, false
		}
		*f.dst = n
	}
	return params, true
}

func writeGated(w http.ResponseWriter, outcome domain.Outcome, a domain.Availability, value any) {
	resp := GatedResponse{
		Outcome:           string(outcome),
		FeatureCount:      a.FeatureCount,
		AvailableFeatures: nonNil(a.FeatureCounts),
	}
	status := http.StatusOK
	switch outcome {
	case domain.OutcomeReady:
		resp.Data = value
	case domain.OutcomeBusy:
		resp.Busy = true
	case domain.OutcomeDispatched:
		resp.Busy = true
		resp.Retry = true
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// Callback endpoints

// handleComputeCallback godoc
// @Summary      Factorization finished
// @Description  Reported by the numeric worker; a failure report is accepted and releases the lock
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Param        request  body      domain.ComputeCallback  true  "Result"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /callbacks/compute [post]
func (s *Server) handleComputeCallback(w http.ResponseWriter, r *http.Request) {
	var cb domain.ComputeCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.callbacks.ComputeCompleted(r.Context(), cb)
	if errors.Is(err, domain.ErrRemoteWorkerFailure) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "failed"})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleIntegrityCallback godoc
// @Summary      Integrity check finished
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Param        request  body      domain.IntegrityCallback  true  "Corpus"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /callbacks/integrity [post]
func (s *Server) handleIntegrityCallback(w http.ResponseWriter, r *http.Request) {
	var cb domain.IntegrityCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.callbacks.IntegrityCompleted(r.Context(), cb); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleFileExtractCallback godoc
// @Summary      Upload extracted
// @Tags         Callbacks
// @Accept       json
// @Produce      json
// @Param        request  body      domain.FileExtractCallback  true  "Extraction result"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /callbacks/file-extract [post]
func (s *Server) handleFileExtractCallback(w http.ResponseWriter, r *http.Request) {
	var cb domain.FileExtractCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.callbacks.FileExtracted(r.Context(), cb); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Task endpoints

// handleListTasks godoc
// @Summary      List queued tasks
// @Tags         Tasks
// @Produce      json
// @Param        corpus_id  query     string  false  "Corpus ID"
// @Param        status     query     string  false  "Status"
// @Param        type       query     string  false  "Task type"
// @Param        offset     query     int     false  "Offset"
// @Param        limit      query     int     false  "Limit"
// @Success      200        {array}   domain.Task
// @Router       /tasks [get]
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	tasks, err := s.taskQueue.ListTasks(r.Context(), driven.TaskFilter{
		CorpusID: q.Get("corpus_id"),
		Status:   domain.TaskStatus(q.Get("status")),
		Type:     domain.TaskType(q.Get("type")),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskStats godoc
// @Summary      Queue statistics
// @Tags         Tasks
// @Produce      json
// @Success      200  {object}  driven.QueueStats
// @Router       /tasks/stats [get]
func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetTask godoc
// @Summary      Get task
// @Tags         Tasks
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskQueue.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleCancelTask godoc
// @Summary      Cancel a pending task
// @Tags         Tasks
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [delete]
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.taskQueue.CancelTask(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}

// Schedule endpoints

// handleListSchedules godoc
// @Summary      List maintenance schedules
// @Tags         Schedules
// @Produce      json
// @Success      200  {array}  domain.ScheduledTask
// @Router       /schedules [get]
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.ListScheduledTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []*domain.ScheduledTask{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleUpdateSchedule godoc
// @Summary      Enable or disable a schedule
// @Tags         Schedules
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Schedule ID"
// @Param        request  body      UpdateScheduleRequest  true  "Enabled flag"
// @Success      200      {object}  StatusResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /schedules/{id} [put]
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.schedules.SetEnabled(r.Context(), r.PathValue("id"), req.Enabled); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleTriggerSchedule godoc
// @Summary      Run a schedule now
// @Tags         Schedules
// @Produce      json
// @Param        id   path      string  true  "Schedule ID"
// @Success      202  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Router       /schedules/{id}/trigger [post]
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	task, err := s.schedules.TriggerNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Helper functions

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrCorpusFull):
		return http.StatusConflict, "corpus is full"
	case errors.Is(err, domain.ErrUnknownDocumentReference):
		return http.StatusInternalServerError, "result references unknown documents"
	case errors.Is(err, domain.ErrRemoteWorkerFailure):
		return http.StatusBadGateway, "remote worker failure"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeError(w, status, msg)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
