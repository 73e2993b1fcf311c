package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricecompare/middleware"
	"pricecompare/models"
	"pricecompare/pipeline"
	"pricecompare/repository"
	"pricecompare/scheduler"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const serviceVersion = "1.0.0"

// Searcher runs a synchronous comparison
type Searcher interface {
	Compare(ctx context.Context, query string) (*models.ComparisonResult, error)
	Sources() []string
}

// TaskQueue runs comparisons in the background
type TaskQueue interface {
	Submit(query string) models.SearchTask
	Get(taskID string) (models.SearchTask, error)
	Stats() scheduler.TaskStats
}

// WatchService manages watches and their alerts
type WatchService interface {
	AddWatch(ctx context.Context, query string, targetPrice *decimal.Decimal) (*models.Watch, error)
	GetWatches(ctx context.Context) ([]models.Watch, error)
	GetWatch(ctx context.Context, id int) (*models.Watch, error)
	DeleteWatch(ctx context.Context, id int) error
	GetAlerts(ctx context.Context, watchID int) ([]models.WatchAlert, error)
}

// WatchRunner triggers a watch pass on demand
type WatchRunner interface {
	CheckNow(ctx context.Context) (scheduler.CheckSummary, error)
}

// Services groups what the handlers call into. Tasks, History, Watches and
// Checker may be nil; their routes then answer 503.
type Services struct {
	Searcher Searcher
	Tasks    TaskQueue
	History  repository.HistoryRepository
	Watches  WatchService
	Checker  WatchRunner
}

type Handlers struct {
	svc    Services
	logger *log.Logger
}

func NewHandlers(svc Services, logger *log.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: logger,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	apiV1.HandleFunc("/search", h.Search).Methods(http.MethodPost)
	apiV1.HandleFunc("/search/async", h.SearchAsync).Methods(http.MethodPost)

	apiV1.HandleFunc("/tasks/stats", h.GetTaskStats).Methods(http.MethodGet)
	apiV1.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods(http.MethodGet)

	apiV1.HandleFunc("/comparisons", h.GetComparisons).Methods(http.MethodGet)

	apiV1.HandleFunc("/watches", h.AddWatch).Methods(http.MethodPost)
	apiV1.HandleFunc("/watches", h.GetWatches).Methods(http.MethodGet)
	apiV1.HandleFunc("/watches/check", h.CheckWatches).Methods(http.MethodPost)
	apiV1.HandleFunc("/watches/{id}", h.GetWatch).Methods(http.MethodGet)
	apiV1.HandleFunc("/watches/{id}", h.DeleteWatch).Methods(http.MethodDelete)
	apiV1.HandleFunc("/watches/{id}/alerts", h.GetWatchAlerts).Methods(http.MethodGet)

	// Legacy API routes (redirect to v1)
	r.PathPrefix("/api/").MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.URL.Path != "/api/v1" && !strings.HasPrefix(req.URL.Path, "/api/v1/")
	}).HandlerFunc(middleware.RedirectToV1)

	r.NotFoundHandler = middleware.NotFound()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "pricecompare",
		"version":   serviceVersion,
		"sources":   h.svc.Searcher.Sources(),
		"watches":   h.svc.Watches != nil,
	}
	writeJSON(w, http.StatusOK, response)
}

// Search runs a comparison and waits for the result
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Searcher.Compare(r.Context(), query)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "Query is required")
			return
		}
		h.logger.Error("search failed", "query", query, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to compare prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"query":     query,
		"data":      result,
		"requestId": requestID(r),
		"timestamp": time.Now(),
	})
}

// SearchAsync queues a comparison and returns the task
func (h *Handlers) SearchAsync(w http.ResponseWriter, r *http.Request) {
	if h.svc.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "Async search is not available")
		return
	}

	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	task := h.svc.Tasks.Submit(query)
	if task.Status == models.TaskStatusFailed {
		writeJSON(w, http.StatusServiceUnavailable, task)
		return
	}

	h.logger.Info("search task queued", "task_id", task.ID, "query", query)
	writeJSON(w, http.StatusAccepted, task)
}

// GetTaskStatus returns the status of a task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "Async search is not available")
		return
	}

	task, err := h.svc.Tasks.Get(mux.Vars(r)["taskId"])
	if err != nil {
		if errors.Is(err, scheduler.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// GetTaskStats returns task queue statistics
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	if h.svc.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "Async search is not available")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Tasks.Stats())
}

// GetComparisons returns the most recent comparisons, newest first
func (h *Handlers) GetComparisons(w http.ResponseWriter, r *http.Request) {
	if h.svc.History == nil {
		writeJSON(w, http.StatusOK, []models.ComparisonResult{})
		return
	}

	limit := repository.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = l
	}

	history, err := h.svc.History.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load comparison history", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get comparisons")
		return
	}
	if history == nil {
		history = []models.ComparisonResult{}
	}

	writeJSON(w, http.StatusOK, history)
}

// AddWatch starts watching a query
func (h *Handlers) AddWatch(w http.ResponseWriter, r *http.Request) {
	if !h.watchesAvailable(w) {
		return
	}

	var req models.AddWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.TargetPrice != nil && req.TargetPrice.IsNegative() {
		writeError(w, http.StatusBadRequest, "Target price cannot be negative")
		return
	}

	watch, err := h.svc.Watches.AddWatch(r.Context(), req.Query, req.TargetPrice)
	if err != nil {
		h.logger.Error("failed to add watch", "query", req.Query, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to add watch")
		return
	}

	writeJSON(w, http.StatusCreated, watch)
}

// GetWatches returns all active watches
func (h *Handlers) GetWatches(w http.ResponseWriter, r *http.Request) {
	if !h.watchesAvailable(w) {
		return
	}

	watches, err := h.svc.Watches.GetWatches(r.Context())
	if err != nil {
		h.logger.Error("failed to get watches", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get watches")
		return
	}

	// Ensure we always return an array, even if empty
	if watches == nil {
		watches = []models.Watch{}
	}

	writeJSON(w, http.StatusOK, watches)
}

// GetWatch returns a single watch
func (h *Handlers) GetWatch(w http.ResponseWriter, r *http.Request) {
	if !h.watchesAvailable(w) {
		return
	}

	id, ok := watchID(w, r)
	if !ok {
		return
	}

	watch, err := h.svc.Watches.GetWatch(r.Context(), id)
	if err != nil {
		h.watchError(w, err, "Failed to get watch")
		return
	}

	writeJSON(w, http.StatusOK, watch)
}

// DeleteWatch stops watching a query
func (h *Handlers) DeleteWatch(w http.ResponseWriter, r *http.Request) {
	if !h.watchesAvailable(w) {
		return
	}

	id, ok := watchID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Watches.DeleteWatch(r.Context(), id); err != nil {
		h.watchError(w, err, "Failed to delete watch")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Watch deleted successfully"})
}

// GetWatchAlerts returns the alerts a watch has raised
func (h *Handlers) GetWatchAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.watchesAvailable(w) {
		return
	}

	id, ok := watchID(w, r)
	if !ok {
		return
	}

	if _, err := h.svc.Watches.GetWatch(r.Context(), id); err != nil {
		h.watchError(w, err, "Failed to get alerts")
		return
	}

	alerts, err := h.svc.Watches.GetAlerts(r.Context(), id)
	if err != nil {
		h.watchError(w, err, "Failed to get alerts")
		return
	}
	if alerts == nil {
		alerts = []models.WatchAlert{}
	}

	writeJSON(w, http.StatusOK, alerts)
}

// CheckWatches runs a watch pass now
func (h *Handlers) CheckWatches(w http.ResponseWriter, r *http.Request) {
	if h.svc.Checker == nil {
		writeError(w, http.StatusServiceUnavailable, "Watches require a database")
		return
	}

	summary, err := h.svc.Checker.CheckNow(r.Context())
	if err != nil {
		h.logger.Error("manual watch check failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to check watches")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) watchesAvailable(w http.ResponseWriter) bool {
	if h.svc.Watches == nil {
		writeError(w, http.StatusServiceUnavailable, "Watches require a database")
		return false
	}
	return true
}

func (h *Handlers) watchError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, repository.ErrWatchNotFound) {
		writeError(w, http.StatusNotFound, "Watch not found")
		return
	}
	h.logger.Error(strings.ToLower(message), "err", err)
	writeError(w, http.StatusInternalServerError, message)
}

func watchID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid watch ID")
		return 0, false
	}
	return id, true
}

// decodeQuery reads a SearchRequest and answers 400 itself on a bad body
func decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return "", false
	}
	return query, true
}

func requestID(r *http.Request) string {
	if id := middleware.RequestID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
