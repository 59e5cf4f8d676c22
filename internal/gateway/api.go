package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/commforge/pulse/internal/evallog"
	"github.com/commforge/pulse/internal/models"
)

// trackerControl is the slice of the scheduler the API drives.
type trackerControl interface {
	Start(ctx context.Context) error
	Stop()
	Status() models.TrackerStatus
}

// evalReader serves the evaluation and error history endpoints.
type evalReader interface {
	RecentEvaluations(taskID string, limit int) []evallog.Entry
	RecentErrors(limit int) []evallog.ErrorEntry
}

// API is the HTTP control surface. Tracker start requests reuse the
// gateway run context so cycles stop when the process shuts down.
type API struct {
	runCtx  context.Context
	tracker trackerControl
	evals   evalReader
}

func NewAPI(runCtx context.Context, tracker trackerControl, evals evalReader) *API {
	return &API{runCtx: runCtx, tracker: tracker, evals: evals}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tracker/start", a.handleTrackerStart)
		r.Post("/tracker/stop", a.handleTrackerStop)
		r.Get("/tracker/status", a.handleTrackerStatus)
		r.Get("/evaluations", a.handleEvaluations)
		r.Get("/errors", a.handleErrors)
		r.Get("/healthz", a.handleHealthz)
	})

	return r
}

func (a *API) handleTrackerStart(w http.ResponseWriter, r *http.Request) {
	if err := a.tracker.Start(a.runCtx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  a.tracker.Status(),
	})
}

func (a *API) handleTrackerStop(w http.ResponseWriter, r *http.Request) {
	a.tracker.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  a.tracker.Status(),
	})
}

func (a *API) handleTrackerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tracker.Status())
}

func (a *API) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	limit := queryInt(r, "limit", 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": a.evals.RecentEvaluations(taskID, limit),
	})
}

func (a *API) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": a.evals.RecentErrors(limit),
	})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
