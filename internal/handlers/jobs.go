package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cadentj/interp-workbench/internal/repository"
)

// JobsHandler exposes the persisted terminal-job audit log.
type JobsHandler struct {
	repo repository.Repository
}

func NewJobsHandler(repo repository.Repository) *JobsHandler {
	return &JobsHandler{repo: repo}
}

func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/jobs", h.handleList)
}

func (h *JobsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	records, err := h.repo.Job().GetJobs(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get jobs: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
