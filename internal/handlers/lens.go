package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cadentj/interp-workbench/internal/jobs"
	"github.com/cadentj/interp-workbench/internal/lens"
	"github.com/cadentj/interp-workbench/internal/models"
)

type LensHandler struct {
	lensService *lens.Service
	jobManager  *jobs.Manager
}

func NewLensHandler(lensService *lens.Service, jobManager *jobs.Manager) *LensHandler {
	return &LensHandler{
		lensService: lensService,
		jobManager:  jobManager,
	}
}

func (h *LensHandler) RegisterRoutes(r chi.Router) {
	r.Post("/lens/targeted", h.handleTargeted)
	r.Post("/lens/line", h.handleLine)
	r.Post("/lens/grid", h.handleGrid)
	r.Get("/lens/listen/{jobID}", h.handleListen)
}

func (h *LensHandler) handleTargeted(w http.ResponseWriter, r *http.Request) {
	var req models.TargetedLensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.submit(w, r, "targeted", func() (lens.Work, error) {
		return h.lensService.PrepareTargeted(req)
	})
}

func (h *LensHandler) handleLine(w http.ResponseWriter, r *http.Request) {
	var req models.LineLensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.submit(w, r, "line", func() (lens.Work, error) {
		return h.lensService.PrepareLine(req)
	})
}

func (h *LensHandler) handleGrid(w http.ResponseWriter, r *http.Request) {
	var req models.GridLensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.submit(w, r, "grid", func() (lens.Work, error) {
		return h.lensService.PrepareGrid(req)
	})
}

// submit validates synchronously via prepare, then schedules the work and
// answers with the job id.
func (h *LensHandler) submit(w http.ResponseWriter, r *http.Request, kind string, prepare func() (lens.Work, error)) {
	work, err := prepare()
	if err != nil {
		writeError(w, err)
		return
	}

	traceID := r.Header.Get("X-Trace-ID")
	if traceID == "" {
		traceID = uuid.NewString()
	}

	job := h.jobManager.Create(kind, traceID, jobs.Work(work))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID()})
}

// handleListen streams a job's terminal payload as a one-shot SSE event. A
// terminal job replays its result immediately; otherwise the stream stays
// open until the job finishes or the client goes away.
func (h *LensHandler) handleListen(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobManager.Get(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	payload, err := job.Wait(r.Context())
	if r.Context().Err() != nil {
		// Listener went away; the job keeps running and its result stays
		// available for re-attachment. A job that itself failed with a
		// cancellation error still gets its error event below.
		return
	}

	if err != nil {
		writeSSE(w, flusher, "error", map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeSSE(w, flusher, "result", payload)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"status":"failed","error":"unencodable payload"}`)
		event = "error"
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
