package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cadentj/interp-workbench/internal/gateway"
)

type ModelsHandler struct {
	registry *gateway.Registry
}

func NewModelsHandler(registry *gateway.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

func (h *ModelsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleList)
}

func (h *ModelsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{
		"models": h.registry.Models(),
		"loaded": h.registry.Loaded(),
	})
}
