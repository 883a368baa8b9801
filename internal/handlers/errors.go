package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/jobs"
	"github.com/cadentj/interp-workbench/internal/lens"
)

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr  *lens.ValidationError
		modelErr       *gateway.ModelNotFoundError
		connectionErr  *gateway.ConnectionError
		aggregationErr *lens.AggregationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &modelErr):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &connectionErr):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &aggregationErr):
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
