package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Loader materializes a handle for a model id. It is called at most once per
// model for the lifetime of a Registry.
type Loader func(ctx context.Context, modelID string) (Handle, error)

// Registry is the shared set of loaded models, addressed by identifier.
// Models load lazily on first reference and are never unloaded while the
// process runs, so a handle obtained by an in-flight job stays valid. The
// registry is passed explicitly into job closures rather than held as a
// global.
type Registry struct {
	loader Loader
	known  map[string]bool

	mu      sync.Mutex
	handles map[string]Handle
}

// NewRegistry builds a registry over loader. known, when non-empty, is the
// allowlist of model identifiers; Get rejects anything outside it without
// touching the backend. An empty allowlist defers unknown-model detection to
// the loader.
func NewRegistry(loader Loader, known []string) *Registry {
	r := &Registry{
		loader:  loader,
		known:   make(map[string]bool, len(known)),
		handles: make(map[string]Handle),
	}
	for _, id := range known {
		r.known[id] = true
	}
	return r
}

// Lookup reports whether modelID could be served, without loading it.
// Returns ModelNotFoundError when the id is outside the allowlist.
func (r *Registry) Lookup(modelID string) error {
	if len(r.known) > 0 && !r.known[modelID] {
		return &ModelNotFoundError{Model: modelID}
	}
	return nil
}

// Get returns the handle for modelID, loading it on first use. Concurrent
// callers for the same model share one load.
func (r *Registry) Get(ctx context.Context, modelID string) (Handle, error) {
	if err := r.Lookup(modelID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[modelID]; ok {
		return h, nil
	}

	start := time.Now()
	h, err := r.loader(ctx, modelID)
	if err != nil {
		return nil, err
	}
	r.handles[modelID] = h
	slog.Info("Model loaded", "model", modelID, "layers", h.NumLayers(), "dur_ms", time.Since(start).Milliseconds())
	return h, nil
}

// Models lists the allowlisted model identifiers, sorted.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.known))
	for id := range r.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Loaded lists the identifiers of models loaded so far, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
