package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type staticHandle struct {
	modelID string
	layers  int
}

func (h *staticHandle) ModelID() string { return h.modelID }

func (h *staticHandle) NumLayers() int { return h.layers }

func (h *staticHandle) Encode(context.Context, string) ([]int, error) { return nil, nil }

func (h *staticHandle) Decode(context.Context, []int) ([]string, error) { return nil, nil }

func (h *staticHandle) TraceTargeted(context.Context, []TraceSpec) ([]TraceResult, error) {
	return nil, nil
}

func (h *staticHandle) TraceGrid(context.Context, string, int) ([]GridLayer, error) {
	return nil, nil
}

func TestRegistryLoadsLazilyAndOnce(t *testing.T) {
	var loads atomic.Int32
	r := NewRegistry(func(_ context.Context, modelID string) (Handle, error) {
		loads.Add(1)
		return &staticHandle{modelID: modelID, layers: 12}, nil
	}, []string{"gpt2"})

	if n := loads.Load(); n != 0 {
		t.Fatalf("Loader ran %d times before first Get", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Get(context.Background(), "gpt2")
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if h.NumLayers() != 12 {
				t.Errorf("NumLayers %d", h.NumLayers())
			}
		}()
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("Loader ran %d times, want 1", n)
	}
	if got := r.Loaded(); len(got) != 1 || got[0] != "gpt2" {
		t.Errorf("Loaded() = %v", got)
	}
}

func TestRegistryAllowlist(t *testing.T) {
	r := NewRegistry(func(_ context.Context, modelID string) (Handle, error) {
		t.Fatalf("Loader must not run for rejected model %q", modelID)
		return nil, nil
	}, []string{"gpt2", "pythia-70m"})

	var notFound *ModelNotFoundError
	if err := r.Lookup("mystery"); !errors.As(err, &notFound) {
		t.Fatalf("Lookup: expected ModelNotFoundError, got %v", err)
	}
	if notFound.Model != "mystery" {
		t.Errorf("Error names model %q", notFound.Model)
	}
	if _, err := r.Get(context.Background(), "mystery"); !errors.As(err, &notFound) {
		t.Fatalf("Get: expected ModelNotFoundError, got %v", err)
	}

	if err := r.Lookup("gpt2"); err != nil {
		t.Errorf("Lookup rejected allowlisted model: %v", err)
	}
	if got := r.Models(); len(got) != 2 || got[0] != "gpt2" || got[1] != "pythia-70m" {
		t.Errorf("Models() = %v", got)
	}
}

func TestRegistryEmptyAllowlistDefersToLoader(t *testing.T) {
	loadErr := errors.New("no such model on backend")
	r := NewRegistry(func(context.Context, string) (Handle, error) {
		return nil, loadErr
	}, nil)

	if err := r.Lookup("anything"); err != nil {
		t.Fatalf("Empty allowlist must pass Lookup, got %v", err)
	}
	if _, err := r.Get(context.Background(), "anything"); !errors.Is(err, loadErr) {
		t.Fatalf("Get error %v, want %v", err, loadErr)
	}
}

func TestConnectionErrorUnwraps(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := error(&ConnectionError{Err: inner})
	if !errors.Is(err, inner) {
		t.Error("ConnectionError must unwrap to its cause")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Error("errors.As must match *ConnectionError")
	}
}
