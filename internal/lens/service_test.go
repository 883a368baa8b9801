package lens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/models"
)

// fakeHandle is an in-memory model with a fixed vocabulary. Decoding maps
// token ids onto vocab entries; encoding matches prompt words against
// space-trimmed vocab entries.
type fakeHandle struct {
	modelID string
	layers  int
	vocab   []string
	prob    float64
	connErr bool
	scalar  bool
	badLen  bool
}

func (h *fakeHandle) ModelID() string { return h.modelID }

func (h *fakeHandle) NumLayers() int { return h.layers }

func (h *fakeHandle) Encode(_ context.Context, text string) ([]int, error) {
	var ids []int
	for _, word := range strings.Fields(text) {
		found := -1
		for i, entry := range h.vocab {
			if strings.TrimSpace(entry) == word {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("word %q outside vocabulary", word)
		}
		ids = append(ids, found)
	}
	return ids, nil
}

func (h *fakeHandle) Decode(_ context.Context, ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(h.vocab) {
			return nil, fmt.Errorf("token id %d outside vocabulary", id)
		}
		out[i] = h.vocab[id]
	}
	return out, nil
}

func (h *fakeHandle) TraceTargeted(_ context.Context, specs []gateway.TraceSpec) ([]gateway.TraceResult, error) {
	if h.connErr {
		return nil, &gateway.ConnectionError{Err: errors.New("backend unreachable")}
	}
	var results []gateway.TraceResult
	for si, spec := range specs {
		for layer := 0; layer < h.layers; layer++ {
			n := len(spec.Positions)
			if h.badLen {
				n++
			}
			var probs any
			if h.scalar && n == 1 {
				probs = h.prob
			} else {
				vec := make([]float64, n)
				for i := range vec {
					vec[i] = h.prob
				}
				probs = vec
			}
			results = append(results, gateway.TraceResult{
				Name:  spec.Name,
				Spec:  si,
				Layer: layer,
				Probs: probs,
			})
		}
	}
	return results, nil
}

func (h *fakeHandle) TraceGrid(ctx context.Context, prompt string, topK int) ([]gateway.GridLayer, error) {
	if h.connErr {
		return nil, &gateway.ConnectionError{Err: errors.New("backend unreachable")}
	}
	ids, err := h.Encode(ctx, prompt)
	if err != nil {
		return nil, err
	}
	layers := make([]gateway.GridLayer, h.layers)
	for l := range layers {
		layer := gateway.GridLayer{
			PredIDs:   append([]int(nil), ids...),
			Probs:     make([]float64, len(ids)),
			TopKIDs:   make([][]int, len(ids)),
			TopKProbs: make([][]float64, len(ids)),
		}
		for i := range ids {
			layer.Probs[i] = h.prob
			for k := 0; k < topK && k < len(h.vocab); k++ {
				layer.TopKIDs[i] = append(layer.TopKIDs[i], k)
				layer.TopKProbs[i] = append(layer.TopKProbs[i], h.prob/float64(k+1))
			}
		}
		layers[l] = layer
	}
	return layers, nil
}

// countingNotifier records notification attempts.
type countingNotifier struct {
	mu    sync.Mutex
	count int
	urls  []string
}

func (n *countingNotifier) Notify(_ context.Context, callbackURL, status, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	n.urls = append(n.urls, callbackURL)
}

func (n *countingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func newTestService(handle *fakeHandle) (*Service, *countingNotifier) {
	registry := gateway.NewRegistry(func(_ context.Context, modelID string) (gateway.Handle, error) {
		return handle, nil
	}, []string{handle.modelID})
	notifier := &countingNotifier{}
	return NewService(registry, notifier, 5), notifier
}

func TestTargetedSingleTargetPerLayer(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  3,
		vocab:   []string{"the", " cat"},
		prob:    0.125,
		scalar:  true,
	}
	svc, _ := newTestService(handle)

	req := models.TargetedLensRequest{
		Completions: []models.TargetedCompletion{{
			Completion: models.Completion{ID: "c1", Prompt: "the"},
			Name:       "comp",
			Model:      "gpt2",
			Tokens:     []models.Token{{Idx: 0, TargetID: 1}},
		}},
	}

	work, err := svc.PrepareTargeted(req)
	if err != nil {
		t.Fatalf("PrepareTargeted failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Work failed: %v", err)
	}

	resp := payload.(*models.TargetedLensResponse)
	if len(resp.Data) != 3 {
		t.Fatalf("Expected one entry per traced layer, got %d", len(resp.Data))
	}
	if resp.Metadata.MaxLayer != len(resp.Data)-1 {
		t.Errorf("maxLayer %d, want %d", resp.Metadata.MaxLayer, len(resp.Data)-1)
	}
	for i, lr := range resp.Data {
		if lr.Layer != i {
			t.Errorf("Layer %d out of order: %d", i, lr.Layer)
		}
		if len(lr.Points) != 1 {
			t.Fatalf("Layer %d: expected exactly one point, got %d", i, len(lr.Points))
		}
		p := lr.Points[0]
		if p.Name != "comp - (\"the\" → \" cat\")" {
			t.Errorf("Point name %q", p.Name)
		}
		if p.Prob != 0.13 {
			t.Errorf("Probability %v not rounded to 2 decimals", p.Prob)
		}
	}
}

func TestTargetedConnectionFailureDegrades(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  3,
		vocab:   []string{"the", " cat"},
		prob:    0.5,
		connErr: true,
	}
	svc, notifier := newTestService(handle)

	req := models.TargetedLensRequest{
		CallbackRequest: models.CallbackRequest{CallbackURL: "http://callback.test/status"},
		Completions: []models.TargetedCompletion{{
			Completion: models.Completion{ID: "c1", Prompt: "the"},
			Name:       "comp",
			Model:      "gpt2",
			Tokens:     []models.Token{{Idx: 0, TargetID: 1}},
		}},
	}

	work, err := svc.PrepareTargeted(req)
	if err != nil {
		t.Fatalf("PrepareTargeted failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Connection failure must not fail the job: %v", err)
	}

	resp := payload.(*models.TargetedLensResponse)
	if len(resp.Data) != 0 {
		t.Errorf("Expected empty data, got %d layers", len(resp.Data))
	}
	if resp.Metadata.MaxLayer != 0 {
		t.Errorf("Expected maxLayer 0, got %d", resp.Metadata.MaxLayer)
	}
	if notifier.calls() != 1 {
		t.Errorf("Expected exactly one notification attempt, got %d", notifier.calls())
	}
}

func TestTargetedRejectsUnknownModel(t *testing.T) {
	handle := &fakeHandle{modelID: "gpt2", layers: 2, vocab: []string{"the"}}
	svc, _ := newTestService(handle)

	req := models.TargetedLensRequest{
		Completions: []models.TargetedCompletion{{
			Completion: models.Completion{ID: "c1", Prompt: "the"},
			Name:       "comp",
			Model:      "nonexistent",
			Tokens:     []models.Token{{Idx: 0, TargetID: 0}},
		}},
	}

	_, err := svc.PrepareTargeted(req)
	var notFound *gateway.ModelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected ModelNotFoundError, got %v", err)
	}
}

func TestTargetedShapeMismatchFailsWork(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  2,
		vocab:   []string{"the", " cat"},
		prob:    0.5,
		badLen:  true,
	}
	svc, notifier := newTestService(handle)

	req := models.TargetedLensRequest{
		Completions: []models.TargetedCompletion{{
			Completion: models.Completion{ID: "c1", Prompt: "the"},
			Name:       "comp",
			Model:      "gpt2",
			Tokens:     []models.Token{{Idx: 0, TargetID: 1}},
		}},
	}

	work, err := svc.PrepareTargeted(req)
	if err != nil {
		t.Fatalf("PrepareTargeted failed: %v", err)
	}
	_, err = work(context.Background())
	var aggErr *AggregationError
	if !errors.As(err, &aggErr) {
		t.Fatalf("Expected AggregationError, got %v", err)
	}
	if notifier.calls() != 0 {
		t.Errorf("Shape mismatch must not trigger a connectivity notification")
	}
}

func TestGridTwoTokenPrompt(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  4,
		vocab:   []string{"hi", "there"},
		prob:    0.5,
	}
	svc, _ := newTestService(handle)

	req := models.GridLensRequest{
		Completion: models.GridCompletion{
			Completion: models.Completion{ID: "c1", Prompt: "hi there"},
			Model:      "gpt2",
		},
	}

	work, err := svc.PrepareGrid(req)
	if err != nil {
		t.Fatalf("PrepareGrid failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Work failed: %v", err)
	}

	resp := payload.(*models.GridLensResponse)
	if len(resp.Rows) != 2 {
		t.Fatalf("Expected 2 rows for a 2-token prompt, got %d", len(resp.Rows))
	}
	for _, row := range resp.Rows {
		if len(row.Data) != 4 {
			t.Errorf("Row %q: expected 4 cells, got %d", row.ID, len(row.Data))
		}
		for _, cell := range row.Data {
			if len(cell.TopTokens) > 5 {
				t.Errorf("Row %q: topTokens length %d exceeds 5", row.ID, len(cell.TopTokens))
			}
		}
	}
}

func TestGridConnectionFailureDegrades(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  4,
		vocab:   []string{"hi", "there"},
		connErr: true,
	}
	svc, notifier := newTestService(handle)

	req := models.GridLensRequest{
		CallbackRequest: models.CallbackRequest{CallbackURL: "http://callback.test/status"},
		Completion: models.GridCompletion{
			Completion: models.Completion{ID: "c1", Prompt: "hi there"},
			Model:      "gpt2",
		},
	}

	work, err := svc.PrepareGrid(req)
	if err != nil {
		t.Fatalf("PrepareGrid failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Connection failure must not fail the job: %v", err)
	}

	resp := payload.(*models.GridLensResponse)
	if len(resp.Rows) != 0 {
		t.Errorf("Expected empty rows, got %d", len(resp.Rows))
	}
	if notifier.calls() != 1 {
		t.Errorf("Expected exactly one notification attempt, got %d", notifier.calls())
	}
}

func TestLineProducesOneLinePerTarget(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  3,
		vocab:   []string{"the", " cat", " dog"},
		prob:    0.25,
	}
	svc, _ := newTestService(handle)

	req := models.LineLensRequest{
		Model:  "gpt2",
		Prompt: "the",
		Token:  models.LineToken{Idx: 0, TargetIDs: []int{1, 2}},
	}

	work, err := svc.PrepareLine(req)
	if err != nil {
		t.Fatalf("PrepareLine failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Work failed: %v", err)
	}

	resp := payload.(*models.LineLensResponse)
	if len(resp.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(resp.Lines))
	}
	for _, line := range resp.Lines {
		if len(line.Data) != 3 {
			t.Errorf("Line %q: expected 3 points, got %d", line.ID, len(line.Data))
		}
	}
	if resp.Lines[0].ID != "_cat" {
		t.Errorf("Line id %q, want %q", resp.Lines[0].ID, "_cat")
	}
}

// newOutageService builds a service whose model loads themselves fail with a
// connection error, so the outage surfaces inside the job before any trace.
func newOutageService() (*Service, *countingNotifier) {
	registry := gateway.NewRegistry(func(context.Context, string) (gateway.Handle, error) {
		return nil, &gateway.ConnectionError{Err: errors.New("backend unreachable")}
	}, []string{"gpt2"})
	notifier := &countingNotifier{}
	return NewService(registry, notifier, 5), notifier
}

func TestLineModelLoadOutageDegrades(t *testing.T) {
	svc, notifier := newOutageService()

	req := models.LineLensRequest{
		CallbackRequest: models.CallbackRequest{CallbackURL: "http://callback.test/status"},
		Model:           "gpt2",
		Prompt:          "the",
		Token:           models.LineToken{Idx: 0, TargetIDs: []int{1}},
	}

	work, err := svc.PrepareLine(req)
	if err != nil {
		t.Fatalf("PrepareLine failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Connection failure must not fail the job: %v", err)
	}

	resp := payload.(*models.LineLensResponse)
	if len(resp.Lines) != 0 {
		t.Errorf("Expected empty lines, got %d", len(resp.Lines))
	}
	if notifier.calls() != 1 {
		t.Errorf("Expected exactly one notification attempt, got %d", notifier.calls())
	}
}

func TestGridModelLoadOutageDegrades(t *testing.T) {
	svc, notifier := newOutageService()

	req := models.GridLensRequest{
		CallbackRequest: models.CallbackRequest{CallbackURL: "http://callback.test/status"},
		Completion: models.GridCompletion{
			Completion: models.Completion{ID: "c1", Prompt: "hi there"},
			Model:      "gpt2",
		},
	}

	work, err := svc.PrepareGrid(req)
	if err != nil {
		t.Fatalf("PrepareGrid failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Connection failure must not fail the job: %v", err)
	}

	resp := payload.(*models.GridLensResponse)
	if len(resp.Rows) != 0 {
		t.Errorf("Expected empty rows, got %d", len(resp.Rows))
	}
	if notifier.calls() != 1 {
		t.Errorf("Expected exactly one notification attempt, got %d", notifier.calls())
	}
}

func TestLineTraceOutageDegrades(t *testing.T) {
	handle := &fakeHandle{
		modelID: "gpt2",
		layers:  3,
		vocab:   []string{"the", " cat"},
		connErr: true,
	}
	svc, notifier := newTestService(handle)

	req := models.LineLensRequest{
		CallbackRequest: models.CallbackRequest{CallbackURL: "http://callback.test/status"},
		Model:           "gpt2",
		Prompt:          "the",
		Token:           models.LineToken{Idx: 0, TargetIDs: []int{1}},
	}

	work, err := svc.PrepareLine(req)
	if err != nil {
		t.Fatalf("PrepareLine failed: %v", err)
	}
	payload, err := work(context.Background())
	if err != nil {
		t.Fatalf("Connection failure must not fail the job: %v", err)
	}
	if resp := payload.(*models.LineLensResponse); len(resp.Lines) != 0 {
		t.Errorf("Expected empty lines, got %d", len(resp.Lines))
	}
	if notifier.calls() != 1 {
		t.Errorf("Expected exactly one notification attempt, got %d", notifier.calls())
	}
}

func TestLineValidation(t *testing.T) {
	handle := &fakeHandle{modelID: "gpt2", layers: 2, vocab: []string{"the"}}
	svc, _ := newTestService(handle)

	cases := []models.LineLensRequest{
		{Model: "", Prompt: "the", Token: models.LineToken{Idx: 0, TargetIDs: []int{1}}},
		{Model: "gpt2", Prompt: "", Token: models.LineToken{Idx: 0, TargetIDs: []int{1}}},
		{Model: "gpt2", Prompt: "the", Token: models.LineToken{Idx: -1, TargetIDs: []int{1}}},
		{Model: "gpt2", Prompt: "the", Token: models.LineToken{Idx: 0}},
		{Model: "gpt2", Prompt: "the", Token: models.LineToken{Idx: 0, TargetIDs: []int{-3}}},
	}
	for i, req := range cases {
		_, err := svc.PrepareLine(req)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Case %d: expected ValidationError, got %v", i, err)
		}
	}
}
