package lens

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/metrics"
	"github.com/cadentj/interp-workbench/internal/models"
)

// Notifier delivers best-effort out-of-band status updates. Implementations
// must never let a delivery failure reach the caller.
type Notifier interface {
	Notify(ctx context.Context, callbackURL, status, message string)
}

// Work is a prepared lens computation, ready to be scheduled as a job.
type Work func(ctx context.Context) (any, error)

// Service validates lens requests synchronously and packages the actual
// model computation into closures for asynchronous execution. The model
// registry is carried into every closure explicitly.
type Service struct {
	registry *gateway.Registry
	notifier Notifier
	topK     int
}

func NewService(registry *gateway.Registry, notifier Notifier, topK int) *Service {
	return &Service{
		registry: registry,
		notifier: notifier,
		topK:     topK,
	}
}

// PrepareTargeted validates a targeted request and returns the work that
// computes its response. Validation and unknown-model errors surface here,
// before a job exists.
func (s *Service) PrepareTargeted(req models.TargetedLensRequest) (Work, error) {
	if len(req.Completions) == 0 {
		return nil, validationf("no completions")
	}
	grouped, err := Group(req.Completions)
	if err != nil {
		return nil, err
	}
	modelIDs := make([]string, 0, len(grouped))
	for modelID := range grouped {
		if err := s.registry.Lookup(modelID); err != nil {
			return nil, err
		}
		modelIDs = append(modelIDs, modelID)
	}
	sort.Strings(modelIDs)

	return func(ctx context.Context) (any, error) {
		start := time.Now()
		defer func() { metrics.ObserveLens("targeted", time.Since(start)) }()

		var raw []RawResult
		for _, modelID := range modelIDs {
			subs := grouped[modelID]
			modelRaw, err := s.traceTargeted(ctx, modelID, subs)
			if err != nil {
				var connErr *gateway.ConnectionError
				if errors.As(err, &connErr) {
					return s.degrade(ctx, req.CallbackURL, err, &models.TargetedLensResponse{
						Data:     []models.LayerResults{},
						Metadata: models.LensMetadata{MaxLayer: 0},
					})
				}
				return nil, err
			}
			raw = append(raw, modelRaw...)
		}

		data, err := Aggregate(raw)
		if err != nil {
			return nil, err
		}
		return &models.TargetedLensResponse{
			Data:     data,
			Metadata: models.LensMetadata{MaxLayer: len(data) - 1},
		}, nil
	}, nil
}

// traceTargeted runs one model's batch and decorates the raw results with
// the decoded strings aggregation needs.
func (s *Service) traceTargeted(ctx context.Context, modelID string, subs []SubRequest) ([]RawResult, error) {
	handle, err := s.registry.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}

	specs := make([]gateway.TraceSpec, len(subs))
	for i, sub := range subs {
		specs[i] = sub.Spec
	}
	results, err := handle.TraceTargeted(ctx, specs)
	if err != nil {
		return nil, err
	}

	promptTokens := make([][]string, len(subs))
	targetTokens := make([][]string, len(subs))
	for i, sub := range subs {
		ids, err := handle.Encode(ctx, sub.Prompt)
		if err != nil {
			return nil, err
		}
		if promptTokens[i], err = handle.Decode(ctx, ids); err != nil {
			return nil, err
		}
		if targetTokens[i], err = handle.Decode(ctx, sub.Spec.TargetIDs); err != nil {
			return nil, err
		}
	}

	raw := make([]RawResult, 0, len(results))
	for _, r := range results {
		if r.Spec < 0 || r.Spec >= len(subs) {
			return nil, aggregationf("model %q: result references spec %d of %d", modelID, r.Spec, len(subs))
		}
		raw = append(raw, RawResult{
			Name:         subs[r.Spec].Name,
			Layer:        r.Layer,
			Probs:        r.Probs,
			Positions:    subs[r.Spec].Spec.Positions,
			PromptTokens: promptTokens[r.Spec],
			TargetTokens: targetTokens[r.Spec],
		})
	}
	return raw, nil
}

// PrepareLine validates a line request and returns its work.
func (s *Service) PrepareLine(req models.LineLensRequest) (Work, error) {
	if req.Model == "" {
		return nil, validationf("missing model")
	}
	if req.Prompt == "" {
		return nil, validationf("missing prompt")
	}
	if req.Token.Idx < 0 {
		return nil, validationf("negative token index %d", req.Token.Idx)
	}
	if len(req.Token.TargetIDs) == 0 {
		return nil, validationf("no target ids")
	}
	for _, id := range req.Token.TargetIDs {
		if id < 0 {
			return nil, validationf("invalid target id %d", id)
		}
	}
	if err := s.registry.Lookup(req.Model); err != nil {
		return nil, err
	}

	return func(ctx context.Context) (any, error) {
		start := time.Now()
		defer func() { metrics.ObserveLens("line", time.Since(start)) }()

		payload, err := s.runLine(ctx, req)
		if err != nil {
			var connErr *gateway.ConnectionError
			if errors.As(err, &connErr) {
				return s.degrade(ctx, req.CallbackURL, err, &models.LineLensResponse{Lines: []models.Line{}})
			}
			return nil, err
		}
		return payload, nil
	}, nil
}

// runLine is the full line computation: model load, trace, decode, assembly.
// Any stage can surface a ConnectionError; the caller degrades it.
func (s *Service) runLine(ctx context.Context, req models.LineLensRequest) (*models.LineLensResponse, error) {
	handle, err := s.registry.Get(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	positions := make([]int, len(req.Token.TargetIDs))
	for i := range positions {
		positions[i] = req.Token.Idx
	}
	spec := gateway.TraceSpec{
		Name:      "line",
		Prompt:    req.Prompt,
		Positions: positions,
		TargetIDs: req.Token.TargetIDs,
	}
	results, err := handle.TraceTargeted(ctx, []gateway.TraceSpec{spec})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Layer < results[j].Layer })

	targetTokens, err := handle.Decode(ctx, req.Token.TargetIDs)
	if err != nil {
		return nil, err
	}
	lines, err := AssembleLines(results, targetTokens)
	if err != nil {
		return nil, err
	}
	return &models.LineLensResponse{Lines: lines}, nil
}

// PrepareGrid validates a grid request and returns its work.
func (s *Service) PrepareGrid(req models.GridLensRequest) (Work, error) {
	if req.Completion.Model == "" {
		return nil, validationf("missing model")
	}
	if req.Completion.Prompt == "" {
		return nil, validationf("missing prompt")
	}
	if err := s.registry.Lookup(req.Completion.Model); err != nil {
		return nil, err
	}

	return func(ctx context.Context) (any, error) {
		start := time.Now()
		defer func() { metrics.ObserveLens("grid", time.Since(start)) }()

		payload, err := s.runGrid(ctx, req)
		if err != nil {
			var connErr *gateway.ConnectionError
			if errors.As(err, &connErr) {
				return s.degrade(ctx, req.CallbackURL, err, &models.GridLensResponse{Rows: []models.GridRow{}})
			}
			return nil, err
		}
		return payload, nil
	}, nil
}

// runGrid is the full grid computation: model load, trace, decode, assembly.
// Any stage can surface a ConnectionError; the caller degrades it.
func (s *Service) runGrid(ctx context.Context, req models.GridLensRequest) (*models.GridLensResponse, error) {
	handle, err := s.registry.Get(ctx, req.Completion.Model)
	if err != nil {
		return nil, err
	}

	layers, err := handle.TraceGrid(ctx, req.Completion.Prompt, s.topK)
	if err != nil {
		return nil, err
	}
	if n := handle.NumLayers(); n > 0 && len(layers) != n {
		return nil, aggregationf("model %q: traced %d layers, expected %d", req.Completion.Model, len(layers), n)
	}

	ids, err := handle.Encode(ctx, req.Completion.Prompt)
	if err != nil {
		return nil, err
	}
	inputTokens, err := handle.Decode(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows, err := AggregateGrid(ctx, handle, layers, inputTokens)
	if err != nil {
		return nil, err
	}
	return &models.GridLensResponse{Rows: rows}, nil
}

// degrade converts a backend outage into a valid empty payload so the job
// still reaches a terminal state, and fires the out-of-band notification.
func (s *Service) degrade(ctx context.Context, callbackURL string, err error, payload any) (any, error) {
	slog.Error("Backend connection failure", "error", err)
	s.notifier.Notify(ctx, callbackURL, "error", "backend connection error")
	return payload, nil
}
