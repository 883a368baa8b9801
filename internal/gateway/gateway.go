// Package gateway is the boundary to the model-inference backend. It knows
// nothing about jobs or response shapes; it encodes text, decodes token ids,
// and runs traced forward passes that report per-layer probabilities.
package gateway

import "context"

// TraceSpec is one stripped sub-request within a traced batch: probe the
// prompt at Positions[i] for the probability of TargetIDs[i], at every layer.
// Positions and TargetIDs are always the same length. An empty Positions list
// is valid and yields no results for the spec.
type TraceSpec struct {
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Positions []int  `json:"idxs"`
	TargetIDs []int  `json:"target_ids"`
}

// TraceResult is the raw output for one (spec, layer) pair. Probs holds
// backend-decoded JSON: either a sequence of numbers aligned with the spec's
// positions, or a bare number when only a single position was requested.
// Callers must normalize before indexing.
type TraceResult struct {
	Name  string `json:"name"`
	Spec  int    `json:"spec"`
	Layer int    `json:"layer"`
	Probs any    `json:"probs"`
}

// GridLayer is the raw per-layer output of a dense trace: top-1 prediction id
// and probability per sequence position, plus the top-k lists behind them.
// The final entry of a grid trace comes from the model's native output
// distribution; earlier entries are decoded through the unembedding
// projection. Both appear in the same increasing-layer order.
type GridLayer struct {
	PredIDs   []int       `json:"pred_ids"`
	Probs     []float64   `json:"probs"`
	TopKIDs   [][]int     `json:"topk_ids"`
	TopKProbs [][]float64 `json:"topk_probs"`
}

// Handle is a loaded model. Implementations must be safe for concurrent use;
// trace results are fully materialized by the time a call returns.
type Handle interface {
	ModelID() string

	// NumLayers reports the number of traced layers including the final
	// output layer.
	NumLayers() int

	Encode(ctx context.Context, text string) ([]int, error)
	Decode(ctx context.Context, ids []int) ([]string, error)

	// TraceTargeted runs one forward pass per spec prompt and returns one
	// TraceResult per (spec, layer), in increasing layer order within each
	// spec.
	TraceTargeted(ctx context.Context, specs []TraceSpec) ([]TraceResult, error)

	// TraceGrid runs a forward pass over prompt and returns one GridLayer
	// per traced layer, in increasing layer order.
	TraceGrid(ctx context.Context, prompt string, topK int) ([]GridLayer, error)
}
