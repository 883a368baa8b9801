package lens

import (
	"fmt"
	"math"
	"sort"

	"github.com/cadentj/interp-workbench/internal/models"
)

// RawResult is one (item, layer) trace output decorated with the decoded
// strings needed for display names.
type RawResult struct {
	Name string

	Layer int

	// Probs is backend-decoded JSON: a sequence of numbers aligned with
	// Positions, or a bare number when a single position was traced.
	Probs any

	// Positions are the prompt indices that were probed, aligned with
	// TargetTokens.
	Positions []int

	// PromptTokens are the decoded tokens of the item's full prompt.
	PromptTokens []string

	// TargetTokens are the decoded target tokens, aligned with Positions.
	TargetTokens []string
}

// Aggregate reassembles raw targeted results into per-layer point groups in
// ascending layer order. Every probability is rounded to two decimals for
// display; the rounded values are lossy and must not feed back into numeric
// comparisons.
func Aggregate(results []RawResult) ([]models.LayerResults, error) {
	byLayer := make(map[int][]models.LayerPoint)
	for _, r := range results {
		probs, err := normalizeProbs(r.Probs)
		if err != nil {
			return nil, aggregationf("item %q layer %d: %v", r.Name, r.Layer, err)
		}
		if len(probs) != len(r.Positions) {
			return nil, aggregationf("item %q layer %d: %d probabilities for %d positions",
				r.Name, r.Layer, len(probs), len(r.Positions))
		}
		if len(r.TargetTokens) != len(r.Positions) {
			return nil, aggregationf("item %q layer %d: %d target tokens for %d positions",
				r.Name, r.Layer, len(r.TargetTokens), len(r.Positions))
		}
		for i, pos := range r.Positions {
			if pos >= len(r.PromptTokens) {
				return nil, aggregationf("item %q layer %d: position %d outside prompt of %d tokens",
					r.Name, r.Layer, pos, len(r.PromptTokens))
			}
			byLayer[r.Layer] = append(byLayer[r.Layer], models.LayerPoint{
				Name: fmt.Sprintf("%s - (\"%s\" → \"%s\")", r.Name, r.PromptTokens[pos], r.TargetTokens[i]),
				Prob: round2(probs[i]),
			})
		}
	}

	layers := make([]int, 0, len(byLayer))
	for layer := range byLayer {
		layers = append(layers, layer)
	}
	sort.Ints(layers)

	out := make([]models.LayerResults, 0, len(layers))
	for _, layer := range layers {
		out = append(out, models.LayerResults{Layer: layer, Points: byLayer[layer]})
	}
	return out, nil
}

// normalizeProbs widens a raw probability value into a slice. Numeric
// backends collapse a length-1 sequence into a bare scalar; zipping against
// positions would misalign without this step.
func normalizeProbs(v any) ([]float64, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return []float64{p}, nil
	case []float64:
		return p, nil
	case []any:
		out := make([]float64, len(p))
		for i, e := range p {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("probability %d is %T, not a number", i, e)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("probabilities are %T, not a number or sequence", v)
	}
}

func round2(p float64) float64 {
	return math.Round(p*100) / 100
}
