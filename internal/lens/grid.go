package lens

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/models"
)

// Decoder turns token ids back into display strings.
type Decoder interface {
	Decode(ctx context.Context, ids []int) ([]string, error)
}

// AggregateGrid reassembles raw per-layer grid output into one row per input
// token, each row holding one cell per traced layer. Row ids pair the decoded
// token with its position so repeated tokens stay unique. A cell's top-k list
// degrades to absent when its decode fails; a top-1 shape mismatch fails the
// whole aggregation since it breaks the row/cell invariants.
func AggregateGrid(ctx context.Context, dec Decoder, layers []gateway.GridLayer, inputTokens []string) ([]models.GridRow, error) {
	seqLen := len(inputTokens)

	// Decode each layer's top-1 predictions up front, one batch per layer.
	predictions := make([][]string, len(layers))
	for layerIdx, layer := range layers {
		if len(layer.PredIDs) != seqLen || len(layer.Probs) != seqLen {
			return nil, aggregationf("layer %d: %d predictions for %d input tokens",
				layerIdx, len(layer.PredIDs), seqLen)
		}
		decoded, err := dec.Decode(ctx, layer.PredIDs)
		if err != nil {
			return nil, err
		}
		if len(decoded) != seqLen {
			return nil, aggregationf("layer %d: decoded %d labels for %d predictions",
				layerIdx, len(decoded), seqLen)
		}
		predictions[layerIdx] = decoded
	}

	rows := make([]models.GridRow, 0, seqLen)
	for seqIdx, inputToken := range inputTokens {
		cells := make([]models.GridCell, 0, len(layers))
		for layerIdx, layer := range layers {
			cells = append(cells, models.GridCell{
				X:         layerIdx,
				Y:         layer.Probs[seqIdx],
				Label:     predictions[layerIdx][seqIdx],
				TopTokens: topTokens(ctx, dec, layer, layerIdx, seqIdx),
			})
		}
		rows = append(rows, models.GridRow{
			ID:   fmt.Sprintf("%s-%d", inputToken, seqIdx),
			Data: cells,
		})
	}
	return rows, nil
}

// topTokens builds the optional top-k list for one cell. Any shape or decode
// problem drops the list for this cell only.
func topTokens(ctx context.Context, dec Decoder, layer gateway.GridLayer, layerIdx, seqIdx int) []models.TopToken {
	if seqIdx >= len(layer.TopKIDs) || seqIdx >= len(layer.TopKProbs) {
		return nil
	}
	ids := layer.TopKIDs[seqIdx]
	probs := layer.TopKProbs[seqIdx]
	if len(ids) == 0 || len(ids) != len(probs) {
		return nil
	}
	decoded, err := dec.Decode(ctx, ids)
	if err != nil || len(decoded) != len(ids) {
		slog.Debug("Dropping top-k for cell", "layer", layerIdx, "seq", seqIdx, "error", err)
		return nil
	}
	out := make([]models.TopToken, len(ids))
	for i := range ids {
		out[i] = models.TopToken{Token: decoded[i], Prob: probs[i]}
	}
	return out
}
