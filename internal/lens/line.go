package lens

import (
	"strings"

	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/models"
)

// AssembleLines turns per-layer targeted results for a single spec into one
// line per target token. Results must arrive in increasing layer order; each
// layer appends one point per line. Line ids are the decoded target tokens
// with spaces replaced by underscores.
func AssembleLines(results []gateway.TraceResult, targetTokens []string) ([]models.Line, error) {
	lines := make([]models.Line, len(targetTokens))
	for i, token := range targetTokens {
		lines[i] = models.Line{
			ID:   strings.ReplaceAll(token, " ", "_"),
			Data: make([]models.Point, 0, len(results)),
		}
	}

	for _, r := range results {
		probs, err := normalizeProbs(r.Probs)
		if err != nil {
			return nil, aggregationf("layer %d: %v", r.Layer, err)
		}
		if len(probs) != len(targetTokens) {
			return nil, aggregationf("layer %d: %d probabilities for %d targets",
				r.Layer, len(probs), len(targetTokens))
		}
		for i, p := range probs {
			lines[i].Data = append(lines[i].Data, models.Point{X: r.Layer, Y: p})
		}
	}
	return lines, nil
}
