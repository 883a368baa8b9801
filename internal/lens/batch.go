// Package lens turns flat introspection requests into per-model trace batches
// and reassembles the raw per-layer results into client-facing responses.
package lens

import (
	"github.com/cadentj/interp-workbench/internal/gateway"
	"github.com/cadentj/interp-workbench/internal/models"
)

// SubRequest is one completion stripped down to the indices its trace needs,
// plus enough identity (ID, Name, Prompt) to re-associate results afterwards
// instead of relying on position alone.
type SubRequest struct {
	ID     string
	Name   string
	Prompt string
	Spec   gateway.TraceSpec
}

// Group batches completions by target model, preserving input order within
// each group. Target tokens carrying the NoTarget sentinel are stripped; a
// completion whose tokens are all sentinels still produces a sub-request with
// an empty index list, so every submitted item has exactly one entry
// downstream. Malformed items are rejected here, before any model work.
func Group(completions []models.TargetedCompletion) (map[string][]SubRequest, error) {
	grouped := make(map[string][]SubRequest)
	for i, c := range completions {
		if c.Model == "" {
			return nil, validationf("completion %d (%q): missing model", i, c.Name)
		}
		var positions, targetIDs []int
		for _, tok := range c.Tokens {
			if tok.Idx < 0 {
				return nil, validationf("completion %d (%q): negative token index %d", i, c.Name, tok.Idx)
			}
			if tok.TargetID < models.NoTarget {
				return nil, validationf("completion %d (%q): invalid target id %d", i, c.Name, tok.TargetID)
			}
			if tok.TargetID == models.NoTarget {
				continue
			}
			positions = append(positions, tok.Idx)
			targetIDs = append(targetIDs, tok.TargetID)
		}
		grouped[c.Model] = append(grouped[c.Model], SubRequest{
			ID:     c.ID,
			Name:   c.Name,
			Prompt: c.Prompt,
			Spec: gateway.TraceSpec{
				Name:      c.Name,
				Prompt:    c.Prompt,
				Positions: positions,
				TargetIDs: targetIDs,
			},
		})
	}
	return grouped, nil
}
