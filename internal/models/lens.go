package models

import "encoding/json"

// NoTarget marks a token position with no target token selected. Positions
// carrying this sentinel are excluded from computation.
const NoTarget = -1

// Token selects one position of interest in a prompt and the target token id
// whose probability mass should be read at that position.
type Token struct {
	Idx      int `json:"idx"`
	TargetID int `json:"target_id"`
}

// UnmarshalJSON defaults TargetID to NoTarget so an omitted target is never
// confused with token id 0.
func (t *Token) UnmarshalJSON(b []byte) error {
	type alias Token
	a := alias{TargetID: NoTarget}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = Token(a)
	return nil
}

// Completion is one prompt submitted for introspection.
type Completion struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// TargetedCompletion is a completion annotated with the model it runs on and
// the target tokens to probe.
type TargetedCompletion struct {
	Completion
	Name   string  `json:"name"`
	Model  string  `json:"model"`
	Tokens []Token `json:"tokens"`
}

// CallbackRequest carries the optional out-of-band notification address
// shared by every lens request.
type CallbackRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

// TargetedLensRequest probes specific (position, target) pairs across a batch
// of completions, possibly spanning several models.
type TargetedLensRequest struct {
	CallbackRequest
	Completions []TargetedCompletion `json:"completions"`
}

// LineToken selects one position and one or more target token ids whose
// per-layer probabilities form the plotted lines.
type LineToken struct {
	Idx       int   `json:"idx"`
	TargetIDs []int `json:"target_ids"`
}

// LineLensRequest probes a single prompt position on one model.
type LineLensRequest struct {
	CallbackRequest
	Model  string    `json:"model"`
	Prompt string    `json:"prompt"`
	Token  LineToken `json:"token"`
}

// GridCompletion is a completion annotated with its model for a dense query.
type GridCompletion struct {
	Completion
	Model string `json:"model"`
}

// GridLensRequest requests top-k predictions at every position and layer.
type GridLensRequest struct {
	CallbackRequest
	Completion GridCompletion `json:"completion"`
}

// LayerPoint is one named probability within a layer of a targeted response.
type LayerPoint struct {
	Name string  `json:"name"`
	Prob float64 `json:"prob"`
}

// LayerResults collects the points emitted for one traced layer.
type LayerResults struct {
	Layer  int          `json:"layer"`
	Points []LayerPoint `json:"points"`
}

type LensMetadata struct {
	MaxLayer int `json:"maxLayer"`
}

// TargetedLensResponse is the aggregated shape for targeted queries.
type TargetedLensResponse struct {
	Data     []LayerResults `json:"data"`
	Metadata LensMetadata   `json:"metadata"`
}

// Point is an (x=layer, y=probability) pair on a line chart.
type Point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

// Line is one per-target series across layers.
type Line struct {
	ID   string  `json:"id"`
	Data []Point `json:"data"`
}

type LineLensResponse struct {
	Lines []Line `json:"lines"`
}

// TopToken is one decoded (token, probability) entry of a grid cell's top-k.
type TopToken struct {
	Token string  `json:"token"`
	Prob  float64 `json:"prob"`
}

// GridCell is one (position, layer) cell of a heatmap: top-1 prediction plus
// an optional top-k list. TopTokens is absent when decoding the top-k failed
// for this cell.
type GridCell struct {
	X         int        `json:"x"`
	Y         float64    `json:"y"`
	Label     string     `json:"label"`
	TopTokens []TopToken `json:"topTokens,omitempty"`
}

// GridRow holds the cells for one input token position. ID pairs the decoded
// token with its position so repeated tokens stay distinguishable.
type GridRow struct {
	ID   string     `json:"id"`
	Data []GridCell `json:"data"`
}

type GridLensResponse struct {
	Rows []GridRow `json:"rows"`
}
