package client

import "encoding/json"

// Token selects a prompt position and target token id for a targeted query.
// TargetID -1 marks a position with no target selected.
type Token struct {
	Idx      int `json:"idx"`
	TargetID int `json:"target_id"`
}

// TargetedCompletion is one prompt of a targeted lens request.
type TargetedCompletion struct {
	ID     string  `json:"id"`
	Prompt string  `json:"prompt"`
	Name   string  `json:"name"`
	Model  string  `json:"model"`
	Tokens []Token `json:"tokens"`
}

// TargetedLensRequest probes specific (position, target) pairs across a
// batch of completions.
type TargetedLensRequest struct {
	CallbackURL string               `json:"callback_url,omitempty"`
	Completions []TargetedCompletion `json:"completions"`
}

// LineToken selects one position and the target ids forming the lines.
type LineToken struct {
	Idx       int   `json:"idx"`
	TargetIDs []int `json:"target_ids"`
}

// LineLensRequest probes a single prompt position on one model.
type LineLensRequest struct {
	CallbackURL string    `json:"callback_url,omitempty"`
	Model       string    `json:"model"`
	Prompt      string    `json:"prompt"`
	Token       LineToken `json:"token"`
}

// GridLensRequest requests top-k predictions at every position and layer.
type GridLensRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
	Completion  struct {
		ID     string `json:"id"`
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	} `json:"completion"`
}

type LayerPoint struct {
	Name string  `json:"name"`
	Prob float64 `json:"prob"`
}

type LayerResults struct {
	Layer  int          `json:"layer"`
	Points []LayerPoint `json:"points"`
}

type TargetedLensResponse struct {
	Data     []LayerResults `json:"data"`
	Metadata struct {
		MaxLayer int `json:"maxLayer"`
	} `json:"metadata"`
}

type Point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

type Line struct {
	ID   string  `json:"id"`
	Data []Point `json:"data"`
}

type LineLensResponse struct {
	Lines []Line `json:"lines"`
}

type TopToken struct {
	Token string  `json:"token"`
	Prob  float64 `json:"prob"`
}

type GridCell struct {
	X         int        `json:"x"`
	Y         float64    `json:"y"`
	Label     string     `json:"label"`
	TopTokens []TopToken `json:"topTokens,omitempty"`
}

type GridRow struct {
	ID   string     `json:"id"`
	Data []GridCell `json:"data"`
}

type GridLensResponse struct {
	Rows []GridRow `json:"rows"`
}

// lensEnvelope and lensReply are the NATS wire frames shared with the
// service side.
type lensEnvelope struct {
	TraceID string          `json:"trace_id,omitempty"`
	ReqID   string          `json:"req_id"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Request json.RawMessage `json:"request"`
}

type lensReply struct {
	ReqID      string          `json:"req_id"`
	JobID      string          `json:"job_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"dur_ms"`
}
