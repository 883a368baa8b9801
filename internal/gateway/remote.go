package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// remoteHandle talks to a remote introspection backend over HTTP. The backend
// owns tokenization and the traced forward passes; this side is transport
// only. Trace probabilities are returned as decoded JSON so the backend's
// scalar-vs-sequence collapse for single targets is preserved for the
// aggregator to normalize.
type remoteHandle struct {
	baseURL string
	modelID string
	layers  int
	http    *http.Client
}

// RemoteLoader returns a Loader that resolves models against the backend at
// baseURL. Loading a model fetches its layer count; an unknown model maps to
// ModelNotFoundError, an unreachable backend to ConnectionError.
func RemoteLoader(baseURL string, timeout time.Duration) Loader {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, modelID string) (Handle, error) {
		h := &remoteHandle{
			baseURL: baseURL,
			modelID: modelID,
			http:    client,
		}
		var info struct {
			Layers int `json:"layers"`
		}
		path := "/models/" + url.PathEscape(modelID)
		if err := h.get(ctx, path, &info); err != nil {
			return nil, err
		}
		h.layers = info.Layers
		return h, nil
	}
}

func (h *remoteHandle) ModelID() string { return h.modelID }

func (h *remoteHandle) NumLayers() int { return h.layers }

func (h *remoteHandle) Encode(ctx context.Context, text string) ([]int, error) {
	req := map[string]string{"model": h.modelID, "text": text}
	var resp struct {
		IDs []int `json:"ids"`
	}
	if err := h.post(ctx, "/encode", req, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func (h *remoteHandle) Decode(ctx context.Context, ids []int) ([]string, error) {
	req := map[string]any{"model": h.modelID, "ids": ids}
	var resp struct {
		Tokens []string `json:"tokens"`
	}
	if err := h.post(ctx, "/decode", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

func (h *remoteHandle) TraceTargeted(ctx context.Context, specs []TraceSpec) ([]TraceResult, error) {
	req := map[string]any{"model": h.modelID, "requests": specs}
	var resp struct {
		Results []TraceResult `json:"results"`
	}
	if err := h.post(ctx, "/trace/targeted", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (h *remoteHandle) TraceGrid(ctx context.Context, prompt string, topK int) ([]GridLayer, error) {
	req := map[string]any{"model": h.modelID, "prompt": prompt, "top_k": topK}
	var resp struct {
		Layers []GridLayer `json:"layers"`
	}
	if err := h.post(ctx, "/trace/grid", req, &resp); err != nil {
		return nil, err
	}
	return resp.Layers, nil
}

func (h *remoteHandle) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, out)
}

func (h *remoteHandle) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	return h.do(req, out)
}

func (h *remoteHandle) do(req *http.Request, out any) error {
	resp, err := h.http.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ModelNotFoundError{Model: h.modelID}
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ConnectionError{Err: fmt.Errorf("backend status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ConnectionError{Err: fmt.Errorf("decode backend response: %w", err)}
	}
	return nil
}
