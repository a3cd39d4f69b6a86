package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) activeSplit(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	split, err := h.st.ActiveSplit(ctx)
	if err != nil {
		return nil, err
	}
	// nil marshals to JSON null: no active split is a valid state.
	return jsonResource(req.Params.URI, split)
}

func (h *handlers) today(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload, err := h.todayPayload(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, payload)
}

func (h *handlers) profile(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	p, err := h.st.Profile(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"profile": p,
	}
	if bmi := p.BMI(); bmi > 0 {
		payload["bmi"] = bmi
	}
	return jsonResource(req.Params.URI, payload)
}
