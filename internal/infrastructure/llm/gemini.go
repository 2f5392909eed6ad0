// Package llm provides the generative-text assistant used for operator
// helper text. The reconciliation checks never depend on it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reconagent/internal/ports"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GeminiClient calls the Gemini generateContent API.
type GeminiClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Assistant = (*GeminiClient)(nil)

// NewGeminiClient builds a client for the given model. An empty
// endpoint falls back to the public API; tests pass their own.
func NewGeminiClient(endpoint, model, apiKey string) *GeminiClient {
	if endpoint == "" {
		endpoint = fmt.Sprintf(defaultEndpoint, model)
	}
	return &GeminiClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Ask sends the prompt, with optional extra context as a second part,
// and returns the first candidate's text.
func (c *GeminiClient) Ask(ctx context.Context, prompt, extra string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	parts := []geminiPart{{Text: prompt}}
	if extra != "" {
		parts = append(parts, geminiPart{Text: extra})
	}

	body, err := json.Marshal(map[string]any{
		"contents": []geminiContent{{Parts: parts}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ask gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gemini error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
