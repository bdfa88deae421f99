package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMaxChars = 8000

type webFetchInput struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars,omitempty"`
}

// NewWebFetchTool builds the "web_fetch" tool (§4.D): fetches a URL over
// http/https, guarding against requests into the host's own network,
// and truncates the body to maxChars.
func NewWebFetchTool() *Tool {
	client := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if err := checkSSRF(req.URL.String()); err != nil {
				return err
			}
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &Tool{
		Name:        "web_fetch",
		Description: "Fetch the contents of a URL.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":      map[string]any{"type": "string"},
				"maxChars": map[string]any{"type": "integer", "description": "truncate response to this many characters"},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return fetchURL(ctx, client, raw)
		},
	}
}

func fetchURL(ctx context.Context, client *http.Client, raw json.RawMessage) (*Result, error) {
	var in webFetchInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid web_fetch input: %v", err)), nil
	}
	if in.URL == "" {
		return ErrorResult("url is required"), nil
	}
	maxChars := in.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	if err := checkSSRF(in.URL); err != nil {
		return ErrorResult(fmt.Sprintf("fetch blocked: %v", err)), nil
	}
	return doFetch(ctx, client, in.URL, maxChars)
}

// doFetch performs the actual request and truncation, assuming the
// caller has already applied the SSRF guard.
func doFetch(ctx context.Context, client *http.Client, rawURL string, maxChars int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid request: %v", err)), nil
	}
	req.Header.Set("User-Agent", "bashclaw/1.0 (+web_fetch tool)")

	resp, err := client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars)*4))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read failed: %v", err)), nil
	}

	text := string(body)
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	if resp.StatusCode >= 400 {
		return ErrorResult(fmt.Sprintf("http %d: %s", resp.StatusCode, text)), nil
	}
	return NewResult(text), nil
}
