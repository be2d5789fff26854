// Package qwen implements the DashScope text-generation wire format.
// Requests nest messages under input/parameters and responses carry the text
// at output.text rather than in a choices array.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	moderr "github.com/leion/aihelper/errors"
	"github.com/leion/aihelper/internal/config"
	"github.com/leion/aihelper/internal/core"
	"github.com/leion/aihelper/internal/providers/retry"
	"github.com/leion/aihelper/internal/sse"
)

type Client struct {
	apiURL      string
	apiKey      string
	model       string
	workspaceID string
	httpClient  *http.Client
	logger      *slog.Logger
	retry       retry.Config
}

func New(qc config.QwenConfig, rc retry.Config, hc *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:      qc.APIURL,
		apiKey:      qc.APIKey,
		model:       qc.Model,
		workspaceID: qc.WorkspaceID,
		httpClient:  hc,
		logger:      logger,
		retry:       rc,
	}
}

func (c *Client) Name() string { return "qwen" }

func (c *Client) payload(p core.CallParams) map[string]any {
	model := p.Model
	if model == "" {
		model = c.model
	}
	params := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		params[k] = v
	}
	params["max_tokens"] = p.MaxTokens
	params["temperature"] = p.Temperature
	params["incremental_output"] = p.Stream
	return map[string]any{
		"model": model,
		"input": map[string]any{
			"messages": []any{
				map[string]any{"role": "user", "content": p.Prompt},
			},
		},
		"parameters": params,
	}
}

func (c *Client) Complete(ctx context.Context, params core.CallParams) (string, error) {
	params.Stream = false
	body, err := json.Marshal(c.payload(params))
	if err != nil {
		return "", moderr.Config("marshal payload: %v", err)
	}

	var text string
	err = retry.Do(ctx, c.retry, c.logger, func(ctx context.Context, attempt int) error {
		start := time.Now()
		resp, err := c.post(ctx, body, false)
		if err != nil {
			return moderr.Classify(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return moderr.ServerStatus(resp.StatusCode, strings.TrimSpace(string(b)))
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return moderr.Classify(err)
		}
		t, err := DecodeBatch(raw)
		if err != nil {
			return err
		}
		text = t
		c.logger.Debug("qwen completion",
			slog.Int("attempt", attempt),
			slog.Duration("latency", time.Since(start)),
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) Stream(ctx context.Context, params core.CallParams) (*sse.Stream, error) {
	params.Stream = true
	body, err := json.Marshal(c.payload(params))
	if err != nil {
		return nil, moderr.Config("marshal payload: %v", err)
	}

	var out *sse.Stream
	err = retry.Do(ctx, c.retry, c.logger, func(attemptCtx context.Context, attempt int) error {
		// Attempt window covers the handshake only; the open stream reads
		// under the caller's context.
		reqCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(attemptCtx, cancel)
		resp, err := c.post(reqCtx, body, true)
		if err != nil {
			stop()
			cancel()
			return moderr.Classify(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			stop()
			cancel()
			return moderr.ServerStatus(resp.StatusCode, strings.TrimSpace(string(b)))
		}
		stop()
		out = sse.NewWithCleanup(resp.Body, ExtractText, cancel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("X-DashScope-SSE", "enable")
	}
	if c.workspaceID != "" {
		req.Header.Set("X-DashScope-WorkSpace", c.workspaceID)
	}
	return c.httpClient.Do(req)
}

type batchResponse struct {
	Output *struct {
		Text *string `json:"text"`
	} `json:"output"`
}

// DecodeBatch extracts output.text; a missing output block or text field is
// a malformed response.
func DecodeBatch(raw []byte) (string, error) {
	var r batchResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", moderr.Malformed("response is not valid JSON: %v", err)
	}
	if r.Output == nil {
		return "", moderr.Malformed("response missing output")
	}
	if r.Output.Text == nil {
		return "", moderr.Malformed("response missing output.text")
	}
	return *r.Output.Text, nil
}

// ExtractText pulls output.text out of one incremental stream event.
func ExtractText(data []byte) (string, bool) {
	var r batchResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return "", false
	}
	if r.Output == nil || r.Output.Text == nil {
		return "", false
	}
	return *r.Output.Text, true
}
