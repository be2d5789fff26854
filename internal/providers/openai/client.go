// Package openai implements the OpenAI-compatible chat-completions wire
// format used by SiliconFlow and friends.
package openai

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

const userAgent = "AI-Helper/1.0"

type Client struct {
	name       string
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	retry      retry.Config
}

func New(name string, cfg config.Settings, rc retry.Config, hc *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:       name,
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: hc,
		logger:     logger,
		retry:      rc,
	}
}

func (c *Client) Name() string { return c.name }

// payload builds the provider-shaped request body. Extras are merged first so
// the reserved fields always win on collision.
func (c *Client) payload(p core.CallParams) map[string]any {
	var content any = p.Prompt
	if p.ImageBase64 != "" {
		content = []any{
			map[string]any{"type": "text", "text": p.Prompt},
			map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": "data:image/png;base64," + p.ImageBase64,
				},
			},
		}
	}
	model := p.Model
	if model == "" {
		model = c.model
	}
	data := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		data[k] = v
	}
	data["model"] = model
	data["messages"] = []any{map[string]any{"role": "user", "content": content}}
	data["temperature"] = p.Temperature
	data["max_tokens"] = p.MaxTokens
	data["stream"] = p.Stream
	return data
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
		resp, err := c.post(ctx, body)
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
			// A retry may still get a well-formed response.
			return err
		}
		text = t
		c.logger.Debug("chat completion",
			slog.String("provider", c.name),
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
		// The attempt window bounds the handshake only; once headers are in,
		// the stream lives under the caller's context so a legitimately long
		// response is not cut off mid-read.
		reqCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(attemptCtx, cancel)
		resp, err := c.post(reqCtx, body)
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
		out = sse.NewWithCleanup(resp.Body, ExtractDelta, cancel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	return c.httpClient.Do(req)
}

type batchResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DecodeBatch extracts choices[0].message.content. A missing or empty
// choices array, or an absent content field, is a malformed response; it is
// never silently turned into empty text.
func DecodeBatch(raw []byte) (string, error) {
	var r batchResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", moderr.Malformed("response is not valid JSON: %v", err)
	}
	if len(r.Choices) == 0 {
		return "", moderr.Malformed("response has no choices")
	}
	if r.Choices[0].Message.Content == nil {
		return "", moderr.Malformed("response missing message.content")
	}
	return *r.Choices[0].Message.Content, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractDelta pulls choices[0].delta.content out of one stream event.
func ExtractDelta(data []byte) (string, bool) {
	var ch streamChunk
	if err := json.Unmarshal(data, &ch); err != nil {
		return "", false
	}
	if len(ch.Choices) == 0 {
		return "", false
	}
	return ch.Choices[0].Delta.Content, true
}
