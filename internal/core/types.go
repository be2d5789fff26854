package core

import (
	"context"

	"github.com/leion/aihelper/internal/sse"
)

// Provider is implemented by each wire-format variant. A provider is selected
// once at client construction and never mixed with another within one call.
type Provider interface {
	Name() string
	// Complete issues a batch request and returns the full response text.
	Complete(ctx context.Context, params CallParams) (string, error)
	// Stream issues a streaming request and returns a pull-based fragment
	// stream. The initial request (up to the response headers) is retried
	// like a batch call; once the stream is handed out it is not replayed.
	Stream(ctx context.Context, params CallParams) (*sse.Stream, error)
}

// CallParams describes one request. Built fresh per call, immutable once
// built.
type CallParams struct {
	Prompt      string
	ImageBase64 string // optional inline PNG, base64 without data: prefix
	Model       string // empty means the provider's configured default
	Temperature float64
	MaxTokens   int
	Stream      bool
	// Extra carries provider-specific fields merged into the payload last.
	// Reserved payload fields always win over Extra on collision.
	Extra map[string]any
}

// ModelInfo is a diagnostic snapshot of what a client would send with.
type ModelInfo struct {
	Model       string  `json:"model_name"`
	Provider    string  `json:"provider"`
	APIURL      string  `json:"api_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout"`
	MaxRetries  int     `json:"max_retries"`
}
