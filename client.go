package aihelper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/leion/aihelper/internal/config"
	"github.com/leion/aihelper/internal/core"
	provfactory "github.com/leion/aihelper/internal/providers"
)

// Config re-exports the resolved configuration types for callers that build
// a Client explicitly.
type Config = config.Config
type Settings = config.Settings
type Scenario = config.Scenario
type Environment = config.Environment

const (
	Development = config.Development
	Production  = config.Production
	Testing     = config.Testing
)

// LoadConfig builds a configuration snapshot from layered sources; see
// internal/config for the merge order.
func LoadConfig() (*Config, error) { return config.Load() }

// LoadConfigEnv builds a configuration snapshot for an explicit environment.
func LoadConfigEnv(env Environment) (*Config, error) { return config.LoadEnv(env) }

// Client dispatches chat calls to the provider variant selected by the
// effective scenario settings. The configuration snapshot is immutable; the
// shared http.Client and provider cache are safe for concurrent callers,
// while retry and decode state stay call-local.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	providers map[string]core.Provider
}

// Option allows functional configuration.
type Option func(*Client)

// WithLogger sets a custom slog logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithHTTPClient sets a custom http.Client, shared by all in-flight calls.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New builds a Client over an already-resolved configuration.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		providers:  make(map[string]core.Provider),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromEnv loads configuration from the layered sources and returns a
// Client over it.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// Chat sends a prompt using the base settings (no scenario override) and
// returns the full response text.
func (c *Client) Chat(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	return c.call(ctx, prompt, "", nil, opts)
}

// ChatScenario resolves the named scenario and dispatches. When the
// resolved settings enable streaming AND onFragment is non-nil, fragments
// are delivered one at a time through the callback and the aggregated text
// is returned once the stream is exhausted. Otherwise a single batch
// request/response is made with no intermediate visibility. Unknown
// scenario names degrade to the base settings.
func (c *Client) ChatScenario(ctx context.Context, prompt, scenario string, onFragment FragmentFunc, opts ...CallOption) (string, error) {
	return c.call(ctx, prompt, scenario, onFragment, opts)
}

func (c *Client) call(ctx context.Context, prompt, scenario string, onFragment FragmentFunc, opts []CallOption) (string, error) {
	settings := c.cfg.Resolve(scenario)
	o := applyCallOptions(opts)

	params := core.CallParams{
		Prompt:      prompt,
		ImageBase64: o.image,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Extra:       o.extra,
	}
	if o.model != "" {
		params.Model = o.model
	}
	if o.temperature != nil {
		params.Temperature = *o.temperature
	}
	if o.maxTokens != nil {
		params.MaxTokens = *o.maxTokens
	}
	streaming := settings.Stream && settings.EnableStreaming
	if o.stream != nil {
		streaming = *o.stream
	}

	prov, err := c.provider(settings.Provider)
	if err != nil {
		return "", err
	}

	// The configured timeout bounds each transport attempt, not the call as
	// a whole; the retry loop applies it per attempt. ctx here carries only
	// caller cancellation.
	start := time.Now()
	var text string
	if streaming && onFragment != nil {
		st, serr := prov.Stream(ctx, params)
		if serr == nil {
			text, serr = st.Collect(onFragment)
		}
		err = serr
	} else {
		text, err = prov.Complete(ctx, params)
	}

	c.logger.Info("chat call",
		slog.String("provider", prov.Name()),
		slog.String("model", params.Model),
		slog.String("scenario", scenario),
		slog.Bool("stream", streaming && onFragment != nil),
		slog.Duration("latency", time.Since(start)),
		slog.Bool("error", err != nil),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

// provider returns the cached variant for a provider id, constructing it on
// first use. The cache is shared across calls and guarded for concurrent
// use.
func (c *Client) provider(name string) (core.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[name]; ok {
		return p, nil
	}
	p, err := provfactory.New(name, c.cfg, c.httpClient, c.logger)
	if err != nil {
		return nil, err
	}
	c.providers[name] = p
	return p, nil
}

const commitPrompt = `Based on the following file changes, write a single concise, professional Git commit message.

Changes:
%s

Rules:
1. Keep it short, roughly 20-50 characters.
2. Describe the concrete change, not generic words like "update" or "modify".
3. Follow Git commit message conventions.
4. Return only the commit message itself, with no explanation.

Commit message:`

// GenerateCommitMessage turns a diff summary into a commit message using the
// "commit" scenario (batch, low temperature, tight token budget).
func (c *Client) GenerateCommitMessage(ctx context.Context, changesSummary string) (string, error) {
	return c.ChatScenario(ctx, fmt.Sprintf(commitPrompt, changesSummary), "commit", nil)
}

const blogPrompt = `%s

Create a complete technical blog article for the title %q.

Requirements:
1. Full Markdown output including front matter (title, date, tags, categories, description).
2. Clear structure: introduction, main content, practical application, summary.
3. 2-3 technical tags and one category.
4. At most 5 h2 outline points, each with up to three h3 sub-points.
5. Return only the Markdown content, with no explanatory text.

Current time: %s`

const defaultBlogPersona = "You are a professional technical blog writing assistant."

// GenerateBlogArticle drafts a Markdown article for a title using the "blog"
// scenario. persona optionally replaces the default system framing.
func (c *Client) GenerateBlogArticle(ctx context.Context, title, persona string) (string, error) {
	if persona == "" {
		persona = defaultBlogPersona
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	return c.ChatScenario(ctx, fmt.Sprintf(blogPrompt, persona, title, now), "blog", nil)
}

// CheckConnection issues a degenerate probe call and reports whether a
// non-empty response came back.
func (c *Client) CheckConnection(ctx context.Context) bool {
	resp, err := c.Chat(ctx, "ping", WithMaxTokens(10), WithTemperature(0.1))
	return err == nil && strings.TrimSpace(resp) != ""
}

// ModelInfo returns a diagnostic snapshot of the base settings.
func (c *Client) ModelInfo() core.ModelInfo {
	s := c.cfg.Settings
	return core.ModelInfo{
		Model:       s.Model,
		Provider:    s.Provider,
		APIURL:      s.APIURL,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TimeoutSec:  s.TimeoutSeconds,
		MaxRetries:  s.MaxRetries,
	}
}

// ShowThinking reports whether intermediate "thinking" state should be shown
// for a scenario. Display hint only; the client itself renders nothing.
func (c *Client) ShowThinking(scenario string) bool {
	return c.cfg.ShowThinkingFor(scenario)
}
