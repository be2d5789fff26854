package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	moderr "github.com/leion/aihelper/errors"
)

// Environment selects one of the built-in configuration profiles.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Testing     Environment = "testing"
)

// ParseEnvironment maps a string to an Environment, defaulting to Production.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development
	case "testing", "test":
		return Testing
	default:
		return Production
	}
}

// Settings is the effective parameter set for one call. Every field has a
// defined value after Load; a partial Settings is never handed out.
type Settings struct {
	Provider          string  `koanf:"provider"`
	APIKey            string  `koanf:"api_key"`
	APIURL            string  `koanf:"api_url"`
	Model             string  `koanf:"model_name"`
	TimeoutSeconds    int     `koanf:"timeout"`
	MaxRetries        int     `koanf:"max_retries"`
	RetryDelaySeconds int     `koanf:"retry_delay"`
	MaxTokens         int     `koanf:"max_tokens"`
	Temperature       float64 `koanf:"temperature"`
	Stream            bool    `koanf:"stream"`
	EnableStreaming   bool    `koanf:"enable_streaming"`
	ShowThinking      bool    `koanf:"show_thinking"`
	Debug             bool    `koanf:"debug"`
}

// Timeout returns the per-call deadline.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base backoff delay before the first retry.
func (s Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// Scenario is a partial override of Settings tied to a calling context.
// Nil fields leave the base value untouched; unknown keys in override files
// are ignored by the unmarshaller.
type Scenario struct {
	Provider     *string  `koanf:"provider"`
	Model        *string  `koanf:"model_name"`
	Temperature  *float64 `koanf:"temperature"`
	MaxTokens    *int     `koanf:"max_tokens"`
	Stream       *bool    `koanf:"stream"`
	ShowThinking *bool    `koanf:"show_thinking"`
}

// Apply merges the scenario override onto base, field by field.
// Switching provider without naming a model clears the base model so the
// variant's own default applies.
func (sc Scenario) Apply(base Settings) Settings {
	out := base
	if sc.Provider != nil && *sc.Provider != "" && *sc.Provider != base.Provider {
		out.Provider = *sc.Provider
		out.Model = ""
	}
	if sc.Model != nil && *sc.Model != "" {
		out.Model = *sc.Model
	}
	if sc.Temperature != nil {
		out.Temperature = *sc.Temperature
	}
	if sc.MaxTokens != nil {
		out.MaxTokens = *sc.MaxTokens
	}
	if sc.Stream != nil {
		out.Stream = *sc.Stream
	}
	if sc.ShowThinking != nil {
		out.ShowThinking = *sc.ShowThinking
	}
	return out
}

// QwenConfig holds the DashScope-specific connection details.
type QwenConfig struct {
	APIKey      string `koanf:"api_key"`
	APIURL      string `koanf:"api_url"`
	Model       string `koanf:"model_name"`
	WorkspaceID string `koanf:"workspace_id"`
}

// Config is the merged, read-only configuration snapshot for a client.
type Config struct {
	Environment Environment            `koanf:"-"`
	Settings    `koanf:",squash"`
	Scenarios   map[string]Scenario `koanf:"scenarios"`
	Qwen        QwenConfig          `koanf:"qwen"`
}

// Resolve returns the effective settings for the named scenario. Unknown
// names degrade to the base settings; lookup never fails.
func (c *Config) Resolve(scenario string) Settings {
	s := c.Settings
	if sc, ok := c.Scenarios[scenario]; ok {
		s = sc.Apply(s)
	}
	return s
}

// ShowThinkingFor reports the display hint for a scenario.
func (c *Config) ShowThinkingFor(scenario string) bool {
	return c.Resolve(scenario).ShowThinking
}

func defaults() map[string]any {
	return map[string]any{
		"provider":         "siliconflow",
		"api_key":          "",
		"api_url":          "https://api.siliconflow.cn/v1/chat/completions",
		"model_name":       "THUDM/GLM-4-32B-0414",
		"timeout":          60,
		"max_retries":      3,
		"retry_delay":      2,
		"max_tokens":       4096,
		"temperature":      0.7,
		"stream":           false,
		"enable_streaming": true,
		"show_thinking":    true,
		"debug":            false,
		"scenarios": map[string]any{
			"chat": map[string]any{
				"stream":        true,
				"temperature":   0.8,
				"show_thinking": true,
			},
			"commit": map[string]any{
				"stream":        false,
				"temperature":   0.3,
				"max_tokens":    100,
				"show_thinking": false,
			},
			"blog": map[string]any{
				"stream":        false,
				"temperature":   0.7,
				"max_tokens":    3000,
				"show_thinking": false,
			},
			"qwen": map[string]any{
				"provider":      "qwen",
				"stream":        true,
				"temperature":   0.7,
				"max_tokens":    4096,
				"show_thinking": false,
			},
			"vector_query": map[string]any{
				"stream":        false,
				"temperature":   0.5,
				"max_tokens":    2000,
				"show_thinking": false,
			},
			"vision": map[string]any{
				"stream":        true,
				"temperature":   0.7,
				"max_tokens":    2000,
				"model_name":    "Qwen/Qwen2.5-VL-72B-Instruct",
				"show_thinking": false,
			},
		},
		"qwen": map[string]any{
			"api_key":      "",
			"api_url":      "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation",
			"model_name":   "qwen-turbo",
			"workspace_id": "",
		},
	}
}

var profiles = map[Environment]map[string]any{
	Development: {
		"timeout":     30,
		"max_retries": 2,
		"temperature": 0.8,
		"debug":       true,
	},
	Production: {
		"timeout":     60,
		"max_retries": 3,
		"temperature": 0.7,
		"debug":       false,
	},
	Testing: {
		"timeout":     15,
		"max_retries": 1,
		"temperature": 0.5,
		"debug":       true,
		"model_name":  "THUDM/GLM-4-9B-Chat",
	},
}

// envKey maps an AI_* environment variable onto its config key. Unmapped
// variables are skipped rather than merged.
func envKey(s string) string {
	switch s {
	case "AI_API_KEY":
		return "api_key"
	case "AI_API_URL":
		return "api_url"
	case "AI_MODEL_NAME":
		return "model_name"
	case "AI_TIMEOUT":
		return "timeout"
	case "AI_MAX_RETRIES":
		return "max_retries"
	case "AI_RETRY_DELAY":
		return "retry_delay"
	case "AI_MAX_TOKENS":
		return "max_tokens"
	case "AI_TEMPERATURE":
		return "temperature"
	case "AI_STREAM":
		return "stream"
	default:
		return ""
	}
}

// overridePath returns the persisted override file for env.
// AI_CONFIG_PATH wins when set.
func overridePath(env Environment) string {
	if p := os.Getenv("AI_CONFIG_PATH"); p != "" {
		return p
	}
	return "ai_config_" + string(env) + ".yaml"
}

// Load builds a Config for the environment named by AI_ENV (defaulting to
// production). Each call re-reads all sources; a caller wanting to pick up
// changed files or env vars constructs a new client from a fresh Load.
func Load() (*Config, error) {
	return LoadEnv(ParseEnvironment(os.Getenv("AI_ENV")))
}

// LoadEnv builds a Config by layering, in increasing priority: built-in
// defaults, the environment profile, AI_* env vars, and the persisted
// override file. Conversion failures surface as config errors rather than
// being dropped.
func LoadEnv(env Environment) (*Config, error) {
	// A project .env fills in missing vars but never overrides the real
	// environment.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, moderr.Config("load defaults: %v", err)
	}
	if p, ok := profiles[env]; ok {
		if err := k.Load(confmap.Provider(p, "."), nil); err != nil {
			return nil, moderr.Config("load %s profile: %v", env, err)
		}
	}
	if err := k.Load(kenv.Provider("AI_", ".", envKey), nil); err != nil {
		return nil, moderr.Config("load env overrides: %v", err)
	}
	path := overridePath(env)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
			return nil, moderr.Config("override file %s: %v", path, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, moderr.Config("invalid configuration value: %v", err)
	}
	cfg.Environment = env
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return moderr.Config("api_url must not be empty")
	}
	if c.Model == "" {
		return moderr.Config("model_name must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return moderr.Config("timeout must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetries < 1 {
		return moderr.Config("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryDelaySeconds < 0 {
		return moderr.Config("retry_delay must not be negative, got %d", c.RetryDelaySeconds)
	}
	if c.MaxTokens <= 0 {
		return moderr.Config("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return moderr.Config("temperature %.2f out of range [0, 2]", c.Temperature)
	}
	for name, sc := range c.Scenarios {
		if sc.Temperature != nil && (*sc.Temperature < 0 || *sc.Temperature > 2) {
			return moderr.Config("scenario %q: temperature %.2f out of range [0, 2]", name, *sc.Temperature)
		}
		if sc.MaxTokens != nil && *sc.MaxTokens <= 0 {
			return moderr.Config("scenario %q: max_tokens must be positive, got %d", name, *sc.MaxTokens)
		}
	}
	return nil
}
