package providers

import (
	"log/slog"
	"net/http"

	moderr "github.com/leion/aihelper/errors"
	"github.com/leion/aihelper/internal/config"
	"github.com/leion/aihelper/internal/core"
	"github.com/leion/aihelper/internal/providers/openai"
	"github.com/leion/aihelper/internal/providers/qwen"
	"github.com/leion/aihelper/internal/providers/retry"
)

// New selects the wire-format variant for a provider id. The variant is
// chosen once per client and never mixed with another within one call.
func New(name string, cfg *config.Config, hc *http.Client, logger *slog.Logger) (core.Provider, error) {
	rc := retry.Config{
		MaxAttempts:    cfg.MaxRetries,
		BaseDelay:      cfg.RetryDelay(),
		AttemptTimeout: cfg.Timeout(),
	}
	switch name {
	case "siliconflow", "openai":
		return openai.New(name, cfg.Settings, rc, hc, logger), nil
	case "qwen", "dashscope":
		return qwen.New(cfg.Qwen, rc, hc, logger), nil
	default:
		return nil, moderr.ErrUnknownProvider
	}
}
