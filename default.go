package aihelper

import (
	"context"
	"sync"
)

// The process-wide default client is a thin convenience over the explicit
// constructor; anything non-trivial should build its own Client.
var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the lazily constructed process-wide client, loading
// configuration on first use.
func Default() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		c, err := NewFromEnv()
		if err != nil {
			return nil, err
		}
		defaultClient = c
	}
	return defaultClient, nil
}

// SetDefault replaces the process-wide client. Passing nil resets it so the
// next Default call reloads configuration; tests use this to swap fixtures.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}

// Chat is a convenience wrapper over Default().Chat.
func Chat(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	c, err := Default()
	if err != nil {
		return "", err
	}
	return c.Chat(ctx, prompt, opts...)
}

// ChatScenario is a convenience wrapper over Default().ChatScenario.
func ChatScenario(ctx context.Context, prompt, scenario string, onFragment FragmentFunc, opts ...CallOption) (string, error) {
	c, err := Default()
	if err != nil {
		return "", err
	}
	return c.ChatScenario(ctx, prompt, scenario, onFragment, opts...)
}

// GenerateCommitMessage is a convenience wrapper over the default client.
func GenerateCommitMessage(ctx context.Context, changesSummary string) (string, error) {
	c, err := Default()
	if err != nil {
		return "", err
	}
	return c.GenerateCommitMessage(ctx, changesSummary)
}

// GenerateBlogArticle is a convenience wrapper over the default client.
func GenerateBlogArticle(ctx context.Context, title, persona string) (string, error) {
	c, err := Default()
	if err != nil {
		return "", err
	}
	return c.GenerateBlogArticle(ctx, title, persona)
}
