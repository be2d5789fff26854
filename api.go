// Package aihelper is a resilient chat-completion client. A Client resolves
// a scenario's effective parameters, builds the provider-shaped request,
// sends it with bounded exponential-backoff retries and decodes either a
// single response body or an incremental event stream.
package aihelper

// FragmentFunc receives each streamed text fragment in arrival order. It is
// invoked synchronously from the decoding goroutine, so a slow callback
// delays delivery of subsequent fragments.
type FragmentFunc func(fragment string)

type callOptions struct {
	image       string
	model       string
	temperature *float64
	maxTokens   *int
	stream      *bool
	extra       map[string]any
}

// CallOption tweaks a single call on top of the resolved scenario settings.
type CallOption func(*callOptions)

// WithImage attaches an inline PNG (base64, without the data: prefix). The
// request content becomes a two-part text + image payload.
func WithImage(base64PNG string) CallOption {
	return func(o *callOptions) { o.image = base64PNG }
}

// WithModel overrides the resolved model for this call.
func WithModel(name string) CallOption {
	return func(o *callOptions) { o.model = name }
}

// WithTemperature overrides the resolved temperature for this call.
func WithTemperature(t float64) CallOption {
	return func(o *callOptions) { o.temperature = &t }
}

// WithMaxTokens overrides the resolved output token limit for this call.
func WithMaxTokens(n int) CallOption {
	return func(o *callOptions) { o.maxTokens = &n }
}

// WithStream forces streaming on or off for this call. The stream path is
// only taken when a fragment callback is supplied as well.
func WithStream(enabled bool) CallOption {
	return func(o *callOptions) { o.stream = &enabled }
}

// WithExtra adds a provider-specific field to the request payload. Reserved
// payload fields win over extras on collision.
func WithExtra(key string, value any) CallOption {
	return func(o *callOptions) {
		if o.extra == nil {
			o.extra = make(map[string]any)
		}
		o.extra[key] = value
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
