package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
		{"net timeout", &net.DNSError{IsTimeout: true}, KindTimeout},
		{"net non-timeout", &net.DNSError{IsTimeout: false}, KindTransport},
		{"plain error", stderrors.New("boom"), KindTransport},
		{"already classified", ServerStatus(502, "bad gateway"), KindServerStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err).Kind; got != tt.want {
				t.Errorf("Classify(%v).Kind = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config", Config("bad value"), false},
		{"stream decode", StreamDecode(stderrors.New("cut")), false},
		{"timeout", Timeout(context.DeadlineExceeded), true},
		{"transport", Transport(stderrors.New("refused")), true},
		{"server 500", ServerStatus(500, ""), true},
		// Non-2xx client statuses retry too; observed upstream behavior.
		{"server 400", ServerStatus(400, ""), true},
		{"server 401", ServerStatus(401, ""), true},
		{"malformed", Malformed("no choices"), true},
		{"unclassified", stderrors.New("raw"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithAttemptAnnotates(t *testing.T) {
	ce := WithAttempt(ServerStatus(503, "busy"), 2)
	if ce.Attempt != 2 {
		t.Fatalf("attempt = %d", ce.Attempt)
	}
	msg := ce.Error()
	if msg != "server_status: http 503: busy (attempt 2)" {
		t.Fatalf("message = %q", msg)
	}
}

func TestWithAttemptClassifiesRawErrors(t *testing.T) {
	ce := WithAttempt(fmt.Errorf("dial: %w", context.DeadlineExceeded), 1)
	if ce.Kind != KindTimeout || ce.Attempt != 1 {
		t.Fatalf("got %+v", ce)
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("underlying")
	err := Transport(cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("cause must survive wrapping")
	}
}

func TestKindStrings(t *testing.T) {
	kinds := map[Kind]string{
		KindConfig:            "config",
		KindTimeout:           "timeout",
		KindTransport:         "transport",
		KindServerStatus:      "server_status",
		KindMalformedResponse: "malformed_response",
		KindStreamDecode:      "stream_decode",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), want)
		}
	}
}
