package qwen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	moderr "github.com/leion/aihelper/errors"
	"github.com/leion/aihelper/internal/config"
	"github.com/leion/aihelper/internal/core"
	"github.com/leion/aihelper/internal/providers/retry"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string, attempts int) *Client {
	qc := config.QwenConfig{APIURL: url, APIKey: "qwen-key", Model: "qwen-turbo", WorkspaceID: "ws-1"}
	rc := retry.Config{MaxAttempts: attempts, BaseDelay: time.Millisecond}
	return New(qc, rc, &http.Client{}, discard())
}

func TestCompleteWireShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer qwen-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if ws := r.Header.Get("X-DashScope-WorkSpace"); ws != "ws-1" {
			t.Errorf("unexpected workspace header %q", ws)
		}
		if sse := r.Header.Get("X-DashScope-SSE"); sse != "" {
			t.Errorf("batch call must not enable SSE, got %q", sse)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{"output":{"text":"hello from qwen"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	text, err := c.Complete(context.Background(), core.CallParams{
		Prompt:      "hi",
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from qwen" {
		t.Fatalf("text = %q", text)
	}

	if got["model"] != "qwen-turbo" {
		t.Errorf("model = %v", got["model"])
	}
	input := got["input"].(map[string]any)
	msg := input["messages"].([]any)[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "hi" {
		t.Errorf("message = %v", msg)
	}
	params := got["parameters"].(map[string]any)
	if params["max_tokens"].(float64) != 256 {
		t.Errorf("max_tokens = %v", params["max_tokens"])
	}
	if params["temperature"].(float64) != 0.7 {
		t.Errorf("temperature = %v", params["temperature"])
	}
	if params["incremental_output"] != false {
		t.Errorf("batch call must send incremental_output=false, got %v", params["incremental_output"])
	}
}

func TestStreamWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sse := r.Header.Get("X-DashScope-SSE"); sse != "enable" {
			t.Errorf("stream call must enable SSE, got %q", sse)
		}
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		params := req["parameters"].(map[string]any)
		if params["incremental_output"] != true {
			t.Errorf("stream call must send incremental_output=true, got %v", params["incremental_output"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data:{\"output\":{\"text\":\"Hel\"}}\n")
		fmt.Fprint(w, "data:{\"output\":{\"text\":\"lo\"}}\n")
		fmt.Fprint(w, "data:[DONE]\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	st, err := c.Stream(context.Background(), core.CallParams{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var frags []string
	text, err := st.Collect(func(f string) { frags = append(frags, f) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("aggregated text = %q", text)
	}
	if len(frags) != 2 || frags[0] != "Hel" || frags[1] != "lo" {
		t.Fatalf("fragments = %v", frags)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Complete(context.Background(), core.CallParams{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if kind, _ := moderr.KindOf(err); kind != moderr.KindServerStatus {
		t.Fatalf("expected server status kind, got %v", err)
	}
}

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"roundtrip", `{"output":{"text":"X"}}`, "X", false},
		{"missing output", `{}`, "", true},
		{"missing text", `{"output":{}}`, "", true},
		{"not json", `nope`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBatch([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if kind, _ := moderr.KindOf(err); kind != moderr.KindMalformedResponse {
					t.Fatalf("expected malformed kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
