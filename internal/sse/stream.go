// Package sse decodes newline-delimited "data:" event streams into an
// ordered sequence of text fragments.
package sse

import (
	"bufio"
	"io"
	"strings"

	moderr "github.com/leion/aihelper/errors"
)

const doneSentinel = "[DONE]"

// Extract pulls the text delta out of one parsed event payload. ok is false
// when the payload is not valid JSON or carries no content; such events are
// skipped without aborting the stream.
type Extract func(data []byte) (text string, ok bool)

// Stream is a finite, non-restartable pull-based fragment sequence over one
// in-flight response body. Concatenating every fragment in yield order equals
// the text an equivalent batch call would have returned.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	extract Extract
	cleanup func()
	done    bool
	err     error
}

// New wraps an open response body. The caller owns ctx/timeout handling for
// the underlying connection; a read aborted by cancellation surfaces from
// Next as a timeout-classified error.
func New(body io.ReadCloser, extract Extract) *Stream {
	return NewWithCleanup(body, extract, nil)
}

// NewWithCleanup is New plus a cleanup hook that runs exactly once when the
// stream finishes or is closed, typically to release the request's context.
func NewWithCleanup(body io.ReadCloser, extract Extract, cleanup func()) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc, extract: extract, cleanup: cleanup}
}

// Next blocks until the next non-empty fragment arrives. It returns io.EOF
// on clean termination ([DONE] or connection close) and a stream-decode or
// timeout error when the underlying read fails. After any error the stream
// stays exhausted.
func (s *Stream) Next() (string, error) {
	if s.done {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			s.finish(nil)
			return "", io.EOF
		}
		// Unparsable payloads and empty deltas are noise, not errors.
		text, ok := s.extract([]byte(payload))
		if !ok || text == "" {
			continue
		}
		return text, nil
	}
	if err := s.scanner.Err(); err != nil {
		ce := moderr.Classify(err)
		if ce.Kind != moderr.KindTimeout {
			ce = moderr.StreamDecode(err)
		}
		s.finish(ce)
		return "", s.err
	}
	s.finish(nil)
	return "", io.EOF
}

// Collect drains the stream, invoking onFragment synchronously for each
// fragment, and returns the aggregated text. A nil onFragment just
// aggregates.
func (s *Stream) Collect(onFragment func(string)) (string, error) {
	var b strings.Builder
	for {
		frag, err := s.Next()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
}

// Close releases the underlying body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.finish(nil)
	return nil
}

func (s *Stream) finish(err error) {
	s.done = true
	s.err = err
	_ = s.body.Close()
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}
