package ai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Stream is a pull-based sequence of text fragments from a streaming
// completion. Recv returns io.EOF after the final fragment and a terminal
// error if the provider fails mid-stream; fragments already delivered remain
// valid either way. A Stream is single-pass and not safe for concurrent Recv.
type Stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	provider string
	done     bool
	err      error

	// scripted mode, used by test doubles and buffered-then-chunked emulation
	scripted    []string
	scriptedErr error
	scriptedAt  int
	isScripted  bool
}

// NewScriptedStream builds a Stream that replays the given fragments and then
// terminates with err, or io.EOF when err is nil. It lets tests exercise the
// same pull-based abstraction the HTTP transport produces.
func NewScriptedStream(fragments []string, err error) *Stream {
	return &Stream{isScripted: true, scripted: fragments, scriptedErr: err}
}

const sseDoneMarker = "[DONE]"

// chunk mirrors the delta frames of a chat streaming response.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func newStream(provider string, body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc, provider: provider}
}

// Recv returns the next text fragment. It skips frames that carry no
// content, such as role-only deltas and keep-alive lines.
func (s *Stream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.done {
		return "", io.EOF
	}
	if s.isScripted {
		if s.scriptedAt < len(s.scripted) {
			fragment := s.scripted[s.scriptedAt]
			s.scriptedAt++
			return fragment, nil
		}
		if s.scriptedErr != nil {
			s.err = s.scriptedErr
			return "", s.err
		}
		s.done = true
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == sseDoneMarker {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = providerErr(s.provider, 0, "malformed stream frame: %v", err)
			return "", s.err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = wrapProviderErr(s.provider, err, "stream read")
		return "", s.err
	}
	s.done = true
	return "", io.EOF
}

// Close releases the underlying connection. Safe to call after EOF.
func (s *Stream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// Collect drains the stream and concatenates all fragments. It exists for
// callers that decide after the fact that they want the whole text.
func (s *Stream) Collect() (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		fragment, err := s.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
	}
}
