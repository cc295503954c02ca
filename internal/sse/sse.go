// Package sse decodes the console server's event streams into tagged frames.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

type FrameType string

const (
	FrameStart    FrameType = "start"
	FrameChunk    FrameType = "chunk"
	FrameProgress FrameType = "progress"
	FrameResult   FrameType = "result"
	FrameError    FrameType = "error"
)

// ErrTruncated reports a stream that closed before a result or error frame.
var ErrTruncated = errors.New("stream closed without a terminal frame")

// Frame is one decoded server event. Data holds the raw payload so callers
// can decode type-specific fields (result shapes differ per endpoint).
type Frame struct {
	Type    FrameType `json:"type"`
	Text    string    `json:"text"`
	Message string    `json:"message"`

	Data json.RawMessage `json:"-"`
}

func (f Frame) Terminal() bool {
	return f.Type == FrameResult || f.Type == FrameError
}

// Reader yields frames from a body of "data: <json>" blocks delimited by
// blank lines. Malformed payloads are dropped; the stream must end with
// exactly one terminal frame or Next returns ErrTruncated.
type Reader struct {
	sc       *bufio.Scanner
	log      zerolog.Logger
	terminal bool
	done     bool
}

func NewReader(r io.Reader, logger zerolog.Logger) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	sc.Split(splitFrames)
	return &Reader{sc: sc, log: logger}
}

// Next returns the next frame. After a terminal frame it returns io.EOF.
// Errors from the underlying reader (including request cancellation) are
// returned as-is.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}
	for r.sc.Scan() {
		payload := extractData(r.sc.Bytes())
		if len(payload) == 0 {
			continue
		}

		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil || f.Type == "" {
			r.log.Warn().Str("payload", truncate(payload, 200)).Msg("dropping malformed stream frame")
			continue
		}
		f.Data = append(json.RawMessage(nil), payload...)

		if f.Terminal() {
			r.terminal = true
			r.done = true
		}
		return f, nil
	}

	r.done = true
	if err := r.sc.Err(); err != nil {
		return Frame{}, err
	}
	if !r.terminal {
		return Frame{}, ErrTruncated
	}
	return Frame{}, io.EOF
}

func splitFrames(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// extractData joins the "data:" lines of one event block.
func extractData(block []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		rest, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		rest = bytes.TrimPrefix(rest, []byte(" "))
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, rest...)
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
