package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func collect(t *testing.T, r *Reader) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	for {
		f, err := r.Next()
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestReaderYieldsFramesInOrder(t *testing.T) {
	body := "data: {\"type\":\"start\"}\n\n" +
		"data: {\"type\":\"chunk\",\"text\":\"Hel\"}\n\n" +
		"data: {\"type\":\"chunk\",\"text\":\"lo\"}\n\n" +
		"data: {\"type\":\"result\",\"tokens_used\":3,\"model\":\"m-2\"}\n\n"

	frames, err := collect(t, NewReader(strings.NewReader(body), zerolog.Nop()))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after terminal frame, got %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}
	if frames[0].Type != FrameStart || frames[3].Type != FrameResult {
		t.Fatalf("unexpected frame types %v %v", frames[0].Type, frames[3].Type)
	}
	if got := frames[1].Text + frames[2].Text; got != "Hello" {
		t.Fatalf("expected concatenated chunks Hello, got %q", got)
	}
}

func TestReaderRetainsPartialFrameAcrossReads(t *testing.T) {
	body := "data: {\"type\":\"chunk\",\"text\":\"a\"}\n\ndata: {\"type\":\"result\"}\n\n"
	// one byte at a time forces the scanner to buffer partial frames
	r := NewReader(iotestOneByte{strings.NewReader(body)}, zerolog.Nop())

	frames, err := collect(t, r)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(frames) != 2 || frames[0].Text != "a" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestReaderDropsMalformedPayloads(t *testing.T) {
	body := "data: {not json}\n\n" +
		"data: {\"type\":\"chunk\",\"text\":\"ok\"}\n\n" +
		"data: {\"type\":\"result\"}\n\n"

	frames, err := collect(t, NewReader(strings.NewReader(body), zerolog.Nop()))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(frames) != 2 || frames[0].Text != "ok" {
		t.Fatalf("expected malformed frame to be dropped, got %+v", frames)
	}
}

func TestReaderReportsTruncatedStream(t *testing.T) {
	body := "data: {\"type\":\"chunk\",\"text\":\"a\"}\n\n"

	frames, err := collect(t, NewReader(strings.NewReader(body), zerolog.Nop()))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected the chunk before truncation, got %+v", frames)
	}
}

func TestReaderSurfacesUnderlyingError(t *testing.T) {
	wantErr := errors.New("connection reset")
	r := NewReader(io.MultiReader(
		strings.NewReader("data: {\"type\":\"chunk\",\"text\":\"a\"}\n\n"),
		errReader{wantErr},
	), zerolog.Nop())

	_, err := collect(t, r)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected underlying error, got %v", err)
	}
}

func TestReaderHandlesCRLFAndMultiDataLines(t *testing.T) {
	body := "data: {\"type\":\"error\",\r\ndata: \"message\":\"boom\"}\r\n\r\n"
	// \r\n\r\n still contains \n\n once the \r of the first line is kept in place
	frames, err := collect(t, NewReader(strings.NewReader(strings.ReplaceAll(body, "\r\n\r\n", "\n\n")), zerolog.Nop()))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(frames) != 1 || frames[0].Type != FrameError || frames[0].Message != "boom" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

type iotestOneByte struct{ r io.Reader }

func (o iotestOneByte) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
