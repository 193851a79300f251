package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tenniscoach/pkg/apierrors"
	"tenniscoach/pkg/retry"
)

// streamChanBuffer smooths producer/consumer bursts without holding much of
// the response in memory.
const streamChanBuffer = 16

// Stream is a lazy, forward-only sequence of response chunks. Chunks arrive
// on Chunks() in strict sequence order; the channel is closed after the final
// or error chunk. Close releases the underlying connection early; after Close
// no further chunks are delivered even if more bytes were already buffered.
type Stream struct {
	ch     <-chan StreamChunk
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
}

// NewStream wraps a prepared chunk channel. Intended for adapters and tests;
// production streams come from StreamGenerateContent.
func NewStream(ch <-chan StreamChunk, cancel context.CancelFunc) *Stream {
	if cancel == nil {
		cancel = func() {}
	}
	return &Stream{ch: ch, cancel: cancel}
}

// Chunks returns the chunk channel.
func (s *Stream) Chunks() <-chan StreamChunk { return s.ch }

// Close abandons the stream and releases the connection. Safe to call
// multiple times and after normal completion.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// abandoned reports whether the caller gave the stream up via Close, as
// opposed to an external cancellation tearing it down.
func (s *Stream) abandoned() bool { return s.closed.Load() }

// Text drains the stream and returns the concatenated response text. A stream
// that ends without a terminal chunk never yields partial text as success.
func (s *Stream) Text() (string, error) {
	defer s.Close()
	var buf bytes.Buffer
	final := false
	for chunk := range s.ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		buf.WriteString(chunk.TextDelta)
		if chunk.Final {
			final = true
		}
	}
	if !final {
		return "", apierrors.NewError(apierrors.ErrorTypeCanceled, "stream closed before completion signal")
	}
	return buf.String(), nil
}

// StreamGenerateContent opens a streaming generation call. Connection
// establishment (up to the first response byte) is retried under the call
// policy; once the stream is live, failures surface on the chunk channel and
// are never retried, because the model may have already consumed part of the
// prompt budget and emitted partial output.
func (c *Client) StreamGenerateContent(ctx context.Context, genReq *GenerateRequest) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	start := time.Now()

	resp, err := retry.Do(ctx, c.callPolicy, func(context.Context) (*http.Response, error) {
		// The request rides streamCtx, not the attempt context, so the
		// connection outlives this call and Close can sever it later.
		return c.openStream(streamCtx, genReq)
	}, retry.WithLogger(c.logger), retry.WithOnRetry(func(int, error) { c.rec.IncRetry("stream_connect") }))
	if err != nil {
		cancel()
		c.rec.ObserveStream(c.model, "connect_error", 0, time.Since(start))
		return nil, err
	}

	ch := make(chan StreamChunk, streamChanBuffer)
	s := NewStream(ch, cancel)
	go c.consumeStream(streamCtx, resp.Body, ch, start, s.abandoned)
	return s, nil
}

// openStream performs one connection attempt.
func (c *Client) openStream(ctx context.Context, genReq *GenerateRequest) (*http.Response, error) {
	body, err := marshalBody(genReq)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, apiVersion, c.model)
	req, err := c.newRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// consumeStream reads SSE frames off the wire and emits ordered chunks. It
// owns the response body. Frames may arrive split or coalesced arbitrarily by
// the transport; bytes are buffered until a complete frame is present, with a
// hard cap so a malformed unbounded frame cannot exhaust memory.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, ch chan<- StreamChunk, start time.Time, abandoned func() bool) {
	defer body.Close()

	var (
		pending  []byte
		seq      int
		terminal bool
	)
	defer func() {
		// A stream abandoned via Close ends silently; any other cancellation
		// must surface as a failure so partial text is never mistaken for a
		// complete response.
		if !terminal && ctx.Err() != nil && !abandoned() {
			select {
			case ch <- StreamChunk{Err: apierrors.NewCanceledError(ctx.Err()), SequenceIndex: seq}:
			default:
			}
		}
		close(ch)
	}()

	emit := func(chunk StreamChunk) bool {
		select {
		case ch <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err *apierrors.Error) {
		c.logger.Warn("stream failed after %d chunks: %v", seq, err)
		c.rec.ObserveStream(c.model, "error", seq, time.Since(start))
		if emit(StreamChunk{Err: err, SequenceIndex: seq}) {
			terminal = true
		}
	}
	// handleFrame emits the chunk(s) for one SSE frame and reports whether the
	// consumer should keep reading.
	handleFrame := func(frame []byte) (done, keepGoing bool) {
		payload, ok := ssePayload(frame)
		if !ok {
			return false, true // comment or keep-alive frame
		}
		var gr generateResponse
		if err := json.Unmarshal(payload, &gr); err != nil {
			fail(apierrors.NewErrorWithCause(apierrors.ErrorTypeProtocol, err, "malformed stream payload"))
			return false, false
		}
		final := gr.finishReason() != ""
		if !emit(StreamChunk{TextDelta: gr.textDelta(), SequenceIndex: seq, Final: final}) {
			return false, false
		}
		seq++
		if final {
			terminal = true
			c.rec.ObserveStream(c.model, "complete", seq, time.Since(start))
			return true, false
		}
		return false, true
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if len(pending) > c.maxStreamBuffer {
				fail(apierrors.NewError(apierrors.ErrorTypeProtocol,
					fmt.Sprintf("stream frame exceeds %d byte buffer limit", c.maxStreamBuffer)))
				return
			}
			for {
				frame, rest, ok := cutFrame(pending)
				if !ok {
					break
				}
				pending = rest
				done, keepGoing := handleFrame(frame)
				if done || !keepGoing {
					return
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				c.rec.ObserveStream(c.model, "canceled", seq, time.Since(start))
				return
			}
			if readErr == io.EOF {
				// A final frame may lack the trailing blank line.
				if frame := bytes.TrimSpace(pending); len(frame) > 0 {
					if done, _ := handleFrame(frame); done {
						return
					}
				}
				fail(apierrors.NewError(apierrors.ErrorTypeProtocol, "stream ended before completion signal"))
				return
			}
			fail(apierrors.Classify(readErr))
			return
		}
	}
}

// cutFrame splits off the first complete SSE frame (terminated by a blank
// line) from the pending buffer.
func cutFrame(pending []byte) (frame, rest []byte, ok bool) {
	sep := []byte("\n\n")
	idx := bytes.Index(pending, sep)
	if crlf := bytes.Index(pending, []byte("\r\n\r\n")); crlf >= 0 && (idx < 0 || crlf < idx) {
		return pending[:crlf], pending[crlf+4:], true
	}
	if idx < 0 {
		return nil, pending, false
	}
	return pending[:idx], pending[idx+2:], true
}

// ssePayload joins the data lines of one frame. Frames without data lines
// (comments, unknown fields) are skipped.
func ssePayload(frame []byte) ([]byte, bool) {
	var payload []byte
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		after, found := bytes.CutPrefix(line, []byte("data:"))
		if !found {
			continue
		}
		after = bytes.TrimPrefix(after, []byte(" "))
		if len(payload) > 0 {
			payload = append(payload, '\n')
		}
		payload = append(payload, after...)
	}
	return payload, len(payload) > 0
}
