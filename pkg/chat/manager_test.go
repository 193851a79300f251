package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenniscoach/pkg/apierrors"
	"tenniscoach/pkg/gemini"
)

// fakeGenerator serves pre-scripted chunk sequences and records requests.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []*gemini.GenerateRequest
	script   [][]gemini.StreamChunk
	calls    int
}

func (f *fakeGenerator) Model() string { return "test-model" }

func (f *fakeGenerator) StreamGenerateContent(_ context.Context, req *gemini.GenerateRequest) (*gemini.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++

	chunks := f.script[idx]
	ch := make(chan gemini.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return gemini.NewStream(ch, nil), nil
}

func (f *fakeGenerator) lastRequest() *gemini.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func scriptedChunks(deltas ...string) []gemini.StreamChunk {
	chunks := make([]gemini.StreamChunk, len(deltas))
	for i, d := range deltas {
		chunks[i] = gemini.StreamChunk{TextDelta: d, SequenceIndex: i}
	}
	chunks[len(chunks)-1].Final = true
	return chunks
}

func testVideo() *gemini.File {
	return &gemini.File{
		Name:     "files/demo",
		URI:      "https://files.example/demo",
		MIMEType: "video/mp4",
		State:    gemini.FileStateActive,
	}
}

func newTestSession(t *testing.T, gen Generator, maxTokens int) (*Manager, *Session) {
	t.Helper()
	m := NewManager(gen, NewMemoryStore(), maxTokens)
	s, err := m.StartSession(context.Background(), SessionParams{
		Video:             testVideo(),
		SystemInstruction: "You are a tennis coach.",
		PresetName:        "serve",
	})
	require.NoError(t, err)
	return m, s
}

func TestAsk_CommitsAfterTerminalSignal(t *testing.T) {
	gen := &fakeGenerator{script: [][]gemini.StreamChunk{
		scriptedChunks("Your toss ", "drifts left."),
	}}
	m, s := newTestSession(t, gen, 0)

	answer, err := s.Ask(context.Background(), "How is my toss?")
	require.NoError(t, err)
	assert.Equal(t, "Your toss drifts left.", answer)

	turns, err := m.store.Turns(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "How is my toss?", turns[0].Content)
	assert.Equal(t, RoleModel, turns[1].Role)
	assert.Equal(t, "Your toss drifts left.", turns[1].Content)
}

func TestAsk_FailedStreamCommitsNothing(t *testing.T) {
	gen := &fakeGenerator{script: [][]gemini.StreamChunk{{
		{TextDelta: "partial", SequenceIndex: 0},
		{Err: apierrors.NewError(apierrors.ErrorTypeTransient, "connection lost"), SequenceIndex: 1},
	}}}
	m, s := newTestSession(t, gen, 0)

	_, err := s.Ask(context.Background(), "How is my toss?")
	require.Error(t, err)

	turns, err := m.store.Turns(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, turns, "a failed exchange must leave history untouched")
	assert.Empty(t, s.Turns())
}

func TestAskStream_AbandonedStreamCommitsNothing(t *testing.T) {
	// A source that emits one chunk and then waits until abandoned.
	src := make(chan gemini.StreamChunk)
	done := make(chan struct{})
	go func() {
		src <- gemini.StreamChunk{TextDelta: "one", SequenceIndex: 0}
		<-done
		close(src)
	}()

	gen := &abandonableGenerator{stream: gemini.NewStream(src, func() { close(done) })}
	m := NewManager(gen, NewMemoryStore(), 0)
	s, err := m.StartSession(context.Background(), SessionParams{Video: testVideo()})
	require.NoError(t, err)

	stream, err := s.AskStream(context.Background(), "question")
	require.NoError(t, err)

	first := <-stream.Chunks()
	assert.Equal(t, "one", first.TextDelta)
	stream.Close()

	for range stream.Chunks() {
		// drain until the relay shuts down
	}
	turns, err := m.store.Turns(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

type abandonableGenerator struct {
	stream *gemini.Stream
}

func (g *abandonableGenerator) Model() string { return "test-model" }
func (g *abandonableGenerator) StreamGenerateContent(context.Context, *gemini.GenerateRequest) (*gemini.Stream, error) {
	return g.stream, nil
}

func TestAskStream_RequestShape(t *testing.T) {
	gen := &fakeGenerator{script: [][]gemini.StreamChunk{
		scriptedChunks("first answer"),
		scriptedChunks("second answer"),
	}}
	_, s := newTestSession(t, gen, 0)

	_, err := s.Ask(context.Background(), "first question")
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "second question")
	require.NoError(t, err)

	req := gen.lastRequest()
	require.NotNil(t, req.SystemInstruction)
	assert.Equal(t, "You are a tennis coach.", req.SystemInstruction.Parts[0].Text)

	require.Len(t, req.Contents, 3)

	// Video rides on the earliest user turn only.
	first := req.Contents[0]
	assert.Equal(t, gemini.RoleUser, first.Role)
	require.Len(t, first.Parts, 2)
	require.NotNil(t, first.Parts[0].FileData)
	assert.Equal(t, "https://files.example/demo", first.Parts[0].FileData.FileURI)
	assert.Equal(t, "first question", first.Parts[1].Text)

	assert.Equal(t, gemini.RoleModel, req.Contents[1].Role)
	assert.Equal(t, "first answer", req.Contents[1].Parts[0].Text)

	last := req.Contents[2]
	assert.Equal(t, "second question", last.Parts[0].Text)
	for _, p := range last.Parts {
		assert.Nil(t, p.FileData, "later turns must not re-attach the video")
	}
}

func TestAskStream_ContextBudgetElidesOldestExchanges(t *testing.T) {
	gen := &fakeGenerator{script: [][]gemini.StreamChunk{
		scriptedChunks(strings.Repeat("answer one ", 30)),
		scriptedChunks(strings.Repeat("answer two ", 30)),
		scriptedChunks("short"),
	}}
	// Nil token counter estimates len/4; a tight budget forces elision.
	_, s := newTestSession(t, gen, 120)

	_, err := s.Ask(context.Background(), strings.Repeat("question one ", 20))
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), strings.Repeat("question two ", 20))
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "final question")
	require.NoError(t, err)

	req := gen.lastRequest()
	var texts []string
	for _, content := range req.Contents {
		for _, p := range content.Parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
	}
	joined := strings.Join(texts, "\n")
	assert.NotContains(t, joined, "question one", "oldest exchange must be elided")
	assert.Contains(t, joined, "final question")

	// The video moves to the earliest user turn that survived trimming.
	require.NotEmpty(t, req.Contents)
	assert.NotNil(t, req.Contents[0].Parts[0].FileData)

	// Committed history is never deleted by trimming.
	assert.Len(t, s.Turns(), 6)
}

func TestResumeSession_RestoresHistory(t *testing.T) {
	gen := &fakeGenerator{script: [][]gemini.StreamChunk{scriptedChunks("answer")}}
	m, s := newTestSession(t, gen, 0)

	_, err := s.Ask(context.Background(), "question")
	require.NoError(t, err)

	resumed, err := m.ResumeSession(context.Background(), s.ID, "You are a tennis coach.", nil)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resumed.ID)
	assert.Equal(t, "serve", resumed.Preset())
	require.Len(t, resumed.Turns(), 2)

	_, err = m.ResumeSession(context.Background(), "missing-id", "", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
