package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenniscoach/pkg/gemini"
	"tenniscoach/pkg/logx"
	"tenniscoach/pkg/metrics"
	"tenniscoach/pkg/utils"
)

// commitTimeout bounds the history write that follows a completed exchange.
// The write uses a fresh context: once the terminal signal arrived, the
// exchange is committed even if the caller's context died meanwhile.
const commitTimeout = 10 * time.Second

// Generator produces streamed model responses. *gemini.Client satisfies it.
type Generator interface {
	StreamGenerateContent(ctx context.Context, req *gemini.GenerateRequest) (*gemini.Stream, error)
	Model() string
}

// Manager creates and resumes coaching sessions.
type Manager struct {
	gen              Generator
	store            Store
	counter          *utils.TokenCounter
	maxContextTokens int
	redactor         *Redactor
	rec              metrics.Recorder
	logger           *logx.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.rec = rec }
}

// WithTokenCounter sets the counter used for context budgeting. A nil counter
// falls back to character-based estimation.
func WithTokenCounter(tc *utils.TokenCounter) ManagerOption {
	return func(m *Manager) { m.counter = tc }
}

// WithRedactor overrides the credential redactor. Pass nil to disable
// redaction.
func WithRedactor(r *Redactor) ManagerOption {
	return func(m *Manager) { m.redactor = r }
}

// NewManager builds a session manager. maxContextTokens bounds the estimated
// prompt size; oldest exchanges are dropped from requests once the budget is
// exceeded (committed history is never deleted, only elided from prompts).
func NewManager(gen Generator, store Store, maxContextTokens int, opts ...ManagerOption) *Manager {
	m := &Manager{
		gen:              gen,
		store:            store,
		maxContextTokens: maxContextTokens,
		redactor:         NewRedactor(),
		rec:              metrics.NopRecorder{},
		logger:           logx.NewLogger("chat"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionParams describes a new session.
type SessionParams struct {
	Video             *gemini.File
	SystemInstruction string
	PresetName        string
	GenerationConfig  *gemini.GenerationConfig
}

// Session is one coaching conversation over a single uploaded video. A
// session supports one in-flight exchange at a time.
type Session struct {
	ID string

	m      *Manager
	video  gemini.FileData
	system string
	preset string
	genCfg *gemini.GenerationConfig

	mu    sync.Mutex
	turns []Turn
}

// StartSession creates and persists a new session around an ACTIVE video.
func (m *Manager) StartSession(ctx context.Context, p SessionParams) (*Session, error) {
	s := &Session{
		ID:     uuid.NewString(),
		m:      m,
		video:  gemini.FileData{MIMEType: p.Video.MIMEType, FileURI: p.Video.URI},
		system: p.SystemInstruction,
		preset: p.PresetName,
		genCfg: p.GenerationConfig,
	}
	rec := SessionRecord{
		ID:        s.ID,
		VideoURI:  p.Video.URI,
		VideoMIME: p.Video.MIMEType,
		Model:     m.gen.Model(),
		Preset:    p.PresetName,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateSession(ctx, rec); err != nil {
		return nil, err
	}
	m.logger.Info("session %s started (video %s, preset %s)", s.ID, p.Video.URI, p.PresetName)
	return s, nil
}

// ResumeSession rebuilds a session from persisted history. The system
// instruction and generation config are supplied by the caller because only
// the preset name is persisted.
func (m *Manager) ResumeSession(ctx context.Context, id, systemInstruction string, genCfg *gemini.GenerationConfig) (*Session, error) {
	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	turns, err := m.store.Turns(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:     rec.ID,
		m:      m,
		video:  gemini.FileData{MIMEType: rec.VideoMIME, FileURI: rec.VideoURI},
		system: systemInstruction,
		preset: rec.Preset,
		genCfg: genCfg,
		turns:  turns,
	}, nil
}

// Preset returns the preset name the session was started with.
func (s *Session) Preset() string { return s.preset }

// Turns returns the committed history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Ask sends a question and blocks for the full response text.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	stream, err := s.AskStream(ctx, question)
	if err != nil {
		return "", err
	}
	return stream.Text()
}

// AskStream sends a question and returns the response stream. The exchange is
// committed to history only after the terminal completion chunk; a stream
// that errors out or is abandoned leaves history untouched, so the failed
// question can simply be asked again.
func (s *Session) AskStream(ctx context.Context, question string) (*gemini.Stream, error) {
	if redacted, hit := s.m.redactor.Redact(question); hit {
		s.m.logger.Warn("session %s: credential-shaped content removed from question", s.ID)
		question = redacted
	}

	req := s.buildRequest(question)
	src, err := s.m.gen.StreamGenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan gemini.StreamChunk, 16)
	go s.relay(ctx, question, src, out)
	return gemini.NewStream(out, src.Close), nil
}

// relay forwards chunks to the caller while accumulating the response, and
// commits the exchange once the terminal signal is seen.
func (s *Session) relay(ctx context.Context, question string, src *gemini.Stream, out chan<- gemini.StreamChunk) {
	defer close(out)

	var full strings.Builder
	completed := false
	for chunk := range src.Chunks() {
		if chunk.Err == nil {
			full.WriteString(chunk.TextDelta)
			if chunk.Final {
				completed = true
			}
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			src.Close()
			return
		}
	}
	if !completed {
		return
	}
	s.commit(question, full.String())
}

func (s *Session) commit(question, answer string) {
	now := time.Now().UTC()
	userTurn := Turn{Role: RoleUser, Content: question, CreatedAt: now}
	modelTurn := Turn{Role: RoleModel, Content: answer, CreatedAt: now}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := s.m.store.AppendTurns(ctx, s.ID, userTurn, modelTurn); err != nil {
		s.m.logger.Error("session %s: failed to persist exchange: %v", s.ID, err)
	}

	s.mu.Lock()
	s.turns = append(s.turns, userTurn, modelTurn)
	s.mu.Unlock()

	s.m.rec.AddTokens(s.ID, "prompt", s.m.counter.CountTokens(question))
	s.m.rec.AddTokens(s.ID, "completion", s.m.counter.CountTokens(answer))
}

// buildRequest assembles the full stateless request: system instruction, the
// video attached to the earliest included user turn, prior exchanges that fit
// the token budget, and the new question.
func (s *Session) buildRequest(question string) *gemini.GenerateRequest {
	history := s.trimmedHistory(question)

	contents := make([]gemini.Content, 0, len(history)+1)
	videoAttached := false
	attach := func(text string) gemini.Content {
		if videoAttached {
			return gemini.UserContent(gemini.TextPart(text))
		}
		videoAttached = true
		return gemini.UserContent(gemini.Part{FileData: &gemini.FileData{MIMEType: s.video.MIMEType, FileURI: s.video.FileURI}}, gemini.TextPart(text))
	}

	for _, turn := range history {
		if turn.Role == RoleUser {
			contents = append(contents, attach(turn.Content))
		} else {
			contents = append(contents, gemini.ModelContent(turn.Content))
		}
	}
	contents = append(contents, attach(question))

	return &gemini.GenerateRequest{
		Contents:          contents,
		SystemInstruction: gemini.SystemInstruction(s.system),
		GenerationConfig:  s.genCfg,
	}
}

// trimmedHistory drops the oldest exchanges until the estimated prompt fits
// the context budget. The new question and system instruction always count.
func (s *Session) trimmedHistory(question string) []Turn {
	s.mu.Lock()
	history := make([]Turn, len(s.turns))
	copy(history, s.turns)
	s.mu.Unlock()

	if s.m.maxContextTokens <= 0 {
		return history
	}

	fixed := s.m.counter.CountTokens(s.system) + s.m.counter.CountTokens(question)
	total := fixed
	for _, turn := range history {
		total += s.m.counter.CountTokens(turn.Content)
	}

	dropped := 0
	for total > s.m.maxContextTokens && len(history) >= 2 {
		// Exchanges are user/model pairs; drop the oldest pair together so
		// the remaining history never starts with a model turn.
		total -= s.m.counter.CountTokens(history[0].Content)
		total -= s.m.counter.CountTokens(history[1].Content)
		history = history[2:]
		dropped += 2
	}
	if dropped > 0 {
		s.m.logger.Debug("session %s: elided %d oldest turns to fit %d token budget", s.ID, dropped, s.m.maxContextTokens)
	}
	return history
}
