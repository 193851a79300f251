// Package chat manages multi-turn coaching conversations over an uploaded
// video. A session accumulates alternating user and model turns; turns are
// committed to history only after the model's terminal completion signal, so
// a failed or abandoned generation never corrupts the conversation state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors shared by the store implementations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

func errSessionNotFound(id string) error { return fmt.Errorf("%w: %s", ErrSessionNotFound, id) }
func errSessionExists(id string) error   { return fmt.Errorf("%w: %s", ErrSessionExists, id) }

// Turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one committed conversation entry.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// SessionRecord is the durable identity of one coaching session.
type SessionRecord struct {
	ID        string
	VideoURI  string
	VideoMIME string
	Model     string
	Preset    string
	CreatedAt time.Time
}

// Store persists sessions and their committed turns.
type Store interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	// AppendTurns commits turns atomically, in order.
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	Close() error
}

// MemoryStore keeps sessions in process memory. Used when no history database
// is configured. Safe for concurrent use; history commits run on session
// goroutines.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	turns    map[string][]Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]SessionRecord),
		turns:    make(map[string][]Turn),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[rec.ID]; exists {
		return errSessionExists(rec.ID)
	}
	m.sessions[rec.ID] = rec
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, errSessionNotFound(id)
	}
	return rec, nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) AppendTurns(_ context.Context, sessionID string, turns ...Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return errSessionNotFound(sessionID)
	}
	m.turns[sessionID] = append(m.turns[sessionID], turns...)
	return nil
}

func (m *MemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
