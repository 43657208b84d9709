package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/howard36/3d-chess/internal/protocol"
)

var ErrUnknownSession = errors.New("archive: unknown session")

// memrepo is the in-memory repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	sessions map[string]protocol.Color
	moves    map[string][]MoveRecord
}

func NewMemory() Repository {
	return &memrepo{
		sessions: make(map[string]protocol.Color),
		moves:    make(map[string][]MoveRecord),
	}
}

func (m *memrepo) RecordSession(ctx context.Context, sessionID string, creatorColor protocol.Color) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return nil
	}
	m.sessions[sessionID] = creatorColor
	return nil
}

func (m *memrepo) RecordMove(ctx context.Context, sessionID string, mv MoveRecord) error {
	if mv.PlayedAt.IsZero() {
		mv.PlayedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; !exists {
		return ErrUnknownSession
	}
	m.moves[sessionID] = append(m.moves[sessionID], mv)
	return nil
}

func (m *memrepo) SessionMoves(ctx context.Context, sessionID string) ([]MoveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.moves[sessionID]
	out := make([]MoveRecord, len(list))
	copy(out, list)
	return out, nil
}

func (m *memrepo) Close() error { return nil }
