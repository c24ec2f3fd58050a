package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/markov-rps/internal/model"
)

// mockSessionStore round-trips sessions through JSON like the Redis store.
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	ttls     map[string]time.Duration
	saveErr  error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		sessions: make(map[string][]byte),
		ttls:     make(map[string]time.Duration),
	}
}

func (m *mockSessionStore) SaveSession(_ context.Context, s *model.Session, ttl time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = data
	m.ttls[s.ID] = ttl
	return nil
}

func (m *mockSessionStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *mockSessionStore) ActiveSessionCount(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, data := range m.sessions {
		var s model.Session
		if json.Unmarshal(data, &s) == nil && s.Status == model.SessionActive {
			n++
		}
	}
	return n, nil
}

type mockMatchRepo struct {
	mu      sync.Mutex
	matches []model.Match
	cutoffs []time.Time
	saveErr error
}

func (m *mockMatchRepo) SaveMatch(_ context.Context, match *model.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	match.ID = fmt.Sprintf("match-%d", len(m.matches)+1)
	match.CreatedAt = time.Now()
	m.matches = append(m.matches, *match)
	return nil
}

func (m *mockMatchRepo) FindByID(_ context.Context, id string) (*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.matches {
		if m.matches[i].ID == id {
			cp := m.matches[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockMatchRepo) ListRecent(_ context.Context, limit int) ([]model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Match
	for i := len(m.matches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.matches[i])
	}
	return out, nil
}

func (m *mockMatchRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

type recordedEvent struct {
	sessionID string
	eventType string
	data      any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) BroadcastSessionEvent(sessionID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{sessionID, eventType, data})
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.eventType)
	}
	return out
}
