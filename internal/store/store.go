// Package store provides storage backends for MindCare.
//
// It persists screening sessions, transcripts, profiles and delivery receipts.
// Backends: in-memory, SQLite, PostgreSQL and Redis.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/MindCare/internal/models"
)

// Store is the persistence interface used by the session manager and the
// messaging layer. Getters return (nil, nil) when a record does not exist.
type Store interface {
	SaveSession(rec models.SessionRecord) error
	GetSession(id string) (*models.SessionRecord, error)
	GetLatestSessionByUser(userID string) (*models.SessionRecord, error)
	ListSessions() ([]models.SessionRecord, error)
	DeleteSession(id string) error
	DeleteSessionsUpdatedBefore(cutoff time.Time) (int, error)

	AppendTranscript(entries ...models.TranscriptEntry) error
	GetTranscript(sessionID string) ([]models.TranscriptEntry, error)

	SaveProfile(p models.Profile) error
	GetProfile(userID string) (*models.Profile, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	Close() error
}

// InMemoryStore is a simple in-memory store, used by default and in tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.SessionRecord
	transcripts map[string][]models.TranscriptEntry
	profiles    map[string]models.Profile
	receipts    []models.Receipt
	responses   []models.Response
	inbound     map[string]DedupRecord
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]models.SessionRecord),
		transcripts: make(map[string][]models.TranscriptEntry),
		profiles:    make(map[string]models.Profile),
		inbound:     make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) SaveSession(rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *InMemoryStore) GetLatestSessionByUser(userID string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.SessionRecord
	for _, rec := range s.sessions {
		if rec.UserID != userID {
			continue
		}
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			r := cloneRecord(rec)
			latest = &r
		}
	}
	return latest, nil
}

func (s *InMemoryStore) ListSessions() ([]models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.transcripts, id)
	return nil
}

func (s *InMemoryStore) DeleteSessionsUpdatedBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.sessions {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.transcripts, id)
			n++
		}
	}
	for id, rec := range s.inbound {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.inbound, id)
		}
	}
	return n, nil
}

func (s *InMemoryStore) AppendTranscript(entries ...models.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.transcripts[e.SessionID] = append(s.transcripts[e.SessionID], e)
	}
	return nil
}

func (s *InMemoryStore) GetTranscript(sessionID string) ([]models.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.transcripts[sessionID]
	out := make([]models.TranscriptEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *InMemoryStore) SaveProfile(p models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *InMemoryStore) GetProfile(userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Response, len(s.responses))
	copy(out, s.responses)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
