// Package flow manages persisted screening sessions.
//
// A Manager loads a session from the store, applies one screening
// operation, saves the result and appends the exchange to the transcript.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/questionnaire"
	"github.com/BTreeMap/MindCare/internal/screening"
	"github.com/BTreeMap/MindCare/internal/store"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ProfileLookup resolves a user's profile for greeting personalisation.
type ProfileLookup interface {
	GetProfile(userID string) (*models.Profile, error)
}

// Turn is the outcome of one operation on a session.
type Turn struct {
	SessionID  string            `json:"session_id"`
	Phase      screening.Phase   `json:"phase"`
	Utterances []string          `json:"utterances"`
	Prompt     *screening.Prompt `json:"prompt,omitempty"`
}

// Manager applies screening operations to stored sessions. Turns are
// serialised so a session is never mutated by two requests at once.
type Manager struct {
	mu       sync.Mutex
	store    store.Store
	engine   *screening.Engine
	profiles ProfileLookup
	now      func() time.Time
	newID    func() string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEngine overrides the screening engine.
func WithEngine(e *screening.Engine) ManagerOption {
	return func(m *Manager) { m.engine = e }
}

// WithProfileLookup overrides where display names come from. Defaults to the store.
func WithProfileLookup(p ProfileLookup) ManagerOption {
	return func(m *Manager) { m.profiles = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// NewManager creates a Manager backed by st.
func NewManager(st store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    st,
		engine:   screening.NewEngine(nil),
		profiles: st,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	slog.Debug("Manager created")
	return m
}

// Start creates a session for userID (which may be empty) and greets the user.
func (m *Manager) Start(ctx context.Context, userID string) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start(ctx, userID)
}

func (m *Manager) start(ctx context.Context, userID string) (Turn, error) {
	now := m.now()
	rec := models.SessionRecord{
		ID:        m.newID(),
		UserID:    userID,
		Session:   screening.NewSession(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	next, utterances, err := m.engine.Begin(rec.Session, m.displayName(userID))
	if err != nil {
		return Turn{}, err
	}
	slog.Info("Manager.Start: session created", "sessionID", rec.ID, "userID", userID)
	return m.commit(ctx, rec, next, "", utterances)
}

// SubmitText applies free text to a session.
func (m *Manager) SubmitText(ctx context.Context, id, text string) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitText(ctx, id, text)
}

func (m *Manager) submitText(ctx context.Context, id, text string) (Turn, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	next, utterances, err := m.engine.SubmitFreeText(rec.Session, text)
	if err != nil {
		slog.Debug("Manager.SubmitText: rejected", "sessionID", id, "phase", rec.Session.Phase.String(), "error", err)
		return Turn{}, err
	}
	return m.commit(ctx, *rec, next, text, utterances)
}

// SubmitChoice answers the current prompt of a session.
func (m *Manager) SubmitChoice(ctx context.Context, id string, value int) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitChoice(ctx, id, value)
}

func (m *Manager) submitChoice(ctx context.Context, id string, value int) (Turn, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	next, utterances, err := m.engine.SubmitChoice(rec.Session, value)
	if err != nil {
		slog.Debug("Manager.SubmitChoice: rejected", "sessionID", id, "value", value, "error", err)
		return Turn{}, err
	}
	label := questionnaire.Get(rec.Session.Phase.Instrument).Label(value)
	return m.commit(ctx, *rec, next, fmt.Sprintf("Rated: %d (%s)", value, label), utterances)
}

// Quit ends a session early.
func (m *Manager) Quit(ctx context.Context, id string) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.load(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	next, utterances, err := m.engine.Quit(rec.Session)
	if err != nil {
		return Turn{}, err
	}
	return m.commit(ctx, *rec, next, "Quit", utterances)
}

// Restart discards a session's progress and greets the user again. The
// transcript is kept.
func (m *Manager) Restart(ctx context.Context, id string) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restart(ctx, id)
}

func (m *Manager) restart(ctx context.Context, id string) (Turn, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	fresh := screening.Restart(rec.Session)
	next, utterances, err := m.engine.Begin(fresh, m.displayName(rec.UserID))
	if err != nil {
		return Turn{}, err
	}
	slog.Info("Manager.Restart: session reset", "sessionID", id, "from", rec.Session.Phase.String())
	return m.commit(ctx, *rec, next, "Restart", utterances)
}

// Get returns the stored record for a session.
func (m *Manager) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	return m.load(ctx, id)
}

// Prompt returns the question awaiting an answer, if any.
func (m *Manager) Prompt(ctx context.Context, id string) (screening.Prompt, bool, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return screening.Prompt{}, false, err
	}
	p, ok := screening.CurrentPrompt(rec.Session)
	return p, ok, nil
}

// Results returns the interpreted scores of a completed session.
func (m *Manager) Results(ctx context.Context, id string) (screening.Report, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return screening.Report{}, err
	}
	return screening.Results(rec.Session)
}

// Transcript returns the conversation log of a session.
func (m *Manager) Transcript(ctx context.Context, id string) ([]models.TranscriptEntry, error) {
	if _, err := m.load(ctx, id); err != nil {
		return nil, err
	}
	return m.store.GetTranscript(id)
}

// PurgeExpired deletes sessions not updated within ttl.
func (m *Manager) PurgeExpired(ctx context.Context, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-ttl)
	n, err := m.store.DeleteSessionsUpdatedBefore(cutoff)
	if err != nil {
		slog.Error("Manager.PurgeExpired: delete failed", "error", err)
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if n > 0 {
		slog.Info("Manager.PurgeExpired: removed idle sessions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// load reads a session. The store API is synchronous, so ctx is checked
// before the read and a cancelled request never touches the store.
func (m *Manager) load(ctx context.Context, id string) (*models.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := m.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := rec.Session.Validate(); err != nil {
		slog.Error("Manager.load: stored session is inconsistent", "sessionID", id, "error", err)
		return nil, err
	}
	return rec, nil
}

func (m *Manager) displayName(userID string) string {
	if userID == "" || m.profiles == nil {
		return ""
	}
	p, err := m.profiles.GetProfile(userID)
	if err != nil {
		slog.Warn("Manager.displayName: profile lookup failed", "userID", userID, "error", err)
		return ""
	}
	if p == nil {
		return ""
	}
	return p.DisplayName
}

// commit saves next and appends the user input, the system utterances and,
// when a new question is pending, that question to the transcript.
func (m *Manager) commit(ctx context.Context, rec models.SessionRecord, next screening.Session, userText string, utterances []string) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	prev := rec.Session
	now := m.now()
	rec.Session = next
	rec.UpdatedAt = now
	if err := m.store.SaveSession(rec); err != nil {
		return Turn{}, fmt.Errorf("save session %s: %w", rec.ID, err)
	}

	entries := make([]models.TranscriptEntry, 0, len(utterances)+2)
	if userText != "" {
		entries = append(entries, models.TranscriptEntry{SessionID: rec.ID, Speaker: models.SpeakerUser, Text: userText, CreatedAt: now})
	}
	for _, u := range utterances {
		entries = append(entries, models.TranscriptEntry{SessionID: rec.ID, Speaker: models.SpeakerSystem, Text: u, CreatedAt: now})
	}
	turn := Turn{SessionID: rec.ID, Phase: next.Phase, Utterances: utterances}
	if p, ok := screening.CurrentPrompt(next); ok {
		turn.Prompt = &p
		if prev.Phase != next.Phase {
			entries = append(entries, models.TranscriptEntry{SessionID: rec.ID, Speaker: models.SpeakerSystem, Text: "Question: " + p.Text, CreatedAt: now})
		}
	}
	if turn.Utterances == nil {
		turn.Utterances = []string{}
	}
	if err := m.store.AppendTranscript(entries...); err != nil {
		// The session is already saved; the transcript is observational only.
		slog.Warn("Manager.commit: transcript append failed", "sessionID", rec.ID, "error", err)
	}
	slog.Debug("Manager.commit: turn applied", "sessionID", rec.ID, "from", prev.Phase.String(), "to", next.Phase.String())
	return turn, nil
}
