package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/questionnaire"
	"github.com/BTreeMap/MindCare/internal/screening"
	"github.com/BTreeMap/MindCare/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *store.InMemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewInMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	n := 0
	m := NewManager(st,
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }),
	)
	return m, st, clock
}

func startToK10(t *testing.T, m *Manager, userID string) string {
	t.Helper()
	ctx := context.Background()
	turn, err := m.Start(ctx, userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, text := range []string{"I feel so anxious", "yes"} {
		if _, err := m.SubmitText(ctx, turn.SessionID, text); err != nil {
			t.Fatalf("SubmitText(%q): %v", text, err)
		}
	}
	return turn.SessionID
}

func TestManager_StartPersistsGreeting(t *testing.T) {
	m, st, _ := newTestManager(t)
	turn, err := m.Start(context.Background(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if turn.SessionID != "s1" || turn.Phase.Kind != screening.PhaseGreeting {
		t.Errorf("unexpected turn %+v", turn)
	}
	rec, _ := st.GetSession("s1")
	if rec == nil || rec.Session.Phase.Kind != screening.PhaseGreeting {
		t.Fatalf("session not persisted: %+v", rec)
	}
	tr, _ := st.GetTranscript("s1")
	if len(tr) != 1 || tr[0].Speaker != models.SpeakerSystem || !strings.HasPrefix(tr[0].Text, "Hello!") {
		t.Errorf("unexpected transcript %+v", tr)
	}
}

func TestManager_PersonalisedGreeting(t *testing.T) {
	m, st, _ := newTestManager(t)
	if err := st.SaveProfile(models.Profile{UserID: "u1", DisplayName: "Avery"}); err != nil {
		t.Fatal(err)
	}
	turn, err := m.Start(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(turn.Utterances[0], "Hello, Avery!") {
		t.Errorf("greeting = %q", turn.Utterances[0])
	}
}

type failingProfiles struct{}

func (failingProfiles) GetProfile(string) (*models.Profile, error) {
	return nil, errors.New("directory offline")
}

func TestManager_ProfileFailureFallsBackToGenericGreeting(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewManager(st, WithProfileLookup(failingProfiles{}))
	turn, err := m.Start(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(turn.Utterances[0], "Hello! ") {
		t.Errorf("greeting = %q", turn.Utterances[0])
	}
}

func TestManager_ChoiceTranscriptAndPrompt(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	id := startToK10(t, m, "")

	p, ok, err := m.Prompt(ctx, id)
	if err != nil || !ok || p.Index != 0 || p.Instrument != questionnaire.K10 {
		t.Fatalf("Prompt = %+v, %v, %v", p, ok, err)
	}

	turn, err := m.SubmitChoice(ctx, id, 3)
	if err != nil {
		t.Fatalf("SubmitChoice: %v", err)
	}
	if turn.Prompt == nil || turn.Prompt.Index != 1 {
		t.Errorf("expected next prompt, got %+v", turn.Prompt)
	}

	tr, _ := st.GetTranscript(id)
	var sawRated, sawQuestion bool
	for _, e := range tr {
		if e.Speaker == models.SpeakerUser && e.Text == "Rated: 3 (Some)" {
			sawRated = true
		}
		if e.Speaker == models.SpeakerSystem && e.Text == "Question: "+turn.Prompt.Text {
			sawQuestion = true
		}
	}
	if !sawRated || !sawQuestion {
		t.Errorf("transcript missing rating or question: %+v", tr)
	}
}

func TestManager_ErrorsLeaveSessionUntouched(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	id := startToK10(t, m, "")
	before, _ := st.GetSession(id)

	if _, err := m.SubmitChoice(ctx, id, 9); !errors.Is(err, screening.ErrInvalidChoice) {
		t.Errorf("expected ErrInvalidChoice, got %v", err)
	}
	if _, err := m.SubmitText(ctx, id, "fine thanks"); !errors.Is(err, screening.ErrInvalidPhase) {
		t.Errorf("expected ErrInvalidPhase, got %v", err)
	}
	if _, err := m.Results(ctx, id); !errors.Is(err, screening.ErrInvalidPhase) {
		t.Errorf("expected ErrInvalidPhase, got %v", err)
	}
	after, _ := st.GetSession(id)
	if after.Session.Phase != before.Session.Phase || after.Session.K10Total != before.Session.K10Total {
		t.Errorf("session changed after rejected operations: %+v -> %+v", before.Session, after.Session)
	}
}

func TestManager_UnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.SubmitText(ctx, "nope", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SubmitText: %v", err)
	}
	if _, err := m.Transcript(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Transcript: %v", err)
	}
	if _, err := m.Restart(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Restart: %v", err)
	}
}

func TestManager_CancelledContext(t *testing.T) {
	m, st, _ := newTestManager(t)
	id := startToK10(t, m, "")
	before, _ := st.GetTranscript(id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Get(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Get: %v", err)
	}
	if _, _, err := m.Prompt(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Prompt: %v", err)
	}
	if _, err := m.Results(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Results: %v", err)
	}
	if _, err := m.Transcript(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Transcript: %v", err)
	}
	if _, err := m.SubmitChoice(ctx, id, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("SubmitChoice: %v", err)
	}

	rec, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Session.Phase.Cursor != 0 || rec.Session.K10Total != 0 {
		t.Errorf("cancelled choice was applied: %+v", rec.Session)
	}
	if after, _ := st.GetTranscript(id); len(after) != len(before) {
		t.Errorf("transcript grew from %d to %d entries", len(before), len(after))
	}
}

func TestManager_FullRunToResults(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	id := startToK10(t, m, "")

	answer := func(v, times int) {
		for i := 0; i < times; i++ {
			if _, err := m.SubmitChoice(ctx, id, v); err != nil {
				t.Fatalf("SubmitChoice(%d): %v", v, err)
			}
		}
	}
	answer(3, 10) // K10 30
	answer(1, 9)  // PHQ9 9
	answer(2, 7)  // GAD7 14
	answer(1, 10) // PSS10 10

	r, err := m.Results(ctx, id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if r.Interpretation.Dominant != "Anxiety Symptoms" {
		t.Errorf("dominant = %q, flagged %v", r.Interpretation.Dominant, r.Interpretation.Flagged)
	}
}

func TestManager_QuitAndRestart(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	id := startToK10(t, m, "")

	turn, err := m.Quit(ctx, id)
	if err != nil || turn.Phase.Kind != screening.PhaseEnd {
		t.Fatalf("Quit = %+v, %v", turn, err)
	}
	if _, err := m.Quit(ctx, id); !errors.Is(err, screening.ErrInvalidPhase) {
		t.Errorf("second Quit: %v", err)
	}

	turn, err = m.Restart(ctx, id)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if turn.SessionID != id || turn.Phase.Kind != screening.PhaseGreeting {
		t.Errorf("unexpected restart turn %+v", turn)
	}
	rec, _ := m.Get(ctx, id)
	if rec.Session.K10Total != 0 {
		t.Errorf("restart kept totals: %+v", rec.Session)
	}
}

func TestManager_PurgeExpired(t *testing.T) {
	m, st, clock := newTestManager(t)
	ctx := context.Background()
	old, _ := m.Start(ctx, "")
	clock.Advance(2 * time.Hour)
	fresh, _ := m.Start(ctx, "")

	n, err := m.PurgeExpired(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if rec, _ := st.GetSession(old.SessionID); rec != nil {
		t.Error("expired session survived")
	}
	if rec, _ := st.GetSession(fresh.SessionID); rec == nil {
		t.Error("fresh session purged")
	}
}

func TestManager_ConcurrentChoicesAreSerialised(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	id := startToK10(t, m, "")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SubmitChoice(ctx, id, 1)
		}()
	}
	wg.Wait()
	rec, _ := m.Get(ctx, id)
	if rec.Session.K10Total != 5 || rec.Session.Cursor() != 5 {
		t.Errorf("lost update: total %d cursor %d", rec.Session.K10Total, rec.Session.Cursor())
	}
}
