package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/MindCare/internal/screening"
)

// ChoiceReprompt is sent when free text arrives while a numeric answer is expected.
const ChoiceReprompt = "Please reply with the number of the option that fits best, or say \"stop\" to end the screening."

// restartWords start a fresh screening from any phase.
var restartWords = map[string]bool{
	"restart":    true,
	"start over": true,
	"new":        true,
	"begin":      true,
}

// HandleMessage routes one chat message from userID to that user's latest
// session and returns the reply lines. A user without an active session
// gets a new one. In fixed-choice phases a number is an answer; any other
// text is treated as free text so exit words still end the screening.
func (m *Manager) HandleMessage(ctx context.Context, userID, text string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	text = strings.TrimSpace(text)
	rec, err := m.store.GetLatestSessionByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("lookup session for %s: %w", userID, err)
	}

	var turn Turn
	switch {
	case rec == nil || !rec.Session.Phase.IsActive():
		slog.Debug("Manager.HandleMessage: starting new session", "userID", userID, "hadSession", rec != nil)
		turn, err = m.start(ctx, userID)
	case restartWords[strings.ToLower(text)]:
		turn, err = m.restart(ctx, rec.ID)
	case rec.Session.Phase.IsFixedChoice():
		if v, convErr := strconv.Atoi(text); convErr == nil {
			turn, err = m.submitChoice(ctx, rec.ID, v)
		} else {
			turn, err = m.submitText(ctx, rec.ID, text)
		}
	default:
		turn, err = m.submitText(ctx, rec.ID, text)
	}

	if err != nil {
		if errors.Is(err, screening.ErrInvalidPhase) || errors.Is(err, screening.ErrInvalidChoice) {
			return m.reprompt(rec.Session), nil
		}
		slog.Error("Manager.HandleMessage: turn failed", "userID", userID, "error", err)
		return nil, err
	}
	return m.render(ctx, turn)
}

func (m *Manager) reprompt(s screening.Session) []string {
	lines := []string{ChoiceReprompt}
	if p, ok := screening.CurrentPrompt(s); ok {
		lines = append(lines, RenderPrompt(p))
	}
	return lines
}

// render flattens a turn into chat lines, appending the pending question or
// the results summary.
func (m *Manager) render(ctx context.Context, turn Turn) ([]string, error) {
	lines := append([]string{}, turn.Utterances...)
	if turn.Prompt != nil {
		lines = append(lines, RenderPrompt(*turn.Prompt))
	}
	if turn.Phase.Kind == screening.PhaseResults {
		rec, err := m.load(ctx, turn.SessionID)
		if err != nil {
			return nil, err
		}
		report, err := screening.Results(rec.Session)
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.Join(report.Summary, "\n"))
	}
	return lines, nil
}

// RenderPrompt formats a question with its numbered options for chat.
func RenderPrompt(p screening.Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d/%d)\n%s", p.Title, p.Index+1, p.Total, p.Text)
	for _, o := range p.Options {
		fmt.Fprintf(&b, "\n%d - %s", o.Value, o.Label)
	}
	return b.String()
}
