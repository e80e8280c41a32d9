package screening

import (
	"fmt"

	"github.com/BTreeMap/MindCare/internal/interpret"
	"github.com/BTreeMap/MindCare/internal/questionnaire"
)

// Session is the mutable state of one screening conversation.
type Session struct {
	Phase       Phase                    `json:"phase"`
	K10Total    int                      `json:"k10_total"`
	Tier2Totals map[questionnaire.ID]int `json:"tier2_totals"`
}

// NewSession returns a session in the START phase with all totals at zero.
func NewSession() Session {
	totals := make(map[questionnaire.ID]int, 3)
	for _, id := range questionnaire.Tier2Order() {
		totals[id] = 0
	}
	return Session{Phase: startPhase(), Tier2Totals: totals}
}

// Restart discards all progress. The result equals NewSession().
func Restart(Session) Session {
	return NewSession()
}

// Cursor is the index of the next prompt in the active instrument.
func (s Session) Cursor() int {
	return s.Phase.Cursor
}

// ActiveTier2 returns the tier-2 instrument being administered, or "".
func (s Session) ActiveTier2() questionnaire.ID {
	if s.Phase.Kind != PhaseTier2 {
		return ""
	}
	return s.Phase.Instrument
}

// Scores returns the tier-2 totals for interpretation.
func (s Session) Scores() interpret.Scores {
	return interpret.Scores{
		PHQ9:  s.Tier2Totals[questionnaire.PHQ9],
		GAD7:  s.Tier2Totals[questionnaire.GAD7],
		PSS10: s.Tier2Totals[questionnaire.PSS10],
	}
}

// clone copies s so the caller's value is never mutated.
func (s Session) clone() Session {
	out := s
	out.Tier2Totals = make(map[questionnaire.ID]int, len(s.Tier2Totals))
	for k, v := range s.Tier2Totals {
		out.Tier2Totals[k] = v
	}
	return out
}

// Validate checks the structural invariants of a session, typically one
// loaded from storage.
func (s Session) Validate() error {
	if !IsValidPhaseKind(s.Phase.Kind) {
		return fmt.Errorf("%w: unknown phase %q", ErrCorruptSession, s.Phase.Kind)
	}
	if s.Phase.IsFixedChoice() {
		inst := questionnaire.Get(s.Phase.Instrument)
		if inst.ID == "" {
			return fmt.Errorf("%w: phase %s has no instrument", ErrCorruptSession, s.Phase)
		}
		if s.Phase.Kind == PhaseK10 && inst.ID != questionnaire.K10 {
			return fmt.Errorf("%w: K10 phase bound to %s", ErrCorruptSession, inst.ID)
		}
		if s.Phase.Kind == PhaseTier2 && inst.ID == questionnaire.K10 {
			return fmt.Errorf("%w: tier-2 phase bound to K10", ErrCorruptSession)
		}
		if s.Phase.Cursor < 0 || s.Phase.Cursor > inst.Len() {
			return fmt.Errorf("%w: cursor %d outside [0,%d]", ErrCorruptSession, s.Phase.Cursor, inst.Len())
		}
	} else if s.Phase.Cursor != 0 {
		return fmt.Errorf("%w: cursor %d set in phase %s", ErrCorruptSession, s.Phase.Cursor, s.Phase)
	}
	for id := range s.Tier2Totals {
		if !questionnaire.IsValidID(id) || id == questionnaire.K10 {
			return fmt.Errorf("%w: unexpected tier-2 total for %q", ErrCorruptSession, id)
		}
	}
	return nil
}
