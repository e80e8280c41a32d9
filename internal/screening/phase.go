// Package screening implements the conversational screening state machine.
//
// A Session is a plain value owned by the caller. Every operation takes a
// Session and returns the next one together with the system utterances the
// transition produced, in order.
package screening

import (
	"fmt"

	"github.com/BTreeMap/MindCare/internal/questionnaire"
)

// PhaseKind enumerates the screening phases.
type PhaseKind string

// Phase kinds in graph order.
const (
	PhaseStart    PhaseKind = "START"
	PhaseGreeting PhaseKind = "GREETING"
	PhaseConsent  PhaseKind = "CONSENT"
	PhaseK10      PhaseKind = "K10"
	PhaseTier2    PhaseKind = "TIER2"
	PhaseResults  PhaseKind = "RESULTS"
	PhaseEnd      PhaseKind = "END"
)

// Phase is the current position in the screening graph. Instrument and
// Cursor are only meaningful for the fixed-choice kinds K10 and TIER2.
type Phase struct {
	Kind       PhaseKind        `json:"kind"`
	Instrument questionnaire.ID `json:"instrument,omitempty"`
	Cursor     int              `json:"cursor"`
}

func startPhase() Phase    { return Phase{Kind: PhaseStart} }
func greetingPhase() Phase { return Phase{Kind: PhaseGreeting} }
func consentPhase() Phase  { return Phase{Kind: PhaseConsent} }
func k10Phase() Phase      { return Phase{Kind: PhaseK10, Instrument: questionnaire.K10} }
func resultsPhase() Phase  { return Phase{Kind: PhaseResults} }
func endPhase() Phase      { return Phase{Kind: PhaseEnd} }

func tier2Phase(id questionnaire.ID) Phase {
	return Phase{Kind: PhaseTier2, Instrument: id}
}

// String renders the phase, e.g. "TIER2(GAD7)".
func (p Phase) String() string {
	if p.Kind == PhaseTier2 {
		return fmt.Sprintf("%s(%s)", p.Kind, p.Instrument)
	}
	return string(p.Kind)
}

// IsTerminal reports whether no further input is accepted except a restart.
func (p Phase) IsTerminal() bool {
	switch p.Kind {
	case PhaseResults, PhaseEnd:
		return true
	default:
		return false
	}
}

// IsActive reports whether the phase accepts user input.
func (p Phase) IsActive() bool {
	switch p.Kind {
	case PhaseGreeting, PhaseConsent, PhaseK10, PhaseTier2:
		return true
	default:
		return false
	}
}

// IsFixedChoice reports whether answers arrive as numeric choices.
func (p Phase) IsFixedChoice() bool {
	return p.Kind == PhaseK10 || p.Kind == PhaseTier2
}

// IsValidPhaseKind reports whether k is a known phase kind.
func IsValidPhaseKind(k PhaseKind) bool {
	switch k {
	case PhaseStart, PhaseGreeting, PhaseConsent, PhaseK10, PhaseTier2, PhaseResults, PhaseEnd:
		return true
	default:
		return false
	}
}
