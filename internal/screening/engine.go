package screening

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/MindCare/internal/classifier"
	"github.com/BTreeMap/MindCare/internal/interpret"
	"github.com/BTreeMap/MindCare/internal/questionnaire"
)

// Classifier is the text classification the engine depends on.
type Classifier interface {
	Intent(text string) classifier.Intent
	Classify(text string) classifier.Result
}

// Prompt describes the question awaiting an answer in a fixed-choice phase.
type Prompt struct {
	Instrument questionnaire.ID       `json:"instrument"`
	Title      string                 `json:"title"`
	Index      int                    `json:"index"`
	Total      int                    `json:"total"`
	Text       string                 `json:"text"`
	Options    []questionnaire.Option `json:"options"`
}

// Report holds final scores and their interpretation.
type Report struct {
	K10            int              `json:"k10"`
	Scores         interpret.Scores `json:"scores"`
	Interpretation interpret.Result `json:"interpretation"`
	Summary        []string         `json:"summary"`
}

// Engine drives sessions through the screening graph. It holds no
// per-session state and is safe for concurrent use.
type Engine struct {
	cls Classifier
}

// NewEngine creates an Engine. A nil classifier selects the default one.
func NewEngine(cls Classifier) *Engine {
	if cls == nil {
		cls = classifier.New()
	}
	return &Engine{cls: cls}
}

// Begin moves a fresh session from START to GREETING.
func (e *Engine) Begin(s Session, displayName string) (Session, []string, error) {
	if s.Phase.Kind != PhaseStart {
		return s, nil, fmt.Errorf("%w: begin in %s", ErrInvalidPhase, s.Phase)
	}
	next := s.clone()
	next.Phase = greetingPhase()
	slog.Debug("Engine.Begin: session greeted", "hasName", displayName != "")
	return next, []string{Greeting(displayName)}, nil
}

// SubmitFreeText handles free-text input. In GREETING the text is classified
// for emotion; in CONSENT it is read as yes or no. In any active phase an
// exit intent ends the screening. Fixed-choice phases accept no other text.
func (e *Engine) SubmitFreeText(s Session, text string) (Session, []string, error) {
	if !s.Phase.IsActive() {
		return s, nil, fmt.Errorf("%w: free text in %s", ErrInvalidPhase, s.Phase)
	}
	intent := e.cls.Intent(text)
	if intent == classifier.IntentExit {
		return e.exit(s)
	}

	next := s.clone()
	switch s.Phase.Kind {
	case PhaseGreeting:
		res := e.cls.Classify(text)
		if !res.Actionable {
			slog.Debug("Engine.SubmitFreeText: mood unclear, staying in greeting", "emotion", res.Emotion)
			return next, []string{res.Response}, nil
		}
		next.Phase = consentPhase()
		slog.Debug("Engine.SubmitFreeText: mood classified", "emotion", res.Emotion, "polarity", res.Polarity)
		return next, []string{res.Response, ConsentPrompt}, nil

	case PhaseConsent:
		switch intent {
		case classifier.IntentYes:
			next.Phase = k10Phase()
			slog.Debug("Engine.SubmitFreeText: consent given")
			return next, []string{K10StartMessage}, nil
		case classifier.IntentNo:
			next.Phase = endPhase()
			slog.Debug("Engine.SubmitFreeText: consent declined")
			return next, []string{DeclineMessage}, nil
		default:
			return next, []string{ConsentReprompt}, nil
		}

	default:
		return s, nil, fmt.Errorf("%w: %s expects a numeric choice", ErrInvalidPhase, s.Phase)
	}
}

// SubmitChoice records the answer to the current prompt of a fixed-choice phase.
func (e *Engine) SubmitChoice(s Session, value int) (Session, []string, error) {
	if !s.Phase.IsFixedChoice() {
		return s, nil, fmt.Errorf("%w: choice in %s", ErrInvalidPhase, s.Phase)
	}
	inst := questionnaire.Get(s.Phase.Instrument)
	if !inst.ValidValue(value) {
		return s, nil, fmt.Errorf("%w: %d for %s", ErrInvalidChoice, value, inst.ID)
	}

	next := s.clone()
	next.Phase.Cursor++
	if s.Phase.Kind == PhaseK10 {
		next.K10Total += value
	} else {
		next.Tier2Totals[inst.ID] += value
	}
	if next.Phase.Cursor < inst.Len() {
		return next, nil, nil
	}

	if s.Phase.Kind == PhaseK10 {
		return e.finishK10(next)
	}
	return e.finishTier2(next, inst.ID)
}

func (e *Engine) finishK10(next Session) (Session, []string, error) {
	utterances := []string{k10CompleteMessage(next.K10Total)}
	if next.K10Total >= interpret.K10Threshold {
		first := questionnaire.Tier2Order()[0]
		next.Phase = tier2Phase(first)
		utterances = append(utterances, K10EscalateMsg)
		slog.Debug("Engine.finishK10: escalating to tier-2", "k10", next.K10Total, "instrument", first)
	} else {
		next.Phase = endPhase()
		utterances = append(utterances, K10LowMessage)
		slog.Debug("Engine.finishK10: low distress, ending", "k10", next.K10Total)
	}
	return next, utterances, nil
}

func (e *Engine) finishTier2(next Session, done questionnaire.ID) (Session, []string, error) {
	if id, ok := questionnaire.NextTier2(done); ok {
		next.Phase = tier2Phase(id)
		slog.Debug("Engine.finishTier2: instrument complete", "done", done, "next", id)
		return next, []string{handoffMessage(id)}, nil
	}
	next.Phase = resultsPhase()
	slog.Debug("Engine.finishTier2: screening complete", "scores", next.Scores())
	return next, []string{CompletedMessage}, nil
}

// Quit ends the screening from any active phase, keeping accumulated totals.
func (e *Engine) Quit(s Session) (Session, []string, error) {
	if !s.Phase.IsActive() {
		return s, nil, fmt.Errorf("%w: quit in %s", ErrInvalidPhase, s.Phase)
	}
	return e.exit(s)
}

func (e *Engine) exit(s Session) (Session, []string, error) {
	next := s.clone()
	slog.Debug("Engine.exit: user exited", "from", s.Phase.String())
	next.Phase = endPhase()
	return next, []string{ExitMessage}, nil
}

// CurrentPrompt returns the prompt awaiting an answer. ok is false outside
// the fixed-choice phases.
func CurrentPrompt(s Session) (p Prompt, ok bool) {
	if !s.Phase.IsFixedChoice() {
		return Prompt{}, false
	}
	inst := questionnaire.Get(s.Phase.Instrument)
	if s.Phase.Cursor < 0 || s.Phase.Cursor >= inst.Len() {
		return Prompt{}, false
	}
	opts := make([]questionnaire.Option, len(inst.Options))
	copy(opts, inst.Options)
	return Prompt{
		Instrument: inst.ID,
		Title:      inst.Title,
		Index:      s.Phase.Cursor,
		Total:      inst.Len(),
		Text:       inst.Prompts[s.Phase.Cursor],
		Options:    opts,
	}, true
}

// Results interprets the tier-2 totals of a completed screening.
func Results(s Session) (Report, error) {
	if s.Phase.Kind != PhaseResults {
		return Report{}, fmt.Errorf("%w: results in %s", ErrInvalidPhase, s.Phase)
	}
	scores := s.Scores()
	res := interpret.Interpret(scores)
	return Report{
		K10:            s.K10Total,
		Scores:         scores,
		Interpretation: res,
		Summary:        interpret.Summary(scores, res),
	}, nil
}
