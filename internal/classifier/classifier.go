// Package classifier maps free-text replies to coarse emotions and yes/no/exit intents.
//
// Classification is a bounded keyword heuristic: lower-cased substring
// matching against fixed keyword sets, with a VADER polarity fallback.
// Every function here is pure: the same text always yields the same result.
package classifier

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent is the gating decision extracted from a free-text reply.
type Intent string

// Intent values, listed in evaluation priority.
const (
	IntentExit    Intent = "EXIT"
	IntentYes     Intent = "YES"
	IntentNo      Intent = "NO"
	IntentUnknown Intent = "UNKNOWN"
)

// Emotion labels produced by Classify.
const (
	EmotionAnxious   = "anxious"
	EmotionSad       = "sad"
	EmotionDepressed = "depressed"
	EmotionAngry     = "angry"
	EmotionTired     = "tired"
	EmotionHappy     = "happy"
	EmotionNegative  = "negative"
	EmotionPositive  = "positive"
	EmotionNeutral   = "neutral"
)

// Polarity cut-offs for the fallback path.
const (
	NegativeThreshold = -0.3
	PositiveThreshold = 0.3
)

// Canned responses for the polarity fallback.
const (
	NegativeResponse = "I can tell things are difficult right now. I'm here for you."
	PositiveResponse = "You seem to be in a positive headspace! That's great to see."
	ClarifyResponse  = "I'm not quite sure I understand how you're feeling based on that. Could you tell me more about your mood today?"
)

// Rule maps a keyword set to an emotion and its canned response.
type Rule struct {
	Emotion  string
	Keywords []string
	Response string
}

// Result is the outcome of emotion classification.
type Result struct {
	Emotion    string  `json:"emotion"`
	Response   string  `json:"response"`
	Polarity   float64 `json:"polarity"`
	Actionable bool    `json:"actionable"`
}

// DefaultRules is the ordered emotion rule list; the first match wins.
var DefaultRules = []Rule{
	{
		Emotion:  EmotionAnxious,
		Keywords: []string{"anxious", "worried", "nervous", "panic", "scared", "fear", "tension"},
		Response: "I can feel the anxiety in your words. It's okay to feel overwhelmed.",
	},
	{
		Emotion:  EmotionSad,
		Keywords: []string{"sad", "unhappy", "crying", "heartbroken", "gloomy"},
		Response: "I'm so sorry things feel heavy right now. Thank you for sharing.",
	},
	{
		Emotion:  EmotionDepressed,
		Keywords: []string{"depressed", "hopeless", "worthless", "empty", "no point", "miserable", "lonely"},
		Response: "I hear how much pain you are in. It takes strength to speak up.",
	},
	{
		Emotion:  EmotionAngry,
		Keywords: []string{"angry", "furious", "annoyed", "frustrated", "mad", "hate"},
		Response: "It sounds like you're carrying a lot of frustration. I'm here to listen.",
	},
	{
		Emotion:  EmotionTired,
		Keywords: []string{"tired", "exhausted", "burnt out", "no energy", "drained"},
		Response: "You sound drained. Please remember that taking a break is progress, too.",
	},
	{
		Emotion:  EmotionHappy,
		Keywords: []string{"happy", "great", "wonderful", "good", "excited", "blessed", "amazing", "well", "fine", "okay"},
		Response: "It's wonderful to hear that you're feeling good!",
	},
}

// Keyword sets for intent detection.
var (
	ExitWords = []string{"exit", "quit", "stop", "bye", "goodbye", "cancel", "end session"}
	YesWords  = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "of course", "absolutely", "let's do it", "let's go", "go ahead"}
	NoWords   = []string{"no", "nope", "nah", "not now", "not really", "maybe later", "later", "don't", "do not", "no thanks"}
)

// Classifier holds the rule tables used for classification.
type Classifier struct {
	rules   []Rule
	exit    []string
	yes     []string
	no      []string
	lexicon *Lexicon
}

// New returns a Classifier using the default rules, keyword sets and lexicon.
func New() *Classifier {
	return &Classifier{
		rules:   DefaultRules,
		exit:    ExitWords,
		yes:     YesWords,
		no:      NoWords,
		lexicon: DefaultLexicon(),
	}
}

// Intent detects an exit/yes/no decision. EXIT is checked first so a user can
// abort from any free-text prompt.
func (c *Classifier) Intent(text string) Intent {
	norm := normalize(text)
	switch {
	case containsIntent(norm, c.exit):
		return IntentExit
	case containsIntent(norm, c.yes):
		return IntentYes
	case containsIntent(norm, c.no):
		return IntentNo
	default:
		return IntentUnknown
	}
}

// Classify maps text to an emotion response. Only the neutral fallback is
// not actionable.
func (c *Classifier) Classify(text string) Result {
	norm := normalize(text)
	for _, r := range c.rules {
		if containsAny(norm, r.Keywords) {
			return Result{Emotion: r.Emotion, Response: r.Response, Actionable: true}
		}
	}

	p := c.lexicon.Polarity(text)
	switch {
	case p < NegativeThreshold:
		return Result{Emotion: EmotionNegative, Response: NegativeResponse, Polarity: p, Actionable: true}
	case p > PositiveThreshold:
		return Result{Emotion: EmotionPositive, Response: PositiveResponse, Polarity: p, Actionable: true}
	default:
		return Result{Emotion: EmotionNeutral, Response: ClarifyResponse, Polarity: p, Actionable: false}
	}
}

// shortIntentWord is the length up to which an intent keyword must start at a
// word boundary, so "no" does not fire inside "know" nor "ok" inside "took".
const shortIntentWord = 3

// normalize lower-cases text and collapses runs of whitespace.
func normalize(text string) string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.Join(strings.Fields(text), " ")
}

// containsAny reports whether any keyword occurs in norm as a substring.
func containsAny(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

// containsIntent is containsAny with short keywords anchored at a word start.
// They may still run on ("yesss", "nope", "okay").
func containsIntent(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) > shortIntentWord {
			if strings.Contains(norm, kw) {
				return true
			}
			continue
		}
		if hasWordPrefix(norm, kw) {
			return true
		}
	}
	return false
}

// hasWordPrefix reports whether kw occurs in norm at the start of a word.
func hasWordPrefix(norm, kw string) bool {
	for from := 0; ; {
		i := strings.Index(norm[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		if i == 0 || !isWordRune(lastRune(norm[:i])) {
			return true
		}
		from = i + 1
	}
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
