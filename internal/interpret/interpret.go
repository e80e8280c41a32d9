// Package interpret applies screening thresholds to final tier-2 scores and
// explains the result.
package interpret

import (
	"fmt"

	"github.com/BTreeMap/MindCare/internal/questionnaire"
)

// Category labels for flagged instruments.
const (
	CategoryDepression = "Depressive Symptoms"
	CategoryAnxiety    = "Anxiety Symptoms"
	CategoryStress     = "High Perceived Stress"
)

// Inclusive lower-bound thresholds.
const (
	PHQ9Threshold  = 10
	GAD7Threshold  = 10
	PSS10Threshold = 14
	// K10Threshold is the triage total at or above which tier-2 screening runs.
	K10Threshold = 20
)

// Messages used in rendered summaries.
const (
	DistressWarning = "⚠️ Your scores suggest significant distress. Please consult a professional."
	WellnessMessage = "Your scores fall below the screening thresholds. Keep maintaining your wellness!"
)

// Scores are the final tier-2 totals.
type Scores struct {
	PHQ9  int `json:"phq9"`
	GAD7  int `json:"gad7"`
	PSS10 int `json:"pss10"`
}

// Result is the interpretation of a set of scores.
type Result struct {
	Flagged     []string          `json:"flagged"`
	Dominant    string            `json:"dominant,omitempty"`
	Explanation string            `json:"explanation"`
	Severity    map[string]string `json:"severity"`
}

// Wellness reports whether no instrument reached its threshold.
func (r Result) Wellness() bool {
	return len(r.Flagged) == 0
}

type rule struct {
	id          questionnaire.ID
	threshold   int
	category    string
	explanation string
}

// rules are in evaluation and tie-break priority order.
var rules = []rule{
	{
		id:          questionnaire.PHQ9,
		threshold:   PHQ9Threshold,
		category:    CategoryDepression,
		explanation: "Your responses point most strongly toward depressive symptoms, such as low mood, loss of interest or persistent tiredness.",
	},
	{
		id:          questionnaire.GAD7,
		threshold:   GAD7Threshold,
		category:    CategoryAnxiety,
		explanation: "Your responses point most strongly toward anxiety symptoms, such as constant worry, restlessness or difficulty relaxing.",
	},
	{
		id:          questionnaire.PSS10,
		threshold:   PSS10Threshold,
		category:    CategoryStress,
		explanation: "Your responses point most strongly toward high perceived stress, a sense that demands are outweighing your ability to cope.",
	},
}

func (s Scores) get(id questionnaire.ID) int {
	switch id {
	case questionnaire.PHQ9:
		return s.PHQ9
	case questionnaire.GAD7:
		return s.GAD7
	case questionnaire.PSS10:
		return s.PSS10
	default:
		return 0
	}
}

// Interpret flags every instrument at or above its threshold and selects the
// dominant category.
//
// The dominant category is the first instrument (PHQ9, GAD7, PSS10) whose score
// reaches its threshold and is no lower than the other two scores. If
// something is flagged but no flagged score dominates, the highest flagged
// score wins, again with PHQ9, GAD7, PSS10 priority on ties.
func Interpret(s Scores) Result {
	res := Result{
		Flagged: []string{},
		Severity: map[string]string{
			string(questionnaire.PHQ9):  PHQ9Severity(s.PHQ9),
			string(questionnaire.GAD7):  GAD7Severity(s.GAD7),
			string(questionnaire.PSS10): PSS10Severity(s.PSS10),
		},
	}

	var flagged []rule
	for _, r := range rules {
		if s.get(r.id) >= r.threshold {
			flagged = append(flagged, r)
			res.Flagged = append(res.Flagged, r.category)
		}
	}
	if len(flagged) == 0 {
		res.Explanation = WellnessMessage
		return res
	}

	dom, ok := dominant(s, flagged)
	if !ok {
		dom = highest(s, flagged)
	}
	res.Dominant = dom.category
	res.Explanation = dom.explanation
	return res
}

func dominant(s Scores, flagged []rule) (rule, bool) {
	for _, r := range flagged {
		score := s.get(r.id)
		beatsAll := true
		for _, other := range rules {
			if other.id != r.id && s.get(other.id) > score {
				beatsAll = false
				break
			}
		}
		if beatsAll {
			return r, true
		}
	}
	return rule{}, false
}

func highest(s Scores, flagged []rule) rule {
	best := flagged[0]
	for _, r := range flagged[1:] {
		if s.get(r.id) > s.get(best.id) {
			best = r
		}
	}
	return best
}

// Summary renders the assessment summary shown at the end of a screening.
func Summary(s Scores, res Result) []string {
	lines := []string{
		"Assessment Summary",
		fmt.Sprintf("- PHQ-9 (Depression): %d (%s)", s.PHQ9, res.Severity[string(questionnaire.PHQ9)]),
		fmt.Sprintf("- GAD-7 (Anxiety): %d (%s)", s.GAD7, res.Severity[string(questionnaire.GAD7)]),
		fmt.Sprintf("- PSS-10 (Stress): %d (%s)", s.PSS10, res.Severity[string(questionnaire.PSS10)]),
	}
	if res.Wellness() {
		return append(lines, res.Explanation)
	}
	return append(lines, DistressWarning, res.Explanation)
}
