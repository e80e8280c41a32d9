// Package questionnaire holds the static definitions of the screening instruments.
//
// Instruments are defined once at package initialisation and never mutated.
package questionnaire

// ID identifies a screening instrument.
type ID string

// Instrument identifiers.
const (
	K10   ID = "K10"
	PHQ9  ID = "PHQ9"
	GAD7  ID = "GAD7"
	PSS10 ID = "PSS10"
)

// Option is a selectable answer and the value it contributes to the total.
type Option struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Instrument is an ordered list of prompts answered from a fixed option set.
type Instrument struct {
	ID      ID       `json:"id"`
	Title   string   `json:"title"`
	Prompts []string `json:"prompts"`
	Options []Option `json:"options"`
}

// Len returns the number of prompts.
func (i Instrument) Len() int {
	return len(i.Prompts)
}

// ValidValue reports whether v is one of the instrument's answer values.
func (i Instrument) ValidValue(v int) bool {
	for _, o := range i.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Label returns the option label for value v, or "" if v is not an option.
func (i Instrument) Label(v int) string {
	for _, o := range i.Options {
		if o.Value == v {
			return o.Label
		}
	}
	return ""
}

// MinTotal is the lowest total a completed instrument can reach.
func (i Instrument) MinTotal() int {
	lo, _ := i.valueRange()
	return lo * i.Len()
}

// MaxTotal is the highest total a completed instrument can reach.
func (i Instrument) MaxTotal() int {
	_, hi := i.valueRange()
	return hi * i.Len()
}

func (i Instrument) valueRange() (int, int) {
	if len(i.Options) == 0 {
		return 0, 0
	}
	lo, hi := i.Options[0].Value, i.Options[0].Value
	for _, o := range i.Options[1:] {
		if o.Value < lo {
			lo = o.Value
		}
		if o.Value > hi {
			hi = o.Value
		}
	}
	return lo, hi
}

var frequencyOptions = []Option{
	{Label: "Not at all", Value: 0},
	{Label: "Several days", Value: 1},
	{Label: "More than half", Value: 2},
	{Label: "Nearly every day", Value: 3},
}

var registry = map[ID]Instrument{
	K10: {
		ID:    K10,
		Title: "K10 Assessment",
		Prompts: []string{
			"In the last 4 weeks, how often did you feel tired out for no good reason?",
			"How often did you feel nervous?",
			"How often did you feel so nervous that nothing could calm you down?",
			"How often did you feel hopeless?",
			"How often did you feel restless or fidgety?",
			"How often did you feel so restless you could not sit still?",
			"How often did you feel depressed?",
			"How often did you feel that everything was an effort?",
			"How often did you feel so sad that nothing could cheer you up?",
			"How often did you feel worthless?",
		},
		Options: []Option{
			{Label: "None", Value: 1},
			{Label: "Rarely", Value: 2},
			{Label: "Some", Value: 3},
			{Label: "Often", Value: 4},
			{Label: "Always", Value: 5},
		},
	},
	PHQ9: {
		ID:    PHQ9,
		Title: "Depression Screening (PHQ-9)",
		Prompts: []string{
			"Little interest or pleasure in doing things?",
			"Feeling down, depressed, or hopeless?",
			"Trouble falling or staying asleep, or sleeping too much?",
			"Feeling tired or having little energy?",
			"Poor appetite or overeating?",
			"Feeling bad about yourself, or that you are a failure?",
			"Trouble concentrating on things?",
			"Moving or speaking so slowly that others noticed? Or the opposite?",
			"Thoughts that you would be better off dead, or of hurting yourself?",
		},
		Options: frequencyOptions,
	},
	GAD7: {
		ID:    GAD7,
		Title: "Anxiety Screening (GAD-7)",
		Prompts: []string{
			"Feeling nervous, anxious, or on edge?",
			"Not being able to stop or control worrying?",
			"Worrying too much about different things?",
			"Trouble relaxing?",
			"Being so restless that it is hard to sit still?",
			"Becoming easily annoyed or irritable?",
			"Feeling afraid as if something awful might happen?",
		},
		Options: frequencyOptions,
	},
	PSS10: {
		ID:    PSS10,
		Title: "Perceived Stress Scale (PSS-10)",
		Prompts: []string{
			"Upset because of something that happened unexpectedly?",
			"Unable to control the important things in your life?",
			"Feeling nervous and 'stressed'?",
			"Confident about handling personal problems?",
			"Feeling that things were going your way?",
			"Could not cope with all the things you had to do?",
			"Able to control irritations in your life?",
			"Feeling that you were on top of things?",
			"Angered by things outside of your control?",
			"Difficulties piling up so high you could not overcome them?",
		},
		Options: []Option{
			{Label: "Never", Value: 0},
			{Label: "Almost Never", Value: 1},
			{Label: "Sometimes", Value: 2},
			{Label: "Fairly Often", Value: 3},
			{Label: "Very Often", Value: 4},
		},
	},
}

var tier2Order = []ID{PHQ9, GAD7, PSS10}

// Get returns the instrument for id. Ids come from the closed set above;
// an unknown id yields the zero Instrument.
func Get(id ID) Instrument {
	return registry[id]
}

// Tier2Order returns the tier-2 instruments in administration order.
func Tier2Order() []ID {
	out := make([]ID, len(tier2Order))
	copy(out, tier2Order)
	return out
}

// NextTier2 returns the tier-2 instrument administered after id.
// ok is false when id is the last one (or not a tier-2 instrument).
func NextTier2(id ID) (next ID, ok bool) {
	for i, t := range tier2Order {
		if t == id && i+1 < len(tier2Order) {
			return tier2Order[i+1], true
		}
	}
	return "", false
}

// IsValidID reports whether id names a registered instrument.
func IsValidID(id ID) bool {
	_, ok := registry[id]
	return ok
}
