package screening

import (
	"fmt"

	"github.com/BTreeMap/MindCare/internal/questionnaire"
)

// System utterances.
const (
	greetingBody     = "I'm MindCare. I can help conduct guided mental health screenings. How have you been feeling lately?"
	ConsentPrompt    = "Even when we feel good, it's helpful to check in on our mental health. Would you like to take a guided screening?"
	ConsentReprompt  = "Sorry, I didn't catch that. Please answer yes or no: would you like to take a guided screening?"
	K10StartMessage  = "Excellent. We'll start with the K10 test. Rate your feelings from 1 (None) to 5 (All the time)."
	DeclineMessage   = "I understand. Whenever you're ready, I'm here. Take care! ❤️"
	ExitMessage      = "Okay, we'll stop here. Whenever you're ready, I'm here. Take care! ❤️"
	K10EscalateMsg   = "Your score suggests moderate to high distress. Let's proceed to specialized screening."
	K10LowMessage    = "Your distress levels appear low. Keep maintaining your wellness!"
	CompletedMessage = "Screening complete. Your results are ready."
)

// handoffs announce the next tier-2 instrument.
var handoffs = map[questionnaire.ID]string{
	questionnaire.GAD7:  "Transitioning to Anxiety screening (GAD-7)...",
	questionnaire.PSS10: "Finally, starting the Stress Scale (PSS-10)...",
}

// Greeting returns the opening line, personalised when a name is known.
func Greeting(displayName string) string {
	if displayName == "" {
		return "Hello! " + greetingBody
	}
	return fmt.Sprintf("Hello, %s! %s", displayName, greetingBody)
}

func k10CompleteMessage(total int) string {
	return fmt.Sprintf("K10 complete. Total Score: %d", total)
}

func handoffMessage(id questionnaire.ID) string {
	if msg, ok := handoffs[id]; ok {
		return msg
	}
	return fmt.Sprintf("Starting %s...", questionnaire.Get(id).Title)
}
