package classifier

import (
	"math"
	"sync"

	"github.com/jonreiter/govader"
)

var (
	vaderOnce     sync.Once
	vaderAnalyzer *govader.SentimentIntensityAnalyzer
)

// sharedAnalyzer parses the VADER lexicon once. The analyzer is read-only
// after construction and safe for concurrent use.
func sharedAnalyzer() *govader.SentimentIntensityAnalyzer {
	vaderOnce.Do(func() {
		vaderAnalyzer = govader.NewSentimentIntensityAnalyzer()
	})
	return vaderAnalyzer
}

// Lexicon scores text polarity with the VADER lexicon and rules (negation,
// boosters, "but" contrast, capitalisation and punctuation emphasis).
type Lexicon struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// DefaultLexicon returns the English VADER lexicon.
func DefaultLexicon() *Lexicon {
	return &Lexicon{analyzer: sharedAnalyzer()}
}

// Polarity returns the VADER compound score in [-1, 1], rounded to four
// decimals. Text without any scored word has polarity 0.
func (l *Lexicon) Polarity(text string) float64 {
	compound := l.analyzer.PolarityScores(text).Compound
	return math.Round(compound*10000) / 10000
}
