package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// Classifier maps comment text to a polarity and label.
type Classifier struct {
	thresholds model.Thresholds
	lexicon    map[string]float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLexicon replaces the default word table. Scores outside [-1, 1] are
// clamped. The map is copied.
func WithLexicon(lexicon map[string]float64) Option {
	return func(c *Classifier) {
		c.lexicon = make(map[string]float64, len(lexicon))
		for word, score := range lexicon {
			c.lexicon[strings.ToLower(word)] = clamp(score)
		}
	}
}

// New creates a Classifier. It returns a *model.ConfigurationError when the
// thresholds are invalid.
func New(thresholds model.Thresholds, opts ...Option) (*Classifier, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		thresholds: thresholds,
		lexicon:    defaultLexicon,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Thresholds returns the label thresholds in use.
func (c *Classifier) Thresholds() model.Thresholds {
	return c.thresholds
}

// Classify scores text. Empty or whitespace-only text is neutral with
// polarity 0.
func (c *Classifier) Classify(text string) model.SentimentResult {
	polarity := c.Polarity(text)
	return model.SentimentResult{
		Polarity: polarity,
		Label:    c.thresholds.Label(polarity),
	}
}

// Polarity returns the mean modified score of the lexicon words in text.
func (c *Classifier) Polarity(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	negatedAt, intensifiedAt := -1, -1
	var sum float64
	var scored int

	for i, tok := range tokens {
		if negators[tok] {
			negatedAt = i
			continue
		}
		if intensifiers[tok] {
			intensifiedAt = i
			continue
		}

		score, ok := c.lexicon[tok]
		if !ok {
			continue
		}

		if intensifiedAt >= 0 && i-intensifiedAt <= modifierReach {
			score = clamp(score * intensifierFactor)
		}
		if negatedAt >= 0 && i-negatedAt <= modifierReach {
			score *= negationFactor
		}
		negatedAt, intensifiedAt = -1, -1

		sum += score
		scored++
	}

	if scored == 0 {
		return 0
	}

	return clamp(sum / float64(scored))
}

// tokenize lowercases text and splits it into words. Apostrophes stay inside
// words so contractions like "isn't" survive; curly apostrophes are folded.
func tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))

	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
