package model

import "fmt"

// SentimentLabel is the categorical sentiment derived from a polarity score.
type SentimentLabel string

const (
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentPositive SentimentLabel = "positive"
)

// SentimentLabels lists every label in a stable order.
var SentimentLabels = []SentimentLabel{SentimentNegative, SentimentNeutral, SentimentPositive}

// Valid reports whether l is one of the known labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentNegative, SentimentNeutral, SentimentPositive:
		return true
	default:
		return false
	}
}

// SentimentResult is the output of classifying a comment's text.
type SentimentResult struct {
	Polarity float64 // In [-1.0, 1.0].
	Label    SentimentLabel
}

// Default classification thresholds.
const (
	DefaultNegativeThreshold = -0.3
	DefaultPositiveThreshold = 0.3
)

// Thresholds maps a polarity to a label. A polarity at or below Negative is
// negative, at or above Positive is positive, and neutral otherwise.
type Thresholds struct {
	Negative float64
	Positive float64
}

// DefaultThresholds returns the -0.3 / +0.3 threshold pair.
func DefaultThresholds() Thresholds {
	return Thresholds{Negative: DefaultNegativeThreshold, Positive: DefaultPositiveThreshold}
}

// Label returns the sentiment label for the given polarity.
func (t Thresholds) Label(polarity float64) SentimentLabel {
	switch {
	case polarity <= t.Negative:
		return SentimentNegative
	case polarity >= t.Positive:
		return SentimentPositive
	default:
		return SentimentNeutral
	}
}

// Validate checks that -1 <= Negative < Positive <= 1.
func (t Thresholds) Validate() error {
	if t.Negative < -1 || t.Positive > 1 {
		return &ConfigurationError{
			Field:  "thresholds",
			Reason: fmt.Sprintf("must lie within [-1, 1], got %.2f / %.2f", t.Negative, t.Positive),
		}
	}
	if t.Negative >= t.Positive {
		return &ConfigurationError{
			Field:  "thresholds",
			Reason: fmt.Sprintf("negative threshold %.2f must be below positive threshold %.2f", t.Negative, t.Positive),
		}
	}
	return nil
}
