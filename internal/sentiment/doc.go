// Package sentiment scores comment text with a word-polarity lexicon.
//
// A Classifier is immutable after construction and safe for concurrent use.
// Polarity is the mean score of the lexicon words found in the text, where a
// preceding negator flips and halves a word's score and a preceding
// intensifier amplifies it. Text without lexicon words scores 0.
package sentiment
