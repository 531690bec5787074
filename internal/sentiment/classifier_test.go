package sentiment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func newDefault(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(model.DefaultThresholds())
	require.NoError(t, err)
	return c
}

func TestClassify_Scenario(t *testing.T) {
	c := newDefault(t)

	got := c.Classify("This is amazing, thank you!")

	assert.InDelta(t, 0.8, got.Polarity, 1e-9)
	assert.Equal(t, model.SentimentPositive, got.Label)
}

func TestClassify_EmptyAndWhitespace(t *testing.T) {
	c := newDefault(t)

	for _, text := range []string{"", "   ", "\n\t "} {
		got := c.Classify(text)
		assert.Equal(t, 0.0, got.Polarity, "text %q", text)
		assert.Equal(t, model.SentimentNeutral, got.Label, "text %q", text)
	}
}

func TestClassify_Table(t *testing.T) {
	c := newDefault(t)

	tests := []struct {
		name     string
		text     string
		polarity float64
		label    model.SentimentLabel
	}{
		{"original sample", "Great post!", 0.8, model.SentimentPositive},
		{"negative word", "This is terrible", -1.0, model.SentimentNegative},
		{"no lexicon words", "The meeting is on Tuesday", 0, model.SentimentNeutral},
		{"negated positive", "not good", -0.35, model.SentimentNegative},
		{"contraction negator", "This isn't useful", -0.15, model.SentimentNeutral},
		{"curly apostrophe", "This isn’t useful", -0.15, model.SentimentNeutral},
		{"intensified", "very good", 0.91, model.SentimentPositive},
		{"mixed cancels", "good but bad", 0, model.SentimentNeutral},
		{"negator out of reach", "not that it matters at all, good", 0.7, model.SentimentPositive},
		{"case insensitive", "AWESOME", 0.8, model.SentimentPositive},
		{"intensifier clamps", "absolutely perfect", 1.0, model.SentimentPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			assert.InDelta(t, tt.polarity, got.Polarity, 1e-9)
			assert.Equal(t, tt.label, got.Label)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := newDefault(t)
	text := "Really insightful, but the second half was confusing."

	first := c.Classify(text)
	for range 10 {
		assert.Equal(t, first, c.Classify(text))
	}
}

func TestClassify_ConcurrentUse(t *testing.T) {
	c := newDefault(t)
	want := c.Classify("Great post, very helpful")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, c.Classify("Great post, very helpful"))
		}()
	}
	wg.Wait()
}

func TestClassify_CustomThresholds(t *testing.T) {
	c, err := New(model.Thresholds{Negative: -0.1, Positive: 0.9})
	require.NoError(t, err)

	assert.Equal(t, model.SentimentNeutral, c.Classify("Great post!").Label)
	assert.Equal(t, model.SentimentNegative, c.Classify("This isn't useful").Label)
}

func TestNew_WithLexicon(t *testing.T) {
	c, err := New(model.DefaultThresholds(), WithLexicon(map[string]float64{"Stellar": 2.0}))
	require.NoError(t, err)

	got := c.Classify("stellar work")
	assert.Equal(t, 1.0, got.Polarity)
	assert.Equal(t, 0.0, c.Classify("amazing").Polarity, "default lexicon is replaced")
}

func TestNew_InvalidThresholds(t *testing.T) {
	_, err := New(model.Thresholds{Negative: 0.5, Positive: 0.2})

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
