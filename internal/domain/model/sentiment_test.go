package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_Label(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		polarity float64
		want     SentimentLabel
	}{
		{-1.0, SentimentNegative},
		{-0.3, SentimentNegative},
		{-0.29, SentimentNeutral},
		{0, SentimentNeutral},
		{0.29, SentimentNeutral},
		{0.3, SentimentPositive},
		{1.0, SentimentPositive},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Label(tt.polarity), "polarity %.2f", tt.polarity)
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.ErrorIs(t, Thresholds{Negative: 0.3, Positive: 0.3}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Thresholds{Negative: -1.5, Positive: 0.3}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Thresholds{Negative: -0.3, Positive: 1.1}.Validate(), ErrConfiguration)
}

func TestDispatchError_Unwrap(t *testing.T) {
	cause := errors.New("sink said no")
	err := error(&DispatchError{CommentID: "c1", Err: cause})

	assert.ErrorIs(t, err, ErrDispatchFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "c1")
}
