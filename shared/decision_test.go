package shared

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestParseDecisionAction(t *testing.T) {
	// Ensure every decision action parses back from its string.
	for _, action := range []DecisionAction{Buy, Sell, Skip} {
		parsed, err := ParseDecisionAction(action.String())
		assert.NoError(t, err)
		assert.Equal(t, action, parsed)
	}

	// Ensure unknown actions are rejected.
	_, err := ParseDecisionAction("hold")
	assert.True(t, errors.Is(err, ErrWrongDecision))
	assert.Equal(t, "unknown", DecisionAction(9).String())
}

func TestParseStatus(t *testing.T) {
	// Ensure every session status parses back from its string.
	for _, status := range []Status{Created, Active, Closed} {
		parsed, err := ParseStatus(status.String())
		assert.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseStatus("paused")
	assert.Error(t, err)
}
