package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateForLongestPrefix(t *testing.T) {
	assert.Equal(t, modelRates["gpt-4o-mini"], rateFor("gpt-4o-mini-2024-07-18"))
	assert.Equal(t, modelRates["gpt-4o"], rateFor("gpt-4o-2024-11-20"))
	assert.Equal(t, modelRates["claude-sonnet"], rateFor("claude-sonnet-4-5"))
	assert.Equal(t, defaultRate, rateFor("some-unknown-model"))
}

func TestEstimateCost(t *testing.T) {
	c := &EinoClient{}
	// gpt-4o: $2.50/M in, $10.00/M out
	cost := c.EstimateCost(1_000_000, 1_000_000, "gpt-4o")
	assert.InDelta(t, 12.50, cost, 1e-9)
	assert.Zero(t, c.EstimateCost(0, 0, "gpt-4o"))
}
