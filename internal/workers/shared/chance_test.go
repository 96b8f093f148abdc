package shared

import (
	"testing"

	"task-recipes/internal/common/config"

	"github.com/stretchr/testify/assert"
)

func TestChance_Fail(t *testing.T) {
	fixed := func(v float64) func() float64 { return func() float64 { return v } }

	assert.True(t, Chance{Rate: 0.2, Float: fixed(0.1)}.Fail())
	assert.False(t, Chance{Rate: 0.2, Float: fixed(0.2)}.Fail())
	assert.False(t, Chance{Rate: 0, Float: fixed(0)}.Fail())
	assert.False(t, Never().Fail())
	assert.True(t, NewChance(1).Fail())
}

func TestChanceFor(t *testing.T) {
	rate := 0.5
	cfg := &config.Config{Workers: map[string]config.WorkerConfig{
		"chaos/ping": {Enabled: true, FailureRate: &rate},
	}}

	assert.Equal(t, 0.5, ChanceFor(cfg, "chaos.ping", 0.2).Rate)
	assert.Equal(t, 0.2, ChanceFor(cfg, "monitoring.get_help", 0.2).Rate)
	assert.Equal(t, 0.2, ChanceFor(nil, "chaos.ping", 0.2).Rate)
}
