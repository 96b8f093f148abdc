// Package shared holds helpers used by several task handlers.
package shared

import (
	"math/rand"
	"sync"
	"time"

	"task-recipes/internal/common/config"
)

// Chance decides whether a deliberately flaky task fails this attempt.
type Chance struct {
	Rate  float64
	Float func() float64
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randomFloat() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// NewChance returns a Chance failing at rate.
func NewChance(rate float64) Chance {
	return Chance{Rate: rate, Float: randomFloat}
}

// ChanceFor reads the failure rate configured for taskKey, falling back to def.
func ChanceFor(cfg *config.Config, taskKey string, def float64) Chance {
	if cfg == nil {
		return NewChance(def)
	}
	return NewChance(config.GetWorkerConfig(cfg, taskKey).FailureRateOr(def))
}

// Never is a Chance that never fails.
func Never() Chance { return Chance{} }

// Fail reports whether this attempt should fail.
func (c Chance) Fail() bool {
	if c.Rate <= 0 || c.Float == nil {
		return false
	}
	return c.Float() < c.Rate
}
