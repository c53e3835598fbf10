package graphrag

import (
	"math"
	"sync"
	"time"
)

// EntropySample is one point in the graph-health time series exposed by
// Core.EntropyHistory (SPEC_FULL.md supplemented feature: "Shannon
// entropy of the PageRank distribution after each recompute").
type EntropySample struct {
	Timestamp time.Time
	Entropy   float64
	NodeCount int
}

// entropyTracker accumulates EntropySample history in process memory;
// Core additionally persists each sample via its Store.
type entropyTracker struct {
	mu      sync.Mutex
	history []EntropySample
}

func newEntropyTracker() *entropyTracker {
	return &entropyTracker{}
}

// ShannonEntropy computes the Shannon entropy (in nats) of a probability
// distribution given as tool_id -> score, ignoring non-positive entries.
func ShannonEntropy(scores map[string]float64) float64 {
	var h float64
	for _, p := range scores {
		if p <= 0 {
			continue
		}
		h -= p * math.Log(p)
	}
	return h
}

func (t *entropyTracker) record(scores map[string]float64, now time.Time) EntropySample {
	sample := EntropySample{
		Timestamp: now,
		Entropy:   ShannonEntropy(scores),
		NodeCount: len(scores),
	}
	t.mu.Lock()
	t.history = append(t.history, sample)
	t.mu.Unlock()
	return sample
}

func (t *entropyTracker) snapshot() []EntropySample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EntropySample, len(t.history))
	copy(out, t.history)
	return out
}
