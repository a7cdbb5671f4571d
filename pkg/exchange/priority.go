package exchange

import (
	"math"
	"time"
)

// Priority weights for ranking relationships under memory pressure.
// Eviction itself belongs to the external context store; the engine only
// supplies the ranking value.
const (
	priorityScoreWeight     = 0.5
	priorityRecencyWeight   = 0.3
	priorityFrequencyWeight = 0.2
)

// RetentionPriority ranks a relationship for the external store's eviction
// decisions. recencyDecay is the caller-supplied per-hour decay constant for
// the recency factor; accessCount saturates at 10 accesses.
func RetentionPriority(score float64, sinceLastUpdate time.Duration, accessCount int, recencyDecay float64) float64 {
	if sinceLastUpdate < 0 {
		sinceLastUpdate = 0
	}
	recency := math.Exp(-recencyDecay * sinceLastUpdate.Hours())
	frequency := math.Min(1.0, float64(accessCount)/10.0)
	return priorityScoreWeight*score + priorityRecencyWeight*recency + priorityFrequencyWeight*frequency
}
