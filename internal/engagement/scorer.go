// Package engagement turns interaction counts into a single non-negative score.
package engagement

import (
	"math"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// Weights are per-metric multipliers. Negative weights are treated as zero.
type Weights struct {
	Likes    float64 `yaml:"likes"`
	Replies  float64 `yaml:"replies"`
	Reshares float64 `yaml:"reshares"`
	Quotes   float64 `yaml:"quotes"`
}

// DefaultWeights rank deliberate amplification above passive approval.
var DefaultWeights = Weights{Likes: 1, Replies: 2, Reshares: 3, Quotes: 4}

// Scorer is a pure weighted-sum scorer.
type Scorer struct{ w Weights }

// New returns a Scorer; a zero Weights value selects DefaultWeights.
func New(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights
	}
	return &Scorer{w: Weights{
		Likes:    nonNegative(w.Likes),
		Replies:  nonNegative(w.Replies),
		Reshares: nonNegative(w.Reshares),
		Quotes:   nonNegative(w.Quotes),
	}}
}

// Score returns Σ weight·count with negative counts clamped to zero. The
// result is finite, non-negative and non-decreasing in every metric.
func (s *Scorer) Score(m model.Metrics) float64 {
	total := s.w.Likes*count(m.Likes) +
		s.w.Replies*count(m.Replies) +
		s.w.Reshares*count(m.Reshares) +
		s.w.Quotes*count(m.Quotes)
	if math.IsInf(total, 0) || math.IsNaN(total) {
		return math.MaxFloat64
	}
	return total
}

// Weights returns the effective weights.
func (s *Scorer) Weights() Weights { return s.w }

// Compare orders two posts by score descending, then by id descending.
// It returns a negative value when a ranks before b.
func Compare(a, b model.Post) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.ExternalID > b.ExternalID:
		return -1
	case a.ExternalID < b.ExternalID:
		return 1
	}
	return 0
}

func count(v int64) float64 {
	if v < 0 {
		return 0
	}
	return float64(v)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
