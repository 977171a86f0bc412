package operator

import "math/rand"

// Reward tiers for adaptive weight updates, from a new global best down to
// an accepted-but-worse offspring.
const (
	RewardGlobalBest = 0.10
	RewardImproved   = 0.05
	RewardAccepted   = 0.01
)

// weightFloor keeps every operator selectable; decay never pushes a weight
// below it, so exploration never stops.
const weightFloor = 0.01

// AdaptiveSelector picks operators by roulette wheel over running weights.
// Successful operators gain weight, failing ones decay toward the floor.
// It is owned by the coordinating goroutine and not synchronized.
type AdaptiveSelector struct {
	names   []string
	weights []float64
	uses    []int
}

func NewAdaptiveSelector(names []string) *AdaptiveSelector {
	w := make([]float64, len(names))
	for i := range w {
		w[i] = 1
	}
	return &AdaptiveSelector{names: names, weights: w, uses: make([]int, len(names))}
}

// Pick selects an operator index proportionally to its weight.
func (s *AdaptiveSelector) Pick(rng *rand.Rand) int {
	sum := 0.0
	for _, w := range s.weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range s.weights {
		acc += w
		if r <= acc {
			s.uses[i]++
			return i
		}
	}
	s.uses[len(s.weights)-1]++
	return len(s.weights) - 1
}

// Reward bumps an operator's weight after a useful offspring.
func (s *AdaptiveSelector) Reward(i int, amount float64) {
	s.weights[i] += amount
}

// Decay shrinks an operator's weight after a discarded offspring, never
// below the exploration floor.
func (s *AdaptiveSelector) Decay(i int) {
	s.weights[i] *= 0.999
	if s.weights[i] < weightFloor {
		s.weights[i] = weightFloor
	}
}

// Weights returns a name-to-weight snapshot for run statistics.
func (s *AdaptiveSelector) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.names))
	for i, n := range s.names {
		out[n] = s.weights[i]
	}
	return out
}

// Uses returns how many times each operator was picked.
func (s *AdaptiveSelector) Uses() map[string]int {
	out := make(map[string]int, len(s.names))
	for i, n := range s.names {
		out[n] = s.uses[i]
	}
	return out
}
