package result

import (
	"context"
	"math/rand"
	"sync"

	"survivor-pool-bot/internal/model"
)

// goalWeights approximates a football goal distribution: most teams score
// 0-2 goals, a few score more. Index = goals, value = weight.
var goalWeights = []int{24, 34, 25, 11, 5, 1}

// Simulator produces random fixture scores. It is the fallback Source when
// no live feed is configured, and always has a result available.
type Simulator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulator creates a Simulator seeded for reproducibility in tests.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rnd: rand.New(rand.NewSource(seed))}
}

// Scores generates a random final score for the fixture.
func (s *Simulator) Scores(_ context.Context, _ *model.Fixture) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawGoals(), s.drawGoals(), nil
}

func (s *Simulator) drawGoals() int {
	total := 0
	for _, w := range goalWeights {
		total += w
	}
	n := s.rnd.Intn(total)
	for goals, w := range goalWeights {
		if n < w {
			return goals
		}
		n -= w
	}
	return 0
}
