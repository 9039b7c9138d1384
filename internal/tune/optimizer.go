package tune

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// Optimizer minimises an objective over a box.
type Optimizer interface {
	// Run returns the best position found and its cost. lower and upper
	// bound every one of the dim coordinates.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// MayflyAdapter runs the mayfly swarm optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. popSize must be at least 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library takes scalar bounds; the tuner searches the unit cube.
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		zero := make([]float64, dim)
		return zero, eval(zero)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost
}
