package tune

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	dim := 3
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost := optimizer.Run(sphere, lower, upper, dim)
	require.Len(t, best, dim)
	assert.Less(t, cost, 0.1)
	for i, v := range best {
		assert.LessOrEqual(t, math.Abs(v), 1.0, "parameter %d", i)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// popSize must be >=20 for mayfly v0.1.0
	_, cost1 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, 2)
	_, cost2 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, 2)
	assert.Equal(t, cost1, cost2)
}
