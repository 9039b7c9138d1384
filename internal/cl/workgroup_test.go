package cl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquareTile(t *testing.T) {
	tests := []struct {
		n, x, y int
	}{
		{64, 8, 8},
		{32, 8, 4},
		{36, 6, 6},
		{16, 4, 4},
		{1, 1, 1},
		{30, 5, 6},
		{12, 3, 4},
		{7, 1, 7},
		{128, 8, 16},
		{0, 1, 1},
	}
	for _, tt := range tests {
		x, y := SquareTile(tt.n)
		assert.Equal(t, [2]int{tt.x, tt.y}, [2]int{x, y}, "SquareTile(%d)", tt.n)
	}
}

func TestSquareTileProduct(t *testing.T) {
	for n := 1; n <= 1024; n++ {
		x, y := SquareTile(n)
		if x*y != n {
			t.Fatalf("SquareTile(%d) = (%d, %d), product %d", n, x, y, x*y)
		}
	}
}

func TestFactorsOf(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 5, 6, 10, 15, 30}, factorsOf(30))
	assert.Equal(t, []int{1, 2, 4, 8, 16}, factorsOf(16))
	assert.Equal(t, []int{1, 13}, factorsOf(13))
	assert.Equal(t, []int{1}, factorsOf(1))
}
