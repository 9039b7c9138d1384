package samples

import (
	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/driver/host"
)

// Library returns host-device implementations of every kernel in the
// embedded sources.
func Library() *host.Library {
	return host.NewLibrary().
		Register("Add", addKernel).
		Register("compute", computeKernel).
		Register("RandomImageRead", randomImageReadKernel).
		Register("bitonicSortLocal", bitonicSortLocalKernel).
		Register("merge", mergeKernel)
}

func addKernel(g *host.Group) error {
	a, b, out, delta := g.Uint32s(0), g.Uint32s(1), g.Uint32s(2), g.Uint32(3)
	g.ForEach(func(it host.Item) {
		i := it.Global[0]
		out[i] = a[i] + b[i] + delta
	})
	return nil
}

func computeKernel(g *host.Group) error {
	if g.ID(0) != 0 {
		return nil
	}
	return g.EnqueueBlock([]int{g.GlobalSize(0)}, nil, copyBlock)
}

func copyBlock(g *host.Group) error {
	in, out := g.Float32s(0), g.Float32s(1)
	g.ForEach(func(it host.Item) {
		i := it.Global[0]
		if i < len(in) && i < len(out) {
			out[i] = in[i]
		}
	})
	return nil
}

func hash(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

func randomImageReadKernel(g *host.Group) error {
	img := g.Image(0)
	if img == nil {
		return errors.New("RandomImageRead: argument 0 is not an image")
	}
	out := g.Bytes(1)
	w, h := uint32(img.Width()), uint32(img.Height())
	g.ForEach(func(it host.Item) {
		i := uint32(it.Global[0])
		r := hash(i)
		out[i] = byte(img.ReadUint(int(r%w), int((r>>16)%h))[0])
	})
	return nil
}

func ascending(g *host.Group) bool {
	v, ok := g.Define("ASCENDING")
	return !ok || v != "false"
}

func before(asc bool, a, b float32) bool {
	if asc {
		return a < b
	}
	return a > b
}

func bitonicSortLocalKernel(g *host.Group) error {
	size := g.DefineInt("WORK_GROUP_SIZE", 0)
	if size <= 0 || size&(size-1) != 0 {
		return errors.Errorf("bitonicSortLocal: WORK_GROUP_SIZE %d is not a power of two", size)
	}
	if g.LocalSize(0) != size {
		return errors.Errorf("bitonicSortLocal: local size %d, built for %d", g.LocalSize(0), size)
	}
	data := g.Float32s(0)
	base := g.ID(0) * size
	chunk := make([]float32, size)
	copy(chunk, data[base:base+size])

	asc := ascending(g)
	for width := 2; width <= size; width <<= 1 {
		for stride := width >> 1; stride > 0; stride >>= 1 {
			for lid := range chunk {
				partner := lid ^ stride
				if partner <= lid {
					continue
				}
				up := lid&width == 0
				if before(asc, chunk[partner], chunk[lid]) == up {
					chunk[lid], chunk[partner] = chunk[partner], chunk[lid]
				}
			}
		}
	}
	copy(data[base:], chunk)
	return nil
}

func mergeKernel(g *host.Group) error {
	in, out := g.Float32s(0), g.Float32s(1)
	chunkSize := int(g.Uint32(2))
	if chunkSize <= 0 {
		return errors.New("merge: chunkSize must be positive")
	}
	n := g.GlobalSize(0)
	asc := ascending(g)
	g.ForEach(func(it host.Item) {
		i := it.Global[0]
		chunk := i / chunkSize
		base := (chunk &^ 1) * chunkSize
		own := i - chunk*chunkSize
		left := chunk&1 == 0
		other := base
		if left {
			other = base + chunkSize
		}
		length := 0
		if other < n {
			length = min(chunkSize, n-other)
		}
		v := in[i]
		lo, hi := 0, length
		for lo < hi {
			mid := (lo + hi) / 2
			w := in[other+mid]
			var after bool
			if left {
				after = before(asc, w, v)
			} else {
				after = !before(asc, v, w)
			}
			if after {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		out[base+own+lo] = v
	})
	return nil
}
