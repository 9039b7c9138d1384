package host

import (
	"encoding/binary"
	"math"
	"strconv"
	"unsafe"

	"github.com/cwbudde/clhost/internal/driver"
)

// Group is the execution state of one work-group handed to a KernelFunc.
// Argument accessors take the kernel parameter index.
type Group struct {
	disp   *dispatch
	id     [3]int
	size   [3]int
	groups [3]int
	locals [][]byte
}

// Item identifies one work-item of a group.
type Item struct {
	Global [3]int
	Local  [3]int
}

// Dims is the number of dimensions of the launch.
func (g *Group) Dims() int { return g.disp.dims }

// ID is the group id in dimension dim.
func (g *Group) ID(dim int) int { return g.id[dim] }

// LocalSize is the number of work-items of this group in dimension dim.
func (g *Group) LocalSize(dim int) int { return g.size[dim] }

// EnqueuedLocalSize is the local size requested at launch.
func (g *Group) EnqueuedLocalSize(dim int) int { return g.disp.local[dim] }

// GlobalSize is the launch size in dimension dim.
func (g *Group) GlobalSize(dim int) int { return g.disp.global[dim] }

// GlobalOffset is the launch offset in dimension dim.
func (g *Group) GlobalOffset(dim int) int { return g.disp.offset[dim] }

// NumGroups is the number of work-groups in dimension dim.
func (g *Group) NumGroups(dim int) int { return g.groups[dim] }

// ForEach calls fn for every work-item of the group, x varying fastest.
func (g *Group) ForEach(fn func(it Item)) {
	var it Item
	for z := 0; z < g.size[2]; z++ {
		for y := 0; y < g.size[1]; y++ {
			for x := 0; x < g.size[0]; x++ {
				it.Local = [3]int{x, y, z}
				for i := range it.Global {
					it.Global[i] = g.disp.offset[i] + g.id[i]*g.disp.local[i] + it.Local[i]
				}
				fn(it)
			}
		}
	}
}

// Bytes returns the memory bound to a __global or __local argument.
func (g *Group) Bytes(arg int) []byte {
	a := g.disp.args[arg]
	switch a.kind {
	case paramLocal:
		return g.locals[arg]
	case paramGlobal, paramImage:
		if a.mem != nil {
			return a.mem.data
		}
	}
	return nil
}

func view[T any](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// Float32s views a memory argument as float32 elements.
func (g *Group) Float32s(arg int) []float32 { return view[float32](g.Bytes(arg)) }

// Int32s views a memory argument as int32 elements.
func (g *Group) Int32s(arg int) []int32 { return view[int32](g.Bytes(arg)) }

// Uint32s views a memory argument as uint32 elements.
func (g *Group) Uint32s(arg int) []uint32 { return view[uint32](g.Bytes(arg)) }

// Value returns the raw bytes of a by-value argument.
func (g *Group) Value(arg int) []byte { return g.disp.args[arg].value }

func (g *Group) Uint32(arg int) uint32 {
	v := g.Value(arg)
	if len(v) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

func (g *Group) Int32(arg int) int32 { return int32(g.Uint32(arg)) }

func (g *Group) Float32(arg int) float32 { return math.Float32frombits(g.Uint32(arg)) }

func (g *Group) Uint64(arg int) uint64 {
	v := g.Value(arg)
	if len(v) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}

// Image returns the image bound to an image argument, or nil.
func (g *Group) Image(arg int) *ImageView {
	m := g.disp.args[arg].mem
	if m == nil || m.image == nil {
		return nil
	}
	return &ImageView{info: m.image, data: m.data}
}

// Define returns the value of a macro defined by the build options or source.
func (g *Group) Define(name string) (string, bool) {
	v, ok := g.disp.defines[name]
	return v, ok
}

// DefineInt returns an integer macro value or fallback.
func (g *Group) DefineInt(name string, fallback int) int {
	v, ok := g.disp.defines[name]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnqueueBlock schedules fn on the context's default device queue. The block
// shares this launch's arguments and runs after every group of the launch
// has finished. A nil local size lets the device choose.
func (g *Group) EnqueueBlock(global, local []int, fn KernelFunc) error {
	child, err := g.disp.child(global, local, fn)
	if err != nil {
		return err
	}
	g.disp.mu.Lock()
	g.disp.children = append(g.disp.children, child)
	g.disp.mu.Unlock()
	return nil
}

// Format returns the image format of the view.
func (v *ImageView) Format() driver.ImageFormat { return v.info.format }
