// Package samples holds the demonstration programs run by the clhost CLI.
// Each sample drives a complete host-side flow: buffers, program build,
// kernel dispatch, read back and a check of the results.
package samples

import (
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
)

//go:embed kernels/*.cl
var kernelFS embed.FS

// Config holds the tunable sizes of the samples.
type Config struct {
	// N is the element count of the add and sort samples.
	N int
	// EnqueueN is the element count of the nested enqueue sample.
	EnqueueN int
	// Width and Height size the image of the image read sample.
	Width, Height int
	// KernelDir, when set, loads kernel sources from disk instead of the
	// embedded copies.
	KernelDir string
	// Descending sorts largest first.
	Descending bool
	Seed       int64
}

// DefaultConfig returns sizes that finish quickly on the host device.
func DefaultConfig() Config {
	return Config{
		N:        1 << 20,
		EnqueueN: 10,
		Width:    1024,
		Height:   1024,
		Seed:     1,
	}
}

// Env is the context and queue a sample runs on.
type Env struct {
	Context *cl.Context
	Queue   *cl.Queue
}

// Field is one labelled line of a sample report.
type Field struct {
	Label string
	Value string
}

// Result summarises one sample run.
type Result struct {
	Sample string
	// Items is the number of work-items launched by the main kernel.
	Items int
	// Total is the wall time of the whole run including setup.
	Total time.Duration
	// KernelTime is the profiled run time of the main kernel, zero when the
	// queue does not profile.
	KernelTime time.Duration
	Fields     []Field
}

func (r *Result) add(label, format string, args ...any) {
	r.Fields = append(r.Fields, Field{Label: label, Value: fmt.Sprintf(format, args...)})
}

// Sample is a runnable demonstration.
type Sample struct {
	Name        string
	Description string
	// NeedsDeviceQueue is set for samples that launch kernels from the device.
	NeedsDeviceQueue bool
	Run              func(env Env, cfg Config) (*Result, error)
}

var registry = map[string]Sample{}

func register(s Sample) { registry[s.Name] = s }

// All returns the samples sorted by name.
func All() []Sample {
	out := make([]Sample, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a sample by name.
func Lookup(name string) (Sample, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names lists the registered sample names.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	return names
}

// Source returns the embedded source of a kernel file.
func Source(file string) (string, error) {
	b, err := kernelFS.ReadFile("kernels/" + file)
	if err != nil {
		return "", errors.Wrapf(err, "kernel source %s", file)
	}
	return string(b), nil
}

// buildProgram creates and builds file from cfg.KernelDir or the embedded
// sources.
func buildProgram(ctx *cl.Context, cfg Config, file string, options ...string) (*cl.Program, error) {
	if cfg.KernelDir != "" {
		return ctx.CreateProgram(filepath.Join(cfg.KernelDir, file), options...)
	}
	src, err := Source(file)
	if err != nil {
		return nil, err
	}
	p, err := ctx.CreateProgramFromSource(file, src)
	if err != nil {
		return nil, err
	}
	if err := p.Build(options...); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// kernelTime reads the run time of ev when profiling is on.
func kernelTime(q *cl.Queue, ev *cl.Event) (time.Duration, error) {
	if !q.Profiling() {
		return 0, nil
	}
	return ev.RunTime()
}
