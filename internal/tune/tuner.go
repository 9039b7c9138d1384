// Package tune searches kernel work-group sizes by timing real launches.
//
// Candidates are local sizes whose components divide the global size and fit
// the device and kernel limits. Each candidate is launched on a profiling
// queue and scored by its fastest run time.
package tune

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/cwbudde/clhost/internal/cl"
)

// Config controls a tuning run.
type Config struct {
	// Global is the launch size, one to three dimensions.
	Global []int
	// Repeats is the number of launches per candidate.
	Repeats int
	// Iterations and Population size the mayfly search.
	Iterations int
	Population int
	Seed       int64
}

// DefaultConfig returns a small search for global.
func DefaultConfig(global ...int) Config {
	return Config{Global: global, Repeats: 3, Iterations: 20, Population: 20, Seed: 42}
}

// Trial is the measurement of one local size. A nil Local lets the device
// choose.
type Trial struct {
	Local   []int
	RunTime time.Duration
	Err     error
}

func (t Trial) String() string {
	if t.Local == nil {
		return "device choice"
	}
	return fmt.Sprint(t.Local)
}

// Result is the outcome of a tuning run.
type Result struct {
	// Baseline is the square tile heuristic for 2D launches and the
	// device's own choice otherwise.
	Baseline Trial
	Best     Trial
	// Trials lists every distinct measurement in the order it was taken.
	Trials []Trial
	// Space is the number of valid candidates.
	Space int
}

// Speedup is Baseline over Best run time.
func (r *Result) Speedup() float64 {
	if r.Best.RunTime <= 0 {
		return 0
	}
	return float64(r.Baseline.RunTime) / float64(r.Best.RunTime)
}

// Tuner times launches of one kernel on one queue. The kernel arguments must
// be set before tuning and are left unchanged.
type Tuner struct {
	queue    *cl.Queue
	kernel   *cl.Kernel
	cfg      Config
	limit    int
	choices  [][]int
	measured map[string]Trial
	order    []Trial
	logger   *slog.Logger

	// OnTrial, when set, is called after every new measurement.
	OnTrial func(Trial)
}

// New prepares a tuner for k launched over cfg.Global on q.
func New(q *cl.Queue, k *cl.Kernel, cfg Config) (*Tuner, error) {
	if !q.Profiling() {
		return nil, errors.Wrap(cl.ErrProfilingUnavailable, "tune: queue was created without profiling")
	}
	if len(cfg.Global) < 1 || len(cfg.Global) > 3 {
		return nil, errors.Wrapf(cl.ErrInvalidWorkSize, "tune: %d dimensions", len(cfg.Global))
	}
	if cfg.Repeats < 1 {
		cfg.Repeats = 1
	}
	limit, err := k.WorkGroupSize()
	if err != nil {
		return nil, err
	}
	info := q.Context().Device().Info()

	t := &Tuner{
		queue:    q,
		kernel:   k,
		cfg:      cfg,
		limit:    limit,
		measured: make(map[string]Trial),
		logger:   cl.Logger().With("kernel", k.Name()),
	}
	for d, g := range cfg.Global {
		if g < 1 {
			return nil, errors.Wrapf(cl.ErrInvalidWorkSize, "tune: global size %d in dimension %d", g, d)
		}
		bound := limit
		if d < len(info.MaxWorkItemSizes) {
			bound = min(bound, int(info.MaxWorkItemSizes[d]))
		}
		var ds []int
		for _, f := range divisors(g) {
			if f <= bound {
				ds = append(ds, f)
			}
		}
		t.choices = append(t.choices, ds)
	}
	return t, nil
}

// divisors returns the divisors of n in ascending order.
func divisors(n int) []int {
	var lo, hi []int
	for i := 1; i*i <= n; i++ {
		if n%i == 0 {
			lo = append(lo, i)
			if i != n/i {
				hi = append(hi, n/i)
			}
		}
	}
	slices.Reverse(hi)
	return append(lo, hi...)
}

// Valid reports whether local fits the global size and the limits.
func (t *Tuner) Valid(local []int) bool {
	if len(local) != len(t.cfg.Global) {
		return false
	}
	total := 1
	for d, l := range local {
		if !slices.Contains(t.choices[d], l) {
			return false
		}
		total *= l
	}
	return total <= t.limit
}

// Candidates enumerates every valid local size.
func (t *Tuner) Candidates() [][]int {
	var out [][]int
	var walk func(d int, cur []int)
	walk = func(d int, cur []int) {
		if d == len(t.choices) {
			if t.Valid(cur) {
				out = append(out, slices.Clone(cur))
			}
			return
		}
		for _, c := range t.choices[d] {
			walk(d+1, append(cur, c))
		}
	}
	walk(0, nil)
	return out
}

// Measure launches the kernel Repeats times with local and records the
// fastest run. Results are cached per local size.
func (t *Tuner) Measure(local []int) Trial {
	key := fmt.Sprint(local)
	if tr, ok := t.measured[key]; ok {
		return tr
	}
	tr := Trial{Local: slices.Clone(local), RunTime: -1}
	for range t.cfg.Repeats {
		d, err := t.launch(local)
		if err != nil {
			tr.Err = err
			break
		}
		if tr.RunTime < 0 || d < tr.RunTime {
			tr.RunTime = d
		}
	}
	t.measured[key] = tr
	t.order = append(t.order, tr)
	t.logger.Debug("measured", "local", tr.String(), "run_time", tr.RunTime, "err", tr.Err)
	if t.OnTrial != nil {
		t.OnTrial(tr)
	}
	return tr
}

func (t *Tuner) launch(local []int) (time.Duration, error) {
	var ev *cl.Event
	if err := t.queue.Dispatch(t.kernel, cl.NDRange{Global: t.cfg.Global, Local: local}, cl.Completion(&ev)); err != nil {
		return 0, err
	}
	defer ev.Release()
	if err := ev.Wait(); err != nil {
		return 0, err
	}
	return ev.RunTime()
}

// Baseline measures the square tile for 2D launches when it divides the
// global size, and the device's own choice otherwise.
func (t *Tuner) Baseline() (Trial, error) {
	if len(t.cfg.Global) == 2 {
		tile, err := t.kernel.SquareWorkGroupSize2D()
		if err != nil {
			return Trial{}, err
		}
		if local := tile[:]; t.Valid(local) {
			return t.Measure(local), nil
		}
	}
	return t.Measure(nil), nil
}

// cost maps a point of the unit cube to a candidate and scores it.
func (t *Tuner) cost(x []float64) float64 {
	local := make([]int, len(t.choices))
	for d, c := range t.choices {
		i := int(x[d] * float64(len(c)))
		local[d] = c[max(0, min(i, len(c)-1))]
	}
	if !t.Valid(local) {
		return math.Inf(1)
	}
	tr := t.Measure(local)
	if tr.Err != nil {
		return math.Inf(1)
	}
	return float64(tr.RunTime)
}

// Run searches with opt. The best trial is the fastest of every measurement
// including the baseline.
func (t *Tuner) Run(opt Optimizer) (*Result, error) {
	base, err := t.Baseline()
	if err != nil {
		return nil, err
	}
	if base.Err != nil {
		return nil, errors.Wrapf(base.Err, "tune: baseline %s", base)
	}
	dim := len(t.choices)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range upper {
		upper[i] = 1
	}
	t.logger.Info("Tuning work-group size", "global", fmt.Sprint(t.cfg.Global), "baseline", base.String())
	opt.Run(t.cost, lower, upper, dim)
	return t.result(base), nil
}

// Exhaustive measures every candidate.
func (t *Tuner) Exhaustive() (*Result, error) {
	base, err := t.Baseline()
	if err != nil {
		return nil, err
	}
	if base.Err != nil {
		return nil, errors.Wrapf(base.Err, "tune: baseline %s", base)
	}
	for _, c := range t.Candidates() {
		t.Measure(c)
	}
	return t.result(base), nil
}

func (t *Tuner) result(base Trial) *Result {
	res := &Result{Baseline: base, Trials: slices.Clone(t.order), Space: len(t.Candidates()), Best: base}
	for _, tr := range t.order {
		if tr.Err == nil && tr.RunTime < res.Best.RunTime {
			res.Best = tr
		}
	}
	t.logger.Info("Tuning finished", "best", res.Best.String(), "run_time", res.Best.RunTime, "trials", len(res.Trials))
	return res
}
