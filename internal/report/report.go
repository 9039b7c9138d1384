// Package report renders device, sample and tuning summaries for the CLI.
// It only reads snapshots and never talks to a driver.
package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/cwbudde/clhost/internal/cl"
	"github.com/cwbudde/clhost/internal/samples"
	"github.com/cwbudde/clhost/internal/tune"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func size(n uint64) string { return humanize.IBytes(n) }

// Platform writes one row per device of p.
func Platform(w io.Writer, p *cl.Platform) error {
	info := p.Info()
	if _, err := fmt.Fprintf(w, "%s (%s) %s, driver %s\n", info.Name, info.Vendor, info.Version, p.Driver().Name()); err != nil {
		return err
	}
	t := newTable([]string{"#", "Device", "Type", "Units", "Global mem", "Max alloc", "Group", "Version", "Enqueue"},
		lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	for i, dev := range p.Devices() {
		d := dev.Info()
		t.Row(!d.Available, fmt.Sprint(i), d.Name, d.Type.String(),
			fmt.Sprint(d.MaxComputeUnits), size(d.GlobalMemSize), size(d.MaxMemAllocSize),
			fmt.Sprint(d.MaxWorkGroupSize), d.Version, yesNo(d.DeviceEnqueue))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// Device writes the full capability record of dev.
func Device(w io.Writer, dev *cl.Device) error {
	d := dev.Info()
	sizes := make([]string, len(d.MaxWorkItemSizes))
	for i, s := range d.MaxWorkItemSizes {
		sizes[i] = fmt.Sprint(s)
	}
	major, minor := dev.Version()

	t := newTable(nil, lipgloss.Right, lipgloss.Left)
	rows := [][2]string{
		{"Name", d.Name},
		{"Vendor", d.Vendor},
		{"Version", fmt.Sprintf("%s (%d.%d)", d.Version, major, minor)},
		{"Driver version", d.DriverVersion},
		{"UUID", d.UUID},
		{"Type", d.Type.String()},
		{"Compute units", fmt.Sprint(d.MaxComputeUnits)},
		{"Clock", fmt.Sprintf("%d MHz", d.MaxClockFrequency)},
		{"Address bits", fmt.Sprint(d.AddressBits)},
		{"Work-item dimensions", fmt.Sprint(d.MaxWorkItemDimensions)},
		{"Work-item sizes", strings.Join(sizes, " x ")},
		{"Work-group size", fmt.Sprint(d.MaxWorkGroupSize)},
		{"Global memory", size(d.GlobalMemSize)},
		{"Max allocation", size(d.MaxMemAllocSize)},
		{"Local memory", size(d.LocalMemSize)},
		{"Constant buffer", size(d.MaxConstantBufferSize)},
		{"Timer resolution", fmt.Sprintf("%d ns", d.ProfilingTimerResolution)},
		{"Profiling", yesNo(dev.SupportsProfiling())},
		{"Out-of-order queues", yesNo(dev.SupportsOutOfOrder())},
		{"Device enqueue", yesNo(d.DeviceEnqueue)},
		{"Images", yesNo(d.ImageSupport)},
		{"Available", yesNo(d.Available)},
		{"Compiler", yesNo(d.CompilerAvailable)},
		{"Little endian", yesNo(d.LittleEndian)},
		{"ECC", yesNo(d.ErrorCorrection)},
	}
	for _, r := range rows {
		t.Row(false, r[0], r[1])
	}
	t.Row(false, "Extensions", strings.Join(strings.Fields(d.Extensions), "\n"))
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d)/float64(time.Millisecond))
}

// Sample writes the summary of one sample run.
func Sample(w io.Writer, r *samples.Result) error {
	t := newTable(nil, lipgloss.Right, lipgloss.Left)
	t.Row(false, "Sample", r.Sample)
	t.Row(false, "Work-items", humanize.Comma(int64(r.Items)))
	for _, f := range r.Fields {
		t.Row(false, f.Label, f.Value)
	}
	t.Row(false, "Total time", millis(r.Total))
	if r.KernelTime > 0 {
		t.Row(true, "Kernel time", millis(r.KernelTime))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// Tuning writes the fastest trials of a tuning run, up to top rows, with the
// baseline always listed.
func Tuning(w io.Writer, r *tune.Result, top int) error {
	trials := make([]tune.Trial, 0, len(r.Trials))
	for _, tr := range r.Trials {
		if tr.Err == nil {
			trials = append(trials, tr)
		}
	}
	slices.SortStableFunc(trials, func(a, b tune.Trial) int { return cmp.Compare(a.RunTime, b.RunTime) })
	if top > 0 && len(trials) > top {
		trials = trials[:top]
	}
	if !containsTrial(trials, r.Baseline) && r.Baseline.Err == nil {
		trials = append(trials, r.Baseline)
	}

	t := newTable([]string{"Local size", "Run time", "vs baseline"}, lipgloss.Left, lipgloss.Right)
	for _, tr := range trials {
		rel := "-"
		if tr.RunTime > 0 {
			rel = fmt.Sprintf("%.2fx", float64(r.Baseline.RunTime)/float64(tr.RunTime))
		}
		label := tr.String()
		if sameLocal(tr, r.Baseline) {
			label += " (baseline)"
		}
		t.Row(sameLocal(tr, r.Best), label, millis(tr.RunTime), rel)
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d candidates measured, best %s (%.2fx)\n",
		len(r.Trials), r.Space, r.Best, r.Speedup())
	return err
}

func sameLocal(a, b tune.Trial) bool {
	if (a.Local == nil) != (b.Local == nil) {
		return false
	}
	return fmt.Sprint(a.Local) == fmt.Sprint(b.Local)
}

func containsTrial(ts []tune.Trial, x tune.Trial) bool {
	for _, t := range ts {
		if sameLocal(t, x) {
			return true
		}
	}
	return false
}

