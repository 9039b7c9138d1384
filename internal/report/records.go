package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/cwbudde/clhost/internal/store"
)

func localSize(l []int) string {
	if l == nil {
		return "device choice"
	}
	return fmt.Sprint(l)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Records writes one row per stored tuning record.
func Records(w io.Writer, infos []store.RecordInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No tuning records found.")
		return err
	}
	t := newTable([]string{"ID", "Device", "Kernel", "Global", "Best", "Run time", "Speedup", "Recorded"},
		lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, info := range infos {
		t.Row(false, shortID(info.ID), info.Device, info.Kernel, fmt.Sprint(info.Global),
			localSize(info.Best), millis(info.BestRunTime), fmt.Sprintf("%.2fx", info.Speedup),
			humanize.Time(info.Timestamp))
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Total records: %d\n", len(infos))
	return err
}

// Record writes a stored tuning record followed by its trace.
func Record(w io.Writer, rec *store.Record, trace []store.TraceEntry) error {
	t := newTable(nil, lipgloss.Right, lipgloss.Left)
	t.Row(false, "ID", rec.ID)
	t.Row(false, "Device", fmt.Sprintf("%s (%s)", rec.Device, rec.DeviceUUID))
	t.Row(false, "Kernel", rec.Kernel)
	t.Row(false, "Global", fmt.Sprint(rec.Global))
	t.Row(false, "Baseline", fmt.Sprintf("%s, %s", localSize(rec.Baseline), millis(rec.BaselineRunTime)))
	t.Row(true, "Best", fmt.Sprintf("%s, %s (%.2fx)", localSize(rec.Best), millis(rec.BestRunTime), rec.Speedup()))
	t.Row(false, "Measured", fmt.Sprintf("%d of %d", rec.Trials, rec.Space))
	t.Row(false, "Recorded", rec.Timestamp.Format("2006-01-02 15:04:05"))
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	if len(trace) == 0 {
		return nil
	}

	tt := newTable([]string{"#", "Local size", "Run time", "Error"}, lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Left)
	for _, e := range trace {
		tt.Row(e.Error == "" && fmt.Sprint(e.Local) == fmt.Sprint(rec.Best),
			fmt.Sprint(e.Seq), localSize(e.Local), millis(e.RunTime), e.Error)
	}
	_, err := fmt.Fprintln(w, tt.Render())
	return err
}
