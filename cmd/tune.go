package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/cl"
	"github.com/cwbudde/clhost/internal/report"
	"github.com/cwbudde/clhost/internal/samples"
	"github.com/cwbudde/clhost/internal/store"
	"github.com/cwbudde/clhost/internal/tune"
)

var (
	tuneCfg    = tune.DefaultConfig(1 << 20)
	exhaustive bool
	showTop    int
	saveRecord bool
	reuse      bool
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search the work-group size of the add kernel",
	Long: `Times the add sample kernel for local sizes that divide the global size
and reports the fastest against the device's own choice. The search uses the
mayfly optimizer unless --exhaustive is given.

With --save the result and every trial are stored under --data-dir. With
--reuse a stored result for the same device and global size is printed
instead of measuring again.`,
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().IntSliceVar(&tuneCfg.Global, "global", tuneCfg.Global, "Global work size")
	tuneCmd.Flags().IntVar(&tuneCfg.Repeats, "repeats", tuneCfg.Repeats, "Launches per candidate")
	tuneCmd.Flags().IntVar(&tuneCfg.Iterations, "iters", tuneCfg.Iterations, "Max iterations")
	tuneCmd.Flags().IntVar(&tuneCfg.Population, "pop", tuneCfg.Population, "Population size (at least 20)")
	tuneCmd.Flags().Int64Var(&tuneCfg.Seed, "seed", tuneCfg.Seed, "Random seed")
	tuneCmd.Flags().BoolVar(&exhaustive, "exhaustive", false, "Measure every candidate")
	tuneCmd.Flags().IntVar(&showTop, "top", 10, "Number of trials to list")
	tuneCmd.Flags().BoolVar(&saveRecord, "save", false, "Store the result and trial trace")
	tuneCmd.Flags().BoolVar(&reuse, "reuse", false, "Print a stored result instead of tuning when one exists")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	if len(tuneCfg.Global) != 1 {
		return fmt.Errorf("the add kernel is one dimensional, got --global %v", tuneCfg.Global)
	}
	if !exhaustive && tuneCfg.Population < 20 {
		return fmt.Errorf("--pop must be at least 20, got %d", tuneCfg.Population)
	}
	n := tuneCfg.Global[0]

	sess, err := openSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()
	k, err := addKernel(sess, n)
	if err != nil {
		return err
	}

	dev := sess.ctx.Device()
	var records *store.FSStore
	if saveRecord || reuse {
		if records, err = openStore(); err != nil {
			return err
		}
	}
	if reuse {
		rec, err := records.FindBest(dev.Info().UUID, k.Name(), tuneCfg.Global)
		switch {
		case err == nil:
			slog.Info("Reusing stored tuning", "id", rec.ID)
			return report.Record(cmd.OutOrStdout(), rec, nil)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	tu, err := tune.New(sess.queue, k, tuneCfg)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	var trace *store.TraceWriter
	if saveRecord {
		if trace, err = store.NewTraceWriter(records.BaseDir(), id); err != nil {
			return err
		}
		defer trace.Close()
	}
	bar := progressbar.NewOptions(len(tu.Candidates())+1,
		progressbar.OptionSetDescription("Tuning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
	tu.OnTrial = func(t tune.Trial) {
		bar.Add(1)
		if trace != nil {
			if err := trace.WriteTrial(t); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		}
	}

	var res *tune.Result
	if exhaustive {
		res, err = tu.Exhaustive()
	} else {
		res, err = tu.Run(tune.NewMayfly(tuneCfg.Iterations, tuneCfg.Population, tuneCfg.Seed))
	}
	bar.Finish()
	if err != nil {
		return err
	}
	if err := report.Tuning(cmd.OutOrStdout(), res, showTop); err != nil {
		return err
	}
	if !saveRecord {
		return nil
	}
	rec := store.NewRecord(dev.Name(), dev.Info().UUID, k.Name(), tuneCfg.Global, res)
	rec.ID = id
	if err := records.SaveRecord(rec); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved tuning record %s\n", rec.ID)
	return err
}

// addKernel builds the add sample and binds buffers of n elements. The
// buffers and program are released with the session.
func addKernel(sess *session, n int) (*cl.Kernel, error) {
	src, err := samples.Source("add.cl")
	if err != nil {
		return nil, err
	}
	prog, err := sess.ctx.CreateProgramFromSource("add.cl", src)
	if err != nil {
		return nil, err
	}
	sess.scope.Add(prog)
	if err := prog.Build(); err != nil {
		return nil, err
	}
	args := make([]any, 0, 4)
	for range 3 {
		b, err := sess.ctx.CreateBuffer(4*n, cl.MemReadWrite, nil)
		if err != nil {
			return nil, err
		}
		sess.scope.Add(b)
		args = append(args, b)
	}
	k, err := prog.Kernel("Add")
	if err != nil {
		return nil, err
	}
	sess.scope.Add(k)
	if err := k.SetArgs(append(args, uint32(1))...); err != nil {
		return nil, err
	}
	return k, nil
}
