package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/report"
	"github.com/cwbudde/clhost/internal/samples"
)

var (
	sampleCfg = samples.DefaultConfig()
	profiling bool
)

var runCmd = &cobra.Command{
	Use:   "run [sample...]",
	Short: "Run sample programs",
	Long: fmt.Sprintf(`Runs the named sample programs, or all of them when none is named.

Samples: %s`, strings.Join(samples.Names(), ", ")),
	RunE: runSamples,
}

func init() {
	runCmd.Flags().IntVar(&sampleCfg.N, "n", sampleCfg.N, "Element count of the add and sort samples")
	runCmd.Flags().IntVar(&sampleCfg.EnqueueN, "enqueue-n", sampleCfg.EnqueueN, "Element count of the enqueue sample")
	runCmd.Flags().IntVar(&sampleCfg.Width, "width", sampleCfg.Width, "Image width of the image sample")
	runCmd.Flags().IntVar(&sampleCfg.Height, "height", sampleCfg.Height, "Image height of the image sample")
	runCmd.Flags().StringVar(&sampleCfg.KernelDir, "kernels", "", "Directory to load kernel sources from instead of the embedded ones")
	runCmd.Flags().BoolVar(&sampleCfg.Descending, "descending", false, "Sort largest first")
	runCmd.Flags().Int64Var(&sampleCfg.Seed, "seed", sampleCfg.Seed, "Random seed")
	runCmd.Flags().BoolVar(&profiling, "profiling", true, "Enable queue profiling")
	rootCmd.AddCommand(runCmd)
}

func runSamples(cmd *cobra.Command, args []string) error {
	var selected []samples.Sample
	if len(args) == 0 {
		selected = samples.All()
	}
	for _, name := range args {
		s, ok := samples.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown sample %q (have %s)", name, strings.Join(samples.Names(), ", "))
		}
		selected = append(selected, s)
	}

	sess, err := openSession(profiling)
	if err != nil {
		return err
	}
	defer sess.Close()

	var failed []error
	for _, s := range selected {
		slog.Info("Running sample", "sample", s.Name)
		if s.NeedsDeviceQueue && !sess.ctx.Device().SupportsEnqueue() {
			slog.Warn("device does not support device-side enqueue", "sample", s.Name)
		}
		res, err := s.Run(sess.env(), sampleCfg)
		if err != nil {
			slog.Error("Sample failed", "sample", s.Name, "err", err)
			failed = append(failed, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		if err := report.Sample(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	}
	return errors.Join(failed...)
}
