package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clhost/internal/backend"
	"github.com/cwbudde/clhost/internal/cl"
	"github.com/cwbudde/clhost/internal/driver/host"
	"github.com/cwbudde/clhost/internal/samples"
)

var (
	logLevel      string
	logger        *slog.Logger
	backendName   string
	platformIndex int
	deviceEnqueue bool
	dataDir       string
)

var rootCmd = &cobra.Command{
	Use:   "clhost",
	Short: "Host-side control layer for OpenCL style compute devices",
	Long: `clhost discovers compute devices, builds kernel programs and runs
sample workloads through in-order command queues with profiling.
The host backend emulates a device in Go and needs no GPU.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		cl.SetLogger(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "host", "Compute backend (host, opencl)")
	rootCmd.PersistentFlags().IntVar(&platformIndex, "platform", 0, "OpenCL platform index")
	rootCmd.PersistentFlags().BoolVar(&deviceEnqueue, "device-enqueue", true, "Host backend: report device-side enqueue support")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for tuning records")
}

// openPlatform constructs the selected backend with the sample kernels.
func openPlatform() (*cl.Platform, error) {
	drv, err := backend.Open(backendName, backend.Config{
		PlatformIndex: platformIndex,
		HostOptions: []host.Option{
			host.WithLibrary(samples.Library()),
			host.WithLogger(logger),
			host.WithDeviceEnqueue(deviceEnqueue),
		},
	})
	if err != nil {
		return nil, err
	}
	return cl.Open(drv)
}

// session is a context and queue on the preferred device.
type session struct {
	platform *cl.Platform
	ctx      *cl.Context
	queue    *cl.Queue
	scope    cl.Scope
}

func openSession(profiling bool) (*session, error) {
	p, err := openPlatform()
	if err != nil {
		return nil, err
	}
	dev, err := p.SelectDevice(cl.DeviceTypeAll)
	if err != nil {
		return nil, err
	}
	s := &session{platform: p}
	if s.ctx, err = p.CreateContext(dev); err != nil {
		return nil, err
	}
	s.scope.Add(s.ctx)
	if s.queue, err = s.ctx.CreateQueue(profiling && dev.SupportsProfiling()); err != nil {
		s.scope.Close()
		return nil, err
	}
	s.scope.Add(s.queue)
	slog.Info("Session opened", "device", dev.Name(), "backend", backendName, "profiling", s.queue.Profiling())
	return s, nil
}

func (s *session) env() samples.Env { return samples.Env{Context: s.ctx, Queue: s.queue} }

func (s *session) Close() error {
	if err := s.queue.Finish(); err != nil {
		slog.Warn("finish failed", "err", err)
	}
	return s.scope.Close()
}
