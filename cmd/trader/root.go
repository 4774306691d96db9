package main

import (
	"fmt"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"

	"renkotrader/internal/obs"
	"renkotrader/internal/ops"
)

// cli carries state shared by every subcommand. It is filled in by the root
// command's pre-run hook.
type cli struct {
	configPath string
	logLevel   string
	pyroscope  bool

	cfg      ops.Loaded
	// root is handed to components, which tag themselves; log is the CLI's own.
	root     logs.Logger
	log      logs.Logger
	profiler *pyroscope.Profiler
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "renkotrader",
		Short: "Renko brick pattern trader",
		Long: `renkotrader converts ticks into fixed-size Renko bricks, detects two
entry setups on them and routes risk-sized stop entries to a venue.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			c.teardown()
			return nil
		},
	}

	root.AddCommand(newRunCmd(c))
	root.AddCommand(newSimulateCmd(c))
	root.AddCommand(newExportCmd(c))
	root.AddCommand(newConfigCmd(c))

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file path")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.pyroscope, "pyroscope", false, "Push continuous profiles to pyroscope")

	return root
}

func (c *cli) setup() error {
	cfg, err := ops.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.root = obs.NewLogger(cfg.LogLevel, "")
	c.log = obs.Component(c.root, "trader")

	if c.pyroscope || cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags: map[string]string{
				"mode": cfg.Mode,
			},
			Logger: profilerLogger{log: obs.Component(c.root, "pyroscope")},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		c.profiler = profiler
	}
	return nil
}

func (c *cli) teardown() {
	if c.profiler != nil {
		_ = c.profiler.Stop()
		c.profiler = nil
	}
}

// profilerLogger only surfaces profiler errors; its info chatter is debug.
type profilerLogger struct {
	log logs.Logger
}

func (l profilerLogger) Infof(format string, args ...interface{})  { l.log.Debugf(format, args...) }
func (l profilerLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l profilerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
