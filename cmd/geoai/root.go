package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/ifaistartup/go-geoai/pipeline"
	"github.com/spf13/cobra"
)

var (
	configPath string
	outputDir  string
	noZip      bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "geoai",
	Short:         "Detect and map objects on aerial, satellite and 360° imagery",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if cmd.Flags().Changed("output") {
			cfg.Run.OutputDir = outputDir
		}

		if noZip {
			cfg.Run.Zip = false
		}

		return log.Init(cfg.Log.Level, cfg.Log.Development)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "geoai.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Directory receiving the published results")
	rootCmd.PersistentFlags().BoolVar(&noZip, "no-zip", false, "Publish result directories instead of zip archives")
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM
func Execute() error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	if err != nil {
		fmt.Fprintf(os.Stderr, "geoai: %v\n", err)
	}

	return err
}

// newPool connects to the configured inference servers
func newPool() (*geoai.Pool, error) {

	opts := []geoai.TritonOption{geoai.WithTimeout(cfg.Backend.InferenceTimeout.Duration)}

	if cfg.Backend.RPS > 0 {
		opts = append(opts, geoai.WithRateLimit(cfg.Backend.RPS))
	}

	if cfg.Backend.JSONTensor {
		opts = append(opts, geoai.WithJSONTensors())
	}

	return geoai.NewTritonPool(cfg.Backend.URLs, opts...)
}

// withRunner runs fn with a runner over a fresh backend pool
func withRunner(fn func(r *pipeline.Runner) error) error {

	pool, err := newPool()

	if err != nil {
		return err
	}

	defer pool.Close()

	r, err := pipeline.New(cfg, pool)

	if err != nil {
		return err
	}

	return fn(r)
}
