package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"seat-reservation/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries state resolved once by the root command for its subcommands.
type cli struct {
	envFile string
	cfg     *utils.Config
	log     *zap.Logger
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx := withSignalCancel(context.Background())
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:           "seat-reservation",
		Short:         "Concurrency-safe seat reservation service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "path to the env file with configuration")

	cmd.AddCommand(
		newServeCommand(c),
		newMigrateCommand(c),
		newSeedCommand(c),
		newSweepCommand(c),
	)
	return cmd
}

func (c *cli) init() error {
	config, err := utils.LoadConfig(c.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = config

	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	c.log = logger
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
