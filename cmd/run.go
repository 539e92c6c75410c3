package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobscout-dev/jobscout/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultIntervalSeconds = 60

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the jobscout evaluation loop over stored job postings",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("once", "o", false, "evaluate the current backlog and exit instead of looping")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobscout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	workers := 0
	interval := defaultIntervalSeconds * time.Second
	requestsPerSecond := 0.0
	if config.Pipeline != nil {
		workers = config.Pipeline.Workers
		requestsPerSecond = config.Pipeline.RequestsPerSecond
		if config.Pipeline.IntervalSeconds > 0 {
			interval = time.Duration(config.Pipeline.IntervalSeconds) * time.Second
		}
	}

	jobs, err := openStore(config, workers, logger)
	if err != nil {
		logger.Fatal("opening the job store", zap.Error(err))
	}
	defer jobs.Close()

	evaluator, err := buildAgent(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the agent", zap.Error(err))
	}

	p := pipeline.New(jobs, evaluator, pipeline.Config{
		Workers:           workers,
		RequestsPerSecond: requestsPerSecond,
	}, logger)

	if cmd.Flag("once").Value.String() == "true" {
		updated, err := p.RunOnce(ctx)
		if err != nil {
			logger.Fatal("evaluation run failed", zap.Error(err))
		}

		logger.Info("exiting", zap.Int("updated", updated))
		return
	}

	logger.Info("starting the evaluation loop", zap.Duration("interval", interval))

	p.Run(ctx, interval)

	logger.Info("exiting", zap.String("reason", "shutdown signal received"))
}
