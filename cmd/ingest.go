package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jobscout-dev/jobscout/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load scraped job postings from a YAML or JSON file into the store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ingest(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntP("window", "w", 7, "report how many stored postings fall into the last N days after loading")
}

func ingest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	jobs, err := loadPostings(args[0])
	if err != nil {
		logger.Fatal("loading postings file", zap.Error(err))
	}

	if len(jobs) == 0 {
		logger.Info("exiting", zap.String("reason", "no postings found in file"))
		return
	}

	db, err := openStore(config, 0, logger)
	if err != nil {
		logger.Fatal("opening the job store", zap.Error(err))
	}
	defer db.Close()

	if err := db.UpsertJobs(ctx, jobs); err != nil {
		logger.Fatal("storing postings", zap.Error(err))
	}

	logger.Info("stored postings", zap.Int("count", len(jobs)))

	windowDays, _ := cmd.Flags().GetInt("window")
	recent, err := db.FetchRecent(ctx, windowDays)
	if err != nil {
		logger.Fatal("fetching recent postings", zap.Error(err))
	}

	evaluated := 0
	for _, rec := range recent {
		if rec.AgentResponse != nil {
			evaluated++
		}
	}

	logger.Info("recent postings in store",
		zap.Int("window_days", windowDays),
		zap.Int("count", len(recent)),
		zap.Int("evaluated", evaluated),
	)
}

// loadPostings parses either a YAML or JSON list of postings; yaml.v3 handles
// both since JSON is a YAML subset.
func loadPostings(path string) ([]store.JobUpsert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var jobs []store.JobUpsert
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return jobs, nil
}
