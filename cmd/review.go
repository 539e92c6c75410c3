package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/jobscout-dev/jobscout/internal/store"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	promptDone = "done"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively mark evaluated postings as applied",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().IntP("window", "w", 7, "review postings inserted in the last N days")
}

func review(cmd *cobra.Command) {
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

	db, err := openStore(config, 0, logger)
	if err != nil {
		logger.Fatal("opening the job store", zap.Error(err))
	}
	defer db.Close()

	windowDays, _ := cmd.Flags().GetInt("window")
	records, err := db.FetchRecent(ctx, windowDays)
	if err != nil {
		logger.Fatal("fetching recent postings", zap.Error(err))
	}

	candidates := make([]store.JobRecord, 0, len(records))
	for _, rec := range records {
		if rec.AgentResponse != nil && !rec.Applied {
			candidates = append(candidates, rec)
		}
	}

	if len(candidates) == 0 {
		logger.Info("exiting", zap.String("reason", "no evaluated unapplied postings in the window"))
		return
	}

	logger.Info("postings awaiting review", zap.Int("count", len(candidates)))

	for {
		items := make([]string, 0, len(candidates)+1)
		for _, rec := range candidates {
			items = append(items, fmt.Sprintf("%d %s / %s / %s", rec.ID, rec.Title, rec.PostingID, rec.PostingURL))
		}
		items = append(items, promptDone)

		prompt := promptui.Select{
			Label: "Mark a posting as applied and press ENTER",
			Items: items,
		}

		_, selected, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if selected == promptDone {
			return
		}

		id, err := strconv.ParseInt(strings.Split(selected, " ")[0], 10, 64)
		if err != nil {
			logger.Fatal("parsing selected posting id", zap.Error(err))
		}

		if err := db.UpdateAppliedStatus(ctx, []store.AppliedUpdate{{ID: id, Applied: true}}); err != nil {
			logger.Fatal("updating applied status", zap.Error(err))
		}

		logger.Info("marked as applied", zap.Int64("id", id))

		remaining := candidates[:0]
		for _, rec := range candidates {
			if rec.ID != id {
				remaining = append(remaining, rec)
			}
		}
		candidates = remaining

		if len(candidates) == 0 {
			logger.Info("exiting", zap.String("reason", "all postings reviewed"))
			return
		}
	}
}
