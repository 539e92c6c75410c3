package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Evaluate a single job description from a file or stdin and print the verdicts",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		evaluate(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func evaluate(cmd *cobra.Command, args []string) {
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

	description, err := readDescription(args)
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	if strings.TrimSpace(description) == "" {
		logger.Fatal("job description is empty")
	}

	evaluator, err := buildAgent(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the agent", zap.Error(err))
	}

	results := evaluator.Evaluate(ctx, description)

	pretty, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Fatal("encoding verdicts", zap.Error(err))
	}

	fmt.Println(string(pretty))
}

func readDescription(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}

	return string(data), nil
}
