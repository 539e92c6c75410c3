package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jobscout-dev/jobscout/internal/agent"
	"github.com/jobscout-dev/jobscout/internal/inference"
	"github.com/jobscout-dev/jobscout/internal/inference/gemini"
	"github.com/jobscout-dev/jobscout/internal/inference/openaicompat"
	"github.com/jobscout-dev/jobscout/internal/logger"
	"github.com/jobscout-dev/jobscout/internal/secrets"
	"github.com/jobscout-dev/jobscout/internal/store"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetBool("json"), viper.GetBool("debug"))
}

func openStore(config *Config, workers int, log *zap.Logger) (*store.Store, error) {
	if config.Store == nil || config.Store.Path == "" {
		return nil, errors.New("store.path is required in the configuration file")
	}

	return store.Open(config.Store.Path, workers, log)
}

func buildAgent(ctx context.Context, config *Config, log *zap.Logger) (*agent.Agent, error) {
	if config.Agent == nil || config.Agent.Graph == "" {
		return nil, errors.New("agent.graph is required in the configuration file")
	}

	graph, err := agent.LoadGraph(config.Agent.Graph)
	if err != nil {
		return nil, fmt.Errorf("loading question graph: %w", err)
	}

	gen, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		return nil, err
	}

	return agent.New(agent.Config{
		Graph:        graph,
		Generator:    gen,
		PromptDir:    config.Agent.PromptDir,
		ContextFiles: config.Agent.Context,
		Logger:       log,
	})
}

// newGenerator builds the inference client for llmQuery nodes. A nil or empty
// AI section returns a nil generator, which is only an error for graphs that
// actually contain llmQuery nodes.
func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (inference.Generator, error) {
	if cfg == nil {
		return nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "gemini":
		if cfg.Gemini == nil {
			if provider == "" {
				return nil, nil
			}
			return nil, errors.New("gemini configuration is required when ai provider is gemini")
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		genLogger := logger.WithBackendFields(log, "gemini", cfg.Gemini.Model)

		return gemini.New(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	case "local":
		if cfg.Local == nil {
			return nil, errors.New("local configuration is required when ai provider is local")
		}

		genLogger := logger.WithBackendFields(log, "local", cfg.Local.Model)

		return openaicompat.New(cfg.Local.BaseURL, cfg.Local.Model, genLogger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}
