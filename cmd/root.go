package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jobscout"
)

type Config struct {
	Store    *StoreConfig    `mapstructure:"store"`
	Agent    *AgentConfig    `mapstructure:"agent"`
	Pipeline *PipelineConfig `mapstructure:"pipeline"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type AgentConfig struct {
	Graph     string            `mapstructure:"graph"`
	PromptDir string            `mapstructure:"prompt-dir"`
	Context   map[string]string `mapstructure:"context"`
}

type PipelineConfig struct {
	Workers           int     `mapstructure:"workers"`
	IntervalSeconds   int     `mapstructure:"interval-seconds"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	Local    *LocalConfig  `mapstructure:"local"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type LocalConfig struct {
	BaseURL string `mapstructure:"base-url"`
	Model   string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobscout evaluates stored job postings against a decision tree of screening rules",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobscout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
