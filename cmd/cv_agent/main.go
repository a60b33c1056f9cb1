// Package main provides the cv_agent command: the HTTP API server plus offline and
// database-backed tools for tailoring CVs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/config"
	"github.com/jonathan/cv-tailor/internal/logging"
)

var (
	configPath string
	flagCfg    config.Config

	// Set by PersistentPreRunE.
	appCfg config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "cv_agent",
	Short:         "Tailor CVs to job descriptions with a configurable model provider",
	Long:          "cv_agent rewrites selected sections of a stored CV for a job description, using the model provider configured for the user, their organization or the deployment.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(configPath, flagCfg, os.Getenv)
		if err != nil {
			return err
		}
		appCfg = cfg

		logger, err = logging.New(appCfg.Verbose)
		return err
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a JSON or YAML config file")
	flags.BoolVarP(&flagCfg.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&flagCfg.DatabaseURL, "db-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flags.StringVar(&flagCfg.LLM.Provider, "provider", "", "Default provider: openai, anthropic, gemini, ollama or local-device")
	flags.StringVar(&flagCfg.LLM.Model, "model", "", "Default model for --provider")
	flags.StringVar(&flagCfg.LLM.BaseEndpoint, "base-endpoint", "", "Base endpoint for --provider")
}

// resolveConfig layers the config file, the environment and the flags, in that
// order of increasing precedence.
func resolveConfig(path string, flags config.Config, getenv func(string) string) (config.Config, error) {
	var fileCfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, err
		}
		fileCfg = *loaded
	}
	if err := fileCfg.ApplyEnv(getenv); err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}

	merged := flags.MergeWithDefaults(fileCfg)
	merged.Verbose = flags.Verbose || fileCfg.Verbose
	merged.UseBrowser = flags.UseBrowser || fileCfg.UseBrowser
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	return merged, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
