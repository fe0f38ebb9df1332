package main

import (
	"os"

	"github.com/spf13/cobra"

	"topicref/infrastructure/config"
	"topicref/pkg/common"
)

// Global flag values.
var (
	flagEnvFiles []string
	flagDev      bool
)

var rootCmd = &cobra.Command{
	Use:           "api",
	Short:         "Topic and reference catalog backed by a graph store",
	Version:       common.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", nil, "dotenv files to load (default: .env,.secrets.env)")
	rootCmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "development mode: verbose logs and error causes in responses")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig applies --dev before the environment is decoded so that it
// wins over ENVIRONMENT from any env file.
func loadConfig() (*config.Config, error) {
	if flagDev {
		if err := os.Setenv("ENVIRONMENT", "development"); err != nil {
			return nil, err
		}
		if os.Getenv("LOG_LEVEL") == "" {
			if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
				return nil, err
			}
		}
	}
	return config.Load(flagEnvFiles...)
}
