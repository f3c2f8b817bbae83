// Package main is the entry point for the game price tracker.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	var configDir string
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Game price tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "config", "directory containing config.yaml")

	root.AddCommand(newServeCmd(&configDir))
	root.AddCommand(newSweepCmd(&configDir))
	root.AddCommand(newMigrateCmd(&configDir))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
