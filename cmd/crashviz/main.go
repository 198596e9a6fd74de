package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"crash-insights-go/internal/logger"
)

var log = logger.New()

var rootCmd = &cobra.Command{
	Use:           "crashviz",
	Short:         "Crash and crash-risk map showcase",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load() // loads .env

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
