package main

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/jobfed/internal/config"
	"github.com/kailas-cloud/jobfed/internal/version"
)

const appName = "jobfed"

var (
	// Used for flags.
	envName  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:          appName,
		Short:        "jobfed aggregates job postings from many sources into one ranked list",
		Version:      version.String(),
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(), "config environment, reads config/<env>.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
}
