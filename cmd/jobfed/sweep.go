package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/jobfed/internal/logger"
)

var purgeRequester string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries once and print how many were removed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		var n int
		if purgeRequester != "" {
			n, err = a.cache.Purge(cmd.Context(), purgeRequester)
		} else {
			n, err = a.cache.Sweep(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		a.logger.Info("Cache sweep finished", zap.Int("deleted", n), logpkg.Requester(purgeRequester))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&purgeRequester, "requester", "", "purge every entry of this requester instead of sweeping")
}
