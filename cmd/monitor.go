package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/readmit-dqi/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check recent run health and send alerts",
	Long:  "Collects run metrics over the lookback window, evaluates the failure rate and the lowest DQI, and posts alerts to the configured webhook. With --watch the check repeats every monitoring.check_interval_secs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			checker.Run(ctx)
			return nil
		}

		snap, alerts, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, map[string]any{
			"metrics": snap,
			"alerts":  alerts,
		})
	},
}

func init() {
	monitorCmd.Flags().Bool("watch", false, "keep checking until interrupted")
	rootCmd.AddCommand(monitorCmd)
}
