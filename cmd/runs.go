package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/readmit-dqi/internal/model"
	"github.com/sells-group/readmit-dqi/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, and summarizing pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		src, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Source: src,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, auditing, complete, failed, ...)")
	runsListCmd.Flags().String("source", "", "filter by source reference")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	ByCategory map[model.ErrorCategory]int
	Active     int
	AvgDurSecs float64
	AvgDQI     float64
	MinDQI     float64
	Scored     int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), ByCategory: make(map[model.ErrorCategory]int)}

	var totalDur time.Duration
	var durCount int
	var dqiSum float64

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
			cat := model.ErrorInternal
			if r.Error != nil && r.Error.Category != "" {
				cat = r.Error.Category
			}
			s.ByCategory[cat]++
		default:
			s.Active++
		}

		if r.Result != nil && r.Result.RawRows > 0 {
			score := r.Result.DQI.Score
			if s.Scored == 0 || score < s.MinDQI {
				s.MinDQI = score
			}
			dqiSum += score
			s.Scored++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	if s.Scored > 0 {
		s.AvgDQI = dqiSum / float64(s.Scored)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tDQI\tERROR_CAT\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t---\t---------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		errCat := ""
		if r.Error != nil {
			errCat = string(r.Error.Category)
		}

		dqi := "-"
		if r.Result != nil && r.Result.RawRows > 0 {
			dqi = fmt.Sprintf("%.2f%%", r.Result.DQI.Percent())
		}

		src := r.Source
		if len(src) > 40 {
			src = "..." + src[len(src)-37:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			src,
			r.Status,
			dqi,
			errCat,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// errorCategories lists failure categories in display order.
var errorCategories = []model.ErrorCategory{
	model.ErrorSourceNotFound,
	model.ErrorParse,
	model.ErrorInsufficientData,
	model.ErrorInternal,
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	for _, cat := range errorCategories {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", cat, s.ByCategory[cat])
	}
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.Scored > 0 {
		_, _ = fmt.Fprintf(w, "Avg DQI:\t%.2f%%\n", s.AvgDQI*100)
		_, _ = fmt.Fprintf(w, "Min DQI:\t%.2f%%\n", s.MinDQI*100)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
