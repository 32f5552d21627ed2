package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nl2sql/internal/audit"
	"nl2sql/internal/pipeline"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditTrailCmd = &cobra.Command{
	Use:   "trail",
	Short: "List recent audit entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		mode, _ := cmd.Flags().GetString("mode")
		successOnly, _ := cmd.Flags().GetBool("success-only")
		ctx := context.Background()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.audit.Trail(ctx, audit.Filter{Limit: limit, Mode: mode, SuccessOnly: successOnly})
		if err != nil {
			return err
		}
		return writeTrail(cmd.OutOrStdout(), entries)
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query success statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.audit.Statistics(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queries: %d (%d ok, %d failed, %.1f%% success)\ndba actions: %d\n",
			s.TotalQueries, s.SuccessfulQueries, s.FailedQueries, s.SuccessRate, s.DBAActions)
		return nil
	},
}

func init() {
	auditTrailCmd.Flags().Int("limit", 100, "maximum entries to show")
	auditTrailCmd.Flags().String("mode", "", "only entries for this mode (readonly or dba)")
	auditTrailCmd.Flags().Bool("success-only", false, "only successful queries")
	auditCmd.AddCommand(auditTrailCmd)
	auditCmd.AddCommand(auditStatsCmd)
}

func writeTrail(w io.Writer, entries []audit.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tSTATUS\tROWS\tSQL")
	for _, e := range entries {
		status := "pending"
		switch {
		case e.Action != "":
			status = string(e.Action)
		case e.Success != nil && *e.Success:
			status = "ok"
		case e.Success != nil:
			status = "failed"
		}
		rows := "-"
		if e.RowsReturned != nil {
			rows = fmt.Sprint(*e.RowsReturned)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, status, rows, pipeline.TruncateText(e.SQL, 60))
	}
	return tw.Flush()
}
