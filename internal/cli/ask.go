package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nl2sql/internal/llm"
	"nl2sql/internal/pipeline"
	"nl2sql/internal/sqlguard"
)

const previewRows = 20

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question against the read-only database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		raw, _ := cmd.Flags().GetBool("raw")
		ctx := context.Background()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ans, err := a.pipeline.Ask(ctx, session, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printMarkdown(cmd.OutOrStdout(), answerMarkdown(ans), raw)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <question>",
	Short: "Produce SQL for a question without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempts, _ := cmd.Flags().GetInt("attempts")
		ctx := context.Background()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.Resolve(ctx, strings.Join(args, " "), attempts)
		if err != nil {
			return err
		}
		if !res.Accepted() {
			return errors.New(res.Failure())
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.SQL)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <sql>",
	Short: "Run the safety checks over a statement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeName, _ := cmd.Flags().GetString("mode")
		mode, err := sqlguard.ParseMode(modeName)
		if err != nil {
			return err
		}
		v := sqlguard.Check(args[0], mode)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "type: %s, complexity: %d, tables: %s\n",
			sqlguard.QueryType(args[0]), sqlguard.Complexity(args[0]), strings.Join(sqlguard.ExtractTables(args[0]), ", "))
		if v.IsSafe {
			fmt.Fprintln(out, "OK")
			return nil
		}
		for _, issue := range v.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return fmt.Errorf("statement rejected in %s mode", mode)
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id to group audit entries under")
	askCmd.Flags().Bool("raw", false, "print markdown without terminal rendering")
	resolveCmd.Flags().Int("attempts", 0, "attempt budget (default MAX_QUERY_RETRIES)")
	validateCmd.Flags().String("mode", "readonly", "guard mode: readonly or dba")
}

// answerMarkdown lays an answer out the way the chat view shows it.
func answerMarkdown(ans pipeline.Answer) string {
	var b strings.Builder
	if ans.Status != pipeline.StatusAnswered {
		b.WriteString(ans.Message)
		if ans.SQL != "" {
			fmt.Fprintf(&b, "\n\n```sql\n%s\n```", ans.SQL)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", ans.SQL)
	fmt.Fprintf(&b, "%s in %s", pipeline.Pluralize(ans.RowCount, "row"), pipeline.FormatExecutionTime(ans.ExecutionTime))
	if ans.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", ans.Attempts)
	}
	if ans.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n\n")
	b.WriteString(pipeline.FormatResultTable(ans.Columns, ans.Rows, previewRows))
	if ans.Explanation != "" || len(ans.Insights) > 0 {
		b.WriteString("\n\n")
		b.WriteString(llm.FormatExplanation(ans.Explanation, ans.Insights))
	}
	return b.String()
}

// printMarkdown renders md for a terminal, or writes it untouched when w is
// not one.
func printMarkdown(w io.Writer, md string, raw bool) error {
	if raw || !isTerminal(w) {
		_, err := fmt.Fprintln(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
