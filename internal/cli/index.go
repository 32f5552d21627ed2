package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoAppDatabase = errors.New("indexing needs the application database\nSet APP_DATABASE_URL environment variable")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the retrieval indexes",
}

var indexSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Embed a description of every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.store == nil {
			return errNoAppDatabase
		}

		n, err := a.retriever.IndexSchema(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d tables\n", n)
		return nil
	},
}

var indexDocumentCmd = &cobra.Command{
	Use:   "document <cid|path>...",
	Short: "Index data-dictionary documents from IPFS or local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.store == nil {
			return errNoAppDatabase
		}

		for _, source := range args {
			n, err := a.ingester.IngestDocument(ctx, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", source, n)
		}
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexSchemaCmd)
	indexCmd.AddCommand(indexDocumentCmd)
}
