package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/cli"
	"github.com/hyperjump/bunsho/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>...",
	Short: "Chunk, embed, and store documents",
	Long: `Ingest files and directories. Directories are walked recursively; files that cannot
be read are reported and skipped. Re-ingesting a file replaces its earlier version.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestFormat string

func init() {
	ingestCmd.Flags().StringVarP(&ingestFormat, "output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(ingestFormat)
	if err != nil {
		return err
	}
	return withComponents(cmd.Context(), func(ctx context.Context, _ *config.Config, c *Components, logger *zap.Logger) error {
		report, err := c.Indexer.IndexPaths(ctx, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if format == cli.OutputJSON {
			return cli.WriteJSON(out, report)
		}
		for _, res := range report.Ingested {
			fmt.Fprintf(out, "%s  %s  %d chunk(s) [%s]\n", res.DocumentID, res.Name, len(res.ChunkIDs), res.Method)
			for _, sk := range res.Skipped {
				fmt.Fprintf(out, "    skipped chunk %d: %s\n", sk.Index, sk.Error)
			}
		}
		for _, f := range report.Failed {
			fmt.Fprintf(out, "failed: %s: %s\n", f.Path, f.Error)
		}
		fmt.Fprintf(out, "Ingested %d document(s), %d chunk(s), %d failure(s)\n",
			len(report.Ingested), report.ChunkCount(), len(report.Failed))
		if len(report.Ingested) == 0 && len(report.Failed) > 0 {
			return fmt.Errorf("no documents ingested")
		}
		return nil
	})
}
