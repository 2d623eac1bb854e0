package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/cli"
	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/models"
	"github.com/hyperjump/bunsho/internal/storage"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents with their chunks and chunk size statistics",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>...",
	Short: "Delete documents and their chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored document and chunk",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var (
	listFormat string
	clearYes   bool
)

func init() {
	listCmd.Flags().StringVarP(&listFormat, "output", "o", "text", "output format: text, compact, or json")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(listCmd, deleteCmd, clearCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(listFormat)
	if err != nil {
		return err
	}
	return withComponents(cmd.Context(), func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
		records, err := c.Storage.List(ctx)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		return cli.WriteRecordList(cmd.OutOrStdout(), withoutEmbeddings(records), format)
	})
}

func withoutEmbeddings(records []*models.Record) []*models.Record {
	out := make([]*models.Record, len(records))
	for i, r := range records {
		cp := *r
		cp.Embedding = nil
		out[i] = &cp
	}
	return out
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withComponents(cmd.Context(), func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
		var failed int
		for _, id := range args {
			n, err := c.Indexer.DeleteDocument(ctx, id)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				fmt.Fprintf(cmd.ErrOrStderr(), "not found: %s\n", id)
				failed++
			case err != nil:
				return fmt.Errorf("delete %s: %w", id, err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d record(s))\n", id, n)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) not found", failed)
		}
		return nil
	})
}

// confirm asks question on cmd's output and reads a y/yes answer from its input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func runClear(cmd *cobra.Command, _ []string) error {
	return withComponents(cmd.Context(), func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
		if !clearYes && !confirm(cmd, "Delete all stored documents and chunks?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		n, err := c.Indexer.ClearAll(ctx)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", n)
		return nil
	})
}
