package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/bunsho/internal/cli"
	"github.com/hyperjump/bunsho/internal/extract"
	"github.com/hyperjump/bunsho/internal/indexer"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Preview how a file would be chunked without storing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var chunkFormat string

func init() {
	chunkCmd.Flags().StringVarP(&chunkFormat, "output", "o", "text", "output format: text, compact, or json")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(chunkFormat)
	if err != nil {
		return err
	}
	loaded, err := extract.NewExtractor().Load(args[0])
	if err != nil {
		return err
	}
	cfg, _, logger, err := setup(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := newEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	chunks, err := newChunker(&cfg.Chunking, embedder, logger).Chunk(cmd.Context(), indexer.Preprocess(loaded.Text))
	if err != nil {
		return err
	}
	return cli.WriteChunks(cmd.OutOrStdout(), chunks, format)
}
