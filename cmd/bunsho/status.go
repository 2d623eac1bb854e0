package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/cli"
	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, index, and configuration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	statusFormat    string
	statusServerURL string
)

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "text", "output format: text or json")
	statusCmd.Flags().StringVar(&statusServerURL, "server", "", "query a running server at this URL instead of the local store")
	rootCmd.AddCommand(statusCmd)
}

type statusConfigResponse struct {
	StorageBackend      string  `json:"storage_backend"`
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MinChunkSize        int     `json:"min_chunk_size"`
	KeywordWeight       float64 `json:"keyword_weight"`
	SemanticWeight      float64 `json:"semantic_weight"`
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Documents      int64                 `json:"documents"`
	Chunks         int64                 `json:"chunks"`
	IndexedRecords int                   `json:"indexed_records"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusFormat != "text" && statusFormat != "json" {
		return fmt.Errorf("unknown output format %q; use text or json", statusFormat)
	}
	var status *statusResponse
	if statusServerURL != "" {
		res, err := statusViaHTTP(cmd.Context(), statusServerURL)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		status = res
	} else {
		err := withComponents(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *Components, _ *zap.Logger) error {
			res, err := localStatus(ctx, cfg, c)
			status = res
			return err
		})
		if err != nil {
			return err
		}
	}
	if statusFormat == "json" {
		return cli.WriteJSON(cmd.OutOrStdout(), status)
	}
	writeStatusText(cmd.OutOrStdout(), status)
	return nil
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	docCount, err := c.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunkCount, err := c.Storage.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	status := &statusResponse{
		Documents:      docCount,
		Chunks:         chunkCount,
		IndexedRecords: c.Engine.Size(),
		Config: &statusConfigResponse{
			StorageBackend:      cfg.Storage.Backend,
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingDimensions: cfg.Embedding.Dimensions,
			SimilarityThreshold: cfg.Chunking.SimilarityThreshold,
			MinChunkSize:        cfg.Chunking.MinChunkSize,
			KeywordWeight:       cfg.Search.KeywordWeight,
			SemanticWeight:      cfg.Search.SemanticWeight,
		},
	}
	dataPath := cfg.Storage.DatabasePath
	if cfg.Storage.Backend == config.BackendBadger {
		dataPath = cfg.Storage.BadgerPath
	}
	if diskBytes, err := storage.DiskUsageBytes(dataPath, cfg.Storage.BleveIndexPath); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "documents:          %d\n", status.Documents)
	fmt.Fprintf(w, "chunks:             %d\n", status.Chunks)
	fmt.Fprintf(w, "indexed_records:    %d\n", status.IndexedRecords)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # store + keyword index on disk\n", *status.DiskUsageBytes)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "storage_backend:    %s\n", c.StorageBackend)
		fmt.Fprintf(w, "embedding:          %s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingDimensions)
		fmt.Fprintf(w, "similarity:         %.2f\n", c.SimilarityThreshold)
		fmt.Fprintf(w, "min_chunk_size:     %d\n", c.MinChunkSize)
		fmt.Fprintf(w, "weights:            keyword %.2f, semantic %.2f\n", c.KeywordWeight, c.SemanticWeight)
	}
}

func statusViaHTTP(ctx context.Context, serverURL string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
