package main

import (
	"bytes"
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
	"github.com/hyperjump/bunsho/internal/models"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid keyword + semantic search over documents and chunks",
	Long: `Search stored documents and chunks. The query is all arguments joined by spaces, so
multi-word queries work with or without quotes.

Examples:
  bunsho search machine learning
  bunsho search --kind chunk --limit 5 "vector databases"
  bunsho search --fuzzy propodal               # typo-tolerant keyword matching
  bunsho search --server http://localhost:8080 -o json query`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchLimit     int
	searchOffset    int
	searchMinScore  float64
	searchKind      string
	searchFuzzy     bool
	searchFormat    string
	searchServerURL string
)

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchLimit, "limit", "n", 0, "number of results (default from config)")
	f.IntVar(&searchOffset, "offset", 0, "skip this many results")
	f.Float64Var(&searchMinScore, "min-score", 0, "drop results below this fused score (default from config)")
	f.StringVar(&searchKind, "kind", "", "restrict to document or chunk")
	f.BoolVar(&searchFuzzy, "fuzzy", false, "enable fuzzy keyword matching for typo tolerance")
	f.StringVarP(&searchFormat, "output", "o", "text", "output format: text, compact, or json")
	f.StringVar(&searchServerURL, "server", "", "query a running server at this URL instead of the local store")
	rootCmd.AddCommand(searchCmd)
}

// buildSearchQuery joins positional args so quoted and unquoted queries match.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(searchFormat)
	if err != nil {
		return err
	}
	query := &models.SearchQuery{
		Query:    buildSearchQuery(args),
		Limit:    searchLimit,
		Offset:   searchOffset,
		MinScore: searchMinScore,
		Kind:     models.Kind(searchKind),
		Fuzzy:    searchFuzzy,
	}
	if query.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if searchServerURL != "" {
		response, err := searchViaHTTP(cmd.Context(), searchServerURL, query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
	}

	return withComponents(cmd.Context(), func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
		response, err := c.Engine.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
	})
}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}
