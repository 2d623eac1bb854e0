package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage directories watched by a running server",
}

var watchServerURL string

func init() {
	watchCmd.PersistentFlags().StringVar(&watchServerURL, "server", "http://localhost:8080", "server URL")
	watchCmd.AddCommand(
		&cobra.Command{
			Use:   "add <path>",
			Short: "Watch a directory and ingest its files",
			Args:  cobra.ExactArgs(1),
			RunE:  runWatchAdd,
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Stop watching a directory",
			Args:  cobra.ExactArgs(1),
			RunE:  runWatchRemove,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List watched directories",
			Args:  cobra.NoArgs,
			RunE:  runWatchList,
		},
	)
	rootCmd.AddCommand(watchCmd)
}

func watchURL() string {
	return strings.TrimRight(watchServerURL, "/") + "/api/v1/watch/directories"
}

func doWatchRequest(cmd *cobra.Command, method, target string, body io.Reader, want int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != want {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

func runWatchAdd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
	resp, err := doWatchRequest(cmd, http.MethodPost, watchURL(), bytes.NewReader(body), http.StatusCreated)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}
	resp.Body.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
	return nil
}

func runWatchRemove(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	resp, err := doWatchRequest(cmd, http.MethodDelete, watchURL()+"?path="+url.QueryEscape(path), nil, http.StatusOK)
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	resp.Body.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
	return nil
}

func runWatchList(cmd *cobra.Command, _ []string) error {
	resp, err := doWatchRequest(cmd, http.MethodGet, watchURL(), nil, http.StatusOK)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, d := range out.Directories {
		fmt.Fprintln(cmd.OutOrStdout(), d)
	}
	return nil
}
