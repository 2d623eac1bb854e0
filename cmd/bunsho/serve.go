package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/server"
	"github.com/hyperjump/bunsho/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and watch configured directories",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var serveNoWatch bool

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not watch configured directories")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, resolvedConfigPath, logger, err := setup(true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close components", zap.Error(err))
		}
	}()

	opts := []server.Option{server.WithLogger(logger)}
	if !serveNoWatch {
		watchSvc := watcher.NewWatcher(components.Indexer, cfg.Watch.Directories,
			watcher.WithLogger(logger),
			watcher.WithExtensions(cfg.Watch.Extensions),
			watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		)
		if err := watchSvc.Start(ctx); err != nil {
			return err
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExistingFiles()
		opts = append(opts, server.WithWatch(watchSvc, resolvedConfigPath))
	}

	srv := server.NewServer(components.Engine, components.Indexer, components.Storage, components.Chunker, cfg, opts...)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
