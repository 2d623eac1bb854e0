package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/config"
)

// withComponents loads config, initializes every component, and runs fn with them.
func withComponents(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error) error {
	cfg, _, logger, err := setup(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close components", zap.Error(err))
		}
	}()
	return fn(ctx, cfg, c, logger)
}
