package search

import (
	"strings"

	"github.com/hyperjump/bunsho/internal/config"
	"github.com/hyperjump/bunsho/internal/models"
)

// ProcessQuery validates the query and applies the configured limits and score floor.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	query.Query = strings.TrimSpace(query.Query)
	if cfg != nil && query.Limit <= 0 {
		query.Limit = cfg.DefaultLimit
	}
	if err := query.Validate(); err != nil {
		return err
	}
	if cfg != nil {
		if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
			query.Limit = cfg.MaxLimit
		}
		if query.MinScore == 0 {
			query.MinScore = cfg.MinScore
		}
	}
	return nil
}
