// Package storage defines the persistence interface for document and chunk records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/bunsho/internal/models"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord indicates a record that cannot be persisted.
	ErrInvalidRecord = errors.New("invalid record")
)

// Storage persists documents and chunks. Each call commits independently, so records
// stored before a failure or cancellation stay valid.
type Storage interface {
	// Store persists rec, assigning an ID when empty, and returns the ID.
	// An existing record with the same ID is replaced.
	Store(ctx context.Context, rec *models.Record) (string, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	// List returns every record in creation order.
	List(ctx context.Context) ([]*models.Record, error)
	// ListChunks returns the chunks of parentID ordered by chunk index.
	ListChunks(ctx context.Context, parentID string) ([]*models.Record, error)
	// Delete removes a record and any chunks whose ParentID is id, returning the count.
	Delete(ctx context.Context, id string) (int, error)
	// ClearAll removes every record and returns how many were deleted.
	ClearAll(ctx context.Context) (int, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// prepare validates rec and fills ID and CreatedAt when unset.
func prepare(rec *models.Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	switch rec.Kind {
	case models.KindDocument:
	case models.KindChunk:
		if rec.ParentID == "" {
			return errors.Join(ErrInvalidRecord, errors.New("chunk without parent"))
		}
	default:
		return errors.Join(ErrInvalidRecord, errors.New("unknown kind "+string(rec.Kind)))
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}
