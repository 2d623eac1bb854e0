package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/bunsho/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		parent_id TEXT,
		content TEXT NOT NULL,
		embedding BLOB,
		chunk_index INTEGER,
		chunk_size INTEGER,
		sentence_count INTEGER,
		similarity REAL,
		chunk_method TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_parent ON records(parent_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	`
	_, err := db.Exec(schema)
	return err
}

const recordColumns = `id, name, kind, parent_id, content, embedding, chunk_index, chunk_size,
	sentence_count, similarity, chunk_method, metadata, created_at`

// Store inserts rec, replacing any record with the same ID.
func (s *SQLiteStorage) Store(ctx context.Context, rec *models.Record) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	var metadataJSON sql.NullString
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}
	var (
		parentID                        sql.NullString
		chunkIndex, chunkSize, sentence sql.NullInt64
		similarity                      sql.NullFloat64
		method                          sql.NullString
	)
	if rec.ParentID != "" {
		parentID = sql.NullString{String: rec.ParentID, Valid: true}
	}
	if c := rec.Chunk; c != nil {
		chunkIndex = sql.NullInt64{Int64: int64(c.Index), Valid: true}
		chunkSize = sql.NullInt64{Int64: int64(c.Size), Valid: true}
		sentence = sql.NullInt64{Int64: int64(c.SentenceCount), Valid: true}
		if c.Similarity != nil {
			similarity = sql.NullFloat64{Float64: *c.Similarity, Valid: true}
		}
		method = sql.NullString{String: c.Method, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(rec.Kind), parentID, rec.Content, encodeEmbedding(rec.Embedding),
		chunkIndex, chunkSize, sentence, similarity, method, metadataJSON, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Get returns a record by ID.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record in insertion order.
func (s *SQLiteStorage) List(ctx context.Context) ([]*models.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM records ORDER BY seq`)
}

// ListChunks returns the chunks of parentID ordered by chunk index.
func (s *SQLiteStorage) ListChunks(ctx context.Context, parentID string) ([]*models.Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM records WHERE parent_id = ? ORDER BY chunk_index, seq`,
		parentID,
	)
}

func (s *SQLiteStorage) query(ctx context.Context, q string, args ...interface{}) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the record and its chunks in one transaction.
func (s *SQLiteStorage) Delete(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ? OR parent_id = ?`, id, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ClearAll deletes every record.
func (s *SQLiteStorage) ClearAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountDocuments returns the number of document records.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, string(models.KindDocument)).Scan(&count)
	return count, err
}

// CountChunks returns the number of chunk records.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, string(models.KindChunk)).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                             models.Record
		kind                            string
		parentID, method, metadataJSON  sql.NullString
		embedding                       []byte
		chunkIndex, chunkSize, sentence sql.NullInt64
		similarity                      sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &kind, &parentID, &rec.Content, &embedding,
		&chunkIndex, &chunkSize, &sentence, &similarity, &method, &metadataJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = models.Kind(kind)
	rec.ParentID = parentID.String
	rec.Embedding = decodeEmbedding(embedding)
	if chunkIndex.Valid {
		rec.Chunk = &models.ChunkMetadata{
			Index:         int(chunkIndex.Int64),
			Size:          int(chunkSize.Int64),
			SentenceCount: int(sentence.Int64),
			Method:        method.String,
		}
		if similarity.Valid {
			v := similarity.Float64
			rec.Chunk.Similarity = &v
		}
	}
	if metadataJSON.Valid && strings.TrimSpace(metadataJSON.String) != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
