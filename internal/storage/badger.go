package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/bunsho/internal/models"
)

// Key layout:
//
//	r/<seq>                   -> record JSON
//	i/<id>                    -> seq
//	p/<parent>/<index>/<seq>  -> seq
var (
	recordPrefix = []byte("r/")
	idPrefix     = []byte("i/")
	parentPrefix = []byte("p/")
	seqKey       = []byte("meta/seq")
)

const sequenceBandwidth = 100

// BadgerStorage implements Storage on an embedded Badger key-value store.
type BadgerStorage struct {
	db  *badger.DB
	seq *badger.Sequence
}

// zapBadgerLogger adapts zap to badger.Logger.
type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

var _ badger.Logger = (*zapBadgerLogger)(nil)

func (l *zapBadgerLogger) Errorf(msg string, args ...interface{})   { l.s.Errorf(msg, args...) }
func (l *zapBadgerLogger) Warningf(msg string, args ...interface{}) { l.s.Warnf(msg, args...) }
func (l *zapBadgerLogger) Infof(msg string, args ...interface{})    { l.s.Debugf(msg, args...) }
func (l *zapBadgerLogger) Debugf(msg string, args ...interface{})   { l.s.Debugf(msg, args...) }

// NewBadgerStorage opens a Badger database in dir, creating it if needed. An empty dir
// opens an in-memory database.
func NewBadgerStorage(dir string, logger *zap.Logger) (*BadgerStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &zapBadgerLogger{s: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	seq, err := db.GetSequence(seqKey, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sequence: %w", err)
	}
	return &BadgerStorage{db: db, seq: seq}, nil
}

func seqBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func recordKey(seq []byte) []byte { return join(recordPrefix, seq) }
func idKey(id string) []byte      { return join(idPrefix, []byte(id)) }

func parentScanPrefix(parentID string) []byte {
	return join(parentPrefix, []byte(parentID), []byte{'/'})
}

func parentKey(parentID string, index int, seq []byte) []byte {
	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, uint64(index))
	return join(parentScanPrefix(parentID), idx, []byte{'/'}, seq)
}

// Store writes rec and its index keys, replacing a previous record with the same ID.
func (s *BadgerStorage) Store(ctx context.Context, rec *models.Record) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := s.seq.Next()
	if err != nil {
		return "", fmt.Errorf("failed to allocate sequence: %w", err)
	}
	seq := seqBytes(n)
	value, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := deleteByID(txn, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := txn.Set(recordKey(seq), value); err != nil {
			return err
		}
		if err := txn.Set(idKey(rec.ID), seq); err != nil {
			return err
		}
		if rec.ParentID != "" {
			index := 0
			if rec.Chunk != nil {
				index = rec.Chunk.Index
			}
			return txn.Set(parentKey(rec.ParentID, index, seq), seq)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func getBySeq(txn *badger.Txn, seq []byte) (*models.Record, error) {
	item, err := txn.Get(recordKey(seq))
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

func lookupSeq(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// deleteByID removes one record and its index keys.
func deleteByID(txn *badger.Txn, id string) error {
	seq, err := lookupSeq(txn, id)
	if err != nil {
		return err
	}
	rec, err := getBySeq(txn, seq)
	if err != nil {
		return err
	}
	if err := txn.Delete(recordKey(seq)); err != nil {
		return err
	}
	if err := txn.Delete(idKey(id)); err != nil {
		return err
	}
	if rec.ParentID != "" {
		index := 0
		if rec.Chunk != nil {
			index = rec.Chunk.Index
		}
		return txn.Delete(parentKey(rec.ParentID, index, seq))
	}
	return nil
}

// Get returns a record by ID.
func (s *BadgerStorage) Get(ctx context.Context, id string) (*models.Record, error) {
	var rec *models.Record
	err := s.db.View(func(txn *badger.Txn) error {
		seq, err := lookupSeq(txn, id)
		if err != nil {
			return err
		}
		rec, err = getBySeq(txn, seq)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record in insertion order.
func (s *BadgerStorage) List(ctx context.Context) ([]*models.Record, error) {
	records := []*models.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: recordPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListChunks returns the chunks of parentID ordered by chunk index.
func (s *BadgerStorage) ListChunks(ctx context.Context, parentID string) ([]*models.Record, error) {
	records := []*models.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		seqs, err := childSeqs(txn, parentID)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			rec, err := getBySeq(txn, seq)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func childSeqs(txn *badger.Txn, parentID string) ([][]byte, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: parentScanPrefix(parentID)})
	defer it.Close()
	var seqs [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		seq, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Delete removes the record and its chunks in one transaction.
func (s *BadgerStorage) Delete(ctx context.Context, id string) (int, error) {
	deleted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		seqs, err := childSeqs(txn, id)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			child, err := getBySeq(txn, seq)
			if err != nil {
				return err
			}
			if err := deleteByID(txn, child.ID); err != nil {
				return err
			}
			deleted++
		}
		switch err := deleteByID(txn, id); {
		case err == nil:
			deleted++
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return deleted, nil
}

// ClearAll counts the records and drops every key except the sequence.
func (s *BadgerStorage) ClearAll(ctx context.Context) (int, error) {
	n, err := s.count(ctx, func(*models.Record) bool { return true })
	if err != nil {
		return 0, err
	}
	if err := s.db.DropPrefix(recordPrefix, idPrefix, parentPrefix); err != nil {
		return 0, fmt.Errorf("failed to clear records: %w", err)
	}
	return int(n), nil
}

func (s *BadgerStorage) count(ctx context.Context, match func(*models.Record) bool) (int64, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range records {
		if match(r) {
			n++
		}
	}
	return n, nil
}

// CountDocuments returns the number of document records.
func (s *BadgerStorage) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, func(r *models.Record) bool { return r.Kind == models.KindDocument })
}

// CountChunks returns the number of chunk records.
func (s *BadgerStorage) CountChunks(ctx context.Context) (int64, error) {
	return s.count(ctx, func(r *models.Record) bool { return r.Kind == models.KindChunk })
}

// Close releases the sequence and closes the database.
func (s *BadgerStorage) Close() error {
	return multierr.Combine(s.seq.Release(), s.db.Close())
}
