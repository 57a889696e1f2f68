// Package badger is a transcript.Store on an embedded BadgerDB.
//
// Keys are laid out so that a prefix scan yields records in time order:
//
//	tr:{pipeline}:{created_unix_nano, 19 digits}:{id}   -> JSON record
//	idx:{id}                                            -> primary key
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	bdb "github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/taskmesh/transcript"
)

// Store implements transcript.Store.
type Store struct {
	db *bdb.DB
}

var _ transcript.Store = (*Store)(nil)

// Open opens a database in dir. An empty dir opens an in-memory database.
func Open(dir string) (*Store, error) {
	opts := bdb.DefaultOptions(dir).WithLoggingLevel(bdb.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := bdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an already opened database. Close closes it.
func NewFromDB(db *bdb.DB) *Store { return &Store{db: db} }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func recordKey(rec transcript.Record) []byte {
	return fmt.Appendf(nil, "tr:%s:%019d:%s", rec.Pipeline, rec.CreatedAt.UnixNano(), rec.ID)
}

func indexKey(id string) []byte { return []byte("idx:" + id) }

// Save writes rec, replacing a previous version with the same id.
func (s *Store) Save(_ context.Context, rec transcript.Record) error {
	rec = transcript.Normalize(rec)
	if strings.Contains(rec.Pipeline, ":") {
		return fmt.Errorf("pipeline name %q must not contain ':'", rec.Pipeline)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	key := recordKey(rec)

	return s.db.Update(func(txn *bdb.Txn) error {
		if old, err := txn.Get(indexKey(rec.ID)); err == nil {
			prev, err := old.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(prev); err != nil {
				return err
			}
		} else if !errors.Is(err, bdb.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.ID), key)
	})
}

// Get returns the record with the given id.
func (s *Store) Get(_ context.Context, id string) (transcript.Record, error) {
	var rec transcript.Record
	err := s.db.View(func(txn *bdb.Txn) error {
		item, err := txn.Get(indexKey(id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) })
	})
	if errors.Is(err, bdb.ErrKeyNotFound) {
		return transcript.Record{}, transcript.ErrNotFound
	}
	return rec, err
}

// List scans records newest first. Without a pipeline filter all
// pipelines are merged, which requires a full scan of the tr: keyspace.
func (s *Store) List(_ context.Context, pipeline string, limit int) ([]transcript.Record, error) {
	var out []transcript.Record
	err := s.db.View(func(txn *bdb.Txn) error {
		prefix := []byte("tr:")
		if pipeline != "" {
			prefix = []byte("tr:" + pipeline + ":")
		}
		opts := bdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var rec transcript.Record
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune deletes records created before olderThan.
func (s *Store) Prune(_ context.Context, olderThan time.Time) (int, error) {
	type victim struct {
		key []byte
		id  string
	}
	var victims []victim

	err := s.db.View(func(txn *bdb.Txn) error {
		prefix := []byte("tr:")
		opts := bdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var rec transcript.Record
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			if rec.CreatedAt.Before(olderThan) {
				victims = append(victims, victim{key: it.Item().KeyCopy(nil), id: rec.ID})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, v := range victims {
		if err := wb.Delete(v.key); err != nil {
			return 0, err
		}
		if err := wb.Delete(indexKey(v.id)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(victims), nil
}

func sortNewestFirst(recs []transcript.Record) {
	slices.SortFunc(recs, func(a, b transcript.Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
}
