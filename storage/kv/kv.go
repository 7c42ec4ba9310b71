// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kv implements observation.Store on an embedded BadgerDB
// database.
//
// Observations are keyed by
//
//	o/<case> 0x00 <revision> <batch> <attempt>
//
// with the integers big endian, so a prefix scan over one case yields
// its observations already in revision order.
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

var (
	obsPrefix  = []byte("o/")
	casePrefix = []byte("c/")
	revPrefix  = []byte("r/")
	batchSeq   = []byte("s/batch")
)

// Store is an observation.Store backed by BadgerDB.
type Store struct {
	db    *badger.DB
	batch *badger.Sequence
}

var _ observation.Store = (*Store)(nil)

// Open opens or creates the database in dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence(batchSeq, 16)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, batch: seq}, nil
}

func obsKey(k observation.Key) []byte {
	key := make([]byte, 0, len(obsPrefix)+len(k.Case)+1+8+8+4)
	key = append(key, obsPrefix...)
	key = append(key, k.Case...)
	key = append(key, 0)
	key = appendInt(key, int64(k.Revision))
	key = appendInt(key, k.Batch)
	key = binary.BigEndian.AppendUint32(key, uint32(int32(k.Attempt))^1<<31)
	return key
}

// appendInt appends v with its sign bit flipped, so that keys of
// negative values sort before those of positive ones.
func appendInt(key []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(key, uint64(v)^1<<63)
}

func caseObsPrefix(caseID string) []byte {
	p := append([]byte(nil), obsPrefix...)
	p = append(p, caseID...)
	return append(p, 0)
}

func revKey(index int) []byte {
	return appendInt(append([]byte(nil), revPrefix...), int64(index))
}

func (s *Store) NewBatch(ctx context.Context) (int64, error) {
	n, err := s.batch.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at zero; batch IDs start at one.
	return int64(n) + 1, nil
}

// Append writes obs in a single transaction.
func (s *Store) Append(ctx context.Context, obs ...observation.Observation) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, o := range obs {
			key := obsKey(o.Key())
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("append %v: %w", o, observation.ErrExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			val, err := json.Marshal(o)
			if err != nil {
				return err
			}
			if err := txn.Set(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// putIfAbsent stores v as JSON under key unless key is present.
func (s *Store) putIfAbsent(key []byte, v interface{}) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

func (s *Store) PutCase(ctx context.Context, c registry.Case) error {
	return s.putIfAbsent(append(append([]byte(nil), casePrefix...), c.ID...), c)
}

func (s *Store) PutRevision(ctx context.Context, r observation.Revision) error {
	return s.putIfAbsent(revKey(r.Index), r)
}

// scan decodes every value under prefix in key order.
func (s *Store) scan(ctx context.Context, prefix []byte, decode func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(decode); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Observations(ctx context.Context, caseID string) ([]observation.Observation, error) {
	var out []observation.Observation
	err := s.scan(ctx, caseObsPrefix(caseID), func(val []byte) error {
		var o observation.Observation
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func (s *Store) Cases(ctx context.Context) ([]registry.Case, error) {
	var out []registry.Case
	err := s.scan(ctx, casePrefix, func(val []byte) error {
		var c registry.Case
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *Store) Revisions(ctx context.Context) ([]observation.Revision, error) {
	var out []observation.Revision
	err := s.scan(ctx, revPrefix, func(val []byte) error {
		var r observation.Revision
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Reset deletes all data except the batch sequence.
func (s *Store) Reset(ctx context.Context) error {
	for _, p := range [][]byte{obsPrefix, casePrefix, revPrefix} {
		if err := s.db.DropPrefix(p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the batch sequence and closes the database.
func (s *Store) Close() error {
	if s.batch != nil {
		if err := s.batch.Release(); err != nil {
			return err
		}
		s.batch = nil
	}
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
