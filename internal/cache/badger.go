// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger persists entries on local disk with Badger's native TTL.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadger opens a Badger store at path. An empty path opens an in-memory store.
func NewBadger(path string, ttl time.Duration) (*Badger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		cacheError(BackendBadger, "get", key, err)
		return nil, false
	}
	return value, true
}

func (b *Badger) Set(_ context.Context, key string, value []byte) {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		cacheError(BackendBadger, "set", key, err)
	}
}

func (b *Badger) Delete(_ context.Context, key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		cacheError(BackendBadger, "delete", key, err)
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Name() string { return BackendBadger }
