// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ground

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/htnground/internal/config"
)

// ResultCache memoizes a grounding run's Summary by a hash of its domain
// and problem, so re-grounding an unchanged domain/problem pair (e.g. while
// iterating on §6 configuration flags) skips the PG/TDG/FAM/SAS+/h²
// pipeline entirely. Backed by badger when OpenResultCache is given a
// directory, an in-memory map otherwise.
type ResultCache struct {
	db  *badger.DB
	mem map[string][]byte
}

// OpenResultCache opens the cache at dir, or an in-memory cache if dir is
// empty.
func OpenResultCache(dir string) (*ResultCache, error) {
	if dir == "" {
		return &ResultCache{mem: make(map[string][]byte)}, nil
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening grounding result cache at %s: %w", dir, err)
	}
	return &ResultCache{db: db}, nil
}

// Close releases the cache's resources. A no-op for the in-memory cache.
func (c *ResultCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key hashes a domain/problem pair plus the configuration flags that affect
// grounding output, so a changed flag invalidates the cache entry.
func Key(domainProblemFingerprint string, cfg config.Config) string {
	h := sha256.New()
	h.Write([]byte(domainProblemFingerprint))
	fmt.Fprintf(h, "%+v", cfg)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached Summary for key, if present.
func (c *ResultCache) Get(key string) (*Summary, bool) {
	var raw []byte
	if c.db != nil {
		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				raw = append([]byte(nil), val...)
				return nil
			})
		})
		if err != nil {
			return nil, false
		}
	} else {
		var ok bool
		raw, ok = c.mem[key]
		if !ok {
			return nil, false
		}
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Put stores a Summary under key.
func (c *ResultCache) Put(logger *slog.Logger, key string, s *Summary) {
	raw, err := json.Marshal(s)
	if err != nil {
		logger.Warn("grounding result cache: marshal failed", "error", err)
		return
	}
	if c.db != nil {
		err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(key), raw)
		})
		if err != nil {
			logger.Warn("grounding result cache: write failed", "error", err)
		}
		return
	}
	c.mem[key] = raw
}
