/*
Copyright 2025 Nemo(shengyi) Lv

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package engine is the top-level facade a client (here, the HTTP command
// surface) opens: it boots every shard, wires the router and transaction
// manager together, and exposes the five operations the command grammar
// can produce.
package engine

import (
	"cube/clock"
	"cube/codec"
	. "cube/comment"
	"cube/diskspace"
	"cube/router"
	"cube/shard"
	"cube/txn"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Options configures Open.
type Options struct {
	DirPath     string
	BloomSize   uint32
	BloomHashes int
	// ClockEpochMillis seeds the snowflake-based timestamp domain shared by
	// BEGIN timestamps and every shard's MVCC version ring.
	ClockEpochMillis int64
}

func DefaultOptions(dirPath string) Options {
	return Options{
		DirPath:          dirPath,
		BloomSize:        BloomFilterSize,
		BloomHashes:      BloomFilterHashCount,
		ClockEpochMillis: 1_700_000_000_000,
	}
}

// Engine owns the whole running system: shards, router, transaction
// manager and the DATA_DIR lock.
type Engine struct {
	opts     Options
	fileLock *flock.Flock
	router   *router.Router
	txns     *txn.Manager
}

// Open boots every shard under opts.DirPath, replaying each one's WAL and
// warming its Bloom filter and offset index, then wires the router and
// transaction manager on top.
func Open(opts Options) (*Engine, error) {
	if opts.DirPath == "" {
		return nil, ErrDirPathIsEmpty
	}

	if _, err := os.Stat(opts.DirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(opts.DirPath, os.ModePerm); err != nil {
			return nil, err
		}
	}

	fileLock := flock.New(filepath.Join(opts.DirPath, FileLockName))
	held, err := fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrDatabaseIsUsing
	}

	free, freeErr := diskspace.Available(opts.DirPath)
	if freeErr == nil && free < 64*1024*1024 {
		log.Printf("cube: warning: only %d bytes free under %s", free, opts.DirPath)
	}

	clk, err := clock.New(opts.ClockEpochMillis)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}

	engines := make([]*shard.Engine, 0, ShardCount)
	totalReplayed := uint64(0)
	for i := 0; i < ShardCount; i++ {
		id := fmt.Sprintf("%02d", i)
		e, err := shard.Boot(opts.DirPath, id, opts.BloomSize, opts.BloomHashes, clk)
		if err != nil {
			for _, booted := range engines {
				_ = booted.Close()
			}
			_ = fileLock.Unlock()
			return nil, fmt.Errorf("boot shard %s: %w", id, err)
		}
		replayed := e.Stats().ReplayCount
		if replayed > 0 {
			log.Printf("cube: shard %s replayed %d WAL record(s)", id, replayed)
		}
		totalReplayed += replayed
		engines = append(engines, e)
	}

	if freeErr == nil {
		log.Printf("cube: booted %d shards under %s, replayed %d WAL record(s) total, %d bytes free",
			ShardCount, opts.DirPath, totalReplayed, free)
	} else {
		log.Printf("cube: booted %d shards under %s, replayed %d WAL record(s) total, free disk space unknown: %v",
			ShardCount, opts.DirPath, totalReplayed, freeErr)
	}

	r := router.New(engines)
	tm := txn.NewManager(r, clk)

	return &Engine{opts: opts, fileLock: fileLock, router: r, txns: tm}, nil
}

// Close shuts down the transaction sweep, every shard, and releases the
// DATA_DIR lock.
func (e *Engine) Close() error {
	e.txns.Close()
	err := e.router.Close()
	if unlockErr := e.fileLock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// Get performs client's GET, transactional or not.
func (e *Engine) Get(client string, key string) (string, error) {
	return e.txns.Get(client, []byte(key))
}

// Set performs client's SET, transactional or not, returning the observed
// old and new canonical values.
func (e *Engine) Set(client, key string, value codec.Value) (old, new string, err error) {
	return e.txns.Set(client, []byte(key), value)
}

// Stats reports per-shard counters for the /stats endpoint.
func (e *Engine) Stats() map[string]shard.Stats {
	return e.router.Stats()
}

// Begin, Commit and Rollback forward directly to the transaction manager.
func (e *Engine) Begin(client string) error    { return e.txns.Begin(client) }
func (e *Engine) Commit(client string) error   { return e.txns.Commit(client) }
func (e *Engine) Rollback(client string) error { return e.txns.Rollback(client) }
