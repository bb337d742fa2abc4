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

// Package shard implements the single logical owner of one shard: the
// Bloom filter, the write-ahead log and the on-disk data file it fronts,
// serialized behind a channel-based mailbox so no lock is ever taken on
// the hot path. One Engine per shard ID.
package shard

import (
	"cube/bloom"
	"cube/clock"
	"cube/codec"
	"cube/persistence"
	"cube/wal"
	"fmt"
	"log"
	"sync/atomic"
)

const versionRingLimit = 100

type verEntry struct {
	ts    int64
	value string
}

// Engine owns everything needed to serve GET/SET for one shard.
type Engine struct {
	id    string
	clk   *clock.Clock
	filt  *bloom.Filter
	store *persistence.Store
	log   *wal.Log

	versions map[string][]verEntry

	mailbox chan func()
	stopped chan struct{}

	gets        atomic.Uint64
	sets        atomic.Uint64
	bloomSkips  atomic.Uint64
	replayCount atomic.Uint64
}

// Boot opens or recovers shard id's on-disk state and starts its actor
// goroutine. clk is the shared timestamp domain used to stamp MVCC version
// ring entries; the same Clock must be passed to the transaction manager
// so BEGIN timestamps compare meaningfully against ring entries.
func Boot(dataDir, id string, bloomSize uint32, bloomHashes int, clk *clock.Clock) (*Engine, error) {
	store, err := persistence.Open(dataDir, id)
	if err != nil {
		return nil, fmt.Errorf("shard %s: open data file: %w", id, err)
	}
	walog, err := wal.Open(dataDir, id)
	if err != nil {
		return nil, fmt.Errorf("shard %s: open wal: %w", id, err)
	}

	e := &Engine{
		id:       id,
		clk:      clk,
		filt:     bloom.New(bloomSize, bloomHashes),
		store:    store,
		log:      walog,
		versions: make(map[string][]verEntry),
		mailbox:  make(chan func(), 64),
		stopped:  make(chan struct{}),
	}

	if err := e.recover(); err != nil {
		return nil, fmt.Errorf("shard %s: recover: %w", id, err)
	}

	go e.run()
	return e, nil
}

// recover replays the WAL into the data file, then warms the Bloom filter
// and offset index from the data file's current contents. Runs before the
// actor goroutine starts, so no serialization is needed here.
func (e *Engine) recover() error {
	records, err := e.log.Replay()
	if err != nil {
		return err
	}
	for _, record := range records {
		prefix, err := codec.ExtractKeyPrefix(record)
		if err != nil {
			log.Printf("shard %s: dropping unreplayable WAL record: %v", e.id, err)
			continue
		}
		if err := e.store.UpdateOrAppend(record, prefix); err != nil {
			return err
		}
		e.replayCount.Add(1)
	}
	if len(records) > 0 {
		if err := e.log.Clear(); err != nil {
			return err
		}
	}

	iter, err := e.store.StreamLines()
	if err != nil {
		return err
	}
	for iter.Next() {
		prefix, err := codec.ExtractKeyPrefix(iter.Line())
		if err != nil {
			log.Printf("shard %s: skipping malformed line at offset %d: %v", e.id, iter.Offset(), err)
			continue
		}
		e.filt.Add(prefix)
		e.store.IndexOffset(prefix, iter.Offset())
	}
	return nil
}

// run is the shard's actor loop: every operation on this shard's state
// executes here, one at a time, so nothing below needs a mutex.
func (e *Engine) run() {
	for {
		select {
		case task := <-e.mailbox:
			task()
		case <-e.stopped:
			return
		}
	}
}

// Close stops the actor loop and releases the underlying files. Pending
// mailbox tasks are drained before the WAL and data file are closed.
func (e *Engine) Close() error {
	done := make(chan struct{})
	e.mailbox <- func() { close(done) }
	<-done
	close(e.stopped)

	if err := e.log.Close(); err != nil {
		return err
	}
	return e.store.Close()
}

type getResult struct {
	value string
	err   error
}

// Get returns the current value for key, or "NIL" if absent.
func (e *Engine) Get(key []byte) (string, error) {
	resp := make(chan getResult, 1)
	e.mailbox <- func() {
		v, err := e.getLocked(key)
		resp <- getResult{v, err}
	}
	r := <-resp
	return r.value, r.err
}

func (e *Engine) getLocked(key []byte) (string, error) {
	e.gets.Add(1)
	prefix, _, err := codec.EncodeGet(key)
	if err != nil {
		return "", err
	}
	if !e.filt.Contains(prefix) {
		e.bloomSkips.Add(1)
		return "NIL", nil
	}
	line, ok, err := e.store.ReadLineByPrefix(prefix)
	if err != nil {
		return "", err
	}
	if !ok {
		return "NIL", nil
	}
	val, err := codec.Decode(line)
	if err != nil {
		log.Printf("shard %s: malformed record for prefix %s: %v", e.id, prefix, err)
		return "NIL", nil
	}
	return val, nil
}

type setResult struct {
	oldValue string
	newValue string
	err      error
}

// Set writes value for key, returning the value observed immediately
// before the write took effect (for transactional conflict tracking) and
// the newly written canonical value.
func (e *Engine) Set(key []byte, value codec.Value) (oldValue, newValue string, err error) {
	resp := make(chan setResult, 1)
	e.mailbox <- func() {
		old, nv, serr := e.setLocked(key, value)
		resp <- setResult{old, nv, serr}
	}
	r := <-resp
	return r.oldValue, r.newValue, r.err
}

func (e *Engine) setLocked(key []byte, value codec.Value) (oldValue, newValue string, err error) {
	e.sets.Add(1)
	record, _, err := codec.EncodeSet(key, value)
	if err != nil {
		return "", "", err
	}
	prefix, err := codec.ExtractKeyPrefix(record)
	if err != nil {
		return "", "", err
	}
	newValue = value.Canonical()

	oldValue, err = e.getLocked(key)
	if err != nil {
		return "", "", err
	}

	if err := e.log.Append(record); err != nil {
		return "", "", err
	}
	if err := e.store.UpdateOrAppend(record, prefix); err != nil {
		return "", "", err
	}
	e.filt.Add(prefix)

	if e.clk != nil {
		e.appendVersion(string(key), e.clk.Now(), newValue)
	}
	return oldValue, newValue, nil
}

func (e *Engine) appendVersion(key string, ts int64, value string) {
	entries := append(e.versions[key], verEntry{ts, value})
	if len(entries) > versionRingLimit {
		entries = entries[len(entries)-versionRingLimit:]
	}
	e.versions[key] = entries
}

// GetSnapshot returns the value key held at or before timestamp ts,
// consulting the MVCC version ring before falling back to the current
// on-disk read.
func (e *Engine) GetSnapshot(key []byte, ts int64) (string, error) {
	resp := make(chan getResult, 1)
	e.mailbox <- func() {
		v, err := e.getSnapshotLocked(key, ts)
		resp <- getResult{v, err}
	}
	r := <-resp
	return r.value, r.err
}

func (e *Engine) getSnapshotLocked(key []byte, ts int64) (string, error) {
	entries := e.versions[string(key)]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ts <= ts {
			return entries[i].value, nil
		}
	}
	return e.getLocked(key)
}

// Stats reports counters for the /stats endpoint.
type Stats struct {
	Gets        uint64
	Sets        uint64
	BloomSkips  uint64
	ReplayCount uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Gets:        e.gets.Load(),
		Sets:        e.sets.Load(),
		BloomSkips:  e.bloomSkips.Load(),
		ReplayCount: e.replayCount.Load(),
	}
}

// ID returns the shard's two-digit identifier.
func (e *Engine) ID() string { return e.id }
