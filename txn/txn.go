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

// Package txn implements the per-client transaction manager: buffered
// reads and writes, snapshot isolation anchored at a BEGIN timestamp, and
// first-committer-wins optimistic conflict detection at COMMIT.
package txn

import (
	"cube/clock"
	"cube/codec"
	. "cube/comment"
	"cube/router"
	"sort"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/robfig/cron/v3"
)

// state is one client's open transaction: everything read or written since
// BEGIN, plus the snapshot instant reads are anchored to.
type state struct {
	beginTimestamp int64
	startedAt      time.Time
	reads          map[string]string
	writes         map[string]string
	status         atomic.Value // TransactionStatus
}

func (st *state) setStatus(s TransactionStatus) { st.status.Store(s) }

// Manager owns one state per client name, keyed by the X-Client-Name
// header. A client with no entry is running outside any transaction.
type Manager struct {
	router *router.Router
	clk    *clock.Clock
	active cmap.ConcurrentMap[string, *state]
	sweep  *cron.Cron
}

// NewManager builds a transaction manager and starts its once-a-minute
// stale-transaction sweep.
func NewManager(r *router.Router, clk *clock.Clock) *Manager {
	m := &Manager{
		router: r,
		clk:    clk,
		active: cmap.New[*state](),
	}
	m.sweep = cron.New()
	_, _ = m.sweep.AddFunc("@every 1m", m.sweepStale)
	m.sweep.Start()
	return m
}

// Close stops the sweep scheduler. Open transactions are discarded, not
// rolled back to disk (nothing of theirs was ever applied).
func (m *Manager) Close() {
	m.sweep.Stop()
}

func (m *Manager) sweepStale() {
	cutoff := time.Now().Add(-time.Duration(StaleTransactionTimeoutMinutes) * time.Minute)
	// beginTimestamp lives in the shared clock's snowflake domain, not wall
	// time; approximate elapsed real time by comparing against a wall-clock
	// mark recorded alongside it.
	for client, st := range m.active.Items() {
		if st.startedAt.Before(cutoff) {
			m.active.Remove(client)
		}
	}
}

// Get performs a client-scoped read: transactional if the client has an
// open transaction, direct-to-router otherwise.
func (m *Manager) Get(client string, key []byte) (string, error) {
	st, ok := m.active.Get(client)
	if !ok {
		return m.router.Get(key)
	}
	return m.transactionalGet(st, key), nil
}

func (m *Manager) transactionalGet(st *state, key []byte) string {
	k := string(key)
	if v, ok := st.writes[k]; ok {
		return v
	}
	if v, ok := st.reads[k]; ok {
		return v
	}
	v, err := m.router.GetSnapshot(key, st.beginTimestamp)
	if err != nil {
		v = "NIL"
	}
	st.reads[k] = v
	return v
}

// peek looks up key's value the same way transactionalGet does but without
// recording a read. A blind write (set without a preceding get) must not
// make the writer appear as a reader of key, or it could spuriously
// conflict with another transaction's unrelated commit to that key.
func (m *Manager) peek(st *state, key []byte) string {
	k := string(key)
	if v, ok := st.writes[k]; ok {
		return v
	}
	if v, ok := st.reads[k]; ok {
		return v
	}
	v, err := m.router.GetSnapshot(key, st.beginTimestamp)
	if err != nil {
		return "NIL"
	}
	return v
}

// Set performs a client-scoped write, returning the value observed just
// before this write and the newly written canonical value.
func (m *Manager) Set(client string, key []byte, value codec.Value) (oldValue, newValue string, err error) {
	st, ok := m.active.Get(client)
	if !ok {
		return m.router.Set(key, value)
	}
	k := string(key)
	if existing, wroteAlready := st.writes[k]; wroteAlready {
		oldValue = existing
	} else {
		oldValue = m.peek(st, key)
	}
	newValue = value.Canonical()
	st.writes[k] = newValue
	return oldValue, newValue, nil
}

// Begin opens a transaction for client, anchored at the current instant.
func (m *Manager) Begin(client string) error {
	if _, ok := m.active.Get(client); ok {
		return ErrAlreadyInTransaction
	}
	st := &state{
		beginTimestamp: m.clk.Now(),
		startedAt:      time.Now(),
		reads:          make(map[string]string),
		writes:         make(map[string]string),
	}
	st.setStatus(TransactionRunning)
	m.active.Set(client, st)
	return nil
}

// Commit validates client's read set against current committed state and,
// if unchanged, applies every buffered write. On conflict every write is
// discarded and AtomicityFailure names the offending keys.
func (m *Manager) Commit(client string) error {
	st, ok := m.active.Get(client)
	if !ok {
		return ErrNoTransactionInProgress
	}
	st.setStatus(TransactionCommitting)
	defer func() {
		st.setStatus(TransactionClosed)
		m.active.Remove(client)
	}()

	var conflicts []string
	for k, expected := range st.reads {
		current, err := m.router.Get([]byte(k))
		if err != nil || current != expected {
			conflicts = append(conflicts, k)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return &AtomicityFailure{Keys: conflicts}
	}

	for k, canonical := range st.writes {
		value := codec.ParseCanonical(canonical)
		if _, _, err := m.router.Set([]byte(k), value); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards client's transaction without applying anything.
func (m *Manager) Rollback(client string) error {
	st, ok := m.active.Get(client)
	if !ok {
		return ErrNoTransactionInProgress
	}
	st.setStatus(TransactionClosed)
	m.active.Remove(client)
	return nil
}
