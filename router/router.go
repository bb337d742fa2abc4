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

// Package router is the stateless facade in front of every shard's Engine:
// it computes which shard owns a key and dispatches to it. It carries no
// state of its own beyond the shard registry built once at boot.
package router

import (
	"cube/codec"
	"cube/shard"
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Router dispatches GET/SET calls to the shard that owns each key.
type Router struct {
	shards cmap.ConcurrentMap[string, *shard.Engine]
}

// New builds a Router over an already-booted set of shard engines.
func New(engines []*shard.Engine) *Router {
	shards := cmap.New[*shard.Engine]()
	for _, e := range engines {
		shards.Set(e.ID(), e)
	}
	return &Router{shards: shards}
}

func (r *Router) shardFor(key []byte) (*shard.Engine, error) {
	_, shardID, err := codec.EncodeGet(key)
	if err != nil {
		return nil, err
	}
	e, ok := r.shards.Get(shardID)
	if !ok {
		return nil, fmt.Errorf("router: no engine registered for shard %s", shardID)
	}
	return e, nil
}

// Get returns key's current value, or "NIL" if absent.
func (r *Router) Get(key []byte) (string, error) {
	e, err := r.shardFor(key)
	if err != nil {
		return "", err
	}
	return e.Get(key)
}

// Set writes value for key, returning the value observed just before the
// write and the newly written canonical value.
func (r *Router) Set(key []byte, value codec.Value) (oldValue, newValue string, err error) {
	e, err := r.shardFor(key)
	if err != nil {
		return "", "", err
	}
	return e.Set(key, value)
}

// GetSnapshot forwards a BEGIN-timestamp-scoped read to the owning shard's
// MVCC version ring.
func (r *Router) GetSnapshot(key []byte, beginTimestamp int64) (string, error) {
	e, err := r.shardFor(key)
	if err != nil {
		return "", err
	}
	return e.GetSnapshot(key, beginTimestamp)
}

// Stats aggregates per-shard counters keyed by shard ID, for the /stats
// endpoint.
func (r *Router) Stats() map[string]shard.Stats {
	out := make(map[string]shard.Stats, r.shards.Count())
	for id, e := range r.shards.Items() {
		out[id] = e.Stats()
	}
	return out
}

// Close shuts down every registered shard engine.
func (r *Router) Close() error {
	var firstErr error
	for _, e := range r.shards.Items() {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
