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

// Package bloom implements a counting Bloom filter used to fast-reject GETs
// for keys that were never SET on a shard, without touching its data file.
package bloom

import (
	"github.com/sigurn/crc16"
	"sync/atomic"
)

var hashTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Filter is a fixed-size vector of atomic counters. add/remove/contains are
// all safe to call concurrently; only the shard owner is expected to call
// add/remove, but contains may be read from any goroutine.
type Filter struct {
	counters  []atomic.Uint32
	size      uint32
	hashCount int
}

// New builds a counting Bloom filter with the given cell count and hash
// function count. size and hashCount are fixed for the filter's lifetime.
func New(size uint32, hashCount int) *Filter {
	if size == 0 {
		size = 1
	}
	if hashCount <= 0 {
		hashCount = 1
	}
	return &Filter{
		counters:  make([]atomic.Uint32, size),
		size:      size,
		hashCount: hashCount,
	}
}

// Add increments the counter at each of the key's hash positions.
func (f *Filter) Add(key []byte) {
	for _, pos := range f.positions(key) {
		f.counters[pos].Add(1)
	}
}

// Remove decrements the counter at each hash position, saturating at zero
// so a filter never underflows below "not present".
func (f *Filter) Remove(key []byte) {
	for _, pos := range f.positions(key) {
		for {
			cur := f.counters[pos].Load()
			if cur == 0 {
				break
			}
			if f.counters[pos].CompareAndSwap(cur, cur-1) {
				break
			}
		}
	}
}

// Contains reports whether every one of the key's hash positions has a
// nonzero counter. False positives are possible; false negatives are not,
// provided every present key was Add-ed.
func (f *Filter) Contains(key []byte) bool {
	for _, pos := range f.positions(key) {
		if f.counters[pos].Load() == 0 {
			return false
		}
	}
	return true
}

// positions derives hashCount independent hash positions from a base CRC-16
// hash of key by mixing in the position index, the same "seed the base hash
// with an index" trick the reference engine uses for slot assignment.
func (f *Filter) positions(key []byte) []uint32 {
	base := uint32(crc16.Checksum(key, hashTable))
	positions := make([]uint32, f.hashCount)
	mixed := base
	for i := 0; i < f.hashCount; i++ {
		mixed = mixed*2654435761 + uint32(i) + 1
		positions[i] = mixed % f.size
	}
	return positions
}
