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

package persistence

import (
	"github.com/google/btree"
)

// offsetItem maps one key-prefix to the byte offset of its line within the
// shard's data file. Only the shard's own owning goroutine ever mutates a
// shard's offsetIndex, so it needs no internal locking of its own.
type offsetItem struct {
	prefix string
	offset int64
}

func (a *offsetItem) Less(b btree.Item) bool {
	return a.prefix < b.(*offsetItem).prefix
}

// offsetIndex accelerates readLineByPrefix beyond a linear scan once the
// Bloom filter has said "maybe present": instead of scanning the whole
// file, seek straight to the last known offset for that prefix.
type offsetIndex struct {
	tree *btree.BTree
}

func newOffsetIndex() *offsetIndex {
	return &offsetIndex{tree: btree.New(32)}
}

func (idx *offsetIndex) Put(prefix string, offset int64) {
	idx.tree.ReplaceOrInsert(&offsetItem{prefix: prefix, offset: offset})
}

func (idx *offsetIndex) Get(prefix string) (int64, bool) {
	item := idx.tree.Get(&offsetItem{prefix: prefix})
	if item == nil {
		return 0, false
	}
	return item.(*offsetItem).offset, true
}

func (idx *offsetIndex) Delete(prefix string) {
	idx.tree.Delete(&offsetItem{prefix: prefix})
}

func (idx *offsetIndex) Reset() {
	idx.tree = btree.New(32)
}
