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

// LineIterator walks a shard's data file line by line, tracking the byte
// offset each line started at. It is a physical, one-pass reader for
// Bloom-filter and offset-index warm-up at boot, not a logical key-ordered
// scan — Cube has no range-scan operation.
type LineIterator struct {
	content []byte
	pos     int
	line    []byte
	offset  int64
	done    bool
}

func newLineIterator(content []byte) *LineIterator {
	return &LineIterator{content: content}
}

// Next advances to the next line, returning false once the content is
// exhausted.
func (it *LineIterator) Next() bool {
	if it.pos >= len(it.content) {
		it.done = true
		return false
	}
	start := it.pos
	nl := indexByte(it.content[it.pos:], '\n')
	var end int
	if nl < 0 {
		end = len(it.content)
		it.pos = len(it.content)
	} else {
		end = start + nl
		it.pos = end + 1
	}
	it.line = it.content[start:end]
	it.offset = int64(start)
	if len(it.line) == 0 {
		return it.Next()
	}
	return true
}

// Line returns the current line, without its trailing newline.
func (it *LineIterator) Line() []byte { return it.line }

// Offset returns the byte offset the current line started at.
func (it *LineIterator) Offset() int64 { return it.offset }

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
