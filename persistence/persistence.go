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

// Package persistence implements the per-shard data file: a human-readable,
// line-oriented LTTLV text file with append-or-replace-in-place semantics.
// A Store is owned exclusively by one shard's owning goroutine; nothing
// here locks, by design (see spec §4.3/§5).
package persistence

import (
	"bytes"
	"cube/persistence/fileio"
	"fmt"
	"path/filepath"
	"strconv"
)

// Store is one shard's data file plus the in-memory offset index that
// accelerates lookups the Bloom filter has already said are worth checking.
type Store struct {
	shardID string
	manager fileio.Manager
	offsets *offsetIndex
}

// Open opens (creating if absent) the data file for shardID under dataDir.
func Open(dataDir, shardID string) (*Store, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("shard_%s_data.txt", shardID))
	manager, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{shardID: shardID, manager: manager, offsets: newOffsetIndex()}, nil
}

// Exists reports whether the shard's data file has been created yet.
func (s *Store) Exists() bool {
	return s.manager.Exists()
}

// Path returns the data file's filesystem path.
func (s *Store) Path() string {
	return s.manager.Path()
}

// Write appends a raw record to the end of the file with no dedup check.
// Used only by callers that already know the key is not present.
func (s *Store) Write(record []byte) error {
	return s.manager.Append(ensureTrailingNewline(record))
}

// UpdateOrAppend is the only operation that may rewrite the file. If a line
// already starts with keyPrefix, that first occurrence is replaced in
// place (crash-safe temp-file-then-rename); otherwise record is appended.
func (s *Store) UpdateOrAppend(record []byte, keyPrefix []byte) error {
	trimmed := trimNewline(record)
	prefix := string(keyPrefix)

	if !s.manager.Exists() {
		if err := s.manager.Append(append(append([]byte{}, trimmed...), '\n')); err != nil {
			return err
		}
		s.offsets.Put(prefix, 0)
		return nil
	}

	_, content, err := s.manager.ReadAll()
	if err != nil {
		return err
	}

	lines := splitLines(content)
	matchIdx := -1
	for i, line := range lines {
		if bytes.HasPrefix(line, keyPrefix) {
			matchIdx = i
			break
		}
	}

	if matchIdx == -1 {
		if err := s.manager.Append(append(append([]byte{}, trimmed...), '\n')); err != nil {
			return err
		}
		// The new line starts at the file's prior length.
		s.offsets.Put(prefix, int64(len(content)))
		return nil
	}

	lines[matchIdx] = trimmed
	var rebuilt bytes.Buffer
	newOffsets := make(map[string]int64, len(lines))
	for _, line := range lines {
		p, err := extractPrefixFn(line)
		if err == nil {
			newOffsets[string(p)] = int64(rebuilt.Len())
		}
		rebuilt.Write(line)
		rebuilt.WriteByte('\n')
	}
	if err := s.manager.ReplaceAtomic(rebuilt.Bytes()); err != nil {
		return err
	}
	s.offsets.Reset()
	for p, off := range newOffsets {
		s.offsets.Put(p, off)
	}
	return nil
}

// ReadLineByPrefix returns the last line starting with prefix, trimmed of
// its newline, or ok=false if no such line exists.
func (s *Store) ReadLineByPrefix(prefix []byte) (line []byte, ok bool, err error) {
	if off, hit := s.offsets.Get(string(prefix)); hit {
		if l, found, rerr := s.readLineAt(off, prefix); rerr == nil && found {
			return l, true, nil
		}
		// Cache miss on a stale offset: fall through to a full scan.
	}

	_, content, err := s.manager.ReadAll()
	if err != nil {
		return nil, false, err
	}
	lines := splitLines(content)
	for i := len(lines) - 1; i >= 0; i-- {
		if bytes.HasPrefix(lines[i], prefix) {
			return lines[i], true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) readLineAt(offset int64, prefix []byte) ([]byte, bool, error) {
	_, content, err := s.manager.ReadAll()
	if err != nil {
		return nil, false, err
	}
	if offset < 0 || offset > int64(len(content)) {
		return nil, false, nil
	}
	rest := content[offset:]
	nl := bytes.IndexByte(rest, '\n')
	var line []byte
	if nl < 0 {
		line = rest
	} else {
		line = rest[:nl]
	}
	if !bytes.HasPrefix(line, prefix) {
		return nil, false, nil
	}
	return line, true, nil
}

// StreamLines returns a LineIterator over the current contents of the data
// file, for Bloom-filter and offset-index warm-up at boot. Returns an
// iterator over no lines if the file does not exist.
func (s *Store) StreamLines() (*LineIterator, error) {
	_, content, err := s.manager.ReadAll()
	if err != nil {
		return nil, err
	}
	return newLineIterator(content), nil
}

// IndexOffset records that keyPrefix's current line begins at offset,
// letting a caller (typically boot warm-up) populate the offset index
// without going through UpdateOrAppend.
func (s *Store) IndexOffset(keyPrefix []byte, offset int64) {
	s.offsets.Put(string(keyPrefix), offset)
}

func (s *Store) Close() error {
	return s.manager.Close()
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	var lines [][]byte
	for _, line := range bytes.Split(content, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func ensureTrailingNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return append(append([]byte{}, b...), '\n')
	}
	return b
}

// extractPrefixFn is a narrow copy of codec.ExtractKeyPrefix's parsing
// without importing codec here, to keep persistence a leaf package (codec
// itself does not depend on persistence, but shard depends on both — this
// avoids a cycle risk if that ever changes and keeps offset-index rebuild
// self-contained).
func extractPrefixFn(record []byte) ([]byte, error) {
	if len(record) < 3 {
		return nil, fmt.Errorf("short record")
	}
	l, err := strconv.ParseUint(string(record[0:3]), 16, 32)
	if err != nil {
		return nil, err
	}
	end := 3 + int(l)
	if end > len(record) {
		return nil, fmt.Errorf("truncated record")
	}
	return record[:end], nil
}
