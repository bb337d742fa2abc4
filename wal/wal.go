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

// Package wal implements the per-shard write-ahead log: append-and-fsync
// before a write is applied to the data file, replay at boot, and
// truncation once the WAL's contents are known to be durable in the data
// file.
package wal

import (
	"bytes"
	"cube/persistence/fileio"
	"fmt"
	"path/filepath"
)

// Log is one shard's write-ahead log file.
type Log struct {
	manager fileio.Manager
}

// Open opens (creating if absent) the WAL file for shardID under dataDir.
func Open(dataDir, shardID string) (*Log, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("wal_shard_%s.log", shardID))
	manager, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	return &Log{manager: manager}, nil
}

// Append writes record to the WAL and fsyncs before returning. A SET is
// only visible to the data file once this call has returned successfully.
func (l *Log) Append(record []byte) error {
	line := record
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(append([]byte{}, line...), '\n')
	}
	if err := l.manager.Append(line); err != nil {
		return err
	}
	return l.manager.Sync()
}

// Replay returns every nonempty, trimmed line currently in the WAL, in the
// order they were appended.
func (l *Log) Replay() ([][]byte, error) {
	_, content, err := l.manager.ReadAll()
	if err != nil {
		return nil, err
	}
	var records [][]byte
	for _, line := range bytes.Split(content, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		records = append(records, line)
	}
	return records, nil
}

// Clear deletes the WAL file. Called once every replayed record has been
// applied to the data file durably.
func (l *Log) Clear() error {
	return l.manager.Remove()
}

func (l *Log) Close() error {
	return l.manager.Close()
}
