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

// Package fileio wraps the raw file operations a shard's data file and WAL
// need: append, whole-file read, and a crash-safe atomic rewrite. Kept as
// its own thin interface, the way the reference storage engine isolates its
// IOManager from the record format above it, so tests can substitute a
// fake without touching a real filesystem.
package fileio

import (
	"os"
)

const filePermission = 0644

// Manager is the file-level abstraction the persistence and WAL packages
// build on.
type Manager interface {
	// Append writes buf to the end of the file and returns once the bytes
	// have been handed to the OS (no implicit fsync).
	Append(buf []byte) error
	// Sync fsyncs the file to durable storage.
	Sync() error
	// ReadAll returns the full current contents of the file. Returns
	// (nil, nil) if the file does not exist.
	ReadAll() (path string, content []byte, err error)
	// ReplaceAtomic writes content to a sibling temp file, fsyncs it, then
	// renames it over the original — crash-safe: either the old or the new
	// content survives a crash, never a partial file.
	ReplaceAtomic(content []byte) error
	// Exists reports whether the backing file is present.
	Exists() bool
	// Remove deletes the backing file if present.
	Remove() error
	Close() error
	Path() string
}

type osManager struct {
	path string
	fd   *os.File
}

// Open opens (creating if absent) the file at path for append-mode writes.
func Open(path string) (Manager, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, filePermission)
	if err != nil {
		return nil, err
	}
	return &osManager{path: path, fd: fd}, nil
}

func (m *osManager) Append(buf []byte) error {
	_, err := m.fd.Write(buf)
	return err
}

func (m *osManager) Sync() error {
	return m.fd.Sync()
}

func (m *osManager) ReadAll() (string, []byte, error) {
	content, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m.path, nil, nil
	}
	if err != nil {
		return m.path, nil, err
	}
	return m.path, content, nil
}

func (m *osManager) ReplaceAtomic(content []byte) error {
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, content, filePermission); err != nil {
		return err
	}
	tmpFd, err := os.OpenFile(tmp, os.O_RDWR, filePermission)
	if err != nil {
		return err
	}
	if err := tmpFd.Sync(); err != nil {
		tmpFd.Close()
		return err
	}
	if err := tmpFd.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return err
	}
	// Reopen our append-mode handle: the old fd now points at an unlinked
	// inode on platforms where rename doesn't retarget existing fds.
	if err := m.fd.Close(); err != nil {
		return err
	}
	fd, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, filePermission)
	if err != nil {
		return err
	}
	m.fd = fd
	return nil
}

func (m *osManager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *osManager) Remove() error {
	err := os.Remove(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (m *osManager) Close() error {
	return m.fd.Close()
}

func (m *osManager) Path() string {
	return m.path
}
