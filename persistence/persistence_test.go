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
	"cube/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func mustSet(t *testing.T, key string, value string) ([]byte, []byte) {
	t.Helper()
	record, _, err := codec.EncodeSet([]byte(key), codec.StringValue(value))
	require.NoError(t, err)
	prefix, err := codec.ExtractKeyPrefix(record)
	require.NoError(t, err)
	return record, prefix
}

func TestUpdateOrAppendCreatesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "00")
	require.NoError(t, err)
	defer s.Close()

	record, prefix := mustSet(t, "name", "Alice")
	require.NoError(t, s.UpdateOrAppend(record, prefix))

	line, ok, err := s.ReadLineByPrefix(prefix)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(trimNewline(record)), string(line))
}

func TestUpdateOrAppendReplacesInPlace(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "00")
	require.NoError(t, err)
	defer s.Close()

	r1, p1 := mustSet(t, "x", "1")
	require.NoError(t, s.UpdateOrAppend(r1, p1))

	r2, p2 := mustSet(t, "x", "2")
	require.NoError(t, s.UpdateOrAppend(r2, p2))

	line, ok, err := s.ReadLineByPrefix(p2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(trimNewline(r2)), string(line))

	iter, err := s.StreamLines()
	require.NoError(t, err)
	count := 0
	for iter.Next() {
		count++
	}
	assert.Equal(t, 1, count, "one key must produce exactly one line after update")
}

func TestKeyPrefixDistinctness(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "00")
	require.NoError(t, err)
	defer s.Close()

	r1, p1 := mustSet(t, "key1", "a")
	r2, p2 := mustSet(t, "key12", "b")
	require.NoError(t, s.UpdateOrAppend(r1, p1))
	require.NoError(t, s.UpdateOrAppend(r2, p2))

	l1, ok, err := s.ReadLineByPrefix(p1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(trimNewline(r1)), string(l1))

	l2, ok, err := s.ReadLineByPrefix(p2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(trimNewline(r2)), string(l2))
}

func TestReadLineByPrefixMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "00")
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.ReadLineByPrefix([]byte("008AABBCCDD"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOtherLinesPreservedInOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "00")
	require.NoError(t, err)
	defer s.Close()

	rA, pA := mustSet(t, "a", "1")
	rB, pB := mustSet(t, "b", "2")
	rC, pC := mustSet(t, "c", "3")
	require.NoError(t, s.UpdateOrAppend(rA, pA))
	require.NoError(t, s.UpdateOrAppend(rB, pB))
	require.NoError(t, s.UpdateOrAppend(rC, pC))

	rB2, _ := mustSet(t, "b", "20")
	require.NoError(t, s.UpdateOrAppend(rB2, pB))

	iter, err := s.StreamLines()
	require.NoError(t, err)
	var got []string
	for iter.Next() {
		got = append(got, string(iter.Line()))
	}
	require.Len(t, got, 3)
	assert.Equal(t, string(trimNewline(rA)), got[0])
	assert.Equal(t, string(trimNewline(rB2)), got[1])
	assert.Equal(t, string(trimNewline(rC)), got[2])
}
