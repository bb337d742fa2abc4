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

package engine

import (
	"cube/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestOpenTwiceOnSameDirFails(t *testing.T) {
	dir := t.TempDir()
	e1, err := Open(DefaultOptions(dir))
	require.NoError(t, err)
	defer e1.Close()

	_, err = Open(DefaultOptions(dir))
	assert.Error(t, err)
}

func TestSetThenGetAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e1, err := Open(DefaultOptions(dir))
	require.NoError(t, err)
	old, nv, err := e1.Set("alice", "name", codec.StringValue("Alice"))
	require.NoError(t, err)
	assert.Equal(t, "NIL", old)
	assert.Equal(t, "Alice", nv)
	require.NoError(t, e1.Close())

	e2, err := Open(DefaultOptions(dir))
	require.NoError(t, err)
	defer e2.Close()

	v, err := e2.Get("alice", "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
}

func TestTransactionLifecycle(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultOptions(dir))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Begin("alice"))
	_, _, err = e.Set("alice", "x", codec.IntValue(1))
	require.NoError(t, err)
	require.NoError(t, e.Commit("alice"))

	v, err := e.Get("bob", "x")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
