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

package shard

import (
	"cube/clock"
	"cube/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	clk, err := clock.New(1_700_000_000_000)
	require.NoError(t, err)
	e, err := Boot(dir, "00", 1000, 3, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Equal(t, "NIL", v)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	old, nv, err := e.Set([]byte("name"), codec.StringValue("Alice"))
	require.NoError(t, err)
	assert.Equal(t, "NIL", old)
	assert.Equal(t, "Alice", nv)

	v, err := e.Get([]byte("name"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
}

func TestSetReturnsPriorValueBeforeWriteVisible(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.Set([]byte("count"), codec.IntValue(1))
	require.NoError(t, err)

	old, nv, err := e.Set([]byte("count"), codec.IntValue(2))
	require.NoError(t, err)
	assert.Equal(t, "1", old)
	assert.Equal(t, "2", nv)
}

func TestSurvivesWALReplayAfterReboot(t *testing.T) {
	dir := t.TempDir()
	clk, err := clock.New(1_700_000_000_000)
	require.NoError(t, err)

	e1, err := Boot(dir, "00", 1000, 3, clk)
	require.NoError(t, err)
	_, _, err = e1.Set([]byte("k"), codec.StringValue("v"))
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := Boot(dir, "00", 1000, 3, clk)
	require.NoError(t, err)
	defer e2.Close()

	v, err := e2.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestSnapshotFallsBackToOnDiskWhenNoRingEntry(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.Set([]byte("k"), codec.StringValue("v1"))
	require.NoError(t, err)

	v, err := e.GetSnapshot([]byte("k"), 9_999_999_999_999_999)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestSnapshotSeesValueAsOfBeginTimestamp(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.Set([]byte("k"), codec.StringValue("first"))
	require.NoError(t, err)

	beginTs := e.clk.Now()

	_, _, err = e.Set([]byte("k"), codec.StringValue("second"))
	require.NoError(t, err)

	v, err := e.GetSnapshot([]byte("k"), beginTs)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestStatsCountsGetsAndSets(t *testing.T) {
	e := newTestEngine(t)
	_, _, _ = e.Set([]byte("k"), codec.StringValue("v"))
	_, _ = e.Get([]byte("k"))
	_, _ = e.Get([]byte("missing"))

	st := e.Stats()
	assert.Equal(t, uint64(1), st.Sets)
	assert.GreaterOrEqual(t, st.Gets, uint64(2))
}
