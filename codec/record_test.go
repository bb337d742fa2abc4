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

package codec

import (
	. "cube/comment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		StringValue("Alice"),
		IntValue(42),
		IntValue(-7),
		BoolValue(true),
		BoolValue(false),
		NilValue(),
		StringValue(""),
		StringValue("has\nnewline\x00and-nul"),
	}
	for _, v := range cases {
		record, shardID, err := EncodeSet([]byte("name"), v)
		require.NoError(t, err)
		require.Len(t, shardID, 2)

		decoded, err := Decode(record)
		require.NoError(t, err)
		assert.Equal(t, v.Canonical(), decoded)
	}
}

func TestKeyPrefixMatchesBetweenGetAndSet(t *testing.T) {
	record, setShard, err := EncodeSet([]byte("hello"), StringValue("world"))
	require.NoError(t, err)

	prefix, getShard, err := EncodeGet([]byte("hello"))
	require.NoError(t, err)

	setPrefix, err := ExtractKeyPrefix(record)
	require.NoError(t, err)

	assert.Equal(t, string(prefix), string(setPrefix))
	assert.Equal(t, setShard, getShard)
}

func TestKeyPrefixDistinctness(t *testing.T) {
	r1, _, err := EncodeSet([]byte("key1"), StringValue("a"))
	require.NoError(t, err)
	r2, _, err := EncodeSet([]byte("key12"), StringValue("b"))
	require.NoError(t, err)

	p1, err := ExtractKeyPrefix(r1)
	require.NoError(t, err)
	p2, err := ExtractKeyPrefix(r2)
	require.NoError(t, err)

	assert.NotEqual(t, string(p1), string(p2))
}

func TestKeyTooLong(t *testing.T) {
	longKey := make([]byte, MaxKeyBytes+1)
	for i := range longKey {
		longKey[i] = 'a'
	}
	_, _, err := EncodeSet(longKey, StringValue("x"))
	assert.ErrorIs(t, err, ErrKeyTooLong)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not-a-record"))
	assert.Error(t, err)
}

func TestParseCanonical(t *testing.T) {
	assert.Equal(t, NilValue(), ParseCanonical("NIL"))
	assert.Equal(t, BoolValue(true), ParseCanonical("TRUE"))
	assert.Equal(t, BoolValue(false), ParseCanonical("FALSE"))
	assert.Equal(t, IntValue(42), ParseCanonical("42"))
	assert.Equal(t, IntValue(-3), ParseCanonical("-3"))
	assert.Equal(t, StringValue("hello"), ParseCanonical("hello"))
}

func TestParseCanonicalIsCaseInsensitiveForLiterals(t *testing.T) {
	assert.Equal(t, NilValue(), ParseCanonical("nil"))
	assert.Equal(t, BoolValue(true), ParseCanonical("true"))
	assert.Equal(t, BoolValue(false), ParseCanonical("False"))
}
