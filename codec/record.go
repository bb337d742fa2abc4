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
	"encoding/hex"
	"fmt"
	"github.com/sigurn/crc16"
	"github.com/valyala/bytebufferpool"
	"strconv"
	"strings"
)

// Record is a single LTTLV line, without its trailing newline.
//
//	LLLKK…KT VVVVVVVV HH…HH
//	 │  │  │    │      └── value bytes, hex-encoded (upper)
//	 │  │  │    └───────── value byte length, 8 hex digits (upper)
//	 │  │  └────────────── type tag: one ASCII digit
//	 │  └───────────────── key bytes, hex-encoded (upper)
//	 └──────────────────── key-hex length, 3 hex digits (upper)
type Record []byte

var shardTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// EncodeSet builds the LTTLV record for a SET of key/value and returns it
// alongside the two-digit shard ID both GET and SET on this key must agree
// on.
func EncodeSet(key []byte, value Value) (record Record, shardID string, err error) {
	if len(key) == 0 {
		return nil, "", ErrKeyIsEmpty
	}
	if len(key) > MaxKeyBytes {
		return nil, "", ErrKeyTooLong
	}

	keyHex := strings.ToUpper(hex.EncodeToString(key))
	valueBytes := []byte(value.Canonical())
	valueHex := strings.ToUpper(hex.EncodeToString(valueBytes))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Reset()

	fmt.Fprintf(buf, "%03X%s%c%08X%s\n", len(keyHex), keyHex, value.Kind.TypeTag(), len(valueBytes), valueHex)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return Record(out), ShardOf([]byte(keyHex)), nil
}

// EncodeGet builds the key-prefix fragment GET uses to address a shard's
// data file: LLL||keyHex, with no type/length/value suffix.
func EncodeGet(key []byte) (prefix Record, shardID string, err error) {
	if len(key) == 0 {
		return nil, "", ErrKeyIsEmpty
	}
	if len(key) > MaxKeyBytes {
		return nil, "", ErrKeyTooLong
	}
	keyHex := strings.ToUpper(hex.EncodeToString(key))
	prefix = Record(fmt.Sprintf("%03X%s", len(keyHex), keyHex))
	return prefix, ShardOf([]byte(keyHex)), nil
}

// ExtractKeyPrefix reads LLL from the front of a record (a full SET record
// or a bare GET fragment) and returns the leading LLL||keyHex substring.
func ExtractKeyPrefix(record []byte) ([]byte, error) {
	if len(record) < 3 {
		return nil, ErrMalformedRecord
	}
	l, err := strconv.ParseUint(string(record[0:3]), 16, 32)
	if err != nil {
		return nil, ErrMalformedRecord
	}
	end := 3 + int(l)
	if end > len(record) {
		return nil, ErrMalformedRecord
	}
	return record[:end], nil
}

// Decode reads a full LTTLV record and returns the canonical string of the
// value it carries.
func Decode(record []byte) (string, error) {
	record = trimNewline(record)
	if len(record) < 3 {
		return "", ErrMalformedRecord
	}
	keyHexLen, err := strconv.ParseUint(string(record[0:3]), 16, 32)
	if err != nil {
		return "", ErrMalformedRecord
	}
	if keyHexLen%2 != 0 {
		return "", ErrMalformedRecord
	}
	pos := 3 + int(keyHexLen)
	if pos+1 > len(record) {
		return "", ErrMalformedRecord
	}
	// type tag, currently unused beyond validation: storage compares
	// canonical strings, not type tags.
	if _, ok := ValueKindFromTag(record[pos]); !ok {
		return "", ErrMalformedRecord
	}
	pos++
	if pos+8 > len(record) {
		return "", ErrMalformedRecord
	}
	valueLen, err := strconv.ParseUint(string(record[pos:pos+8]), 16, 32)
	if err != nil {
		return "", ErrMalformedRecord
	}
	pos += 8
	valueHexLen := int(valueLen) * 2
	if pos+valueHexLen != len(record) {
		return "", ErrMalformedRecord
	}
	valueBytes, err := hex.DecodeString(string(record[pos : pos+valueHexLen]))
	if err != nil {
		return "", ErrMalformedRecord
	}
	return string(valueBytes), nil
}

func trimNewline(record []byte) []byte {
	for len(record) > 0 && (record[len(record)-1] == '\n' || record[len(record)-1] == '\r') {
		record = record[:len(record)-1]
	}
	return record
}

// ShardOf computes the stable, non-cryptographic hash of a key's hex form
// and reduces it modulo ShardCount, zero-padded to two digits.
func ShardOf(keyHex []byte) string {
	sum := crc16.Checksum(keyHex, shardTable)
	return fmt.Sprintf("%02d", int(sum)%ShardCount)
}
