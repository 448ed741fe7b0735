// Copyright 2024 The Solaris Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gelf

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeChunk(messageID uint64, seq, total int, payload []byte) []byte {
	buf := make([]byte, chunkHeaderSize+len(payload))
	buf[0], buf[1] = chunkMagic[0], chunkMagic[1]
	binary.BigEndian.PutUint64(buf[2:10], messageID)
	buf[10] = byte(seq)
	buf[11] = byte(total)
	copy(buf[chunkHeaderSize:], payload)
	return buf
}

func splitChunks(messageID uint64, data []byte, chunkSize int) [][]byte {
	var total int
	for i := 0; i < len(data); i += chunkSize {
		total++
	}
	var out [][]byte
	seq := 0
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, makeChunk(messageID, seq, total, data[i:end]))
		seq++
	}
	return out
}

func TestReassembler_ChunkedRoundTrip(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})
	original := []byte("the quick brown fox jumps over the lazy dog, repeated to force multiple chunks")
	chunks := splitChunks(42, original, 10)
	assert.True(t, len(chunks) > 1)

	var got Message
	var ok bool
	var err error
	for i, c := range chunks {
		got, ok, err = r.FeedDatagram(c)
		assert.Nil(t, err)
		if i < len(chunks)-1 {
			assert.False(t, ok)
		}
	}
	assert.True(t, ok)
	assert.Equal(t, uint64(42), got.ID)
	assert.Equal(t, original, got.Payload)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReassembler_OutOfOrderChunks(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})
	original := []byte("0123456789abcdefghij")
	chunks := splitChunks(7, original, 5)
	assert.Equal(t, 4, len(chunks))

	order := []int{2, 0, 3, 1}
	var got Message
	var ok bool
	for _, idx := range order {
		var err error
		got, ok, err = r.FeedDatagram(chunks[idx])
		assert.Nil(t, err)
	}
	assert.True(t, ok)
	assert.Equal(t, original, got.Payload)
}

func TestReassembler_DuplicateChunkIgnored(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})
	original := []byte("abcdefghijklmnopqrst")
	chunks := splitChunks(1, original, 5)

	_, ok, err := r.FeedDatagram(chunks[0])
	assert.Nil(t, err)
	assert.False(t, ok)

	// Re-feed the same chunk; must be silently ignored, not an error.
	_, ok, err = r.FeedDatagram(chunks[0])
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, r.PendingCount())

	for _, c := range chunks[1:] {
		_, ok, err = r.FeedDatagram(c)
		assert.Nil(t, err)
	}
	assert.True(t, ok)
}

func TestReassembler_TotalChunksMismatch(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})
	_, _, err := r.FeedDatagram(makeChunk(5, 0, 3, []byte("aaa")))
	assert.Nil(t, err)

	_, _, err = r.FeedDatagram(makeChunk(5, 1, 4, []byte("bbb")))
	assert.NotNil(t, err)
	var mismatch *TotalChunksMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestReassembler_Timeout(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone, Timeout: 20 * time.Millisecond})
	_, ok, err := r.FeedDatagram(makeChunk(9, 0, 2, []byte("partial")))
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, r.PendingCount())

	assert.Eventually(t, func() bool { return r.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReassembler_PendingMessagesLimit(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone, PendingMessagesLimit: 2, Timeout: time.Minute})

	_, _, err := r.FeedDatagram(makeChunk(1, 0, 2, []byte("a")))
	assert.Nil(t, err)
	_, _, err = r.FeedDatagram(makeChunk(2, 0, 2, []byte("b")))
	assert.Nil(t, err)

	_, _, err = r.FeedDatagram(makeChunk(3, 0, 2, []byte("c")))
	assert.NotNil(t, err)
	var limitErr *PendingMessagesLimitReachedError
	assert.True(t, errors.As(err, &limitErr))
}

func TestReassembler_LateChunkAfterTimeoutDoesNotEmit(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone, Timeout: 20 * time.Millisecond})
	_, ok, err := r.FeedDatagram(makeChunk(11, 0, 2, []byte("foo")))
	assert.Nil(t, err)
	assert.False(t, ok)

	assert.Eventually(t, func() bool { return r.PendingCount() == 0 }, time.Second, 5*time.Millisecond)

	// The missing chunk arrives after expiry: it starts a fresh partial
	// message instead of completing the dead one.
	_, ok, err = r.FeedDatagram(makeChunk(11, 1, 2, []byte("bar")))
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, r.PendingCount())
}

func TestReassembler_MaxLengthExceededDropsMessage(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone, MaxLength: 8, Timeout: time.Minute})

	_, ok, err := r.FeedDatagram(makeChunk(21, 0, 2, []byte("12345")))
	assert.Nil(t, err)
	assert.False(t, ok)

	_, _, err = r.FeedDatagram(makeChunk(21, 1, 2, []byte("67890")))
	var tooBig *MaxLengthExceededError
	assert.True(t, errors.As(err, &tooBig))
	assert.Equal(t, 0, r.PendingCount(), "an oversized message's state is dropped entirely")
}

func TestReassembler_InvalidChunks(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})

	// Header shorter than magic+id+seq+total.
	_, _, err := r.FeedDatagram([]byte{0x1e, 0x0f, 0x01})
	var hdrErr *InvalidChunkHeaderError
	assert.True(t, errors.As(err, &hdrErr))

	// total_chunks of 0 and of >128 are both out of protocol bounds.
	_, _, err = r.FeedDatagram(makeChunk(31, 0, 0, nil))
	var totalErr *InvalidTotalChunksError
	assert.True(t, errors.As(err, &totalErr))

	bad := makeChunk(31, 0, 1, nil)
	bad[11] = 200
	_, _, err = r.FeedDatagram(bad)
	assert.True(t, errors.As(err, &totalErr))

	// sequence must be < total_chunks.
	_, _, err = r.FeedDatagram(makeChunk(31, 2, 2, nil))
	var seqErr *InvalidSequenceNumberError
	assert.True(t, errors.As(err, &seqErr))

	assert.Equal(t, 0, r.PendingCount())
}

func TestReassembler_GzipDecompression(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"short_message":"hello"}`))
	assert.Nil(t, err)
	assert.Nil(t, zw.Close())

	r := NewReassembler(Config{Decompression: DecompressAuto})
	got, ok, err := r.FeedDatagram(buf.Bytes())
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"short_message":"hello"}`, string(got.Payload))
}

func TestReassembler_UnchunkedPassthrough(t *testing.T) {
	r := NewReassembler(Config{Decompression: DecompressNone})
	got, ok, err := r.FeedDatagram([]byte(`{"short_message":"plain"}`))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"short_message":"plain"}`, string(got.Payload))
}
