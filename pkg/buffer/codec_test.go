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

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		id       uint64
		metadata uint32
		payload  []byte
	}{
		{"empty payload", 1, 0, []byte{}},
		{"small payload", 42, 7, []byte("hello")},
		{"max id", ^uint64(0), 1, []byte("wrap")},
		{"binary payload", 100, 2, []byte{0x00, 0xff, 0x1e, 0x0f}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Encode(tc.id, tc.metadata, tc.payload, 0)
			require.NoError(t, err)
			assert.Equal(t, FramedSize(len(tc.payload)), len(frame))

			res := Decode(frame)
			require.Equal(t, StatusValid, res.Status)
			assert.Equal(t, tc.id, res.Record.ID)
			assert.Equal(t, tc.metadata, res.Record.Metadata)
			assert.Equal(t, tc.payload, res.Record.Payload)
			assert.Equal(t, len(frame), res.Consumed)
		})
	}
}

func TestCodec_EncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(1, 0, make([]byte, 17), 16)
	assert.Error(t, err)

	_, err = Encode(1, 0, make([]byte, 16), 16)
	assert.NoError(t, err)
}

func TestCodec_DecodeDetectsCorruption(t *testing.T) {
	frame, err := Encode(5, 1, []byte("payload"), 0)
	require.NoError(t, err)

	// Flip a payload byte; the frame stays structurally valid.
	frame[lengthPrefixSize+bodyHeaderSize] ^= 0xff
	res := Decode(frame)
	assert.Equal(t, StatusCorrupted, res.Status)
	var ce *ChecksumError
	require.ErrorAs(t, res.Err, &ce)
	assert.NotEqual(t, ce.Calculated, ce.Actual)
	assert.Equal(t, len(frame), res.Consumed)
}

func TestCodec_DecodeTruncatedFrame(t *testing.T) {
	frame, err := Encode(5, 1, []byte("payload"), 0)
	require.NoError(t, err)

	res := Decode(frame[:len(frame)-3])
	assert.Equal(t, StatusFailedDeserialization, res.Status)
	var pe *PartialWriteError
	assert.ErrorAs(t, res.Err, &pe)

	res = Decode(frame[:4])
	assert.Equal(t, StatusFailedDeserialization, res.Status)
}

func TestCodec_DecodeAdversarialInput(t *testing.T) {
	// None of these may panic.
	inputs := [][]byte{
		nil,
		{},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, // absurd length prefix
		{0, 0, 0, 0, 0, 0, 0, 0},                         // zero length prefix
		make([]byte, 64),                                 // zeroes
	}
	for _, in := range inputs {
		res := Decode(in)
		assert.Equal(t, StatusFailedDeserialization, res.Status)
		assert.Error(t, res.Err)
	}
}

func TestCodec_IDWraparoundHelpers(t *testing.T) {
	assert.True(t, IDAtOrAfter(10, 10))
	assert.True(t, IDAtOrAfter(10, 11))
	assert.False(t, IDAtOrAfter(11, 10))

	// Across the 2^64 boundary: 1 is "after" 2^64-2.
	assert.True(t, IDAtOrAfter(^uint64(0)-1, 1))
	assert.False(t, IDAtOrAfter(1, ^uint64(0)-1))
	assert.EqualValues(t, 3, IDDelta(^uint64(0)-1, 1))

	assert.Equal(t, uint64(0), NextID(^uint64(0)))
}
