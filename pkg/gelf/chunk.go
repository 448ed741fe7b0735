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

import "encoding/binary"

// chunkMagic is the two leading bytes that mark a datagram as a GELF chunk,
// as opposed to a plain (unchunked) GELF message.
var chunkMagic = [2]byte{0x1e, 0x0f}

// chunkHeaderSize is magic(2) + message_id(8) + sequence(1) + total(1).
const chunkHeaderSize = 12

// chunk is a single parsed GELF chunk datagram.
type chunk struct {
	messageID uint64
	sequence  int
	total     int
	payload   []byte
}

// isChunked reports whether buf begins with the GELF chunk magic.
func isChunked(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == chunkMagic[0] && buf[1] == chunkMagic[1]
}

// parseChunk validates and decodes a chunk datagram. buf is not retained
// beyond the call other than via payload, which aliases buf's backing array;
// callers that need to hold onto a chunk past the lifetime of buf must copy.
func parseChunk(buf []byte) (chunk, error) {
	if len(buf) < chunkHeaderSize {
		return chunk{}, &InvalidChunkHeaderError{Have: len(buf)}
	}
	total := int(buf[11])
	if total < 1 || total > MaxChunksPerMessage {
		return chunk{}, &InvalidTotalChunksError{Total: total}
	}
	seq := int(buf[10])
	if seq >= total {
		return chunk{}, &InvalidSequenceNumberError{Sequence: seq, Total: total}
	}
	return chunk{
		messageID: binary.BigEndian.Uint64(buf[2:10]),
		sequence:  seq,
		total:     total,
		payload:   buf[chunkHeaderSize:],
	}, nil
}
