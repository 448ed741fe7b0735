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
	"math/bits"

	"github.com/google/uuid"
)

// pendingMessage accumulates the chunks seen so far for one message ID. The
// two uint64 words give 128 bits, exactly covering MaxChunksPerMessage.
type pendingMessage struct {
	total     int
	have      [2]uint64
	chunks    [][]byte
	size      int
	onTimeout interface{ Cancel() }
	// correlationID gives operators a grep-able token distinct from the raw
	// GELF message_id, which may collide across distinct source hosts.
	correlationID uuid.UUID
}

func newPendingMessage(total int) *pendingMessage {
	return &pendingMessage{
		total:         total,
		chunks:        make([][]byte, total),
		correlationID: uuid.New(),
	}
}

// bitIndex returns (word, bit) for sequence number seq.
func bitIndex(seq int) (int, uint) {
	return seq / 64, uint(seq % 64)
}

func (p *pendingMessage) has(seq int) bool {
	w, b := bitIndex(seq)
	return p.have[w]&(1<<b) != 0
}

func (p *pendingMessage) mark(seq int) {
	w, b := bitIndex(seq)
	p.have[w] |= 1 << b
}

// count returns how many distinct chunk sequence numbers have been recorded.
func (p *pendingMessage) count() int {
	return bits.OnesCount64(p.have[0]) + bits.OnesCount64(p.have[1])
}

// complete reports whether every sequence number in [0, total) has arrived.
func (p *pendingMessage) complete() bool {
	return p.count() == p.total
}

// assemble concatenates the chunk payloads in sequence order. Callers must
// only call this once complete() is true.
func (p *pendingMessage) assemble() []byte {
	out := make([]byte, 0, p.size)
	for _, c := range p.chunks {
		out = append(out, c...)
	}
	return out
}
