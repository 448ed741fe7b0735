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
	"sync"

	"github.com/google/uuid"
	"github.com/solarisdb/fluxcore/golibs/logging"
	"github.com/solarisdb/fluxcore/golibs/timeout"
)

// Message is a fully reassembled (and, unless Decompression is DecompressNone,
// decompressed) GELF payload.
type Message struct {
	// ID is the chunk message_id for a chunked message, or 0 for a message
	// that arrived unchunked.
	ID      uint64
	Payload []byte
	// CorrelationID is a random token minted per chunked message, distinct
	// from the wire message_id, for correlating log lines across retries.
	// It is the zero UUID for messages that arrived unchunked.
	CorrelationID uuid.UUID
}

// Reassembler implements C5: it consumes whole UDP datagrams (chunked or
// not) and emits complete messages once every chunk of a message has
// arrived, dropping messages that time out and bounding how many distinct
// messages may be in flight at once.
type Reassembler struct {
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingMessage
}

// NewReassembler constructs a Reassembler from cfg, filling in defaults for
// any zero-valued tunable.
func NewReassembler(cfg Config) *Reassembler {
	return &Reassembler{
		cfg:     cfg.withDefaults(),
		logger:  logging.NewLogger("gelf.Reassembler"),
		pending: make(map[uint64]*pendingMessage),
	}
}

// FeedDatagram processes one received datagram. If it completes a message
// (or the datagram was an unchunked whole message), the returned Message is
// valid and ok is true. Otherwise ok is false and err reports whether the
// datagram was rejected outright (a nil err with ok false just means more
// chunks are still awaited).
func (r *Reassembler) FeedDatagram(buf []byte) (msg Message, ok bool, err error) {
	if !isChunked(buf) {
		payload, derr := decompress(r.cfg.Decompression, buf)
		if derr != nil {
			return Message{}, false, derr
		}
		return Message{Payload: payload}, true, nil
	}

	c, err := parseChunk(buf)
	if err != nil {
		return Message{}, false, err
	}

	r.mu.Lock()
	pm, existed := r.pending[c.messageID]
	if !existed {
		if len(r.pending) >= r.cfg.PendingMessagesLimit {
			r.mu.Unlock()
			return Message{}, false, &PendingMessagesLimitReachedError{Limit: r.cfg.PendingMessagesLimit}
		}
		pm = newPendingMessage(c.total)
		mid := c.messageID
		pm.onTimeout = timeout.Call(func() { r.expire(mid) }, r.cfg.Timeout)
		r.pending[mid] = pm
	}

	if pm.total != c.total {
		r.mu.Unlock()
		return Message{}, false, &TotalChunksMismatchError{MessageID: c.messageID, Expected: pm.total, Received: c.total}
	}

	if pm.has(c.sequence) {
		// Duplicate chunk (retransmission); ignore.
		r.mu.Unlock()
		return Message{}, false, nil
	}

	newSize := pm.size + len(c.payload)
	if newSize > r.cfg.MaxLength {
		r.removeLocked(c.messageID)
		r.mu.Unlock()
		return Message{}, false, &MaxLengthExceededError{MessageID: c.messageID, Size: newSize, Max: r.cfg.MaxLength}
	}

	payload := make([]byte, len(c.payload))
	copy(payload, c.payload)
	pm.chunks[c.sequence] = payload
	pm.size = newSize
	pm.mark(c.sequence)

	if !pm.complete() {
		r.mu.Unlock()
		return Message{}, false, nil
	}

	assembled := pm.assemble()
	correlationID := pm.correlationID
	r.removeLocked(c.messageID)
	r.mu.Unlock()

	out, derr := decompress(r.cfg.Decompression, assembled)
	if derr != nil {
		return Message{}, false, derr
	}
	return Message{ID: c.messageID, Payload: out, CorrelationID: correlationID}, true, nil
}

// removeLocked drops messageID's pending state and cancels its timeout.
// Callers must hold r.mu.
func (r *Reassembler) removeLocked(messageID uint64) {
	if pm, ok := r.pending[messageID]; ok {
		if pm.onTimeout != nil {
			pm.onTimeout.Cancel()
		}
		delete(r.pending, messageID)
	}
}

func (r *Reassembler) expire(messageID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pm, ok := r.pending[messageID]; ok {
		r.logger.Warnf("gelf: message %d (correlation=%s) timed out with %d/%d chunks received", messageID, pm.correlationID, pm.count(), pm.total)
		delete(r.pending, messageID)
	}
}

// PendingCount reports how many distinct messages currently have at least
// one but not all of their chunks buffered.
func (r *Reassembler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close drops all in-flight partial messages and cancels their timeouts. The
// Reassembler must not be used afterward.
func (r *Reassembler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pm := range r.pending {
		if pm.onTimeout != nil {
			pm.onTimeout.Cancel()
		}
		delete(r.pending, id)
	}
	return nil
}
