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

// Package gelf implements the chunked GELF reassembly engine (C5): a
// timeout-bounded, bounded-memory, out-of-order chunk reassembler for
// datagram-fragmented log messages, with optional per-message decompression.
package gelf

import (
	"fmt"

	"github.com/solarisdb/fluxcore/golibs/errors"
)

// InvalidChunkHeaderError is returned when a datagram begins with the chunk
// magic but is too short to carry a full chunk header.
type InvalidChunkHeaderError struct{ Have int }

func (e *InvalidChunkHeaderError) Error() string {
	return fmt.Sprintf("gelf: chunk header truncated: have %d bytes, want at least %d", e.Have, chunkHeaderSize)
}
func (e *InvalidChunkHeaderError) Unwrap() error { return errors.ErrInvalid }

// InvalidTotalChunksError is returned when total_chunks is outside [1, 128].
type InvalidTotalChunksError struct{ Total int }

func (e *InvalidTotalChunksError) Error() string {
	return fmt.Sprintf("gelf: total_chunks=%d out of range [1,%d]", e.Total, MaxChunksPerMessage)
}
func (e *InvalidTotalChunksError) Unwrap() error { return errors.ErrInvalid }

// InvalidSequenceNumberError is returned when sequence >= total_chunks.
type InvalidSequenceNumberError struct {
	Sequence, Total int
}

func (e *InvalidSequenceNumberError) Error() string {
	return fmt.Sprintf("gelf: sequence=%d out of range for total_chunks=%d", e.Sequence, e.Total)
}
func (e *InvalidSequenceNumberError) Unwrap() error { return errors.ErrInvalid }

// PendingMessagesLimitReachedError is returned when a chunk for a new message
// arrives while the pending-message cap is already at capacity.
type PendingMessagesLimitReachedError struct{ Limit int }

func (e *PendingMessagesLimitReachedError) Error() string {
	return fmt.Sprintf("gelf: pending messages limit of %d reached", e.Limit)
}
func (e *PendingMessagesLimitReachedError) Unwrap() error { return errors.ErrExhausted }

// TotalChunksMismatchError is returned when a chunk disagrees with the
// total_chunks value already recorded for its message ID.
type TotalChunksMismatchError struct {
	MessageID          uint64
	Expected, Received int
}

func (e *TotalChunksMismatchError) Error() string {
	return fmt.Sprintf("gelf: message %d: total_chunks mismatch, expected %d got %d", e.MessageID, e.Expected, e.Received)
}
func (e *TotalChunksMismatchError) Unwrap() error { return errors.ErrInvalid }

// MaxLengthExceededError is returned when a message's accumulated payload
// (excluding chunk headers) exceeds the configured MaxLength.
type MaxLengthExceededError struct {
	MessageID  uint64
	Size, Max  int
}

func (e *MaxLengthExceededError) Error() string {
	return fmt.Sprintf("gelf: message %d: accumulated size %d exceeds max length %d", e.MessageID, e.Size, e.Max)
}
func (e *MaxLengthExceededError) Unwrap() error { return errors.ErrExhausted }

// DecompressionError wraps a failure to inflate a complete message's payload.
type DecompressionError struct {
	Mode string
	Err  error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("gelf: %s decompression failed: %v", e.Mode, e.Err)
}
func (e *DecompressionError) Unwrap() error { return e.Err }
