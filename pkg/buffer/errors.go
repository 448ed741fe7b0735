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
	"fmt"

	"github.com/solarisdb/fluxcore/golibs/errors"
)

// ChecksumError is returned by Decode when the record's stored CRC32C does not
// match the checksum calculated over the decoded body.
type ChecksumError struct {
	Calculated uint32
	Actual     uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: calculated=%x, actual=%x", e.Calculated, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return errors.ErrDataLoss
}

// DeserializationError wraps a structural decode failure (truncated frame, bad
// length prefix) that can never indicate anything other than a corrupted or
// torn record.
type DeserializationError struct {
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization failed: %s", e.Reason)
}

func (e *DeserializationError) Unwrap() error {
	return errors.ErrDataLoss
}

// PartialWriteError is surfaced by the reader when a frame is truncated in a
// finalized data file: the writer will never complete it.
type PartialWriteError struct {
	Have int
	Want int
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: have %d of %d expected bytes", e.Have, e.Want)
}

func (e *PartialWriteError) Unwrap() error {
	return errors.ErrDataLoss
}

// IncompatibleError describes a ledger whose on-disk layout does not match
// what this build expects. No function in this package returns it: the ledger
// region has no magic number or version field, and OpenLedger checks none.
type IncompatibleError struct {
	Reason string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("incompatible buffer state: %s", e.Reason)
}

func (e *IncompatibleError) Unwrap() error {
	return errors.ErrInvalid
}

// IsCorruption reports whether err represents corrupted or malformed data
// (section 7 class 2) as opposed to transient I/O or a programmer error.
func IsCorruption(err error) bool {
	var ce *ChecksumError
	var de *DeserializationError
	var pe *PartialWriteError
	return errors.As(err, &ce) || errors.As(err, &de) || errors.As(err, &pe)
}
