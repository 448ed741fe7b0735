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

package netflow

import (
	"fmt"

	"github.com/solarisdb/fluxcore/golibs/errors"
)

// MalformedSetError marks a single flow set within a packet as unparseable:
// its header claimed a length that runs past the end of the packet, or a
// declared field length runs past the end of its own set. Per section 7's
// "log and abandon that set, not the whole packet" policy, the decoder skips
// to the next set (or gives up on the packet if the length itself cannot be
// trusted) rather than failing the whole decode.
type MalformedSetError struct {
	SetID  uint16
	Reason string
}

func (e *MalformedSetError) Error() string {
	return fmt.Sprintf("malformed set %d: %s", e.SetID, e.Reason)
}

func (e *MalformedSetError) Unwrap() error {
	return errors.ErrDataLoss
}

// UnknownTemplateError describes a data set that references a template the
// cache has never seen, or has evicted, for its exporter. No function returns
// it: parseDataSet logs it at debug level and reports the set as one
// Unparseable record carrying the raw set data, or drops it when
// DropUnparseableRecords is set.
type UnknownTemplateError struct {
	Key TemplateKey
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("no template cached for %s", e.Key)
}

func (e *UnknownTemplateError) Unwrap() error {
	return errors.ErrNotExist
}

// UnsupportedVersionError is returned for a NetFlow/IPFIX version this
// decoder does not implement.
type UnsupportedVersionError struct {
	Version uint16
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported flow export version %d", e.Version)
}

func (e *UnsupportedVersionError) Unwrap() error {
	return errors.ErrUnimplemented
}

// TruncatedPacketError is returned when a packet is shorter than its
// declared fixed header, so not even the version/length can be trusted.
type TruncatedPacketError struct {
	Have int
	Want int
}

func (e *TruncatedPacketError) Error() string {
	return fmt.Sprintf("truncated packet: have %d bytes, need at least %d", e.Have, e.Want)
}

func (e *TruncatedPacketError) Unwrap() error {
	return errors.ErrDataLoss
}
