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

// Package netflow implements the template-driven NetFlow v9 / IPFIX flow
// decoder (C7), its per-exporter template cache (C6), and the field registry
// that maps (enterprise, field ID) pairs onto semantic names and types (C8).
package netflow

import (
	"encoding/base64"
	"fmt"
	"math"
)

// DataType is the decoded Go-level representation of a field's value.
type DataType int

const (
	TypeUint8 DataType = iota
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBool
	TypeMAC
	TypeIPv4
	TypeIPv6
	TypeTimestampSeconds
	TypeTimestampMillis
	TypeTimestampMicros
	TypeTimestampNanos
	TypeString
	TypeBinary
)

// FieldKey identifies a field definition independent of any particular
// template: (enterprise number, field type). A zero Enterprise means the
// standard (non-enterprise) IPFIX information-element space.
type FieldKey struct {
	Enterprise uint32
	FieldType  uint16
}

// FieldInfo is what the registry resolves a FieldKey to: its semantic name,
// decoded type, and a human description.
type FieldInfo struct {
	Name        string
	Type        DataType
	Description string
}

// DecodedField is one field of one decoded flow record.
type DecodedField struct {
	Name  string
	Type  DataType
	Value any
	// Truncated marks that a string or binary value was cut short of its
	// original length and an ellipsis marker appended.
	Truncated bool
}

// decodeValue interprets raw (already length-sliced) bytes per info.Type,
// truncating/encoding string and binary values to maxFieldLength.
func decodeValue(info FieldInfo, raw []byte, maxFieldLength int) DecodedField {
	df := DecodedField{Name: info.Name, Type: info.Type}
	switch info.Type {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		df.Value = decodeUint(raw)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		df.Value = decodeInt(raw)
	case TypeFloat32:
		df.Value = decodeFloat32(raw)
	case TypeFloat64:
		df.Value = decodeFloat64(raw)
	case TypeBool:
		df.Value = len(raw) > 0 && raw[0] != 0
	case TypeMAC:
		df.Value = formatMAC(raw)
	case TypeIPv4:
		df.Value = formatIPv4(raw)
	case TypeIPv6:
		df.Value = formatIPv6(raw)
	case TypeTimestampSeconds, TypeTimestampMillis, TypeTimestampMicros, TypeTimestampNanos:
		df.Value = decodeUint(raw)
	case TypeString:
		s := string(raw)
		if maxFieldLength > 0 && len(s) > maxFieldLength {
			s = s[:maxFieldLength] + ellipsisMarker
			df.Truncated = true
		}
		df.Value = s
	default: // TypeBinary and anything unrecognized
		b64 := base64.StdEncoding.EncodeToString(raw)
		if maxFieldLength > 0 && len(b64) > maxFieldLength {
			b64 = b64[:maxFieldLength] + ellipsisMarker
			df.Truncated = true
		}
		df.Value = b64
	}
	return df
}

const ellipsisMarker = "…"

func decodeUint(raw []byte) uint64 {
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v
}

func decodeInt(raw []byte) int64 {
	u := decodeUint(raw)
	if len(raw) == 0 || len(raw) >= 8 {
		return int64(u)
	}
	// sign-extend from the actual field width
	bits := uint(len(raw) * 8)
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		u |= ^uint64(0) << bits
	}
	return int64(u)
}

func decodeFloat32(raw []byte) float32 {
	if len(raw) < 4 {
		return 0
	}
	bits := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	return math.Float32frombits(bits)
}

func decodeFloat64(raw []byte) float64 {
	if len(raw) < 8 {
		return 0
	}
	var bits uint64
	for _, b := range raw[:8] {
		bits = bits<<8 | uint64(b)
	}
	return math.Float64frombits(bits)
}

func formatMAC(raw []byte) string {
	if len(raw) != 6 {
		return base64.StdEncoding.EncodeToString(raw)
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", raw[0], raw[1], raw[2], raw[3], raw[4], raw[5])
}

func formatIPv4(raw []byte) string {
	if len(raw) != 4 {
		return base64.StdEncoding.EncodeToString(raw)
	}
	return fmt.Sprintf("%d.%d.%d.%d", raw[0], raw[1], raw[2], raw[3])
}

func formatIPv6(raw []byte) string {
	if len(raw) != 16 {
		return base64.StdEncoding.EncodeToString(raw)
	}
	parts := make([]any, 8)
	for i := 0; i < 8; i++ {
		parts[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return fmt.Sprintf("%x:%x:%x:%x:%x:%x:%x:%x", parts...)
}
