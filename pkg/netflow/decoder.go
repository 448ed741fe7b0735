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
	"encoding/binary"
	"fmt"

	"github.com/solarisdb/fluxcore/golibs/logging"
)

const (
	versionNetflowV5 = 5
	versionNetflowV9 = 9
	versionIPFIX     = 10

	netflowV5HeaderSize = 24
	netflowV5RecordSize = 48

	netflowV9HeaderSize = 20
	ipfixHeaderSize     = 16

	templateSetID        = 0
	optionsTemplateSetID = 1
	// decodeIPFIX uses these same two IDs for IPFIX template and options
	// template sets and treats 256 and above as data sets, as for v9; any
	// other set ID is skipped as reserved.

	ipfixEnterpriseBit = 0x8000
	ipfixVarLenMarker  = 0xFFFF
)

// DecodedRecord is one flow data record resolved against a template.
type DecodedRecord struct {
	TemplateID  uint16
	Fields      []DecodedField
	Unparseable bool
	RawData     []byte
}

// Result is everything Decoder.Decode extracts from one packet.
type Result struct {
	Version             uint16
	ObservationDomainID uint32
	SequenceNumber      uint32
	TemplatesReceived   int
	Records             []DecodedRecord
}

// Decoder is C7: a stateful, per-listener NetFlow v5/v9/IPFIX decoder. A
// Decoder is not safe for concurrent use by multiple goroutines decoding
// packets from different exporters at once unless the underlying
// TemplateCache and FieldRegistry are shared and those are (both are
// internally synchronized); the Decoder itself holds no mutable state beyond
// them.
type Decoder struct {
	cfg      Config
	cache    *TemplateCache
	registry *FieldRegistry
	logger   logging.Logger
}

// NewDecoder builds a Decoder from cfg, a TemplateCache (see NewTemplateCache)
// and a FieldRegistry (see NewFieldRegistry).
func NewDecoder(cfg Config, cache *TemplateCache, registry *FieldRegistry) *Decoder {
	return &Decoder{
		cfg:      cfg.withDefaults(),
		cache:    cache,
		registry: registry,
		logger:   logging.NewLogger("netflow.Decoder"),
	}
}

// Decode dispatches packet by its version field to the v5, v9, or IPFIX
// decoder. exporterAddr disambiguates template caches across exporters that
// reuse the same observation domain ID / template ID pair.
func (d *Decoder) Decode(exporterAddr string, packet []byte) (Result, error) {
	if len(packet) < 2 {
		return Result{}, &TruncatedPacketError{Have: len(packet), Want: 2}
	}
	version := binary.BigEndian.Uint16(packet[0:2])
	switch version {
	case versionNetflowV5:
		return d.decodeV5(packet)
	case versionNetflowV9:
		return d.decodeV9(exporterAddr, packet)
	case versionIPFIX:
		return d.decodeIPFIX(exporterAddr, packet)
	default:
		return Result{}, &UnsupportedVersionError{Version: version}
	}
}

// decodeV5 implements the SUPPLEMENTED NetFlow v5 fixed-format decoder: a
// 24-byte header followed by fixed 48-byte records, with no templates
// involved (section 3's "Flow template" concept does not apply to v5).
func (d *Decoder) decodeV5(packet []byte) (Result, error) {
	if len(packet) < netflowV5HeaderSize {
		return Result{}, &TruncatedPacketError{Have: len(packet), Want: netflowV5HeaderSize}
	}
	count := int(binary.BigEndian.Uint16(packet[2:4]))
	res := Result{
		Version:        versionNetflowV5,
		SequenceNumber: binary.BigEndian.Uint32(packet[16:20]),
	}

	offset := netflowV5HeaderSize
	for i := 0; i < count && i < maxRecordsPerSet; i++ {
		if offset+netflowV5RecordSize > len(packet) {
			d.logger.Warnf("netflow v5: packet truncated after %d of %d records", i, count)
			break
		}
		raw := packet[offset : offset+netflowV5RecordSize]
		rec := DecodedRecord{Fields: decodeV5Record(raw, d.registry)}
		if d.cfg.IncludeRawData {
			rec.RawData = append([]byte(nil), raw...)
		}
		res.Records = append(res.Records, rec)
		offset += netflowV5RecordSize
	}
	return res, nil
}

// decodeV5Record maps the fixed v5 layout (RFC 1903-era "NetFlow Export
// Datagram Format") onto the same FieldKey space as v9/IPFIX so a single
// FieldRegistry serves all three versions.
func decodeV5Record(raw []byte, registry *FieldRegistry) []DecodedField {
	fields := []struct {
		key FieldKey
		off int
		ln  int
	}{
		{FieldKey{FieldType: 8}, 0, 4},   // sourceIPv4Address
		{FieldKey{FieldType: 12}, 4, 4},  // destinationIPv4Address
		{FieldKey{FieldType: 15}, 8, 4},  // ipNextHopIPv4Address
		{FieldKey{FieldType: 10}, 12, 2}, // ingressInterface (v5 uses 16-bit ifIndex)
		{FieldKey{FieldType: 14}, 14, 2}, // egressInterface
		{FieldKey{FieldType: 2}, 16, 4},  // packetDeltaCount
		{FieldKey{FieldType: 1}, 20, 4},  // octetDeltaCount
		{FieldKey{FieldType: 22}, 24, 4}, // flowStartSysUpTime
		{FieldKey{FieldType: 21}, 28, 4}, // flowEndSysUpTime
		{FieldKey{FieldType: 7}, 32, 2},  // sourceTransportPort
		{FieldKey{FieldType: 11}, 34, 2}, // destinationTransportPort
		{FieldKey{FieldType: 6}, 37, 1},  // tcpControlBits
		{FieldKey{FieldType: 4}, 38, 1},  // protocolIdentifier
		{FieldKey{FieldType: 5}, 39, 1},  // ipClassOfService
		{FieldKey{FieldType: 16}, 40, 2}, // bgpSourceAsNumber
		{FieldKey{FieldType: 17}, 42, 2}, // bgpDestinationAsNumber
		{FieldKey{FieldType: 9}, 44, 1},  // sourceIPv4PrefixLength
		{FieldKey{FieldType: 13}, 45, 1}, // destinationIPv4PrefixLength
	}
	out := make([]DecodedField, 0, len(fields)+1)
	var protoRaw []byte
	for _, f := range fields {
		df := registry.Decode(f.key, raw[f.off:f.off+f.ln])
		if f.key.FieldType == protocolIdentifierFieldType {
			protoRaw = raw[f.off : f.off+f.ln]
		}
		out = append(out, df)
	}
	if protoRaw != nil {
		out = append(out, siblingProtocolNameField(protoRaw))
	}
	return out
}

// siblingProtocolNameField synthesizes a human-readable "protocolName"
// companion to a decoded protocolIdentifier field (section 4.8's enrichment
// note, grounded on original_source's protocol table).
func siblingProtocolNameField(protoRaw []byte) DecodedField {
	n := decodeUint(protoRaw)
	return DecodedField{Name: "protocolName", Type: TypeString, Value: protocolName(n)}
}

// decodeV9 implements the NetFlow v9 state machine: header, then a sequence
// of template / options-template / data sets, each independently fallible
// per section 7 ("log and abandon that set, not the whole packet").
func (d *Decoder) decodeV9(exporterAddr string, packet []byte) (Result, error) {
	if len(packet) < netflowV9HeaderSize {
		return Result{}, &TruncatedPacketError{Have: len(packet), Want: netflowV9HeaderSize}
	}
	count := int(binary.BigEndian.Uint16(packet[2:4]))
	domainID := binary.BigEndian.Uint32(packet[16:20])
	res := Result{
		Version:             versionNetflowV9,
		ObservationDomainID: domainID,
		SequenceNumber:      binary.BigEndian.Uint32(packet[12:16]),
	}

	offset := netflowV9HeaderSize
	for setsProcessed := 0; offset+4 <= len(packet) && setsProcessed < count; setsProcessed++ {
		setID := binary.BigEndian.Uint16(packet[offset : offset+2])
		setLen := int(binary.BigEndian.Uint16(packet[offset+2 : offset+4]))
		if setLen < 4 || setLen > maxSetLength {
			d.logger.Warnf("netflow v9: %s, abandoning remainder of packet", &MalformedSetError{SetID: setID, Reason: fmt.Sprintf("invalid set length %d at offset %d", setLen, offset)})
			break
		}
		setEnd := offset + setLen
		if setEnd > len(packet) {
			d.logger.Warnf("netflow v9: %s, abandoning remainder", &MalformedSetError{SetID: setID, Reason: fmt.Sprintf("set extends past packet boundary (offset=%d, len=%d, packet=%d)", offset, setLen, len(packet))})
			break
		}
		setData := packet[offset:setEnd]

		switch {
		case setID == templateSetID:
			res.TemplatesReceived += d.parseV9TemplateSet(setData, exporterAddr, domainID, false)
		case setID == optionsTemplateSetID:
			res.TemplatesReceived += d.parseV9OptionsTemplateSet(setData, exporterAddr, domainID)
		case setID >= 256:
			res.Records = append(res.Records, d.parseDataSet(setData, setID, exporterAddr, domainID, false)...)
		default:
			d.logger.Debugf("netflow v9: skipping reserved set id %d", setID)
		}
		offset = setEnd
	}
	return res, nil
}

// parseV9TemplateSet parses one template-definition set and registers each
// well-formed template in d.cache. NetFlow v9 has no variable-length or
// enterprise-specific fields (those are IPFIX-only), so a declared length of
// 0 or 0xFFFF marks the template as unsupported and it is dropped, matching
// original_source's behavior.
func (d *Decoder) parseV9TemplateSet(data []byte, exporterAddr string, domainID uint32, optionsShape bool) int {
	count := 0
	offset := 4
	for offset+4 <= len(data) {
		templateID := binary.BigEndian.Uint16(data[offset : offset+2])
		fieldCount := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		templateEnd := offset + 4 + fieldCount*4
		if templateID < 256 {
			// Skip the declared field records too, so the next iteration
			// lands on the following template header rather than misparsing
			// this one's fields as a header.
			d.logger.Warnf("netflow v9: invalid template id %d (must be >= 256)", templateID)
			offset = templateEnd
			continue
		}
		if templateEnd > len(data) {
			d.logger.Warnf("netflow v9: template %d extends past set boundary", templateID)
			break
		}

		fields := make([]Field, 0, fieldCount)
		hasVarLen := false
		fo := offset + 4
		for i := 0; i < fieldCount; i++ {
			ft := binary.BigEndian.Uint16(data[fo : fo+2])
			fl := binary.BigEndian.Uint16(data[fo+2 : fo+4])
			if fl == 0 || fl == ipfixVarLenMarker {
				hasVarLen = true
			}
			fields = append(fields, Field{Type: ft, Length: int(fl)})
			fo += 4
		}
		if hasVarLen {
			d.logger.Warnf("netflow v9: template %d declares a variable-length field, unsupported in v9", templateID)
			offset = templateEnd
			continue
		}

		key := TemplateKey{ExporterAddr: exporterAddr, ObservationDomainID: domainID, TemplateID: templateID}
		if err := d.cache.Put(key, &Template{ID: templateID, Fields: fields, IsOptions: optionsShape}); err != nil {
			d.logger.Warnf("netflow v9: could not cache template %s: %s", key, err)
		} else {
			count++
		}
		offset = templateEnd
	}
	return count
}

// parseV9OptionsTemplateSet parses an options-template set. Scope and option
// fields are concatenated into one field list; per original_source's own
// simplification, this decoder does not distinguish scope fields from option
// fields in the decoded output.
func (d *Decoder) parseV9OptionsTemplateSet(data []byte, exporterAddr string, domainID uint32) int {
	count := 0
	offset := 4
	for offset+6 <= len(data) {
		templateID := binary.BigEndian.Uint16(data[offset : offset+2])
		scopeCount := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		optionCount := int(binary.BigEndian.Uint16(data[offset+4 : offset+6]))
		total := scopeCount + optionCount
		templateEnd := offset + 6 + total*4
		if templateEnd > len(data) {
			d.logger.Warnf("netflow v9: options template %d extends past set boundary", templateID)
			break
		}

		fields := make([]Field, 0, total)
		fo := offset + 6
		for i := 0; i < total; i++ {
			ft := binary.BigEndian.Uint16(data[fo : fo+2])
			fl := binary.BigEndian.Uint16(data[fo+2 : fo+4])
			fields = append(fields, Field{Type: ft, Length: int(fl)})
			fo += 4
		}

		key := TemplateKey{ExporterAddr: exporterAddr, ObservationDomainID: domainID, TemplateID: templateID}
		if err := d.cache.Put(key, &Template{ID: templateID, Fields: fields, IsOptions: true}); err != nil {
			d.logger.Warnf("netflow v9: could not cache options template %s: %s", key, err)
		} else {
			count++
		}
		offset = templateEnd
	}
	return count
}

// parseDataSet resolves setID against the exporter's template cache and
// decodes each fixed-size record in the set. A missing template yields a
// single Unparseable record (or none, if cfg.DropUnparseableRecords) rather
// than failing the set.
func (d *Decoder) parseDataSet(data []byte, setID uint16, exporterAddr string, domainID uint32, ipfix bool) []DecodedRecord {
	key := TemplateKey{ExporterAddr: exporterAddr, ObservationDomainID: domainID, TemplateID: setID}
	tmpl, ok := d.cache.Get(key)
	if !ok {
		d.logger.Debugf("netflow: %s", &UnknownTemplateError{Key: key})
		if d.cfg.DropUnparseableRecords {
			return nil
		}
		// The raw data is attached (not gated by cfg.IncludeRawData) so its
		// length is recoverable even though it can't be decoded into fields,
		// matching original_source's data_length on the unparseable event.
		raw := append([]byte(nil), data[4:]...)
		return []DecodedRecord{{TemplateID: setID, Unparseable: true, RawData: raw}}
	}

	if ipfix {
		return d.parseIPFIXDataRecords(data[4:], tmpl)
	}

	recordSize, fixed := tmpl.RecordSize()
	if !fixed {
		d.logger.Warnf("netflow: template %s has variable-length fields, unsupported outside IPFIX", key)
		return nil
	}
	if recordSize == 0 {
		return nil
	}

	offset := 4
	var out []DecodedRecord
	for count := 0; offset+recordSize <= len(data) && count < maxRecordsPerSet; count++ {
		raw := data[offset : offset+recordSize]
		rec := DecodedRecord{TemplateID: setID, Fields: d.decodeFixedRecord(raw, tmpl)}
		if d.cfg.IncludeRawData {
			rec.RawData = append([]byte(nil), raw...)
		}
		out = append(out, rec)
		offset += recordSize
	}
	return out
}

// decodeFixedRecord walks tmpl.Fields over a fixed-size record, decoding
// each field through the registry and appending a protocolName sibling where
// a protocolIdentifier field is present.
func (d *Decoder) decodeFixedRecord(raw []byte, tmpl *Template) []DecodedField {
	out := make([]DecodedField, 0, len(tmpl.Fields)+1)
	offset := 0
	var protoRaw []byte
	for _, f := range tmpl.Fields {
		ln := f.Length
		if offset+ln > len(raw) {
			break
		}
		fieldRaw := raw[offset : offset+ln]
		out = append(out, d.registry.Decode(f.Key(), fieldRaw))
		if f.Enterprise == 0 && f.Type == protocolIdentifierFieldType {
			protoRaw = fieldRaw
		}
		offset += ln
	}
	if protoRaw != nil {
		out = append(out, siblingProtocolNameField(protoRaw))
	}
	return out
}

// decodeIPFIX implements the IPFIX message decoder (RFC 7011): a 16-byte
// header followed by template, options-template, and data sets using the
// same set-ID convention as NetFlow v9, plus RFC 7011's enterprise bit and
// variable-length field encoding. This encoding has no grounding in
// original_source (only NetFlow v9 was retrieved there); it follows the RFC
// directly — see DESIGN.md.
func (d *Decoder) decodeIPFIX(exporterAddr string, packet []byte) (Result, error) {
	if len(packet) < ipfixHeaderSize {
		return Result{}, &TruncatedPacketError{Have: len(packet), Want: ipfixHeaderSize}
	}
	msgLen := int(binary.BigEndian.Uint16(packet[2:4]))
	domainID := binary.BigEndian.Uint32(packet[12:16])
	res := Result{
		Version:             versionIPFIX,
		ObservationDomainID: domainID,
		SequenceNumber:      binary.BigEndian.Uint32(packet[8:12]),
	}
	if msgLen > len(packet) {
		msgLen = len(packet)
	}

	offset := ipfixHeaderSize
	for offset+4 <= msgLen {
		setID := binary.BigEndian.Uint16(packet[offset : offset+2])
		setLen := int(binary.BigEndian.Uint16(packet[offset+2 : offset+4]))
		if setLen < 4 || setLen > maxSetLength {
			d.logger.Warnf("ipfix: %s, abandoning remainder of message", &MalformedSetError{SetID: setID, Reason: fmt.Sprintf("invalid set length %d at offset %d", setLen, offset)})
			break
		}
		setEnd := offset + setLen
		if setEnd > msgLen {
			d.logger.Warnf("ipfix: %s, abandoning remainder", &MalformedSetError{SetID: setID, Reason: fmt.Sprintf("set extends past message boundary (offset=%d, len=%d, message=%d)", offset, setLen, msgLen)})
			break
		}
		setData := packet[offset:setEnd]

		switch {
		case setID == templateSetID:
			res.TemplatesReceived += d.parseIPFIXTemplateSet(setData, exporterAddr, domainID)
		case setID == optionsTemplateSetID:
			res.TemplatesReceived += d.parseV9OptionsTemplateSet(setData, exporterAddr, domainID)
		case setID >= 256:
			res.Records = append(res.Records, d.parseDataSet(setData, setID, exporterAddr, domainID, true)...)
		default:
			d.logger.Debugf("ipfix: skipping reserved set id %d", setID)
		}
		offset = setEnd
	}
	return res, nil
}

// parseIPFIXTemplateSet parses one IPFIX template set, handling the
// enterprise bit (field type's MSB set means a 4-byte enterprise number
// follows the 2-byte length) and the variable-length marker (length ==
// 0xFFFF) per RFC 7011 section 3.2.
func (d *Decoder) parseIPFIXTemplateSet(data []byte, exporterAddr string, domainID uint32) int {
	count := 0
	offset := 4
	for offset+4 <= len(data) {
		templateID := binary.BigEndian.Uint16(data[offset : offset+2])
		fieldCount := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		fo := offset + 4

		fields := make([]Field, 0, fieldCount)
		ok := true
		for i := 0; i < fieldCount; i++ {
			if fo+4 > len(data) {
				ok = false
				break
			}
			rawType := binary.BigEndian.Uint16(data[fo : fo+2])
			length := binary.BigEndian.Uint16(data[fo+2 : fo+4])
			fo += 4

			field := Field{Length: int(length)}
			if length == ipfixVarLenMarker {
				field.Length = variableLength
			}
			if rawType&ipfixEnterpriseBit != 0 {
				if fo+4 > len(data) {
					ok = false
					break
				}
				field.Type = rawType &^ ipfixEnterpriseBit
				field.Enterprise = binary.BigEndian.Uint32(data[fo : fo+4])
				fo += 4
			} else {
				field.Type = rawType
			}
			fields = append(fields, field)
		}
		if !ok {
			d.logger.Warnf("ipfix: template %d extends past set boundary", templateID)
			break
		}

		key := TemplateKey{ExporterAddr: exporterAddr, ObservationDomainID: domainID, TemplateID: templateID}
		if err := d.cache.Put(key, &Template{ID: templateID, Fields: fields}); err != nil {
			d.logger.Warnf("ipfix: could not cache template %s: %s", key, err)
		} else {
			count++
		}
		offset = fo
	}
	return count
}

// parseIPFIXDataRecords decodes records against a template that may contain
// variable-length fields, each one prefixed in the data by a 1-byte length
// (or, if that byte is 0xFF, a following 2-byte length) per RFC 7011 section
// 7.
func (d *Decoder) parseIPFIXDataRecords(data []byte, tmpl *Template) []DecodedRecord {
	var out []DecodedRecord
	offset := 0
	for count := 0; count < maxRecordsPerSet; count++ {
		rec, consumed, ok := d.decodeIPFIXRecord(data[offset:], tmpl)
		if !ok {
			break
		}
		out = append(out, rec)
		offset += consumed
		if offset >= len(data) {
			break
		}
	}
	return out
}

func (d *Decoder) decodeIPFIXRecord(data []byte, tmpl *Template) (DecodedRecord, int, bool) {
	start := 0
	fields := make([]DecodedField, 0, len(tmpl.Fields)+1)
	var protoRaw []byte
	for _, f := range tmpl.Fields {
		ln := f.Length
		if ln == variableLength {
			if start >= len(data) {
				return DecodedRecord{}, 0, false
			}
			first := int(data[start])
			start++
			if first == 0xFF {
				if start+2 > len(data) {
					return DecodedRecord{}, 0, false
				}
				ln = int(binary.BigEndian.Uint16(data[start : start+2]))
				start += 2
			} else {
				ln = first
			}
		}
		if start+ln > len(data) {
			return DecodedRecord{}, 0, false
		}
		raw := data[start : start+ln]
		fields = append(fields, d.registry.Decode(f.Key(), raw))
		if f.Enterprise == 0 && f.Type == protocolIdentifierFieldType {
			protoRaw = raw
		}
		start += ln
	}
	if protoRaw != nil {
		fields = append(fields, siblingProtocolNameField(protoRaw))
	}
	return DecodedRecord{TemplateID: tmpl.ID, Fields: fields}, start, true
}

