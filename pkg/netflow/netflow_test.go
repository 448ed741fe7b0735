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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testExporter = "192.168.1.100:2055"

func newTestDecoder(t *testing.T, cfg Config) *Decoder {
	cache, err := NewTemplateCache(cfg.TemplateCacheCapacity, nil)
	require.NoError(t, err)
	registry, err := NewFieldRegistry(cfg)
	require.NoError(t, err)
	return NewDecoder(cfg, cache, registry)
}

func be16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func be32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }

func v9Header(count uint16, sequence, domainID uint32) []byte {
	buf := make([]byte, netflowV9HeaderSize)
	copy(buf[0:2], be16(9))
	copy(buf[2:4], be16(count))
	copy(buf[4:8], be32(12345))
	copy(buf[8:12], be32(1700000000))
	copy(buf[12:16], be32(sequence))
	copy(buf[16:20], be32(domainID))
	return buf
}

func v9TemplateSet(templateID uint16, fields [][2]uint16) []byte {
	body := append(be16(templateID), be16(uint16(len(fields)))...)
	for _, f := range fields {
		body = append(body, be16(f[0])...)
		body = append(body, be16(f[1])...)
	}
	set := append(be16(templateSetID), be16(uint16(4+len(body)))...)
	return append(set, body...)
}

func v9DataSet(templateID uint16, records ...[]byte) []byte {
	var body []byte
	for _, r := range records {
		body = append(body, r...)
	}
	set := append(be16(templateID), be16(uint16(4+len(body)))...)
	return append(set, body...)
}

func TestDecoder_V9TemplateAndDataRoundTrip(t *testing.T) {
	d := newTestDecoder(t, Config{})

	templatePacket := append(v9Header(1, 1, 7), v9TemplateSet(256, [][2]uint16{{8, 4}, {12, 4}})...)
	res, err := d.Decode(testExporter, templatePacket)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TemplatesReceived)
	assert.Empty(t, res.Records)

	dataRecord := append([]byte{192, 168, 1, 1}, 10, 0, 0, 1)
	dataPacket := append(v9Header(1, 2, 7), v9DataSet(256, dataRecord)...)
	res, err = d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.False(t, rec.Unparseable)
	assert.Equal(t, uint16(256), rec.TemplateID)

	byName := fieldsByName(rec.Fields)
	assert.Equal(t, "192.168.1.1", byName["sourceIPv4Address"].Value)
	assert.Equal(t, "10.0.0.1", byName["destinationIPv4Address"].Value)
}

func TestDecoder_V9MissingTemplateYieldsUnparseable(t *testing.T) {
	d := newTestDecoder(t, Config{})

	dataPacket := append(v9Header(1, 1, 7), v9DataSet(999, []byte{1, 2, 3, 4})...)
	res, err := d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Unparseable)
	assert.Equal(t, uint16(999), res.Records[0].TemplateID)
	assert.Equal(t, []byte{1, 2, 3, 4}, res.Records[0].RawData)
}

func TestDecoder_V9DropUnparseableRecords(t *testing.T) {
	d := newTestDecoder(t, Config{DropUnparseableRecords: true})

	dataPacket := append(v9Header(1, 1, 7), v9DataSet(999, []byte{1, 2, 3, 4})...)
	res, err := d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestDecoder_V9TemplateReuseAcrossPackets(t *testing.T) {
	d := newTestDecoder(t, Config{})

	templatePacket := append(v9Header(1, 1, 7), v9TemplateSet(257, [][2]uint16{{4, 1}})...)
	_, err := d.Decode(testExporter, templatePacket)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		dataPacket := append(v9Header(1, uint32(i+2), 7), v9DataSet(257, []byte{6})...)
		res, err := d.Decode(testExporter, dataPacket)
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		byName := fieldsByName(res.Records[0].Fields)
		assert.EqualValues(t, 6, byName["protocolIdentifier"].Value)
		assert.Equal(t, "tcp", byName["protocolName"].Value)
	}
}

func TestDecoder_V9MultipleRecordsInOneSet(t *testing.T) {
	d := newTestDecoder(t, Config{})
	_, err := d.Decode(testExporter, append(v9Header(1, 1, 7), v9TemplateSet(300, [][2]uint16{{8, 4}})...))
	require.NoError(t, err)

	dataPacket := append(v9Header(1, 2, 7), v9DataSet(300, []byte{192, 168, 1, 1}, []byte{10, 0, 0, 1})...)
	res, err := d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "192.168.1.1", fieldsByName(res.Records[0].Fields)["sourceIPv4Address"].Value)
	assert.Equal(t, "10.0.0.1", fieldsByName(res.Records[1].Fields)["sourceIPv4Address"].Value)
}

func TestDecoder_V9VariableLengthFieldTemplateRejected(t *testing.T) {
	d := newTestDecoder(t, Config{})
	res, err := d.Decode(testExporter, append(v9Header(1, 1, 7), v9TemplateSet(301, [][2]uint16{{8, 65535}})...))
	require.NoError(t, err)
	assert.Equal(t, 0, res.TemplatesReceived)

	_, ok := d.cache.Get(TemplateKey{ExporterAddr: testExporter, ObservationDomainID: 7, TemplateID: 301})
	assert.False(t, ok)
}

func TestDecoder_V5FixedFormat(t *testing.T) {
	d := newTestDecoder(t, Config{})

	packet := make([]byte, netflowV5HeaderSize+netflowV5RecordSize)
	copy(packet[0:2], be16(5))
	copy(packet[2:4], be16(1)) // count
	copy(packet[16:20], be32(42))
	rec := packet[netflowV5HeaderSize:]
	copy(rec[0:4], []byte{10, 1, 2, 3})   // src
	copy(rec[4:8], []byte{10, 4, 5, 6})   // dst
	rec[38] = 17                          // protocolIdentifier = udp

	res, err := d.Decode(testExporter, packet)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), res.Version)
	assert.Equal(t, uint32(42), res.SequenceNumber)
	require.Len(t, res.Records, 1)
	byName := fieldsByName(res.Records[0].Fields)
	assert.Equal(t, "10.1.2.3", byName["sourceIPv4Address"].Value)
	assert.Equal(t, "10.4.5.6", byName["destinationIPv4Address"].Value)
	assert.Equal(t, "udp", byName["protocolName"].Value)
}

func TestDecoder_IPFIXVariableLengthField(t *testing.T) {
	d := newTestDecoder(t, Config{})

	// Template 512: sourceIPv4Address (fixed, 4 bytes), then a variable-length
	// string field (field type 96, applicationName).
	tmplBody := append(be16(512), be16(2)...)
	tmplBody = append(tmplBody, be16(8)...)
	tmplBody = append(tmplBody, be16(4)...)
	tmplBody = append(tmplBody, be16(96)...)
	tmplBody = append(tmplBody, be16(ipfixVarLenMarker)...)
	tmplSet := append(be16(templateSetID), be16(uint16(4+len(tmplBody)))...)
	tmplSet = append(tmplSet, tmplBody...)

	hdr := make([]byte, ipfixHeaderSize)
	copy(hdr[0:2], be16(10))
	copy(hdr[12:16], be32(9))
	tmplPacket := append(append([]byte(nil), hdr...), tmplSet...)
	binary.BigEndian.PutUint16(tmplPacket[2:4], uint16(len(tmplPacket)))

	res, err := d.Decode(testExporter, tmplPacket)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TemplatesReceived)

	appName := "chrome"
	dataBody := append([]byte{192, 168, 1, 1}, byte(len(appName)))
	dataBody = append(dataBody, []byte(appName)...)
	dataSet := append(be16(512), be16(uint16(4+len(dataBody)))...)
	dataSet = append(dataSet, dataBody...)
	dataPacket := append(append([]byte(nil), hdr...), dataSet...)
	binary.BigEndian.PutUint16(dataPacket[2:4], uint16(len(dataPacket)))

	res, err = d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	byName := fieldsByName(res.Records[0].Fields)
	assert.Equal(t, "192.168.1.1", byName["sourceIPv4Address"].Value)
	assert.Equal(t, appName, byName["applicationName"].Value)
}

func TestDecoder_IPFIXEnterpriseSpecificField(t *testing.T) {
	cfg := Config{EnterpriseFields: []string{"14823:99 uint32 = apCustomTag"}}
	d := newTestDecoder(t, cfg)

	enterpriseType := uint16(99) | ipfixEnterpriseBit
	tmplBody := append(be16(513), be16(1)...)
	tmplBody = append(tmplBody, be16(enterpriseType)...)
	tmplBody = append(tmplBody, be16(4)...)
	tmplBody = append(tmplBody, be32(EnterpriseHPEAruba)...)
	tmplSet := append(be16(templateSetID), be16(uint16(4+len(tmplBody)))...)
	tmplSet = append(tmplSet, tmplBody...)

	hdr := make([]byte, ipfixHeaderSize)
	copy(hdr[0:2], be16(10))
	copy(hdr[12:16], be32(3))
	tmplPacket := append(append([]byte(nil), hdr...), tmplSet...)
	binary.BigEndian.PutUint16(tmplPacket[2:4], uint16(len(tmplPacket)))

	_, err := d.Decode(testExporter, tmplPacket)
	require.NoError(t, err)

	dataSet := append(be16(513), be16(uint16(4+4))...)
	dataSet = append(dataSet, be32(7)...)
	dataPacket := append(append([]byte(nil), hdr...), dataSet...)
	binary.BigEndian.PutUint16(dataPacket[2:4], uint16(len(dataPacket)))

	res, err := d.Decode(testExporter, dataPacket)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	byName := fieldsByName(res.Records[0].Fields)
	assert.EqualValues(t, 7, byName["apCustomTag"].Value)
}

func TestFieldRegistry_Redaction(t *testing.T) {
	registry, err := NewFieldRegistry(Config{RedactPatterns: []string{"apSsid"}})
	require.NoError(t, err)

	df := registry.Decode(FieldKey{Enterprise: EnterpriseHPEAruba, FieldType: 2}, []byte("corp-wifi"))
	assert.Equal(t, "apSsid", df.Name)
	assert.Equal(t, redactedPlaceholder, df.Value)
}

func TestFieldRegistry_UnknownFieldSyntheticName(t *testing.T) {
	registry, err := NewFieldRegistry(Config{})
	require.NoError(t, err)

	df := registry.Decode(FieldKey{FieldType: 9999}, []byte{1})
	assert.Equal(t, "unknown_field_9999", df.Name)

	df = registry.Decode(FieldKey{Enterprise: 123, FieldType: 4}, []byte{1})
	assert.Equal(t, "enterprise_123_4", df.Name)
}

func TestTemplateCache_PutOverwritesAtomically(t *testing.T) {
	cache, err := NewTemplateCache(4, nil)
	require.NoError(t, err)
	key := TemplateKey{ExporterAddr: testExporter, ObservationDomainID: 1, TemplateID: 256}

	require.NoError(t, cache.Put(key, &Template{ID: 256, Fields: []Field{{Type: 8, Length: 4}}}))
	t1, ok := cache.Get(key)
	require.True(t, ok)
	assert.Len(t, t1.Fields, 1)

	require.NoError(t, cache.Put(key, &Template{ID: 256, Fields: []Field{{Type: 8, Length: 4}, {Type: 12, Length: 4}}}))
	t2, ok := cache.Get(key)
	require.True(t, ok)
	assert.Len(t, t2.Fields, 2)
	assert.NotEqual(t, t1.Generation, t2.Generation)
}

func fieldsByName(fields []DecodedField) map[string]DecodedField {
	out := make(map[string]DecodedField, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}
