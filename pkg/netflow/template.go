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

	"github.com/oklog/ulid/v2"
)

// variableLength is the sentinel Field.Length value meaning "this field's
// length is carried inline in the data record" (IPFIX only; see section 9's
// note on unifying v9/IPFIX variable-length handling behind a per-version
// guard).
const variableLength = -1

// Field is one entry of a Template's ordered field list (section 3: "Flow
// template"): a field type, its length in bytes (or variableLength), and an
// optional enterprise number for IPFIX enterprise-specific information
// elements.
type Field struct {
	Type       uint16
	Length     int
	Enterprise uint32
}

// Key returns the FieldKey the field registry should resolve this field
// against.
func (f Field) Key() FieldKey {
	return FieldKey{Enterprise: f.Enterprise, FieldType: f.Type}
}

// Template is an exporter's declaration of the field layout of subsequent
// data records (section 3: "Flow template"), keyed in the cache by
// (exporter address, observation domain ID, template ID).
type Template struct {
	ID         uint16
	Fields     []Field
	IsOptions  bool
	Generation ulid.ULID
}

// RecordSize returns the fixed on-wire size of one data record described by
// t, and false if any field is variable-length (IPFIX only).
func (t *Template) RecordSize() (int, bool) {
	size := 0
	for _, f := range t.Fields {
		if f.Length == variableLength {
			return 0, false
		}
		size += f.Length
	}
	return size, true
}

// TemplateKey identifies a cached template: the exporter's socket address,
// its observation domain ID, and the template ID it assigned (section 3).
type TemplateKey struct {
	ExporterAddr        string
	ObservationDomainID uint32
	TemplateID          uint16
}

func (k TemplateKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.ExporterAddr, k.ObservationDomainID, k.TemplateID)
}
