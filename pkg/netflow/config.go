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

const (
	// DefaultMaxFieldLength bounds decoded string/binary field values before
	// truncation (mirrors section 6's per-field cap).
	DefaultMaxFieldLength = 4096
	// maxRecordsPerSet is the hard safety cap on records decoded from one
	// data set, independent of what the set's own length header claims
	// (section 4.7/7): a malformed or hostile packet cannot force an
	// unbounded decode loop.
	maxRecordsPerSet = 10000
	// maxSetLength is the safety cap on one set's declared length in bytes.
	maxSetLength = 65535
)

// Config describes the decoder's limits and enrichment behavior (section 6:
// "Configuration (netflow)"). Typically populated by golibs/config.Enricher.
type Config struct {
	// TemplateCacheCapacity bounds the number of distinct (exporter, domain,
	// template ID) entries held at once; zero selects DefaultTemplateCacheCapacity.
	TemplateCacheCapacity int
	// MaxFieldLength bounds decoded string/binary values; zero selects
	// DefaultMaxFieldLength.
	MaxFieldLength int
	// EnterpriseFields are additional (enterprise:field_type = name) entries
	// layered over the built-in tables, in the "23867:12 = apSsid" grammar
	// registry.go parses.
	EnterpriseFields []string
	// DropUnparseableRecords causes Decode to omit data records whose
	// template is unknown instead of returning them with Unparseable set.
	DropUnparseableRecords bool
	// IncludeRawData retains the original on-wire bytes of each decoded
	// record alongside its fields, for audit/replay.
	IncludeRawData bool
	// RedactPatterns are gobwas/glob patterns matched against field names;
	// matching fields are reported with their value masked.
	RedactPatterns []string
}

func (cfg Config) withDefaults() Config {
	if cfg.TemplateCacheCapacity <= 0 {
		cfg.TemplateCacheCapacity = DefaultTemplateCacheCapacity
	}
	if cfg.MaxFieldLength <= 0 {
		cfg.MaxFieldLength = DefaultMaxFieldLength
	}
	return cfg
}
