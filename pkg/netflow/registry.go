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

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/gobwas/glob"
)

// enterpriseFieldDecl is the AST for one EnterpriseFields config line, e.g.
// "23867:12 = apSsid" or "23867:12 string = apSsid". The type name is
// optional and defaults to string, since that is the overwhelmingly common
// case for operator-supplied enterprise fields.
type enterpriseFieldDecl struct {
	Enterprise uint32  `@Number ":"`
	FieldType  uint16  `@Number`
	TypeName   *string `(@Ident)?`
	Name       string  `"=" @Ident`
}

var (
	enterpriseFieldLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Number", Pattern: `[0-9]+`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Punct", Pattern: `[:=]`},
		{Name: "whitespace", Pattern: `\s+`},
	})
	enterpriseFieldParser = participle.MustBuild[enterpriseFieldDecl](
		participle.Lexer(enterpriseFieldLexer),
	)
	typeNamesByIdent = map[string]DataType{
		"uint8": TypeUint8, "uint16": TypeUint16, "uint32": TypeUint32, "uint64": TypeUint64,
		"int8": TypeInt8, "int16": TypeInt16, "int32": TypeInt32, "int64": TypeInt64,
		"float32": TypeFloat32, "float64": TypeFloat64, "bool": TypeBool,
		"mac": TypeMAC, "ipv4": TypeIPv4, "ipv6": TypeIPv6, "string": TypeString, "binary": TypeBinary,
	}
)

// parseEnterpriseFieldDecl parses one Config.EnterpriseFields entry into a
// (FieldKey, FieldInfo) pair.
func parseEnterpriseFieldDecl(line string) (FieldKey, FieldInfo, error) {
	decl, err := enterpriseFieldParser.ParseString("", line)
	if err != nil {
		return FieldKey{}, FieldInfo{}, fmt.Errorf("netflow: invalid enterprise field declaration %q: %w", line, err)
	}
	typ := TypeString
	if decl.TypeName != nil {
		t, ok := typeNamesByIdent[*decl.TypeName]
		if !ok {
			return FieldKey{}, FieldInfo{}, fmt.Errorf("netflow: unknown type name %q in declaration %q", *decl.TypeName, line)
		}
		typ = t
	}
	key := FieldKey{Enterprise: decl.Enterprise, FieldType: decl.FieldType}
	info := FieldInfo{Name: decl.Name, Type: typ, Description: "operator-configured enterprise field"}
	return key, info, nil
}

// FieldRegistry is C8: a three-layer lookup (operator-configured enterprise
// fields over the built-in enterprise tables over the standard IPFIX
// information elements) plus synthetic naming for anything none of those
// cover, and glob-based redaction of sensitive field values.
type FieldRegistry struct {
	custom    map[FieldKey]FieldInfo
	redact    []glob.Glob
	maxLength int
}

// NewFieldRegistry builds a FieldRegistry from cfg, parsing each of
// cfg.EnterpriseFields and compiling each of cfg.RedactPatterns.
func NewFieldRegistry(cfg Config) (*FieldRegistry, error) {
	cfg = cfg.withDefaults()
	fr := &FieldRegistry{custom: map[FieldKey]FieldInfo{}, maxLength: cfg.MaxFieldLength}
	for _, line := range cfg.EnterpriseFields {
		key, info, err := parseEnterpriseFieldDecl(line)
		if err != nil {
			return nil, err
		}
		fr.custom[key] = info
	}
	for _, pattern := range cfg.RedactPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("netflow: invalid redact pattern %q: %w", pattern, err)
		}
		fr.redact = append(fr.redact, g)
	}
	return fr, nil
}

// Lookup resolves key to a FieldInfo, falling back through the custom,
// built-in enterprise, and standard tables in that order, and finally
// synthesizing a name ("unknown_field_N" / "enterprise_E_N") for anything
// none of them cover, typed as TypeBinary so the raw bytes are preserved.
func (fr *FieldRegistry) Lookup(key FieldKey) FieldInfo {
	if info, ok := fr.custom[key]; ok {
		return info
	}
	if info, ok := builtinEnterpriseFields[key]; ok {
		return info
	}
	if key.Enterprise == 0 {
		if info, ok := standardFields[key.FieldType]; ok {
			if variableLengthFields[key.FieldType] {
				info.Type = TypeString
			}
			return info
		}
		return FieldInfo{Name: fmt.Sprintf("unknown_field_%d", key.FieldType), Type: TypeBinary}
	}
	return FieldInfo{Name: fmt.Sprintf("enterprise_%d_%d", key.Enterprise, key.FieldType), Type: TypeBinary}
}

const redactedPlaceholder = "***"

// Decode resolves key via Lookup and decodes raw into a DecodedField,
// masking the value if the resolved name matches a configured redaction
// pattern.
func (fr *FieldRegistry) Decode(key FieldKey, raw []byte) DecodedField {
	info := fr.Lookup(key)
	df := decodeValue(info, raw, fr.maxLength)
	for _, g := range fr.redact {
		if g.Match(df.Name) {
			df.Value = redactedPlaceholder
			df.Truncated = false
			break
		}
	}
	return df
}
