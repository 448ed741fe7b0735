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
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
)

// decompress applies cfg's decompression mode to a completed message's raw
// payload. DecompressAuto sniffs the gzip and zlib magic bytes, falling back
// to the payload unchanged if neither matches.
func decompress(mode Decompression, payload []byte) ([]byte, error) {
	switch mode {
	case DecompressNone:
		return payload, nil
	case DecompressGzip:
		return inflateGzip(payload)
	case DecompressZlib:
		return inflateZlib(payload)
	default:
		switch {
		case looksLikeGzip(payload):
			return inflateGzip(payload)
		case looksLikeZlib(payload):
			return inflateZlib(payload)
		default:
			return payload, nil
		}
	}
}

func looksLikeGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// looksLikeZlib checks the two-byte zlib header (CMF/FLG) is well formed:
// CM nibble 8 (deflate) and the 16-bit big-endian value a multiple of 31.
func looksLikeZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0]&0x0f != 8 {
		return false
	}
	return (int(b[0])*256+int(b[1]))%31 == 0
}

func inflateGzip(payload []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecompressionError{Mode: "gzip", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecompressionError{Mode: "gzip", Err: err}
	}
	return out, nil
}

func inflateZlib(payload []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecompressionError{Mode: "zlib", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecompressionError{Mode: "zlib", Err: err}
	}
	return out, nil
}
