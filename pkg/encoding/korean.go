// Package encoding decodes the legacy code pages found in model and archive
// files: EUC-KR in Ragnarok Online data, Latin-1 in older XML exporters.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Charset selects how legacy byte strings are decoded.
type Charset string

const (
	UTF8   Charset = "utf-8"
	EUCKR  Charset = "euc-kr"
	Latin1 Charset = "latin-1"
)

// ParseCharset accepts the common spellings of the supported charsets.
func ParseCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "euc-kr", "euckr", "cp949":
		return EUCKR, nil
	case "latin-1", "latin1", "iso-8859-1":
		return Latin1, nil
	}
	return "", fmt.Errorf("unknown charset %q", name)
}

func (c Charset) encoding() encoding.Encoding {
	switch c {
	case EUCKR:
		return korean.EUCKR
	case Latin1:
		return charmap.ISO8859_1
	}
	return nil
}

// Decode converts data to UTF-8. Data that fails to decode is returned as-is.
func (c Charset) Decode(data []byte) string {
	enc := c.encoding()
	if enc == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// NewReader returns a reader that decodes r to UTF-8.
func (c Charset) NewReader(r io.Reader) io.Reader {
	enc := c.encoding()
	if enc == nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// DecodeFixed decodes a NUL-padded fixed-size field.
func (c Charset) DecodeFixed(data []byte) string {
	if nullIdx := bytes.IndexByte(data, 0); nullIdx >= 0 {
		data = data[:nullIdx]
	}
	return c.Decode(data)
}

// EUCKRToUTF8 converts EUC-KR encoded bytes to UTF-8 string.
// Returns the original string if conversion fails.
func EUCKRToUTF8(data []byte) string {
	return EUCKR.Decode(data)
}

// UTF8ToEUCKR converts UTF-8 string to EUC-KR encoded bytes.
// Returns the original bytes if conversion fails.
func UTF8ToEUCKR(s string) []byte {
	encoder := korean.EUCKR.NewEncoder()
	result, _, err := transform.Bytes(encoder, []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// Guess decodes data as UTF-8 when it is valid UTF-8 and as fallback
// otherwise.
func Guess(data []byte, fallback Charset) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return fallback.Decode(data)
}

// NormalizeGRFPath normalizes an archive path for case-insensitive lookup.
func NormalizeGRFPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.ToLower(path)
}

// FixedStringToUTF8 converts a fixed-size EUC-KR encoded byte array to UTF-8 string.
// Handles null termination and encoding conversion.
func FixedStringToUTF8(data []byte) string {
	return EUCKR.DecodeFixed(data)
}

// UTF8ToFixedString converts UTF-8 string to a fixed-size EUC-KR encoded byte array.
// Pads with null bytes to fill the specified size.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	encoded := UTF8ToEUCKR(s)
	copy(result, encoded)
	return result
}
