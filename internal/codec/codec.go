// Package codec decodes captured output into text for a named encoding.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Supported encodings. Raw leaves output as bytes.
const (
	Raw       = ""
	UTF8      = "utf8"
	ASCII     = "ascii"
	Latin1    = "latin1"
	UTF16LE   = "utf16le"
	Hex       = "hex"
	Base64    = "base64"
	Base64URL = "base64url"
)

// ErrUnknownEncoding is returned for an encoding name Normalize does not know.
var ErrUnknownEncoding = errors.New("unknown encoding")

var aliases = map[string]string{
	"":           Raw,
	"buffer":     Raw,
	"raw":        Raw,
	"utf8":       UTF8,
	"utf-8":      UTF8,
	"ascii":      ASCII,
	"latin1":     Latin1,
	"binary":     Latin1,
	"iso-8859-1": Latin1,
	"utf16le":    UTF16LE,
	"utf-16le":   UTF16LE,
	"ucs2":       UTF16LE,
	"ucs-2":      UTF16LE,
	"hex":        Hex,
	"base64":     Base64,
	"base64url":  Base64URL,
}

// Normalize maps an encoding name (case-insensitive, with common aliases)
// to one of the package constants.
func Normalize(name string) (string, error) {
	enc, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// Decode converts b to text. enc must already be normalized; Raw returns
// the bytes unchanged as a string.
func Decode(enc string, b []byte) (string, error) {
	switch enc {
	case Raw:
		return string(b), nil
	case UTF8:
		out, err := unicode.UTF8.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("decoding utf8: %w", err)
		}
		return string(out), nil
	case ASCII:
		out := make([]byte, len(b))
		for i, c := range b {
			out[i] = c & 0x7f
		}
		return string(out), nil
	case Latin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("decoding latin1: %w", err)
		}
		return string(out), nil
	case UTF16LE:
		// A trailing odd byte is an incomplete code unit; drop it.
		b = b[:len(b)&^1]
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("decoding utf16le: %w", err)
		}
		return string(out), nil
	case Hex:
		return hex.EncodeToString(b), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(b), nil
	case Base64URL:
		return base64.RawURLEncoding.EncodeToString(b), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownEncoding, enc)
}
