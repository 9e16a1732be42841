package csv

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported source encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingISO88591    = "iso-8859-1"
)

// Encodings lists the accepted Options.Encoding values.
func Encodings() []string {
	return []string{EncodingUTF8, EncodingWindows1252, EncodingISO88591}
}

// decoderFor returns a decoder for name. UTF-8 input goes through a BOM
// override so a leading UTF-8 BOM is dropped and UTF-16 files with a BOM are
// transcoded.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingUTF8, "utf8":
		return &encoding.Decoder{Transformer: unicode.BOMOverride(unicode.UTF8.NewDecoder())}, nil
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case EncodingISO88591, "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", name)
	}
}

// decode wraps r so it yields UTF-8.
func decode(r io.Reader, name string) (io.Reader, error) {
	dec, err := decoderFor(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, dec), nil
}
