package export

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
)

// DefaultEncoding is the tabular output encoding. cp932 matches the
// spreadsheet tooling the CSV files are consumed with.
const DefaultEncoding = "cp932"

// resolveEncoding maps an encoding name to a text encoding, or nil for
// UTF-8 passthrough. Common aliases are handled directly; anything else
// is resolved through the IANA index.
func resolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "cp932", "shift_jis", "shift-jis", "sjis", "windows-31j":
		return japanese.ShiftJIS, nil
	case "euc-jp", "eucjp":
		return japanese.EUCJP, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

// encodeValue converts a UTF-8 string to the target encoding. A value
// that cannot be represented falls back to its raw UTF-8 bytes rather
// than failing the row.
func encodeValue(s string, enc encoding.Encoding) []byte {
	if enc == nil {
		return []byte(s)
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
