package parser

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText wraps r so that a leading byte order mark is honoured:
// UTF-8 BOMs are stripped and UTF-16 input is transcoded to UTF-8.
// Input without a BOM passes through byte for byte, so formats that declare
// their own charset can still decode it.
func DecodeText(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}
