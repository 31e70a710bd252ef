package extractor

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText reads UTF-8 text and markdown.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", corrupt("text is not valid UTF-8", nil)
	}
	return strings.ReplaceAll(string(raw), "\r\n", "\n"), nil
}
