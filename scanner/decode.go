package scanner

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText turns raw file bytes into text. It never fails: byte order
// marks select UTF-16, BOM-less UTF-16LE is recognised by its zero high
// bytes, and invalid UTF-8 sequences are dropped.
func DecodeText(data []byte) string {
	switch {
	case len(data) == 0:
		return ""
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		if text, ok := decodeUTF16(data, unicode.LittleEndian); ok {
			return text
		}
	case bytes.HasPrefix(data, bomUTF16BE):
		if text, ok := decodeUTF16(data, unicode.BigEndian); ok {
			return text
		}
	case looksLikeUTF16LE(data):
		if text, ok := decodeUTF16(data, unicode.LittleEndian); ok {
			return text
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func decodeUTF16(data []byte, order unicode.Endianness) (string, bool) {
	dec := unicode.UTF16(order, unicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		return "", false
	}
	return strings.ToValidUTF8(string(out), ""), true
}

// looksLikeUTF16LE spots Windows "Unicode" text saved without a BOM: mostly
// ASCII, so nearly every odd byte is zero and even bytes are not.
func looksLikeUTF16LE(data []byte) bool {
	n := len(data)
	if n < 4 || n%2 != 0 {
		return false
	}
	if n > 512 {
		n = 512
	}
	var oddZero, evenZero int
	for i := 0; i+1 < n; i += 2 {
		if data[i] == 0 {
			evenZero++
		}
		if data[i+1] == 0 {
			oddZero++
		}
	}
	pairs := n / 2
	return oddZero*10 >= pairs*9 && evenZero*10 <= pairs
}

func sniffMIME(data []byte) string {
	if len(data) == 0 {
		return "unknown"
	}
	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown"
	}
	return kind.MIME.Value
}
