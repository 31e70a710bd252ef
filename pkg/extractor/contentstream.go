package extractor

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// operand is one value on the content stream operand stack.
type operand struct {
	str   *string
	num   *float64
	array []operand
}

// kerning offsets below this (in thousandths of an em) read as a word gap.
const wordGapThreshold = -200

// textFromContentStream reads the text-showing operators (Tj, TJ, ' and ")
// of a decoded page content stream. Glyph codes are mapped through Latin-1
// or UTF-16 when the string carries a BOM; fonts with custom encodings come
// out as whatever their codes map to.
func textFromContentStream(b []byte) string {
	var (
		out      strings.Builder
		operands []operand
		arrays   [][]operand
	)

	newline := func() {
		s := out.String()
		if len(s) > 0 && s[len(s)-1] != '\n' {
			out.WriteByte('\n')
		}
	}
	push := func(op operand) {
		if len(arrays) > 0 {
			arrays[len(arrays)-1] = append(arrays[len(arrays)-1], op)
			return
		}
		operands = append(operands, op)
	}
	lastString := func() (string, bool) {
		for i := len(operands) - 1; i >= 0; i-- {
			if operands[i].str != nil {
				return *operands[i].str, true
			}
		}
		return "", false
	}

	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case isSpace(c):
			i++
		case c == '%':
			for i < len(b) && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteral(b, i+1)
			push(operand{str: &s})
			i = next
		case c == '<' && i+1 < len(b) && b[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(b) && b[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHex(b, i+1)
			push(operand{str: &s})
			i = next
		case c == '[':
			arrays = append(arrays, nil)
			i++
		case c == ']':
			if len(arrays) > 0 {
				arr := arrays[len(arrays)-1]
				arrays = arrays[:len(arrays)-1]
				push(operand{array: arr})
			}
			i++
		case c == '/':
			i++
			for i < len(b) && !isSpace(b[i]) && !isDelim(b[i]) {
				i++
			}
			push(operand{})
		default:
			start := i
			for i < len(b) && !isSpace(b[i]) && !isDelim(b[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			word := string(b[start:i])
			if f, err := strconv.ParseFloat(word, 64); err == nil {
				push(operand{num: &f})
				continue
			}

			switch word {
			case "Tj":
				if s, ok := lastString(); ok {
					out.WriteString(s)
				}
			case "'", "\"":
				newline()
				if s, ok := lastString(); ok {
					out.WriteString(s)
				}
			case "TJ":
				for j := len(operands) - 1; j >= 0; j-- {
					if operands[j].array == nil {
						continue
					}
					for _, el := range operands[j].array {
						switch {
						case el.str != nil:
							out.WriteString(*el.str)
						case el.num != nil && *el.num < wordGapThreshold:
							out.WriteByte(' ')
						}
					}
					break
				}
			case "Td", "TD":
				if len(operands) >= 2 && operands[len(operands)-1].num != nil && *operands[len(operands)-1].num != 0 {
					newline()
				}
			case "T*", "ET":
				newline()
			case "BI":
				i = skipInlineImage(b, i)
			}
			operands = operands[:0]
		}
	}
	return out.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes a (...) string starting just after the open paren.
func readLiteral(b []byte, i int) (string, int) {
	var raw []byte
	depth := 1
	for i < len(b) {
		c := b[i]
		switch c {
		case '\\':
			i++
			if i >= len(b) {
				break
			}
			e := b[i]
			switch e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r':
				if i+1 < len(b) && b[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := 0
					n := 0
					for n < 3 && i < len(b) && b[i] >= '0' && b[i] <= '7' {
						v = v*8 + int(b[i]-'0')
						i++
						n++
					}
					raw = append(raw, byte(v))
					continue
				}
				raw = append(raw, e)
			}
			i++
		case '(':
			depth++
			raw = append(raw, c)
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return decodeGlyphs(raw), i
			}
			raw = append(raw, c)
		default:
			raw = append(raw, c)
			i++
		}
	}
	return decodeGlyphs(raw), i
}

// readHex decodes a <...> string starting just after the open angle.
func readHex(b []byte, i int) (string, int) {
	var digits []byte
	for i < len(b) && b[i] != '>' {
		if h := b[i]; (h >= '0' && h <= '9') || (h >= 'a' && h <= 'f') || (h >= 'A' && h <= 'F') {
			digits = append(digits, h)
		}
		i++
	}
	if i < len(b) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, len(digits)/2)
	for j := range raw {
		v, _ := strconv.ParseUint(string(digits[2*j:2*j+2]), 16, 8)
		raw[j] = byte(v)
	}
	return decodeGlyphs(raw), i
}

func decodeGlyphs(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for j := 2; j+1 < len(raw); j += 2 {
			units = append(units, uint16(raw[j])<<8|uint16(raw[j+1]))
		}
		return string(utf16.Decode(units))
	}
	var sb strings.Builder
	for _, c := range raw {
		switch {
		case c == '\n' || c == '\t':
			sb.WriteByte(c)
		case c < 0x20 || c == 0x7F:
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

// skipInlineImage advances past the binary payload of a BI ... ID ... EI block.
func skipInlineImage(b []byte, i int) int {
	for i+1 < len(b) {
		if b[i] == 'E' && b[i+1] == 'I' && i > 0 && isSpace(b[i-1]) && (i+2 >= len(b) || isSpace(b[i+2])) {
			return i + 2
		}
		i++
	}
	return len(b)
}
