package extract

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

func extractPDF(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var all strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := pageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		if all.Len() > 0 {
			all.WriteByte('\n')
		}
		all.WriteString(pageText)
	}
	return all.String(), nil
}

func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

// tjWordGap is the TJ adjustment, in thousandths of an em, read as a word break.
const tjWordGap = -200

// textFromContentStream walks a page content stream operator by operator and
// collects the strings shown by Tj, TJ, ' and ".
func textFromContentStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []operand
	)
	lx := &contentLexer{data: data}
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokenOperator {
			operands = append(operands, tok.operand)
			continue
		}
		switch tok.op {
		case "Tj":
			writeStrings(&sb, operands, false)
		case "TJ":
			writeStrings(&sb, operands, true)
		case "'", "\"":
			sb.WriteByte('\n')
			writeStrings(&sb, operands, false)
		case "Td", "TD", "Tm", "BT", "ET":
			sb.WriteByte(' ')
		case "T*":
			sb.WriteByte('\n')
		case "ID":
			lx.skipInlineImage()
		}
		operands = operands[:0]
	}
	return normalizeSpace(sb.String())
}

// writeStrings appends the string operands. With kerning set, large negative
// TJ adjustments between strings become spaces.
func writeStrings(sb *strings.Builder, operands []operand, kerning bool) {
	for _, o := range operands {
		switch {
		case o.isString:
			sb.WriteString(pdfText(o.str))
		case kerning && o.isNumber && o.num <= tjWordGap:
			sb.WriteByte(' ')
		}
	}
}

type tokenKind int

const (
	tokenOperand tokenKind = iota
	tokenOperator
)

type operand struct {
	isString bool
	isNumber bool
	str      []byte
	num      float64
}

type token struct {
	kind    tokenKind
	op      string
	operand operand
}

// contentLexer splits a content stream into operands and operators. Array
// brackets are dropped so TJ sees its elements as a flat operand list;
// dictionaries and names are kept only as placeholders.
type contentLexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (lx *contentLexer) next() (token, bool) {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch {
		case isPDFSpace(c):
			lx.pos++
		case c == '%':
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
		case c == '(':
			lx.pos++
			return token{operand: operand{isString: true, str: lx.literalString()}}, true
		case c == '<' && lx.peek(1) == '<', c == '>' && lx.peek(1) == '>':
			lx.pos += 2
		case c == '<':
			lx.pos++
			return token{operand: operand{isString: true, str: lx.hexString()}}, true
		case c == '[', c == ']', c == '{', c == '}', c == ')', c == '>':
			lx.pos++
		case c == '/':
			lx.pos++
			lx.regular()
			return token{}, true
		default:
			word := lx.regular()
			if word == "" {
				lx.pos++
				continue
			}
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{operand: operand{isNumber: true, num: n}}, true
			}
			if word == "true" || word == "false" || word == "null" {
				return token{}, true
			}
			return token{kind: tokenOperator, op: word}, true
		}
	}
	return token{}, false
}

func (lx *contentLexer) peek(off int) byte {
	if lx.pos+off < len(lx.data) {
		return lx.data[lx.pos+off]
	}
	return 0
}

// regular consumes a run of regular characters.
func (lx *contentLexer) regular() string {
	start := lx.pos
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isPDFSpace(c) || isPDFDelimiter(c) {
			break
		}
		lx.pos++
	}
	return string(lx.data[start:lx.pos])
}

// literalString reads up to the balancing ')' and resolves escapes.
func (lx *contentLexer) literalString() []byte {
	var out []byte
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			if lx.pos >= len(lx.data) {
				return out
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if lx.peek(0) == '\n' {
					lx.pos++
				}
			case '\n':
			default:
				if e < '0' || e > '7' {
					out = append(out, e)
					continue
				}
				val := int(e - '0')
				for n := 0; n < 2 && lx.peek(0) >= '0' && lx.peek(0) <= '7'; n++ {
					val = val*8 + int(lx.data[lx.pos]-'0')
					lx.pos++
				}
				out = append(out, byte(val))
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// hexString reads up to '>'. An odd final digit is padded with zero.
func (lx *contentLexer) hexString() []byte {
	var (
		out  []byte
		hi   byte
		half bool
	)
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			break
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if !half {
			hi, half = v, true
			continue
		}
		out = append(out, hi<<4|v)
		half = false
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage moves past inline image data to the EI operator.
func (lx *contentLexer) skipInlineImage() {
	for lx.pos+2 <= len(lx.data) {
		if lx.data[lx.pos] == 'E' && lx.data[lx.pos+1] == 'I' &&
			(lx.pos == 0 || isPDFSpace(lx.data[lx.pos-1])) &&
			(lx.pos+2 == len(lx.data) || isPDFSpace(lx.data[lx.pos+2]) || isPDFDelimiter(lx.data[lx.pos+2])) {
			lx.pos += 2
			return
		}
		lx.pos++
	}
	lx.pos = len(lx.data)
}

// pdfText decodes a shown string: UTF-16BE when it carries a byte order mark,
// otherwise the single-byte WinAnsi encoding of the standard fonts.
func pdfText(b []byte) string {
	var (
		out []byte
		err error
	)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		out, err = xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder().Bytes(b)
	} else {
		out, err = charmap.Windows1252.NewDecoder().Bytes(b)
	}
	if err != nil {
		return ""
	}
	return string(out)
}

// normalizeSpace collapses whitespace runs and drops non-printable runes.
func normalizeSpace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
