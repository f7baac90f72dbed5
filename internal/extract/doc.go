package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Word 97-2003 binary layout offsets within the FIB.
const (
	fibFlagsOffset  = 0x000A
	fibWhichTblStm  = 0x0200
	fibFcClxOffset  = 0x01A2
	fibLcbClxOffset = 0x01A6

	clxPrc  = 0x01
	clxPcdt = 0x02

	pcdSize         = 8
	fcCompressedBit = 0x40000000
)

var errNotWordDocument = errors.New("no WordDocument stream in compound file")

// extractDoc reads the piece table of a legacy .doc and concatenates its text pieces.
func extractDoc(data []byte) (string, error) {
	cfb, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}

	streams := make(map[string][]byte, 3)
	for entry, err := cfb.Next(); err == nil; entry, err = cfb.Next() {
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
			if len(entry.Path) > 0 {
				continue
			}
			b, rerr := io.ReadAll(entry)
			if rerr != nil {
				return "", fmt.Errorf("read %s stream: %w", entry.Name, rerr)
			}
			streams[entry.Name] = b
		}
	}

	word, ok := streams["WordDocument"]
	if !ok {
		return "", errNotWordDocument
	}
	if len(word) < fibLcbClxOffset+4 {
		return "", fmt.Errorf("WordDocument stream too short: %d bytes", len(word))
	}

	tableName := "0Table"
	if binary.LittleEndian.Uint16(word[fibFlagsOffset:])&fibWhichTblStm != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("%s stream not found", tableName)
	}

	fcClx := binary.LittleEndian.Uint32(word[fibFcClxOffset:])
	lcbClx := binary.LittleEndian.Uint32(word[fibLcbClxOffset:])
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return "", fmt.Errorf("clx out of range")
	}

	plcPcd, err := pieceTable(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}
	text, err := readPieces(word, plcPcd)
	if err != nil {
		return "", err
	}
	return cleanWordText(text), nil
}

// pieceTable skips Prc entries and returns the PlcPcd bytes of the Pcdt.
func pieceTable(clx []byte) ([]byte, error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case clxPrc:
			if i+3 > len(clx) {
				return nil, fmt.Errorf("truncated Prc")
			}
			cb := int(int16(binary.LittleEndian.Uint16(clx[i+1:])))
			if cb < 0 {
				return nil, fmt.Errorf("invalid Prc size %d", cb)
			}
			i += 3 + cb
		case clxPcdt:
			if i+5 > len(clx) {
				return nil, fmt.Errorf("truncated Pcdt")
			}
			lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
			start := i + 5
			if lcb < 4 || start+lcb > len(clx) {
				return nil, fmt.Errorf("invalid PlcPcd size %d", lcb)
			}
			return clx[start : start+lcb], nil
		default:
			return nil, fmt.Errorf("unexpected clx entry 0x%02x", clx[i])
		}
	}
	return nil, fmt.Errorf("piece table not found")
}

// readPieces decodes every piece described by the PlcPcd: n+1 character
// positions followed by n piece descriptors.
func readPieces(word, plc []byte) (string, error) {
	n := (len(plc) - 4) / (4 + pcdSize)
	if n <= 0 {
		return "", nil
	}
	cps := make([]uint32, n+1)
	for i := range cps {
		cps[i] = binary.LittleEndian.Uint32(plc[i*4:])
	}

	var sb strings.Builder
	pcds := plc[(n+1)*4:]
	for i := 0; i < n; i++ {
		if cps[i+1] < cps[i] {
			return "", fmt.Errorf("piece %d has negative length", i)
		}
		chars := int(cps[i+1] - cps[i])
		fc := binary.LittleEndian.Uint32(pcds[i*pcdSize+2:])

		var (
			raw []byte
			err error
		)
		if fc&fcCompressedBit != 0 {
			off := int((fc &^ fcCompressedBit) / 2)
			if off+chars > len(word) {
				return "", fmt.Errorf("piece %d out of range", i)
			}
			raw, err = charmap.Windows1252.NewDecoder().Bytes(word[off : off+chars])
		} else {
			off := int(fc)
			if off+2*chars > len(word) {
				return "", fmt.Errorf("piece %d out of range", i)
			}
			raw, err = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(word[off : off+2*chars])
		}
		if err != nil {
			return "", fmt.Errorf("decode piece %d: %w", i, err)
		}
		sb.Write(raw)
	}
	return sb.String(), nil
}

// cleanWordText maps Word control characters to newlines and drops field instructions,
// keeping field results.
func cleanWordText(s string) string {
	var sb strings.Builder
	// one entry per open field, true while inside its instruction part
	var fields []bool
	inInstruction := func() bool {
		for _, instr := range fields {
			if instr {
				return true
			}
		}
		return false
	}
	for _, r := range s {
		switch r {
		case 0x13: // field begin
			fields = append(fields, true)
			continue
		case 0x14: // field separator, result follows
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15: // field end
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if inInstruction() {
			continue
		}
		switch r {
		case '\r', 0x0B, 0x07, 0x0C:
			sb.WriteByte('\n')
		default:
			if r >= 0x20 || r == '\t' || r == '\n' {
				sb.WriteRune(r)
			}
		}
	}

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
