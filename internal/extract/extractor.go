// Package extract converts document bytes into plain text for pdf, doc and docx.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rhyzero/file-organizer/internal/models"
)

// Format is a supported document variant.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDoc  Format = "doc"
	FormatDocx Format = "docx"
)

// Supported MIME types.
const (
	MimePDF  = "application/pdf"
	MimeDoc  = "application/msword"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var mimeFormats = map[string]Format{
	MimePDF:  FormatPDF,
	MimeDoc:  FormatDoc,
	MimeDocx: FormatDocx,
}

// FormatForMime maps a declared MIME type to a Format. Parameters such as
// "; charset=" are ignored.
func FormatForMime(mimeType string) (Format, error) {
	base := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if f, ok := mimeFormats[base]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, mimeType)
}

// IsSupported reports whether mimeType is one of the three supported formats.
func IsSupported(mimeType string) bool {
	_, err := FormatForMime(mimeType)
	return err == nil
}

// Extension returns the file extension, with dot, for a supported MIME type.
func Extension(mimeType string) string {
	f, err := FormatForMime(mimeType)
	if err != nil {
		return ""
	}
	return "." + string(f)
}

// EnsureExtension appends the MIME type's extension when name has none.
// A blank name becomes "document" plus the extension.
func EnsureExtension(name, mimeType string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "document"
	}
	if filepath.Ext(name) != "" {
		return name
	}
	return name + Extension(mimeType)
}

// Extractor is the text extraction capability consumed by the pipeline.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// TextExtractor dispatches to the format specific parsers. It holds no state.
type TextExtractor struct{}

// New returns a TextExtractor.
func New() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the full plain text of the document. Paginated sources are
// concatenated page by page.
func (e *TextExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	format, err := FormatForMime(mimeType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDoc:
		text, err = extractDoc(data)
	case FormatDocx:
		text, err = extractDocx(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	return text, nil
}
