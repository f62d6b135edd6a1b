// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// SupportedExtensions lists the file types accepted for upload.
// Legacy doc and image types are accepted but have no extractor.
var SupportedExtensions = []string{"pdf", "docx", "doc", "png", "jpg", "jpeg", "bmp", "tiff", "txt", "md"}

var imageExtensions = []string{"png", "jpg", "jpeg", "bmp", "tiff"}

const defaultMaxFileBytes = 50 << 20

// Extractor dispatches on the lower-cased file extension.
type Extractor struct {
	maxFileBytes int64
}

// New creates an extractor. maxFileBytes <= 0 means 50 MiB.
func New(maxFileBytes int64) *Extractor {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Extractor{maxFileBytes: maxFileBytes}
}

// FileExtension returns the lower-cased extension of name without the dot, or "".
func FileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Supported reports whether ext is accepted for upload.
func Supported(ext string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(ext))
}

// Extract reads the file at path and returns its text.
func (x *Extractor) Extract(ctx context.Context, path, fileType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ft := strings.ToLower(strings.TrimPrefix(fileType, "."))
	switch {
	case ft == "txt" || ft == "md" || ft == "markdown":
		return x.plain(path)
	case ft == "docx":
		return x.docx(path)
	case ft == "doc":
		return "", fmt.Errorf("legacy .doc is not supported, save it as .docx: %w", domain.ErrUnsupportedFileType)
	case ft == "pdf":
		return x.pdfText(path)
	case slices.Contains(imageExtensions, ft):
		return "", fmt.Errorf("image OCR is not available for %q: %w", ft, domain.ErrUnsupportedFileType)
	default:
		return "", fmt.Errorf("file type %q: %w", fileType, domain.ErrUnsupportedFileType)
	}
}

func (x *Extractor) plain(path string) (string, error) {
	if err := x.checkSize(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}

func (x *Extractor) checkSize(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}
	if fi.Size() > x.maxFileBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d",
			domain.ErrExtractionFailed, filepath.Base(path), fi.Size(), x.maxFileBytes)
	}
	return nil
}
