package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// pageSeparator joins the text of consecutive pages.
const pageSeparator = "\n\n"

// pdfText returns the plain text of every page that has any, joined by blank lines.
// Layout (columns, reading order) is not reconstructed.
func (x *Extractor) pdfText(path string) (text string, err error) {
	if err := x.checkSize(path); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}

	// ридер паникует на битых xref и объектах
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed pdf %s: %v", domain.ErrExtractionFailed, filepath.Base(path), r)
		}
	}()

	r, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}

	fonts := make(map[string]*pdf.Font)
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		pt, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %w", domain.ErrExtractionFailed, i, filepath.Base(path), err)
		}
		if pt = strings.TrimSpace(pt); pt != "" {
			pages = append(pages, pt)
		}
	}
	return strings.Join(pages, pageSeparator), nil
}
