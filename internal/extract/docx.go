package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const documentPart = "word/document.xml"

// document mirrors the parts of word/document.xml we read.
type document struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
		Tables     []table     `xml:"tbl"`
	} `xml:"body"`
}

type table struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []paragraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

type paragraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

func (p paragraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

// docx returns non-empty body paragraphs followed by table rows
// (cells joined with " | "), separated by blank lines.
func (x *Extractor) docx(path string) (string, error) {
	if err := x.checkSize(path); err != nil {
		return "", err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a docx archive: %w", domain.ErrExtractionFailed, filepath.Base(path), err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %w", domain.ErrExtractionFailed, documentPart, err)
		}
		raw, err := io.ReadAll(io.LimitReader(rc, x.maxFileBytes))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtractionFailed, documentPart, err)
		}
		return parseDocument(raw)
	}
	return "", fmt.Errorf("%w: %s has no %s", domain.ErrExtractionFailed, filepath.Base(path), documentPart)
}

func parseDocument(raw []byte) (string, error) {
	var doc document
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%w: parse %s: %w", domain.ErrExtractionFailed, documentPart, err)
	}

	var parts []string
	for _, p := range doc.Body.Paragraphs {
		if t := p.text(); strings.TrimSpace(t) != "" {
			parts = append(parts, t)
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			var cells []string
			for _, c := range row.Cells {
				lines := make([]string, len(c.Paragraphs))
				for i, p := range c.Paragraphs {
					lines[i] = p.text()
				}
				if t := strings.TrimSpace(strings.Join(lines, "\n")); t != "" {
					cells = append(cells, t)
				}
			}
			if len(cells) > 0 {
				parts = append(parts, strings.Join(cells, " | "))
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
