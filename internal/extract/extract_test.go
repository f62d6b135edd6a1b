package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/docqa/internal/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types/>`))
	if documentXML != "" {
		doc, _ := w.Create("word/document.xml")
		_, _ = doc.Write([]byte(documentXML))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const docWithTable = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly </w:t></w:r><w:r><w:t>report</w:t></w:r></w:p>
<w:p><w:r><w:t>   </w:t></w:r></w:p>
<w:tbl>
<w:tr>
<w:tc><w:p><w:r><w:t>Region</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>Revenue</w:t></w:r></w:p></w:tc>
</w:tr>
<w:tr>
<w:tc><w:p><w:r><w:t>EMEA</w:t></w:r></w:p></w:tc>
<w:tc><w:p></w:p></w:tc>
<w:tc><w:p><w:r><w:t>42</w:t></w:r></w:p></w:tc>
</w:tr>
</w:tbl>
<w:p><w:r><w:t>Summary follows.</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestExtract_DOCX(t *testing.T) {
	path := writeDOCX(t, docWithTable)

	got, err := New(0).Extract(context.Background(), path, "docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Quarterly report\n\nSummary follows.\n\nRegion | Revenue\n\nEMEA | 42"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_DOCXMissingDocumentPart(t *testing.T) {
	path := writeDOCX(t, "")
	_, err := New(0).Extract(context.Background(), path, "docx")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtract_LegacyDocUnsupported(t *testing.T) {
	path := writeFile(t, "old.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	_, err := New(0).Extract(context.Background(), path, "doc")
	if !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestExtract_DOCXNotZip(t *testing.T) {
	path := writeFile(t, "broken.docx", []byte("plain text pretending to be docx"))
	_, err := New(0).Extract(context.Background(), path, "docx")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtract_PlainText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"utf8", []byte("Xin chào\nthế giới"), "Xin chào\nthế giới"},
		{"bom", []byte("\xef\xbb\xbfhello"), "hello"},
		{"invalid bytes", []byte("ok\xffok"), "ok�ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "a.txt", tt.data)
			got, err := New(0).Extract(context.Background(), path, "TXT")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_TooLarge(t *testing.T) {
	path := writeFile(t, "big.md", make([]byte, 64))
	_, err := New(10).Extract(context.Background(), path, "md")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtract_Unsupported(t *testing.T) {
	for _, ft := range []string{"doc", "png", "jpeg", "tiff", "xlsx", ""} {
		_, err := New(0).Extract(context.Background(), "/nonexistent", ft)
		if !errors.Is(err, domain.ErrUnsupportedFileType) {
			t.Errorf("%q: expected ErrUnsupportedFileType, got %v", ft, err)
		}
	}
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(0).Extract(ctx, "/nonexistent", "txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"report.PDF":     "pdf",
		"archive.tar.gz": "gz",
		"noext":          "",
		"dir.d/file":     "",
		"notes.md":       "md",
	}
	for name, want := range tests {
		if got := FileExtension(name); got != want {
			t.Errorf("FileExtension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSupported(t *testing.T) {
	if !Supported("DOCX") || !Supported("pdf") {
		t.Error("expected docx and pdf to be accepted")
	}
	if Supported("exe") || Supported("") {
		t.Error("expected exe and empty to be rejected")
	}
}
