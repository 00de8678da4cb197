package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"compliance-backend/internal/shared/storage/object/local"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>1. Payment Terms</w:t></w:r></w:p>
<w:p><w:r><w:t>The Client shall pay each invoice within 30 days.</w:t></w:r></w:p>
</w:body></w:document>`

func buildDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/document.xml":   documentXML,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextFromBytes_Docx(t *testing.T) {
	text, err := ExtractTextFromBytes(context.Background(), buildDocx(t), MimeDOCX, "msa.docx")
	if err != nil {
		t.Fatalf("extract docx: %v", err)
	}
	if !strings.Contains(text, "1. Payment Terms\nThe Client shall pay") {
		t.Fatalf("paragraphs not separated: %q", text)
	}
}

func TestExtractTextFromBytes_ZipDocxNormalizes(t *testing.T) {
	if _, err := ExtractTextFromBytes(context.Background(), buildDocx(t), "application/zip", "upload.bin"); err != nil {
		t.Fatalf("expected docx to extract from zip mime, got error: %v", err)
	}
}

func TestExtractTextFromBytes_RealZipRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	_, err = ExtractTextFromBytes(context.Background(), buf.Bytes(), "application/zip", "notes.zip")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := ExtractFile(context.Background(), filepath.Join(dir, "missing.pdf")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("plain"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractFile(context.Background(), txt); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	path := filepath.Join(dir, "msa.docx")
	if err := os.WriteFile(path, buildDocx(t), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := ExtractFile(context.Background(), path)
	if err != nil || !strings.Contains(text, "invoice") {
		t.Fatalf("ExtractFile: %q, %v", text, err)
	}
}

func TestExtractTextCachesResult(t *testing.T) {
	ctx := context.Background()
	store := local.New(t.TempDir())
	obj, err := store.Save(ctx, "guest:1", "msa.docx", bytes.NewReader(buildDocx(t)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := ExtractText(ctx, store, obj.Key, MimeDOCX, "msa.docx")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if _, err := store.SaveWithKey(ctx, obj.Key+ExtractedSuffix, "text/plain", strings.NewReader("cached")); err != nil {
		t.Fatal(err)
	}
	second, err := ExtractText(ctx, store, obj.Key, MimeDOCX, "msa.docx")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if first == second || second != "cached" {
		t.Fatalf("expected cached copy, got %q", second)
	}

	if _, err := ExtractText(ctx, store, "nope/missing.pdf", MimePDF, "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	if !Supported("", "a.PDF") || !Supported(MimeDOCX, "") || Supported("text/plain", "a.txt") {
		t.Fatal("unexpected Supported result")
	}
}
