// Package extract pulls plain text out of uploaded contracts.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"compliance-backend/internal/shared/storage/object"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNotFound          = errors.New("file not found")
)

// ExtractedSuffix is appended to an object key for its cached text.
const ExtractedSuffix = ".extracted.txt"

// ExtractText reads a stored contract, extracts its text and caches it next to
// the original as <key>.extracted.txt. A cached copy is returned when present.
func ExtractText(ctx context.Context, store object.ObjectStore, fileKey string, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if cached, ok := readCached(ctx, store, fileKey+ExtractedSuffix); ok {
		return cached, nil
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: read: %w", fileKey, mimeType, err)
	}

	text, err := ExtractTextFromBytes(ctx, raw, mimeType, fileName)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}

	if _, err := store.SaveWithKey(ctx, fileKey+ExtractedSuffix, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: cache: %w", fileKey, mimeType, err)
	}
	return text, nil
}

// ExtractFile extracts a contract from the local filesystem, picking the
// format from the extension.
func ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return ExtractTextFromBytes(ctx, data, MimeFromName(path), filepath.Base(path))
}

// ExtractTextFromBytes extracts text from an in-memory payload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	switch normalized {
	case MimePDF:
		return extractPDF(data)
	case MimeDOCX:
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, normalized)
	}
}

// MimeFromName maps a file extension to a supported MIME type, or "".
func MimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	}
	return ""
}

// Supported reports whether the MIME type or file name is a contract format
// this package reads.
func Supported(mimeType, fileName string) bool {
	switch normalizeMimeType(mimeType, fileName, nil) {
	case MimePDF, MimeDOCX:
		return true
	}
	return false
}

func readCached(ctx context.Context, store object.ObjectStore, key string) (string, bool) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", false
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return stripDocxXML(doc.Editable().GetContent()), nil
}

// stripDocxXML keeps character data and turns paragraph and break ends into
// newlines.
func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case MimePDF, MimeDOCX:
		return clean
	case "", "application/octet-stream", "application/zip":
	default:
		return clean
	}
	if clean == "application/zip" && len(data) > 0 && !isWordZip(data) {
		return clean
	}
	if byName := MimeFromName(fileName); byName != "" {
		return byName
	}
	if len(data) > 0 && isWordZip(data) {
		return MimeDOCX
	}
	if clean == "" {
		return "application/octet-stream"
	}
	return clean
}

func isWordZip(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
