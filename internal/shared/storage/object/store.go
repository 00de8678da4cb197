// Package object stores uploaded contracts and derived files by key.
package object

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = errors.New("object not found")

// Object describes a saved upload.
type Object struct {
	Key      string
	Size     int64
	MimeType string
}

// ObjectStore saves and reads binary objects.
type ObjectStore interface {
	// Save stores an upload under the owner's namespace with a generated key.
	Save(ctx context.Context, owner string, fileName string, r io.Reader) (Object, error)
	// SaveWithKey stores data at a caller-chosen key, replacing it.
	SaveWithKey(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewKey builds <sha256(owner)>/<random>_<name> for an upload.
func NewKey(owner, fileName string) (string, error) {
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return path.Join(OwnerKey(owner), randomID()+"_"+name), nil
}

// OwnerKey is a path-safe identifier for an owner id.
func OwnerKey(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:])
}

// SanitizeFileName flattens separators and rejects traversal.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}

// Sniff reads up to 512 bytes to detect the content type and returns a reader
// that replays them.
func Sniff(r io.Reader) (io.Reader, string, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", err)
	}
	return io.MultiReader(strings.NewReader(string(head[:n])), r), http.DetectContentType(head[:n]), nil
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}

// JoinPrefix joins a bucket prefix and key with exactly one slash.
func JoinPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
