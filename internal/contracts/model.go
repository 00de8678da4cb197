package contracts

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("contract not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("only PDF and DOCX contracts are supported")
)

// Contract is an uploaded agreement owned by a user or guest.
type Contract struct {
	ID               string
	OwnerID          string
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageProvider  string
	StorageKey       string
	ExtractedTextKey string
	ExtractedAt      *time.Time
	CreatedAt        time.Time
}
