package contracts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliance-backend/internal/extract"
	"compliance-backend/internal/shared/storage/object"
	"compliance-backend/internal/shared/telemetry"
)

// Service contains business logic for contracts.
type Service struct {
	Store           object.ObjectStore
	Repo            Repo
	StorageProvider string
	Now             func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Upload saves a PDF or DOCX contract to object storage and records it.
func (s *Service) Upload(ctx context.Context, ownerID, fileName string, r io.Reader) (Contract, error) {
	fileName = strings.TrimSpace(fileName)
	if ownerID == "" || fileName == "" {
		return Contract{}, ErrInvalidInput
	}
	mimeType := extract.MimeFromName(fileName)
	if !extract.Supported(mimeType, fileName) {
		return Contract{}, ErrUnsupported
	}

	obj, err := s.Store.Save(ctx, ownerID, fileName, r)
	if err != nil {
		return Contract{}, fmt.Errorf("save contract owner=%s: %w", ownerID, err)
	}

	c := Contract{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		FileName:        fileName,
		MimeType:        mimeType,
		SizeBytes:       obj.Size,
		StorageProvider: s.StorageProvider,
		StorageKey:      obj.Key,
		CreatedAt:       s.now(),
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return Contract{}, err
	}
	telemetry.Info("contract.uploaded", map[string]any{
		"contract_id": c.ID,
		"owner_id":    ownerID,
		"size_bytes":  c.SizeBytes,
		"mime_type":   mimeType,
	})
	return c, nil
}

// Get returns one contract of an owner.
func (s *Service) Get(ctx context.Context, ownerID, contractID string) (Contract, error) {
	if ownerID == "" || strings.TrimSpace(contractID) == "" {
		return Contract{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, ownerID, contractID)
}

// List returns an owner's contracts newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Contract, error) {
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Text returns the contract's extracted text, extracting and caching it on
// first use.
func (s *Service) Text(ctx context.Context, c Contract) (string, error) {
	text, err := extract.ExtractText(ctx, s.Store, c.StorageKey, c.MimeType, c.FileName)
	if err != nil {
		return "", err
	}
	if c.ExtractedTextKey == "" {
		key := c.StorageKey + extract.ExtractedSuffix
		if err := s.Repo.UpdateExtraction(ctx, c.OwnerID, c.ID, key, s.now()); err != nil && !errors.Is(err, ErrNotFound) {
			telemetry.Warn("contract.extraction.record_failed", map[string]any{
				"contract_id": c.ID,
				"error":       err.Error(),
			})
		}
	}
	return text, nil
}
