package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	objectclient "github.com/markdave123-py/virtual-teacher/internal/core/object-client"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

type DocumentService struct {
	db        core.DbClient
	storage   core.ObjectClient
	extractor core.DocumentExtractor
	bucket    string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, extractor core.DocumentExtractor, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, extractor: extractor, bucket: bucket}
}

// UploadAndCreate stores the file in object storage and records it as an
// uploaded document owned by userID.
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data io.Reader) (*models.Document, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	docID := uuid.NewString()
	key := objectclient.DocumentKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    filename,
		StorageURL:  url,
		SourceType:  "upload",
		ContentType: contentType,
		Status:      models.DocumentUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// GetOwned returns the document only when userID owns it.
func (s *DocumentService) GetOwned(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// ExtractPDFText returns the plain text of an uploaded PDF.
func (s *DocumentService) ExtractPDFText(ctx context.Context, data []byte) (string, error) {
	text, err := s.extractor.Extract(ctx, data, "application/pdf")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
