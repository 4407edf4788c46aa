package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/formation-api/internal/models"
	appErrors "github.com/noah-isme/formation-api/pkg/errors"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.FormationDocument) error
	FindByID(ctx context.Context, id string) (*models.FormationDocument, error)
	ListByFormation(ctx context.Context, formationID string) ([]models.FormationDocument, error)
	Delete(ctx context.Context, id string) error
	DeleteByFormation(ctx context.Context, formationID string) error
}

type formationReader interface {
	FindByID(ctx context.Context, id string) (*models.Formation, error)
}

type documentFileStorage interface {
	SaveStream(relPath string, r io.Reader) (int64, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	DeleteDir(relDir string) error
}

type documentSigner interface {
	Generate(documentID, relPath string) (string, time.Time, error)
	Parse(token string) (documentID, relPath string, expiresAt time.Time, err error)
}

// DocumentUpload carries upload metadata and the payload reader.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// DocumentDownload bundles a stored payload for streaming.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	SizeBytes int64
}

// CreateDocumentRequest describes document metadata supplied by the caller.
type CreateDocumentRequest struct {
	Name        string              `form:"name" validate:"required"`
	Kind        models.DocumentKind `form:"kind" validate:"required,oneof=SUPPORT EXERCISE ASSESSMENT OTHER"`
	Description string              `form:"description"`
}

// DocumentService manages formation documents: metadata rows plus payloads on
// the blob store. Documents exist only in the context of a parent formation.
type DocumentService struct {
	repo        documentStore
	formations  formationReader
	storage     documentFileStorage
	signer      documentSigner
	validator   *validator.Validate
	logger      *zap.Logger
	maxFileSize int64
}

// NewDocumentService constructs DocumentService.
func NewDocumentService(repo documentStore, formations formationReader, storage documentFileStorage, signer documentSigner, validate *validator.Validate, logger *zap.Logger, maxFileSize int64) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFileSize <= 0 {
		maxFileSize = 20 * 1024 * 1024
	}
	return &DocumentService{
		repo:        repo,
		formations:  formations,
		storage:     storage,
		signer:      signer,
		validator:   validate,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

// Upload stores a document payload and its metadata under an existing parent.
func (s *DocumentService) Upload(ctx context.Context, formationID string, req CreateDocumentRequest, upload DocumentUpload) (*models.FormationDocument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if upload.Content == nil {
		return nil, appErrors.Validation("file is required")
	}
	if upload.Size > s.maxFileSize {
		return nil, appErrors.Validation(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxFileSize))
	}

	if _, err := s.formations.FindByID(ctx, formationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}

	doc := &models.FormationDocument{
		ID:          uuid.NewString(),
		FormationID: formationID,
		Name:        req.Name,
		Kind:        req.Kind,
		Filename:    upload.Filename,
		Description: req.Description,
		UploadedAt:  time.Now().UTC(),
	}
	doc.FilePath = filepath.Join(formationID, doc.ID+filepath.Ext(upload.Filename))

	written, err := s.storage.SaveStream(doc.FilePath, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	doc.SizeBytes = written

	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.storage.Delete(doc.FilePath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("formation_id", formationID),
		zap.Int64("size_bytes", doc.SizeBytes))

	return doc, nil
}

// List returns the documents owned by a formation.
func (s *DocumentService) List(ctx context.Context, formationID string) ([]models.FormationDocument, error) {
	if _, err := s.formations.FindByID(ctx, formationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}
	docs, err := s.repo.ListByFormation(ctx, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// Get returns a single document's metadata.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.FormationDocument, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// GetDownloadURL issues a signed, expiring download token for a document.
func (s *DocumentService) GetDownloadURL(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, nil
}

// Download opens the stored payload referenced by a signed token.
func (s *DocumentService) Download(ctx context.Context, id, token string) (*DocumentDownload, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tokenID, relPath, _, err := s.signer.Parse(token)
	if err != nil || tokenID != doc.ID || relPath != doc.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(doc.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &DocumentDownload{File: file, Filename: doc.Filename, SizeBytes: doc.SizeBytes}, nil
}

// Delete removes a document's metadata row and its stored payload.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.storage.Delete(doc.FilePath); err != nil {
		s.logger.Warn("document payload removal failed", zap.String("document_id", id), zap.Error(err))
	}
	return nil
}

// DeleteByFormation removes every document owned by a formation, payloads
// included. Called by the formation delete cascade.
func (s *DocumentService) DeleteByFormation(ctx context.Context, formationID string) error {
	if err := s.repo.DeleteByFormation(ctx, formationID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete documents")
	}
	if err := s.storage.DeleteDir(formationID); err != nil {
		s.logger.Warn("document directory removal failed", zap.String("formation_id", formationID), zap.Error(err))
	}
	return nil
}
