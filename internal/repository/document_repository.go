package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/formation-api/internal/models"
)

const documentColumns = `id, formation_id, name, kind, filename, file_path, size_bytes, description, uploaded_at`

// DocumentRepository handles persistence of formation document metadata.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create persists a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.FormationDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO formation_documents (id, formation_id, name, kind, filename, file_path, size_bytes, description, uploaded_at)
        VALUES (:id, :formation_id, :name, :kind, :filename, :file_path, :size_bytes, :description, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create formation document: %w", err)
	}
	return nil
}

// FindByID returns a document by its ID.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.FormationDocument, error) {
	query := fmt.Sprintf("SELECT %s FROM formation_documents WHERE id = $1", documentColumns)
	var doc models.FormationDocument
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByFormation returns all documents owned by a formation.
func (r *DocumentRepository) ListByFormation(ctx context.Context, formationID string) ([]models.FormationDocument, error) {
	query := fmt.Sprintf("SELECT %s FROM formation_documents WHERE formation_id = $1 ORDER BY uploaded_at DESC", documentColumns)
	var docs []models.FormationDocument
	if err := r.db.SelectContext(ctx, &docs, query, formationID); err != nil {
		return nil, fmt.Errorf("list formation documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM formation_documents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete formation document: %w", err)
	}
	return nil
}

// DeleteByFormation removes every document row owned by a formation. Used by
// the cascade when the parent is deleted.
func (r *DocumentRepository) DeleteByFormation(ctx context.Context, formationID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM formation_documents WHERE formation_id = $1", formationID); err != nil {
		return fmt.Errorf("delete documents by formation: %w", err)
	}
	return nil
}
