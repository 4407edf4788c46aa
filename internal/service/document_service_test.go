package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/formation-api/internal/models"
	appErrors "github.com/noah-isme/formation-api/pkg/errors"
	"github.com/noah-isme/formation-api/pkg/storage"
)

type mockDocumentStore struct {
	docs            map[string]models.FormationDocument
	failCreate      bool
	cascadedFormIDs []string
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{docs: make(map[string]models.FormationDocument)}
}

func (m *mockDocumentStore) Create(ctx context.Context, doc *models.FormationDocument) error {
	if m.failCreate {
		return sql.ErrConnDone
	}
	m.docs[doc.ID] = *doc
	return nil
}

func (m *mockDocumentStore) FindByID(ctx context.Context, id string) (*models.FormationDocument, error) {
	if doc, ok := m.docs[id]; ok {
		return &doc, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDocumentStore) ListByFormation(ctx context.Context, formationID string) ([]models.FormationDocument, error) {
	var out []models.FormationDocument
	for _, doc := range m.docs {
		if doc.FormationID == formationID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *mockDocumentStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, id)
	return nil
}

func (m *mockDocumentStore) DeleteByFormation(ctx context.Context, formationID string) error {
	for id, doc := range m.docs {
		if doc.FormationID == formationID {
			delete(m.docs, id)
		}
	}
	m.cascadedFormIDs = append(m.cascadedFormIDs, formationID)
	return nil
}

type mockFormationReader struct {
	known map[string]bool
}

func (m *mockFormationReader) FindByID(ctx context.Context, id string) (*models.Formation, error) {
	if m.known[id] {
		return &models.Formation{ID: id}, nil
	}
	return nil, sql.ErrNoRows
}

func newDocumentService(t *testing.T, store *mockDocumentStore) (*DocumentService, *storage.LocalStorage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	formations := &mockFormationReader{known: map[string]bool{"f1": true}}
	return NewDocumentService(store, formations, files, signer, nil, nil, 64), files
}

func TestDocumentServiceUploadAndDownload(t *testing.T) {
	store := newMockDocumentStore()
	svc, _ := newDocumentService(t, store)

	doc, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Course outline",
		Kind: models.DocumentKindSupport,
	}, DocumentUpload{
		Filename: "outline.txt",
		Size:     12,
		Content:  strings.NewReader("hello course"),
	})
	require.NoError(t, err)

	assert.Equal(t, "f1", doc.FormationID)
	assert.Equal(t, int64(12), doc.SizeBytes)
	assert.Equal(t, filepath.Join("f1", doc.ID+".txt"), doc.FilePath)
	assert.Contains(t, store.docs, doc.ID)

	token, err := svc.GetDownloadURL(context.Background(), doc.ID)
	require.NoError(t, err)

	download, err := svc.Download(context.Background(), doc.ID, token)
	require.NoError(t, err)
	defer download.File.Close()

	payload, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, "hello course", string(payload))
	assert.Equal(t, "outline.txt", download.Filename)
}

func TestDocumentServiceUploadRequiresParent(t *testing.T) {
	store := newMockDocumentStore()
	svc, _ := newDocumentService(t, store)

	_, err := svc.Upload(context.Background(), "missing", CreateDocumentRequest{
		Name: "Orphan",
		Kind: models.DocumentKindOther,
	}, DocumentUpload{
		Filename: "orphan.txt",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.docs)
}

func TestDocumentServiceUploadRejectsOversizePayload(t *testing.T) {
	store := newMockDocumentStore()
	svc, _ := newDocumentService(t, store)

	_, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Too big",
		Kind: models.DocumentKindExercise,
	}, DocumentUpload{
		Filename: "big.bin",
		Size:     1024,
		Content:  strings.NewReader(strings.Repeat("x", 1024)),
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestDocumentServiceUploadCleansUpOnRowFailure(t *testing.T) {
	store := newMockDocumentStore()
	store.failCreate = true

	baseDir := t.TempDir()
	files, err := storage.NewLocalStorage(baseDir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	formations := &mockFormationReader{known: map[string]bool{"f1": true}}
	svc := NewDocumentService(store, formations, files, signer, nil, nil, 64)

	_, err = svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Doomed",
		Kind: models.DocumentKindSupport,
	}, DocumentUpload{
		Filename: "doomed.txt",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.Error(t, err)

	// the streamed payload must not linger when the metadata insert failed
	entries, err := os.ReadDir(filepath.Join(baseDir, "f1"))
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, os.IsNotExist(err))
	}
}

func TestDocumentServiceDownloadRejectsForeignToken(t *testing.T) {
	store := newMockDocumentStore()
	svc, _ := newDocumentService(t, store)

	doc, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Protected",
		Kind: models.DocumentKindAssessment,
	}, DocumentUpload{
		Filename: "protected.txt",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.NoError(t, err)

	other := storage.NewSignedURLSigner("other-secret", time.Minute)
	forged, _, err := other.Generate(doc.ID, doc.FilePath)
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), doc.ID, forged)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDocumentServiceDeleteRemovesRowAndPayload(t *testing.T) {
	store := newMockDocumentStore()
	svc, files := newDocumentService(t, store)

	doc, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Ephemeral",
		Kind: models.DocumentKindSupport,
	}, DocumentUpload{
		Filename: "ephemeral.txt",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), doc.ID))
	assert.NotContains(t, store.docs, doc.ID)
	_, err = files.Open(doc.FilePath)
	assert.Error(t, err)

	err = svc.Delete(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDocumentServiceDeleteByFormationCascades(t *testing.T) {
	store := newMockDocumentStore()
	svc, files := newDocumentService(t, store)

	first, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "One",
		Kind: models.DocumentKindSupport,
	}, DocumentUpload{Filename: "one.txt", Size: 3, Content: strings.NewReader("one")})
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), "f1", CreateDocumentRequest{
		Name: "Two",
		Kind: models.DocumentKindExercise,
	}, DocumentUpload{Filename: "two.txt", Size: 3, Content: strings.NewReader("two")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByFormation(context.Background(), "f1"))
	assert.Empty(t, store.docs)
	assert.Equal(t, []string{"f1"}, store.cascadedFormIDs)
	_, err = files.Open(first.FilePath)
	assert.Error(t, err)
	_, err = files.Open(second.FilePath)
	assert.Error(t, err)
}
