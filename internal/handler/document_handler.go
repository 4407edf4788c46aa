package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/formation-api/internal/service"
	appErrors "github.com/noah-isme/formation-api/pkg/errors"
	"github.com/noah-isme/formation-api/pkg/response"
)

// DocumentHandler manages formation document endpoints.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload godoc
// @Summary Upload a formation document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Formation ID"
// @Param name formData string true "Document name"
// @Param kind formData string true "Document kind" Enums(SUPPORT, EXERCISE, ASSESSMENT, OTHER)
// @Param description formData string false "Description"
// @Param file formData file true "Payload"
// @Success 201 {object} response.Envelope
// @Router /formations/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
	}
	doc, err := h.documents.Upload(c.Request.Context(), c.Param("id"), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List documents of a formation
// @Tags Documents
// @Produce json
// @Param id path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get godoc
// @Summary Get document metadata
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadURL godoc
// @Summary Issue a signed download token
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	token, err := h.documents.GetDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token}, nil)
}

// Download godoc
// @Summary Download a document payload
// @Tags Documents
// @Produce application/octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} byte
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	download, err := h.documents.Download(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Content-Length", fmt.Sprintf("%d", download.SizeBytes))
	c.DataFromReader(http.StatusOK, download.SizeBytes, "application/octet-stream", download.File, nil)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 204
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
