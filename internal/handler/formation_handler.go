package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/formation-api/internal/models"
	"github.com/noah-isme/formation-api/internal/service"
	appErrors "github.com/noah-isme/formation-api/pkg/errors"
	"github.com/noah-isme/formation-api/pkg/response"
)

// FormationHandler exposes formation endpoints.
type FormationHandler struct {
	formations *service.FormationService
}

// NewFormationHandler constructs FormationHandler.
func NewFormationHandler(formations *service.FormationService) *FormationHandler {
	return &FormationHandler{formations: formations}
}

// List godoc
// @Summary List formations
// @Tags Formations
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param category query string false "Filter by category"
// @Param ownerId query string false "Filter by owner"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /formations [get]
func (h *FormationHandler) List(c *gin.Context) {
	var filter models.FormationFilter
	filter.Status = models.FormationStatus(strings.ToUpper(c.Query("status")))
	filter.Type = models.FormationType(strings.ToUpper(c.Query("type")))
	filter.Category = models.FormationCategory(strings.ToUpper(c.Query("category")))
	filter.OwnerID = c.Query("ownerId")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	formations, pagination, err := h.formations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formations, pagination)
}

// Create godoc
// @Summary Create formation
// @Tags Formations
// @Accept json
// @Produce json
// @Param payload body service.CreateFormationRequest true "Formation payload"
// @Success 201 {object} response.Envelope
// @Router /formations [post]
func (h *FormationHandler) Create(c *gin.Context) {
	var req service.CreateFormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	formation, err := h.formations.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, formation)
}

// Get godoc
// @Summary Get formation detail
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{id} [get]
func (h *FormationHandler) Get(c *gin.Context) {
	formation, err := h.formations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Update godoc
// @Summary Update formation fields
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body service.UpdateFormationRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /formations/{id} [patch]
func (h *FormationHandler) Update(c *gin.Context) {
	var req service.UpdateFormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Delete godoc
// @Summary Delete formation and owned documents
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 204
// @Router /formations/{id} [delete]
func (h *FormationHandler) Delete(c *gin.Context) {
	if err := h.formations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Transition godoc
// @Summary Apply a status action
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Param action path string true "Action" Enums(schedule, start, finish, cancel)
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/{action} [put]
func (h *FormationHandler) Transition(action models.StatusAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		formation, err := h.formations.Apply(c.Request.Context(), c.Param("id"), action)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, formation, nil)
	}
}

// Archive godoc
// @Summary Archive formation (soft delete)
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 204
// @Router /formations/{id}/archive [put]
func (h *FormationHandler) Archive(c *gin.Context) {
	if err := h.formations.Archive(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore godoc
// @Summary Restore an archived formation
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 204
// @Router /formations/{id}/restore [put]
func (h *FormationHandler) Restore(c *gin.Context) {
	if err := h.formations.Restore(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type enrollRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

// Enroll godoc
// @Summary Enroll a participant
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body enrollRequest true "Participant payload"
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/participants [post]
func (h *FormationHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.Enroll(c.Request.Context(), c.Param("id"), req.ParticipantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Unenroll godoc
// @Summary Unenroll a participant
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Param participantId path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/participants/{participantId} [delete]
func (h *FormationHandler) Unenroll(c *gin.Context) {
	formation, err := h.formations.Unenroll(c.Request.Context(), c.Param("id"), c.Param("participantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

type assignTrainerRequest struct {
	TrainerID string `json:"trainer_id" binding:"required"`
}

// AssignTrainer godoc
// @Summary Assign a trainer
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body assignTrainerRequest true "Trainer payload"
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/trainers [post]
func (h *FormationHandler) AssignTrainer(c *gin.Context) {
	var req assignTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.AssignTrainer(c.Request.Context(), c.Param("id"), req.TrainerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// UnassignTrainer godoc
// @Summary Unassign a trainer
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Param trainerId path string true "Trainer ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{id}/trainers/{trainerId} [delete]
func (h *FormationHandler) UnassignTrainer(c *gin.Context) {
	formation, err := h.formations.UnassignTrainer(c.Request.Context(), c.Param("id"), c.Param("trainerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Export godoc
// @Summary Export the participant roster
// @Tags Formations
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Formation ID"
// @Param format query string false "Export format" Enums(csv, pdf)
// @Success 200 {file} byte
// @Router /formations/{id}/export [get]
func (h *FormationHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.formations.ExportParticipants(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("participants-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
