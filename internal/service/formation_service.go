package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/formation-api/internal/models"
	appErrors "github.com/noah-isme/formation-api/pkg/errors"
	"github.com/noah-isme/formation-api/pkg/export"
)

const dateLayout = "2006-01-02"

type formationRepository interface {
	List(ctx context.Context, filter models.FormationFilter) ([]models.Formation, int, error)
	FindByID(ctx context.Context, id string) (*models.Formation, error)
	NextReference(ctx context.Context) (string, error)
	Create(ctx context.Context, formation *models.Formation) error
	Update(ctx context.Context, formation *models.Formation) error
	UpdateStatus(ctx context.Context, id string, status models.FormationStatus) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	ListParticipants(ctx context.Context, formationID string) ([]string, error)
	CountParticipants(ctx context.Context, formationID string) (int, error)
	HasParticipant(ctx context.Context, formationID, participantID string) (bool, error)
	AddParticipant(ctx context.Context, formationID, participantID string) error
	RemoveParticipant(ctx context.Context, formationID, participantID string) error
	ListTrainers(ctx context.Context, formationID string) ([]string, error)
	AddTrainer(ctx context.Context, formationID, trainerID string) error
	RemoveTrainer(ctx context.Context, formationID, trainerID string) error
}

// documentCascader deletes every owned document of a formation, blobs
// included, before the parent row goes away.
type documentCascader interface {
	DeleteByFormation(ctx context.Context, formationID string) error
}

// CreateFormationRequest describes formation creation. Dates use YYYY-MM-DD.
type CreateFormationRequest struct {
	Reference     string                   `json:"reference"`
	Title         string                   `json:"title" validate:"required"`
	Type          models.FormationType     `json:"type" validate:"required,oneof=INTERNAL EXTERNAL"`
	Category      models.FormationCategory `json:"category" validate:"required,oneof=CONTINUING INITIAL CERTIFYING QUALIFYING"`
	OwnerID       string                   `json:"owner_id"`
	StartDate     string                   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string                   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	MaxCapacity   *int                     `json:"max_capacity" validate:"omitempty,min=1"`
	Description   string                   `json:"description"`
	Objectives    string                   `json:"objectives"`
	Prerequisites string                   `json:"prerequisites"`
	Location      string                   `json:"location"`
	Evaluation    string                   `json:"evaluation"`
	AverageRating *float64                 `json:"average_rating" validate:"omitempty,min=0,max=20"`
	Color         *int                     `json:"color"`
}

// UpdateFormationRequest describes a partial formation update. Nil fields are
// left untouched; an empty end_date string clears the end date.
type UpdateFormationRequest struct {
	Title         *string                   `json:"title" validate:"omitempty,min=1"`
	Type          *models.FormationType     `json:"type" validate:"omitempty,oneof=INTERNAL EXTERNAL"`
	Category      *models.FormationCategory `json:"category" validate:"omitempty,oneof=CONTINUING INITIAL CERTIFYING QUALIFYING"`
	OwnerID       *string                   `json:"owner_id"`
	StartDate     *string                   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string                   `json:"end_date" validate:"omitempty"`
	MaxCapacity   *int                      `json:"max_capacity" validate:"omitempty,min=1"`
	Description   *string                   `json:"description"`
	Objectives    *string                   `json:"objectives"`
	Prerequisites *string                   `json:"prerequisites"`
	Location      *string                   `json:"location"`
	Evaluation    *string                   `json:"evaluation"`
	AverageRating *float64                  `json:"average_rating" validate:"omitempty,min=0,max=20"`
	Color         *int                      `json:"color"`
}

// FormationService owns the formation invariants, derived fields and status
// machine. Every mutation path recomputes derived fields and re-validates the
// invariants before anything is written.
type FormationService struct {
	repo      formationRepository
	documents documentCascader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormationService constructs FormationService.
func NewFormationService(repo formationRepository, documents documentCascader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *FormationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormationService{repo: repo, documents: documents, cache: cache, validator: validate, logger: logger}
}

// ComputeDuration derives training hours from the schedule: whole days between
// the two dates times eight hours, zero when either date is absent. Total over
// all inputs; ordering is enforced separately by the date invariant.
func ComputeDuration(start time.Time, end *time.Time) float64 {
	if start.IsZero() || end == nil || end.IsZero() {
		return 0
	}
	days := int(end.Sub(start).Hours() / 24)
	return float64(days * models.HoursPerTrainingDay)
}

func validateDateOrder(start time.Time, end *time.Time) error {
	if end != nil && !end.IsZero() && !start.IsZero() && end.Before(start) {
		return appErrors.Validation("end date must be after start date")
	}
	return nil
}

func validateCapacity(enrolled, maxCapacity int) error {
	if enrolled > maxCapacity {
		return appErrors.Validation(fmt.Sprintf("maximum capacity exceeded: %d", maxCapacity))
	}
	return nil
}

type transitionKey struct {
	from   models.FormationStatus
	action models.StatusAction
}

// statusTransitions maps (current status, action) to the next status. The
// table is populated permissively: every action is reachable from every
// state, so cancel or finish also work as administrative overrides on records
// already finalised. Tightening the policy means removing rows, not changing
// code.
var statusTransitions = buildTransitionTable()

func buildTransitionTable() map[transitionKey]models.FormationStatus {
	targets := map[models.StatusAction]models.FormationStatus{
		models.StatusActionSchedule: models.FormationStatusScheduled,
		models.StatusActionStart:    models.FormationStatusInProgress,
		models.StatusActionFinish:   models.FormationStatusCompleted,
		models.StatusActionCancel:   models.FormationStatusCancelled,
	}
	states := []models.FormationStatus{
		models.FormationStatusDraft,
		models.FormationStatusScheduled,
		models.FormationStatusInProgress,
		models.FormationStatusCompleted,
		models.FormationStatusCancelled,
	}
	table := make(map[transitionKey]models.FormationStatus, len(targets)*len(states))
	for action, target := range targets {
		for _, from := range states {
			table[transitionKey{from: from, action: action}] = target
		}
	}
	return table
}

func nextStatus(current models.FormationStatus, action models.StatusAction) (models.FormationStatus, error) {
	next, ok := statusTransitions[transitionKey{from: current, action: action}]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("action %s not allowed from status %s", action, current))
	}
	return next, nil
}

// Create builds a new formation, assigning a reference when absent and
// defaulting the owner to the acting caller.
func (s *FormationService) Create(ctx context.Context, req CreateFormationRequest, actorID string) (*models.FormationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid formation payload")
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Validation("invalid start date")
	}
	var end *time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return nil, appErrors.Validation("invalid end date")
		}
		end = &parsed
	}
	if err := validateDateOrder(start, end); err != nil {
		return nil, err
	}

	owner := req.OwnerID
	if owner == "" {
		owner = actorID
	}
	if owner == "" {
		return nil, appErrors.Validation("owner is required")
	}

	reference := req.Reference
	if reference == "" {
		reference, err = s.repo.NextReference(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate reference")
		}
	}

	maxCapacity := models.DefaultMaxCapacity
	if req.MaxCapacity != nil {
		maxCapacity = *req.MaxCapacity
	}

	formation := &models.Formation{
		Reference:     reference,
		Title:         req.Title,
		Type:          req.Type,
		Category:      req.Category,
		OwnerID:       owner,
		StartDate:     start,
		EndDate:       end,
		DurationHours: ComputeDuration(start, end),
		Status:        models.FormationStatusDraft,
		MaxCapacity:   maxCapacity,
		EnrolledCount: 0,
		Description:   req.Description,
		Objectives:    req.Objectives,
		Prerequisites: req.Prerequisites,
		Location:      req.Location,
		Evaluation:    req.Evaluation,
		Color:         0,
		Active:        true,
	}
	if req.AverageRating != nil {
		formation.AverageRating = *req.AverageRating
	}
	if req.Color != nil {
		formation.Color = *req.Color
	}

	if err := s.repo.Create(ctx, formation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create formation")
	}
	s.invalidate(ctx)

	s.logger.Info("formation created",
		zap.String("formation_id", formation.ID),
		zap.String("reference", formation.Reference),
		zap.String("owner_id", formation.OwnerID))

	return &models.FormationDetail{Formation: *formation, TrainerIDs: []string{}, ParticipantIDs: []string{}}, nil
}

// Get returns a formation with its association sets, read through the cache.
func (s *FormationService) Get(ctx context.Context, id string) (*models.FormationDetail, error) {
	key := detailCacheKey(id)
	var cached models.FormationDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, detail)
	return detail, nil
}

// List returns formations with pagination metadata.
func (s *FormationService) List(ctx context.Context, filter models.FormationFilter) ([]models.Formation, *models.Pagination, error) {
	formations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list formations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return formations, pagination, nil
}

// Update applies a partial field update, recomputing derived fields and
// re-validating invariants against the proposed state before any write. A
// rejected update leaves the committed record untouched.
func (s *FormationService) Update(ctx context.Context, id string, req UpdateFormationRequest) (*models.FormationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid formation payload")
	}

	formation, err := s.loadFormation(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		formation.Title = *req.Title
	}
	if req.Type != nil {
		formation.Type = *req.Type
	}
	if req.Category != nil {
		formation.Category = *req.Category
	}
	if req.OwnerID != nil && *req.OwnerID != "" {
		formation.OwnerID = *req.OwnerID
	}
	if req.StartDate != nil {
		start, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return nil, appErrors.Validation("invalid start date")
		}
		formation.StartDate = start
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			formation.EndDate = nil
		} else {
			end, err := time.Parse(dateLayout, *req.EndDate)
			if err != nil {
				return nil, appErrors.Validation("invalid end date")
			}
			formation.EndDate = &end
		}
	}
	if req.MaxCapacity != nil {
		formation.MaxCapacity = *req.MaxCapacity
	}
	if req.Description != nil {
		formation.Description = *req.Description
	}
	if req.Objectives != nil {
		formation.Objectives = *req.Objectives
	}
	if req.Prerequisites != nil {
		formation.Prerequisites = *req.Prerequisites
	}
	if req.Location != nil {
		formation.Location = *req.Location
	}
	if req.Evaluation != nil {
		formation.Evaluation = *req.Evaluation
	}
	if req.AverageRating != nil {
		formation.AverageRating = *req.AverageRating
	}
	if req.Color != nil {
		formation.Color = *req.Color
	}

	formation.DurationHours = ComputeDuration(formation.StartDate, formation.EndDate)
	if err := validateDateOrder(formation.StartDate, formation.EndDate); err != nil {
		return nil, err
	}
	if err := validateCapacity(formation.EnrolledCount, formation.MaxCapacity); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, formation); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update formation")
	}
	s.invalidate(ctx)

	return s.loadDetail(ctx, id)
}

// Apply executes a status-transition action through the transition table.
func (s *FormationService) Apply(ctx context.Context, id string, action models.StatusAction) (*models.FormationDetail, error) {
	formation, err := s.loadFormation(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := nextStatus(formation.Status, action)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	s.invalidate(ctx)

	s.logger.Info("formation status changed",
		zap.String("formation_id", id),
		zap.String("from", string(formation.Status)),
		zap.String("to", string(next)),
		zap.String("action", string(action)))

	return s.loadDetail(ctx, id)
}

// Schedule marks the formation as planned.
func (s *FormationService) Schedule(ctx context.Context, id string) (*models.FormationDetail, error) {
	return s.Apply(ctx, id, models.StatusActionSchedule)
}

// Start marks the formation as running.
func (s *FormationService) Start(ctx context.Context, id string) (*models.FormationDetail, error) {
	return s.Apply(ctx, id, models.StatusActionStart)
}

// Finish marks the formation as completed.
func (s *FormationService) Finish(ctx context.Context, id string) (*models.FormationDetail, error) {
	return s.Apply(ctx, id, models.StatusActionFinish)
}

// Cancel marks the formation as cancelled.
func (s *FormationService) Cancel(ctx context.Context, id string) (*models.FormationDetail, error) {
	return s.Apply(ctx, id, models.StatusActionCancel)
}

// Archive soft-deletes the formation.
func (s *FormationService) Archive(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

// Restore un-archives the formation.
func (s *FormationService) Restore(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *FormationService) setActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update formation")
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes a formation and everything it owns: documents first (rows
// and stored payloads), then association rows, then the record itself.
func (s *FormationService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadFormation(ctx, id); err != nil {
		return err
	}
	if s.documents != nil {
		if err := s.documents.DeleteByFormation(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete formation documents")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete formation")
	}
	s.invalidate(ctx)

	s.logger.Info("formation deleted", zap.String("formation_id", id))
	return nil
}

// Enroll adds a participant, enforcing the capacity invariant before any
// write. Enrolling up to exactly the maximum capacity succeeds.
func (s *FormationService) Enroll(ctx context.Context, id, participantID string) (*models.FormationDetail, error) {
	if participantID == "" {
		return nil, appErrors.Validation("participant is required")
	}
	formation, err := s.loadFormation(ctx, id)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.repo.HasParticipant(ctx, id, participantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "participant already enrolled")
	}

	count, err := s.repo.CountParticipants(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count participants")
	}
	if err := validateCapacity(count+1, formation.MaxCapacity); err != nil {
		return nil, err
	}

	if err := s.repo.AddParticipant(ctx, id, participantID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll participant")
	}
	s.invalidate(ctx)

	return s.loadDetail(ctx, id)
}

// Unenroll removes a participant from the enrolled set.
func (s *FormationService) Unenroll(ctx context.Context, id, participantID string) (*models.FormationDetail, error) {
	if _, err := s.loadFormation(ctx, id); err != nil {
		return nil, err
	}

	enrolled, err := s.repo.HasParticipant(ctx, id, participantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not enrolled")
	}

	if err := s.repo.RemoveParticipant(ctx, id, participantID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll participant")
	}
	s.invalidate(ctx)

	return s.loadDetail(ctx, id)
}

// AssignTrainer attaches a trainer to the formation.
func (s *FormationService) AssignTrainer(ctx context.Context, id, trainerID string) (*models.FormationDetail, error) {
	if trainerID == "" {
		return nil, appErrors.Validation("trainer is required")
	}
	if _, err := s.loadFormation(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.AddTrainer(ctx, id, trainerID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign trainer")
	}
	s.invalidate(ctx)
	return s.loadDetail(ctx, id)
}

// UnassignTrainer detaches a trainer from the formation.
func (s *FormationService) UnassignTrainer(ctx context.Context, id, trainerID string) (*models.FormationDetail, error) {
	if _, err := s.loadFormation(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveTrainer(ctx, id, trainerID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign trainer")
	}
	s.invalidate(ctx)
	return s.loadDetail(ctx, id)
}

// ExportParticipants renders the enrolled-participant roster as CSV or PDF.
func (s *FormationService) ExportParticipants(ctx context.Context, id, format string) ([]byte, string, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{Headers: []string{"#", "Participant"}}
	for i, participantID := range detail.ParticipantIDs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"#":           strconv.Itoa(i + 1),
			"Participant": participantID,
		})
	}

	title := fmt.Sprintf("%s (%s)", detail.Title, detail.Reference)
	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Validation("unsupported export format")
	}
}

func (s *FormationService) loadFormation(ctx context.Context, id string) (*models.Formation, error) {
	formation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}
	return formation, nil
}

func (s *FormationService) loadDetail(ctx context.Context, id string) (*models.FormationDetail, error) {
	formation, err := s.loadFormation(ctx, id)
	if err != nil {
		return nil, err
	}
	trainers, err := s.repo.ListTrainers(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainers")
	}
	participants, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participants")
	}
	if trainers == nil {
		trainers = []string{}
	}
	if participants == nil {
		participants = []string{}
	}
	return &models.FormationDetail{Formation: *formation, TrainerIDs: trainers, ParticipantIDs: participants}, nil
}

func (s *FormationService) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, "formations:*")
}

func detailCacheKey(id string) string {
	return "formations:detail:" + id
}
