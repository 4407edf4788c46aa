package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/formation-api/internal/models"
)

const formationColumns = `id, reference, title, type, category, owner_id, start_date, end_date,
        duration_hours, status, max_capacity, enrolled_count, description, objectives,
        prerequisites, location, evaluation, average_rating, color, active, created_at, updated_at`

// FormationRepository handles persistence of formations and their
// participant/trainer association sets.
type FormationRepository struct {
	db *sqlx.DB
}

// NewFormationRepository constructs the repository.
func NewFormationRepository(db *sqlx.DB) *FormationRepository {
	return &FormationRepository{db: db}
}

// List returns formations filtered by the provided criteria.
func (r *FormationRepository) List(ctx context.Context, filter models.FormationFilter) ([]models.Formation, int, error) {
	base := "FROM formations"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"start_date": "start_date",
		"title":      "title",
		"reference":  "reference",
		"created_at": "created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		formationColumns, base+clause, orderBy, order, size, offset)

	var formations []models.Formation
	if err := r.db.SelectContext(ctx, &formations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list formations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count formations: %w", err)
	}
	return formations, total, nil
}

// FindByID returns a formation by its ID.
func (r *FormationRepository) FindByID(ctx context.Context, id string) (*models.Formation, error) {
	query := fmt.Sprintf("SELECT %s FROM formations WHERE id = $1", formationColumns)
	var formation models.Formation
	if err := r.db.GetContext(ctx, &formation, query, id); err != nil {
		return nil, err
	}
	return &formation, nil
}

// FindByReference returns a formation by its unique reference.
func (r *FormationRepository) FindByReference(ctx context.Context, reference string) (*models.Formation, error) {
	query := fmt.Sprintf("SELECT %s FROM formations WHERE reference = $1", formationColumns)
	var formation models.Formation
	if err := r.db.GetContext(ctx, &formation, query, reference); err != nil {
		return nil, err
	}
	return &formation, nil
}

// ListByStatuses returns formations whose status is in the provided set.
func (r *FormationRepository) ListByStatuses(ctx context.Context, statuses []models.FormationStatus) ([]models.Formation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = status
	}
	query := fmt.Sprintf("SELECT %s FROM formations WHERE status IN (%s)",
		formationColumns, strings.Join(placeholders, ","))
	var formations []models.Formation
	if err := r.db.SelectContext(ctx, &formations, query, args...); err != nil {
		return nil, fmt.Errorf("list formations by status: %w", err)
	}
	return formations, nil
}

// NextReference allocates the next reference from the formation sequence.
func (r *FormationRepository) NextReference(ctx context.Context) (string, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, "SELECT nextval('gestion_formation_seq')"); err != nil {
		return "", fmt.Errorf("next formation reference: %w", err)
	}
	return fmt.Sprintf("FORM-%05d", seq), nil
}

// Create persists a new formation record.
func (r *FormationRepository) Create(ctx context.Context, formation *models.Formation) error {
	if formation.ID == "" {
		formation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if formation.CreatedAt.IsZero() {
		formation.CreatedAt = now
	}
	formation.UpdatedAt = now

	const query = `INSERT INTO formations (id, reference, title, type, category, owner_id, start_date, end_date,
        duration_hours, status, max_capacity, enrolled_count, description, objectives,
        prerequisites, location, evaluation, average_rating, color, active, created_at, updated_at)
        VALUES (:id, :reference, :title, :type, :category, :owner_id, :start_date, :end_date,
        :duration_hours, :status, :max_capacity, :enrolled_count, :description, :objectives,
        :prerequisites, :location, :evaluation, :average_rating, :color, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, formation); err != nil {
		return fmt.Errorf("create formation: %w", err)
	}
	return nil
}

// Update persists the full mutable field set of a formation.
func (r *FormationRepository) Update(ctx context.Context, formation *models.Formation) error {
	formation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE formations SET title = :title, type = :type, category = :category,
        owner_id = :owner_id, start_date = :start_date, end_date = :end_date,
        duration_hours = :duration_hours, status = :status, max_capacity = :max_capacity,
        enrolled_count = :enrolled_count, description = :description, objectives = :objectives,
        prerequisites = :prerequisites, location = :location, evaluation = :evaluation,
        average_rating = :average_rating, color = :color, active = :active, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, formation)
	if err != nil {
		return fmt.Errorf("update formation: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus writes a status transition for a formation.
func (r *FormationRepository) UpdateStatus(ctx context.Context, id string, status models.FormationStatus) error {
	const query = `UPDATE formations SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update formation status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive toggles the soft-delete flag.
func (r *FormationRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE formations SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set formation active: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a formation together with its association rows. Owned
// documents are deleted by the service beforehand.
func (r *FormationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete formation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM formation_participants WHERE formation_id = $1", id); err != nil {
		return fmt.Errorf("delete formation participants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM formation_trainers WHERE formation_id = $1", id); err != nil {
		return fmt.Errorf("delete formation trainers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM formations WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete formation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete formation: %w", err)
	}
	return nil
}

// ListParticipants returns the enrolled participant IDs of a formation.
func (r *FormationRepository) ListParticipants(ctx context.Context, formationID string) ([]string, error) {
	const query = `SELECT participant_id FROM formation_participants WHERE formation_id = $1 ORDER BY enrolled_at`
	var participants []string
	if err := r.db.SelectContext(ctx, &participants, query, formationID); err != nil {
		return nil, fmt.Errorf("list formation participants: %w", err)
	}
	return participants, nil
}

// CountParticipants returns the cardinality of the enrolled-participant set.
func (r *FormationRepository) CountParticipants(ctx context.Context, formationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM formation_participants WHERE formation_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, formationID); err != nil {
		return 0, fmt.Errorf("count formation participants: %w", err)
	}
	return count, nil
}

// HasParticipant checks membership of the enrolled-participant set.
func (r *FormationRepository) HasParticipant(ctx context.Context, formationID, participantID string) (bool, error) {
	const query = `SELECT 1 FROM formation_participants WHERE formation_id = $1 AND participant_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, formationID, participantID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check formation participant: %w", err)
	}
	return true, nil
}

// AddParticipant enrolls a participant and refreshes the derived count so it
// stays equal to the set cardinality.
func (r *FormationRepository) AddParticipant(ctx context.Context, formationID, participantID string) error {
	return r.mutateParticipants(ctx, formationID,
		"INSERT INTO formation_participants (formation_id, participant_id, enrolled_at) VALUES ($1, $2, $3)",
		formationID, participantID, time.Now().UTC())
}

// RemoveParticipant unenrolls a participant and refreshes the derived count.
func (r *FormationRepository) RemoveParticipant(ctx context.Context, formationID, participantID string) error {
	return r.mutateParticipants(ctx, formationID,
		"DELETE FROM formation_participants WHERE formation_id = $1 AND participant_id = $2",
		formationID, participantID)
}

func (r *FormationRepository) mutateParticipants(ctx context.Context, formationID, query string, args ...interface{}) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin participant mutation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mutate formation participants: %w", err)
	}
	const refresh = `UPDATE formations SET enrolled_count = (
        SELECT COUNT(*) FROM formation_participants WHERE formation_id = $1
        ), updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, refresh, formationID, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh enrolled count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit participant mutation: %w", err)
	}
	return nil
}

// ListTrainers returns the trainer IDs assigned to a formation.
func (r *FormationRepository) ListTrainers(ctx context.Context, formationID string) ([]string, error) {
	const query = `SELECT trainer_id FROM formation_trainers WHERE formation_id = $1 ORDER BY assigned_at`
	var trainers []string
	if err := r.db.SelectContext(ctx, &trainers, query, formationID); err != nil {
		return nil, fmt.Errorf("list formation trainers: %w", err)
	}
	return trainers, nil
}

// AddTrainer assigns a trainer to a formation.
func (r *FormationRepository) AddTrainer(ctx context.Context, formationID, trainerID string) error {
	const query = `INSERT INTO formation_trainers (formation_id, trainer_id, assigned_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, formationID, trainerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add formation trainer: %w", err)
	}
	return nil
}

// RemoveTrainer unassigns a trainer from a formation.
func (r *FormationRepository) RemoveTrainer(ctx context.Context, formationID, trainerID string) error {
	const query = `DELETE FROM formation_trainers WHERE formation_id = $1 AND trainer_id = $2`
	if _, err := r.db.ExecContext(ctx, query, formationID, trainerID); err != nil {
		return fmt.Errorf("remove formation trainer: %w", err)
	}
	return nil
}
