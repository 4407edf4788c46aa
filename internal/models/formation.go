package models

import "time"

// FormationStatus represents the lifecycle state of a formation.
type FormationStatus string

// Possible formation statuses. DRAFT is the initial state; COMPLETED and
// CANCELLED are terminal by convention only.
const (
	FormationStatusDraft      FormationStatus = "DRAFT"
	FormationStatusScheduled  FormationStatus = "SCHEDULED"
	FormationStatusInProgress FormationStatus = "IN_PROGRESS"
	FormationStatusCompleted  FormationStatus = "COMPLETED"
	FormationStatusCancelled  FormationStatus = "CANCELLED"
)

// FormationType distinguishes internally-run from externally-run programs.
type FormationType string

const (
	FormationTypeInternal FormationType = "INTERNAL"
	FormationTypeExternal FormationType = "EXTERNAL"
)

// FormationCategory classifies the pedagogical nature of a program.
type FormationCategory string

const (
	FormationCategoryContinuing FormationCategory = "CONTINUING"
	FormationCategoryInitial    FormationCategory = "INITIAL"
	FormationCategoryCertifying FormationCategory = "CERTIFYING"
	FormationCategoryQualifying FormationCategory = "QUALIFYING"
)

// HoursPerTrainingDay is the whole-day multiplier used for derived duration.
const HoursPerTrainingDay = 8

// DefaultMaxCapacity applies when a formation is created without a capacity.
const DefaultMaxCapacity = 30

// Formation is a university training program tracked from draft to completion.
// DurationHours and EnrolledCount are derived fields: they are recomputed from
// their sources on every mutation and are never directly writable.
type Formation struct {
	ID            string            `db:"id" json:"id"`
	Reference     string            `db:"reference" json:"reference"`
	Title         string            `db:"title" json:"title"`
	Type          FormationType     `db:"type" json:"type"`
	Category      FormationCategory `db:"category" json:"category"`
	OwnerID       string            `db:"owner_id" json:"owner_id"`
	StartDate     time.Time         `db:"start_date" json:"start_date"`
	EndDate       *time.Time        `db:"end_date" json:"end_date,omitempty"`
	DurationHours float64           `db:"duration_hours" json:"duration_hours"`
	Status        FormationStatus   `db:"status" json:"status"`
	MaxCapacity   int               `db:"max_capacity" json:"max_capacity"`
	EnrolledCount int               `db:"enrolled_count" json:"enrolled_count"`
	Description   string            `db:"description" json:"description,omitempty"`
	Objectives    string            `db:"objectives" json:"objectives,omitempty"`
	Prerequisites string            `db:"prerequisites" json:"prerequisites,omitempty"`
	Location      string            `db:"location" json:"location,omitempty"`
	Evaluation    string            `db:"evaluation" json:"evaluation,omitempty"`
	AverageRating float64           `db:"average_rating" json:"average_rating"`
	Color         int               `db:"color" json:"color"`
	Active        bool              `db:"active" json:"active"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// FormationDetail enriches Formation with its association sets.
type FormationDetail struct {
	Formation
	TrainerIDs     []string `json:"trainer_ids"`
	ParticipantIDs []string `json:"participant_ids"`
}

// FormationFilter provides filters for listing formations.
type FormationFilter struct {
	Status    FormationStatus
	Type      FormationType
	Category  FormationCategory
	OwnerID   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StatusAction names an explicit caller-driven status transition.
type StatusAction string

const (
	StatusActionSchedule StatusAction = "SCHEDULE"
	StatusActionStart    StatusAction = "START"
	StatusActionFinish   StatusAction = "FINISH"
	StatusActionCancel   StatusAction = "CANCEL"
)
