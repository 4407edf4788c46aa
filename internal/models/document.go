package models

import "time"

// DocumentKind categorises an attached training document.
type DocumentKind string

const (
	DocumentKindSupport    DocumentKind = "SUPPORT"
	DocumentKindExercise   DocumentKind = "EXERCISE"
	DocumentKindAssessment DocumentKind = "ASSESSMENT"
	DocumentKindOther      DocumentKind = "OTHER"
)

// FormationDocument is a file owned exclusively by its parent formation. It is
// created only in the context of a parent and removed when the parent is
// deleted.
type FormationDocument struct {
	ID          string       `db:"id" json:"id"`
	FormationID string       `db:"formation_id" json:"formation_id"`
	Name        string       `db:"name" json:"name"`
	Kind        DocumentKind `db:"kind" json:"kind"`
	Filename    string       `db:"filename" json:"filename,omitempty"`
	FilePath    string       `db:"file_path" json:"-"`
	SizeBytes   int64        `db:"size_bytes" json:"size_bytes"`
	Description string       `db:"description" json:"description,omitempty"`
	UploadedAt  time.Time    `db:"uploaded_at" json:"uploaded_at"`
}
