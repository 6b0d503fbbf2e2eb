package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Student is a known classroom participant whose face embeddings seed
// the identity resolver's catalog.
type Student struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Metadata  json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// StudentEmbedding is one enrolled face sample for a Student.
type StudentEmbedding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StudentID uuid.UUID `json:"student_id" db:"student_id"`
	Embedding []float32 `json:"embedding" db:"embedding"`
	Quality   float32   `json:"quality" db:"quality"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
