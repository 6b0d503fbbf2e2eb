package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CreateStudentRequest struct {
	Name     string          `json:"name" binding:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type StudentResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	EmbeddingCount int            `json:"embedding_count"`
	CreatedAt     string          `json:"created_at"`
}

type StudentListResponse struct {
	Students []StudentResponse `json:"students"`
	Total    int               `json:"total"`
}

type StudentEmbeddingResponse struct {
	ID        uuid.UUID `json:"id"`
	StudentID uuid.UUID `json:"student_id"`
	Quality   float32   `json:"quality"`
	SourceKey string    `json:"source_key"`
	CreatedAt string    `json:"created_at"`
}

type SearchRequest struct {
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

type SearchResult struct {
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	Score     float32   `json:"score"`
}
