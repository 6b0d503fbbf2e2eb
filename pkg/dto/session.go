package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	Name      string          `json:"name" binding:"required"`
	TargetFPS int             `json:"target_fps"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type SessionResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	TargetFPS    int             `json:"target_fps"`
	Status       string          `json:"status"`
	Config       json.RawMessage `json:"config,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}
