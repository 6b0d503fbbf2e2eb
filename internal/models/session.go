package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a monitoring session, mirrored
// from classroom.PipelineState for persistence and API exposure.
type SessionStatus string

const (
	SessionStatusStopped SessionStatus = "stopped"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusPaused  SessionStatus = "paused"
	SessionStatusError   SessionStatus = "error"
)

// Session is a classroom monitoring session: one running Pipeline bound
// to a frame source, persisted for control/history purposes.
type Session struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	TargetFPS    int             `json:"target_fps" db:"target_fps"`
	Status       SessionStatus   `json:"status" db:"status"`
	Config       json.RawMessage `json:"config" db:"config"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}
