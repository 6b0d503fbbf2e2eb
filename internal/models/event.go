package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionEvent is a persisted classroom.Event: one FSM-synthesized
// observation about a track within a session.
type SessionEvent struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SessionID      uuid.UUID  `json:"session_id" db:"session_id"`
	TrackID        int        `json:"track_id" db:"track_id"`
	EventType      string     `json:"event_type" db:"event_type"`
	Timestamp      time.Time  `json:"timestamp" db:"timestamp"`
	MatchedStudent *uuid.UUID `json:"matched_student_id,omitempty" db:"matched_student_id"`
	MatchScore     float32    `json:"match_score,omitempty" db:"match_score"`
	AttentionScore float32    `json:"attention_score,omitempty" db:"attention_score"`
	PostureScore   float32    `json:"posture_score,omitempty" db:"posture_score"`
	SnapshotKey    string     `json:"snapshot_key,omitempty" db:"snapshot_key"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// FrameTask is the message published to NATS for worker processing: a
// reference to a decoded frame buffer sitting in object storage,
// grounded on the teacher's models.FrameTask.
type FrameTask struct {
	SessionID uuid.UUID `json:"session_id"`
	FrameID   uuid.UUID `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frame_ref"` // object storage key
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}
