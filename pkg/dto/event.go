package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type SessionEventResponse struct {
	ID             uuid.UUID  `json:"id"`
	SessionID      uuid.UUID  `json:"session_id"`
	TrackID        int        `json:"track_id"`
	EventType      string     `json:"event_type"`
	Timestamp      string     `json:"timestamp"`
	MatchedStudent *uuid.UUID `json:"matched_student_id,omitempty"`
	MatchedName    string     `json:"matched_name,omitempty"`
	MatchScore     float32    `json:"match_score,omitempty"`
	AttentionScore float32    `json:"attention_score,omitempty"`
	PostureScore   float32    `json:"posture_score,omitempty"`
	SnapshotURL    string     `json:"snapshot_url,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

type SessionEventListResponse struct {
	Events []SessionEventResponse `json:"events"`
	Total  int                    `json:"total"`
}

type SessionEventQuery struct {
	SessionID      string `form:"session_id"`
	MatchedStudent string `form:"student_id"`
	EventType      string `form:"event_type"`
	From           string `form:"from"`
	To             string `form:"to"`
	Limit          int    `form:"limit"`
	Offset         int    `form:"offset"`
}

// WSEvent is a WebSocket message for real-time session event/frame
// delivery, grounded on the teacher's dto.WSEvent shape.
type WSEvent struct {
	Type      string               `json:"type"` // session_event, frame_result, session_status
	SessionID uuid.UUID            `json:"session_id"`
	Data      SessionEventResponse `json:"data,omitempty"`
	Frame     json.RawMessage      `json:"frame,omitempty"`
	Status    string               `json:"status,omitempty"`
}
