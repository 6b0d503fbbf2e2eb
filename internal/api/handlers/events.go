package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classroom/internal/storage"
	"github.com/your-org/classroom/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *EventHandler {
	return &EventHandler{db: db, minio: minio}
}

// List returns synthesized events for a session, filterable by time
// range, matched student, and event type.
func (h *EventHandler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	var from, to *time.Time
	if fromStr := c.Query("from"); fromStr != "" {
		if t, err := time.Parse(time.RFC3339, fromStr); err == nil {
			from = &t
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if t, err := time.Parse(time.RFC3339, toStr); err == nil {
			to = &t
		}
	}

	var studentID *uuid.UUID
	if sidStr := c.Query("student_id"); sidStr != "" {
		if id, err := uuid.Parse(sidStr); err == nil {
			studentID = &id
		}
	}

	eventType := c.Query("event_type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.QuerySessionEvents(c.Request.Context(), sessionID, from, to, studentID, eventType, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SessionEventResponse, 0, len(events))
	for _, ev := range events {
		r := dto.SessionEventResponse{
			ID:             ev.ID,
			SessionID:      ev.SessionID,
			TrackID:        ev.TrackID,
			EventType:      ev.EventType,
			Timestamp:      ev.Timestamp.Format(time.RFC3339),
			MatchedStudent: ev.MatchedStudent,
			MatchScore:     ev.MatchScore,
			AttentionScore: ev.AttentionScore,
			PostureScore:   ev.PostureScore,
			CreatedAt:      ev.CreatedAt.Format(time.RFC3339),
		}
		if ev.SnapshotKey != "" {
			r.SnapshotURL = "/v1/events/" + ev.ID.String() + "/snapshot"
		}
		resp = append(resp, r)
	}

	c.JSON(http.StatusOK, dto.SessionEventListResponse{Events: resp, Total: total})
}

// Snapshot proxies the face-crop image stored alongside the event, when one exists.
func (h *EventHandler) Snapshot(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := h.db.GetSessionEvent(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	if ev.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for this event"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), ev.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
