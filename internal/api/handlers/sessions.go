package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classroom/internal/adapters"
	"github.com/your-org/classroom/internal/models"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
	"github.com/your-org/classroom/pkg/dto"
)

type SessionHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewSessionHandler(db *storage.PostgresStore, producer *queue.Producer) *SessionHandler {
	return &SessionHandler{db: db, producer: producer}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fps := req.TargetFPS
	if fps <= 0 {
		fps = 8
	}

	sess := &models.Session{
		Name:      req.Name,
		TargetFPS: fps,
		Config:    req.Config,
	}

	if err := h.db.CreateSession(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sessionToResponse(sess))
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(sess))
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.db.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionToResponse(&sess))
	}

	c.JSON(http.StatusOK, dto.SessionListResponse{Sessions: resp, Total: len(resp)})
}

func (h *SessionHandler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if sess.Status == models.SessionStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "session already running"})
		return
	}

	cmd := adapters.SessionCommand{
		Action:    "start",
		SessionID: id.String(),
		Name:      sess.Name,
		TargetFPS: sess.TargetFPS,
	}
	cmdData, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(cmdData); err != nil {
		_ = h.db.UpdateSessionStatus(c.Request.Context(), id, models.SessionStatusError, "failed to publish start command")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send start command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "starting", "session_id": id})
}

func (h *SessionHandler) Stop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	cmd := adapters.SessionCommand{Action: "stop", SessionID: id.String()}
	cmdData, _ := json.Marshal(cmd)
	_ = h.producer.PublishControl(cmdData)

	c.JSON(http.StatusOK, gin.H{"status": "stopping", "session_id": id})
}

func (h *SessionHandler) Pause(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	cmd := adapters.SessionCommand{Action: "pause", SessionID: id.String()}
	cmdData, _ := json.Marshal(cmd)
	_ = h.producer.PublishControl(cmdData)
	c.JSON(http.StatusOK, gin.H{"status": "pausing", "session_id": id})
}

func (h *SessionHandler) Resume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	cmd := adapters.SessionCommand{Action: "resume", SessionID: id.String()}
	cmdData, _ := json.Marshal(cmd)
	_ = h.producer.PublishControl(cmdData)
	c.JSON(http.StatusOK, gin.H{"status": "resuming", "session_id": id})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess != nil && sess.Status == models.SessionStatusRunning {
		cmd := adapters.SessionCommand{Action: "stop", SessionID: id.String()}
		cmdData, _ := json.Marshal(cmd)
		_ = h.producer.PublishControl(cmdData)
	}

	if err := h.db.DeleteSession(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func sessionToResponse(sess *models.Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:           sess.ID,
		Name:         sess.Name,
		TargetFPS:    sess.TargetFPS,
		Status:       string(sess.Status),
		Config:       sess.Config,
		ErrorMessage: sess.ErrorMessage,
		CreatedAt:    sess.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    sess.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
