package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/classroom/internal/classroom"
	"github.com/your-org/classroom/internal/config"
	"github.com/your-org/classroom/internal/models"
	"github.com/your-org/classroom/internal/observability"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
	"github.com/your-org/classroom/internal/vision"
)

// SessionCommand is a start/stop/pause/resume control message, grounded
// on the teacher's ingest.StreamCommand.
type SessionCommand struct {
	Action    string `json:"action"` // start, stop, pause, resume
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	TargetFPS int    `json:"target_fps"`
}

type activeSession struct {
	pipeline *classroom.Pipeline
	cancel   context.CancelFunc
}

// Manager owns the set of running classroom.Pipeline instances, one per
// active session, mirroring the teacher's ingest.Manager lifecycle shape
// (mutex-guarded map, start/stop by ID) repurposed from ffmpeg process
// lifecycle to in-process pipeline lifecycle.
type Manager struct {
	cfg      config.ClassroomConfig
	adapters *vision.Adapters
	db       *storage.PostgresStore
	js       jetstream.JetStream
	minio    *storage.MinIOStore
	producer *queue.Producer

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

func NewManager(cfg config.ClassroomConfig, va *vision.Adapters, db *storage.PostgresStore, js jetstream.JetStream, minio *storage.MinIOStore, producer *queue.Producer) *Manager {
	return &Manager{
		cfg:      cfg,
		adapters: va,
		db:       db,
		js:       js,
		minio:    minio,
		producer: producer,
		sessions: make(map[string]*activeSession),
	}
}

// HandleCommand processes a session control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd SessionCommand) error {
	switch cmd.Action {
	case "start":
		return m.startSession(ctx, cmd)
	case "stop":
		return m.stopSession(cmd.SessionID)
	case "pause":
		return m.withPipeline(cmd.SessionID, func(p *classroom.Pipeline) error { return p.Pause() })
	case "resume":
		return m.withPipeline(cmd.SessionID, func(p *classroom.Pipeline) error { return p.Resume() })
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (m *Manager) withPipeline(sessionID string, fn func(*classroom.Pipeline) error) error {
	m.mu.RLock()
	as, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s not running", sessionID)
	}
	return fn(as.pipeline)
}

func (m *Manager) startSession(ctx context.Context, cmd SessionCommand) error {
	m.mu.Lock()
	if _, exists := m.sessions[cmd.SessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("session %s already running", cmd.SessionID)
	}
	m.mu.Unlock()

	sessionID, err := uuid.Parse(cmd.SessionID)
	if err != nil {
		return fmt.Errorf("parse session id: %w", err)
	}

	source, err := NewNATSFrameSource(ctx, m.js, m.minio, cmd.SessionID)
	if err != nil {
		return fmt.Errorf("create frame source: %w", err)
	}

	pcfg := classroom.DefaultConfig()
	if cmd.TargetFPS > 0 {
		pcfg.TargetFPS = float64(cmd.TargetFPS)
	} else if m.cfg.TargetFPS > 0 {
		pcfg.TargetFPS = m.cfg.TargetFPS
	}
	pcfg.Tracker.TrackThresh = float32(m.cfg.TrackThresh)
	pcfg.Tracker.HighMatchThresh = float32(m.cfg.HighMatchThresh)
	pcfg.Tracker.LowMatchThresh = float32(m.cfg.LowMatchThresh)
	pcfg.Tracker.ReviveMatchThresh = float32(m.cfg.ReviveMatchThresh)
	pcfg.Tracker.TrackBuffer = m.cfg.TrackBuffer
	pcfg.Tracker.MinBoxArea = float32(m.cfg.MinBoxArea)
	pcfg.Identity.RecognitionInterval = m.cfg.RecognitionInterval
	pcfg.PoseGaze.EARThreshold = float32(m.cfg.EARThreshold)
	pcfg.PoseGaze.YawThreshDeg = float32(m.cfg.YawThresholdDeg)
	pcfg.PoseGaze.PitchThreshDeg = float32(m.cfg.PitchThresholdDeg)
	pcfg.Events.AttentionHigh = float32(m.cfg.AttentionHighScore)
	pcfg.Events.PhoneDetectionFrames = m.cfg.PhoneDetectionFrames
	pcfg.Events.PostureGoodThreshold = float32(m.cfg.PostureGoodThreshold)
	pcfg.PhoneAssociationMax = float32(m.cfg.PhoneAssociationMaxDistance)

	pipeline := classroom.NewPipeline(
		pcfg,
		m.adapters.Detector,
		m.adapters.Faces,
		m.adapters.PoseGaze,
		source,
		NewNATSEventSink(sessionID, m.producer, m.db),
		NewNATSFrameSink(cmd.SessionID, m.producer),
		m.db,
		slog.Default().With("session_id", cmd.SessionID),
	)

	sessCtx, cancel := context.WithCancel(ctx)
	if err := pipeline.Start(sessCtx); err != nil {
		cancel()
		m.updateStatus(cmd.SessionID, models.SessionStatusError, err.Error())
		return fmt.Errorf("start pipeline: %w", err)
	}

	m.mu.Lock()
	m.sessions[cmd.SessionID] = &activeSession{pipeline: pipeline, cancel: cancel}
	m.mu.Unlock()

	observability.ActiveSessions.Inc()
	m.updateStatus(cmd.SessionID, models.SessionStatusRunning, "")
	slog.Info("session started", "session_id", cmd.SessionID, "target_fps", pcfg.TargetFPS)
	return nil
}

func (m *Manager) stopSession(sessionID string) error {
	m.mu.Lock()
	as, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}

	if _, err := as.pipeline.Stop(); err != nil {
		slog.Warn("stop pipeline", "session_id", sessionID, "error", err)
	}
	as.cancel()
	observability.ActiveSessions.Dec()
	m.updateStatus(sessionID, models.SessionStatusStopped, "")
	slog.Info("session stopped", "session_id", sessionID)
	return nil
}

func (m *Manager) updateStatus(sessionID string, status models.SessionStatus, errMsg string) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return
	}
	if err := m.db.UpdateSessionStatus(context.Background(), id, status, errMsg); err != nil {
		slog.Error("update session status", "session_id", sessionID, "error", err)
	}
}

// ActiveCount returns the number of currently running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll stops every running session.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.stopSession(id)
	}
}
