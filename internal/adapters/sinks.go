package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/classroom/internal/classroom"
	"github.com/your-org/classroom/internal/models"
	"github.com/your-org/classroom/internal/observability"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
)

// eventWireFormat is the JSON payload published on events.<sessionID>,
// mirroring the teacher's models.DetectionResult wire shape.
type eventWireFormat struct {
	SessionID      string    `json:"session_id"`
	TrackID        int       `json:"track_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	StudentID      string    `json:"student_id,omitempty"`
	Confidence     float32   `json:"confidence"`
	Yaw            float32   `json:"yaw,omitempty"`
	Pitch          float32   `json:"pitch,omitempty"`
	EyeAspectRatio float32   `json:"eye_aspect_ratio,omitempty"`
	PostureScore   float32   `json:"posture_score,omitempty"`
	PostureState   string    `json:"posture_state,omitempty"`
}

// NATSEventSink publishes synthesized events on events.<sessionID> and
// persists each to Postgres, implementing classroom.EventSink. Grounded
// on the teacher's vision/pipeline.go ProcessFrame final step
// (producer.PublishEvent), with the DB write moved here since the
// classroom domain persists events at the point of emission rather than
// via a downstream consumer.
type NATSEventSink struct {
	sessionID uuid.UUID
	producer  *queue.Producer
	db        *storage.PostgresStore
}

func NewNATSEventSink(sessionID uuid.UUID, producer *queue.Producer, db *storage.PostgresStore) *NATSEventSink {
	return &NATSEventSink{sessionID: sessionID, producer: producer, db: db}
}

// PublishEvent implements classroom.EventSink.
func (s *NATSEventSink) PublishEvent(ctx context.Context, event classroom.Event) error {
	wire := eventWireFormat{
		SessionID:      s.sessionID.String(),
		TrackID:        event.TrackID,
		EventType:      string(event.Type),
		Timestamp:      event.Timestamp,
		StudentID:      event.StudentID,
		Confidence:     event.Confidence,
		Yaw:            event.Yaw,
		Pitch:          event.Pitch,
		EyeAspectRatio: event.EyeAspectRatio,
		PostureScore:   event.PostureScore,
		PostureState:   string(event.PostureState),
	}
	if err := s.producer.PublishEvent(ctx, s.sessionID.String(), wire); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	observability.EventsEmitted.WithLabelValues(s.sessionID.String(), string(event.Type)).Inc()

	dbEvent := &models.SessionEvent{
		SessionID:      s.sessionID,
		TrackID:        event.TrackID,
		EventType:      string(event.Type),
		Timestamp:      event.Timestamp,
		MatchScore:     event.Confidence,
		PostureScore:   event.PostureScore,
	}
	if event.StudentID != "" {
		if id, err := uuid.Parse(event.StudentID); err == nil {
			dbEvent.MatchedStudent = &id
		}
	}
	if err := s.db.CreateSessionEvent(ctx, dbEvent); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

// NATSFrameSink publishes the per-frame compiled result on
// frames_out.<sessionID>, implementing classroom.FrameSink.
type NATSFrameSink struct {
	sessionID string
	producer  *queue.Producer
}

func NewNATSFrameSink(sessionID string, producer *queue.Producer) *NATSFrameSink {
	return &NATSFrameSink{sessionID: sessionID, producer: producer}
}

// PublishFrameResult implements classroom.FrameSink.
func (s *NATSFrameSink) PublishFrameResult(ctx context.Context, result classroom.FrameResult) error {
	observability.FrameProcessingDuration.WithLabelValues(s.sessionID).Observe(result.ProcessingTimeMS / 1000)
	observability.ActiveTracks.WithLabelValues(s.sessionID).Set(float64(len(result.Tracks)))
	if err := s.producer.PublishFrameOut(ctx, s.sessionID, result); err != nil {
		return fmt.Errorf("publish frame result: %w", err)
	}
	return nil
}
