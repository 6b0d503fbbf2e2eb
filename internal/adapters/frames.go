// Package adapters wires the classroom pipeline's narrow capability
// interfaces (FrameSource, EventSink, FrameSink, KnownEmbeddingProvider)
// onto the concrete NATS JetStream / MinIO / Postgres infrastructure,
// grounded on the teacher's vision/pipeline.go ProcessFrame steps (MinIO
// object load, NATS publish) decomposed into the shapes spec.md §6 names.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/classroom/internal/classroom"
	"github.com/your-org/classroom/internal/models"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
)

// NATSFrameSource pulls frame tasks off frames.<sessionID>, resolves the
// referenced object from MinIO and decodes it, implementing
// classroom.FrameSource.
type NATSFrameSource struct {
	sessionID string
	consumer  jetstream.Consumer
	minio     *storage.MinIOStore
	frameID   int
}

// NewNATSFrameSource creates (or resumes) a durable pull consumer scoped
// to one session's frame subject.
func NewNATSFrameSource(ctx context.Context, js jetstream.JetStream, minio *storage.MinIOStore, sessionID string) (*NATSFrameSource, error) {
	stream, err := js.Stream(ctx, queue.FramesStreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", queue.FramesStreamName, err)
	}

	consumerName := "pipeline-" + sessionID
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: queue.FramesSubjectBase + "." + sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("create frame consumer for session %s: %w", sessionID, err)
	}

	return &NATSFrameSource{sessionID: sessionID, consumer: cons, minio: minio}, nil
}

// Next implements classroom.FrameSource.
func (s *NATSFrameSource) Next(ctx context.Context) (classroom.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return classroom.Frame{}, ctx.Err()
		default:
		}

		batch, err := s.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return classroom.Frame{}, ctx.Err()
			}
			continue
		}

		var task models.FrameTask
		var msg jetstream.Msg
		for m := range batch.Messages() {
			msg = m
			break
		}
		if msg == nil {
			continue
		}
		if err := decodeJSON(msg.Data(), &task); err != nil {
			_ = msg.Nak()
			return classroom.Frame{}, fmt.Errorf("%w: decode frame task: %v", classroom.ErrFrameDecode, err)
		}

		data, err := s.minio.GetObject(ctx, task.FrameRef)
		if err != nil {
			_ = msg.Nak()
			return classroom.Frame{}, fmt.Errorf("%w: fetch frame object %s: %v", classroom.ErrFrameDecode, task.FrameRef, err)
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			_ = msg.Nak()
			return classroom.Frame{}, fmt.Errorf("%w: %v", classroom.ErrFrameDecode, err)
		}
		_ = msg.Ack()

		s.frameID++
		return classroom.Frame{Image: img, Timestamp: task.Timestamp, FrameID: s.frameID}, nil
	}
}
