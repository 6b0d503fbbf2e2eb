package classroom

import (
	"context"
	"image"
	"time"
)

// Frame is a single decoded video frame handed to the pipeline by a
// FrameSource, carrying its own capture timestamp so the pipeline can
// compute real FPS regardless of queueing delay.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	FrameID   int
}

// FrameSource delivers decoded frames to the pipeline. Concrete
// adapters (NATS/MinIO-backed, or an in-process test double) satisfy
// this; the pipeline never depends on how a frame arrived.
type FrameSource interface {
	// Next blocks until a frame is available or ctx is done.
	Next(ctx context.Context) (Frame, error)
}

// Detector runs person/phone/laptop/book detection over a decoded
// frame, partitioning the output itself (§4.1).
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Detections, error)
}

// FaceRecognizer extracts a face embedding from a cropped person
// region. Returns ok=false if no face was found in the crop.
type FaceRecognizer interface {
	Embed(ctx context.Context, crop image.Image) (embedding []float32, ok bool, err error)
}

// PoseGazeAnalyzer extracts raw head-pose/gaze/posture angles from a
// cropped person region; classification into AttentionResult/
// PostureResult is pure domain logic (posegaze.go), kept separate so
// it is testable without a model.
type PoseGazeAnalyzer interface {
	Analyze(ctx context.Context, crop image.Image) (HeadPose, error)
}

// KnownEmbeddingProvider supplies the known-student catalog. The
// pipeline loads it into the IdentityResolver once, in Start; later
// changes reach the resolver only through UpdateKnownEmbeddings.
type KnownEmbeddingProvider interface {
	KnownFaces(ctx context.Context) ([]KnownFace, error)
}

// EventSink receives synthesized events for outbound delivery (NATS,
// WebSocket broadcast, or an in-process test double). Implementations
// must not block the caller indefinitely; the pipeline calls this from
// a dedicated dispatch goroutine, one event at a time and in order.
type EventSink interface {
	PublishEvent(ctx context.Context, event Event) error
}

// FrameSink receives the per-frame compiled result for outbound
// delivery, mirroring EventSink.
type FrameSink interface {
	PublishFrameResult(ctx context.Context, result FrameResult) error
}
