// Package classroom implements the real-time classroom perception
// pipeline core: detection, multi-object tracking with Kalman
// prediction, identity resolution, attention/posture scoring, event
// synthesis and session aggregation. Everything in this package is
// invoked synchronously from a single orchestrator goroutine; none of
// its exported types are safe for concurrent mutation from outside
// that goroutine except where documented.
package classroom

import (
	"time"

	"github.com/google/uuid"
)

// BBox is a bounding box in corner form: left, top, right, bottom.
// Callers must maintain Right > Left and Bottom > Top after clamping
// to frame dimensions.
type BBox [4]float32

func (b BBox) Left() float32   { return b[0] }
func (b BBox) Top() float32    { return b[1] }
func (b BBox) Right() float32  { return b[2] }
func (b BBox) Bottom() float32 { return b[3] }

// Width returns the box width, derived on demand per spec.
func (b BBox) Width() float32 { return b[2] - b[0] }

// Height returns the box height, derived on demand per spec.
func (b BBox) Height() float32 { return b[3] - b[1] }

// Area returns width*height, zero for degenerate boxes.
func (b BBox) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box's center point.
func (b BBox) Center() (cx, cy float32) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// Clamp restricts the box to [0,width] x [0,height].
func (b BBox) Clamp(width, height float32) BBox {
	out := b
	if out[0] < 0 {
		out[0] = 0
	}
	if out[1] < 0 {
		out[1] = 0
	}
	if out[2] > width {
		out[2] = width
	}
	if out[3] > height {
		out[3] = height
	}
	return out
}

// ClassID identifies the detected object category.
type ClassID int

const (
	ClassPerson ClassID = iota
	ClassPhone
	ClassLaptop
	ClassBook
)

func (c ClassID) String() string {
	switch c {
	case ClassPerson:
		return "person"
	case ClassPhone:
		return "phone"
	case ClassLaptop:
		return "laptop"
	case ClassBook:
		return "book"
	default:
		return "unknown"
	}
}

// Detection is a single detector output: a bounding box, confidence
// score, class, and an optional face embedding (set only by the face
// capability, never by the object detector).
type Detection struct {
	BBox      BBox
	Score     float32
	ClassID   ClassID
	Embedding []float32 // unit-norm, len == EmbeddingDimension when present
}

// Detections is the object detector's per-frame output, partitioned by
// the capability itself into persons and everything else (§4.1).
type Detections struct {
	Persons []Detection
	Objects []Detection
}

// TrackState is the ByteTrack-style lifecycle state of a Track.
type TrackState int

const (
	TrackNew TrackState = iota
	TrackTracked
	TrackLost
	TrackRemoved
)

func (s TrackState) String() string {
	switch s {
	case TrackNew:
		return "new"
	case TrackTracked:
		return "tracked"
	case TrackLost:
		return "lost"
	case TrackRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Track is a tracked person, owned exclusively by the Tracker.
// track_id is assigned once at creation and never reused within a
// session; student_id, once set, is immutable for the track's
// lifetime.
type Track struct {
	ID      int
	State   TrackState
	ClassID ClassID

	Mean       *KalmanState // 8-vector: cx, cy, w, h and their velocities
	BBox       BBox         // current observed/predicted bbox, derived from Mean
	Score      float32
	FrameID    int // last frame this track was updated
	StartFrame int
	TrackletLen int

	StudentID string // empty until assigned; monotone once set

	RecognitionCooldownUntil time.Time

	isActivated bool
}

// HasStudent reports whether an identity has been resolved for this track.
func (t *Track) HasStudent() bool { return t.StudentID != "" }

// TrackMetrics holds one session's rolling metrics for a single track,
// owned exclusively by the session aggregator.
type TrackMetrics struct {
	TrackID   int
	StudentID string

	AttentionScores []float32 // bounded rolling window
	PostureScores   []float32 // bounded rolling window

	PhoneUsageCount      int
	DistractionCount     int
	LookingAwayCount     int
	PhoneDetectedFrames  int // hysteresis counter, see events.go::checkPhone

	LastAttentionState AttentionState
	LastPostureState   PostureState

	FirstSeen time.Time
	LastSeen  time.Time
}

// AttentionPoint is one sample in the session's attention timeline.
type AttentionPoint struct {
	Timestamp     time.Time
	AverageAttention float64
	TrackCount    int
}

// SessionMetrics is the live, mutable state of a monitoring session,
// owned exclusively by the session aggregator.
type SessionMetrics struct {
	SessionID           string
	StartTime           time.Time
	FrameCount          int
	PeakConcurrentTracks int
	AttentionTimeline   []AttentionPoint
	TrackMetrics        map[int]*TrackMetrics
}

// EventType is the tagged-variant discriminator for Event.
type EventType string

const (
	EventStudentEntered     EventType = "student_entered"
	EventStudentIdentified   EventType = "student_identified"
	EventAttentionHigh      EventType = "attention_high"
	EventAttentionLow       EventType = "attention_low"
	EventDrowsinessDetected EventType = "drowsiness_detected"
	EventPosturePoor        EventType = "posture_poor"
	EventPostureGood        EventType = "posture_good"
	EventPhoneDetected      EventType = "phone_detected"
)

// eventRank fixes the within-frame dispatch order required by §5:
// entry, attention, posture, phone — ascending track_id within a
// category.
func (e EventType) eventRank() int {
	switch e {
	case EventStudentEntered:
		return 0
	case EventAttentionHigh, EventAttentionLow, EventDrowsinessDetected:
		return 1
	case EventPosturePoor, EventPostureGood:
		return 2
	case EventPhoneDetected:
		return 3
	case EventStudentIdentified:
		// Identity resolution happens before event-state checks in a
		// frame, but is not one of the four ordered categories; place
		// it with attention since both derive from the same per-track
		// pass and before posture/phone.
		return 1
	default:
		return 4
	}
}

// Event is a single domain event produced by the event synthesizer.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	TrackID    int
	StudentID  string // empty if unknown
	Confidence float32
	FrameID    int

	// Event-specific payload, populated selectively.
	Yaw, Pitch       float32 // attention_high/low
	EyeAspectRatio   float32 // drowsiness_detected
	PostureScore     float32 // posture_poor/good
	PostureState     PostureState
}

// FrameResult is the per-admitted-frame outbound record (§6).
type FrameResult struct {
	SessionID        string
	Timestamp        time.Time
	PersonCount      int
	ObjectSummaries  []ObjectSummary
	Tracks           []TrackSummary
	StudentCount     int
	AverageAttention float64
	FPS              float64
	Events           []Event
	ProcessingTimeMS float64
	Error            string
}

// ObjectSummary is a non-person detection surfaced on FrameResult.
type ObjectSummary struct {
	Class ClassID
	BBox  BBox
}

// TrackSummary is the per-track slice of FrameResult.
type TrackSummary struct {
	TrackID        int
	BBox           BBox
	Score          float32
	StudentID      string
	Attention      *AttentionResult
	Posture        *PostureResult
	PhoneDetected  bool
	Events         []Event
}

// KnownFace is one entry of the known-embedding catalog snapshot
// passed to the identity resolver via UpdateKnownEmbeddings.
type KnownFace struct {
	StudentID   string
	StudentName string
	Embedding   []float32
}

// SessionAnalytics is the compiled report returned by Pipeline.Stop (§4.7).
type SessionAnalytics struct {
	SessionID            string
	TotalFrames          int
	AverageFPS           float64
	PeakStudentCount     int
	AverageStudentCount  float64
	AttentionAverage     float64
	AttentionMin         float64
	AttentionMax         float64
	Students             []StudentAnalytics
}

// StudentAnalytics is one track's compiled per-session report.
type StudentAnalytics struct {
	TrackID             int
	StudentID           string
	AverageAttention    *float64 // nil if no attention samples
	DistractionCount    int
	PhoneUsageCount     int
	FirstSeen           time.Time
	LastSeen            time.Time
	TotalTimePresentSec float64
}

// newSessionID produces a process-unique session identifier the way
// the teacher mints ids throughout (uuid.New()).
func newSessionID() string {
	return uuid.New().String()
}
