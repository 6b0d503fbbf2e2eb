package classroom

import "time"

// EventThresholds holds the event-synthesis constants of spec.md §4.6,
// named and defaulted exactly as
// original_source/ai_service/pipeline.py's MonitoringPipeline.__init__.
type EventThresholds struct {
	AttentionHigh        float32 // focused-state score at/above which attention_high fires
	AttentionLow         float32 // unused directly; the distracted state drives attention_low (drowsy drives drowsiness_detected)
	PhoneDetectionFrames int     // consecutive phone-present frames required to fire phone_detected
	PostureGoodThreshold float32
}

// DefaultEventThresholds returns the pipeline defaults.
func DefaultEventThresholds() EventThresholds {
	return EventThresholds{
		AttentionHigh:        0.7,
		AttentionLow:         0.4,
		PhoneDetectionFrames: 3,
		PostureGoodThreshold: 0.5,
	}
}

// EventSynthesizer turns per-track analysis results into the ordered
// event stream of spec.md §4.6. It is stateless except through the
// TrackMetrics it is given — all per-track history lives in
// SessionMetrics, owned by the session aggregator.
type EventSynthesizer struct {
	th EventThresholds
}

// NewEventSynthesizer constructs a synthesizer with the given thresholds.
func NewEventSynthesizer(th EventThresholds) *EventSynthesizer {
	return &EventSynthesizer{th: th}
}

// ProcessTrack evaluates one track's per-frame analysis against its
// rolling metrics and returns every event that fired this frame, in
// the order they were detected (category ordering across tracks is
// the pipeline's responsibility, per §5).
func (s *EventSynthesizer) ProcessTrack(
	tr *Track,
	m *TrackMetrics,
	isNewTrack bool,
	justIdentified bool,
	attention *AttentionResult,
	posture *PostureResult,
	phoneNearby bool,
	frameID int,
	now time.Time,
) []Event {
	var events []Event

	if isNewTrack {
		m.FirstSeen = now
		events = append(events, Event{
			Type:      EventStudentEntered,
			Timestamp: now,
			TrackID:   tr.ID,
			StudentID: tr.StudentID,
			FrameID:   frameID,
		})
	}
	m.LastSeen = now

	if justIdentified {
		events = append(events, Event{
			Type:      EventStudentIdentified,
			Timestamp: now,
			TrackID:   tr.ID,
			StudentID: tr.StudentID,
			FrameID:   frameID,
		})
	}

	if attention != nil {
		events = append(events, s.checkAttention(tr, m, attention, frameID, now)...)
	}

	if posture != nil {
		events = append(events, s.checkPosture(tr, m, posture, frameID, now)...)
	}

	events = append(events, s.checkPhone(tr, m, phoneNearby, frameID, now)...)

	return events
}

func (s *EventSynthesizer) checkAttention(tr *Track, m *TrackMetrics, a *AttentionResult, frameID int, now time.Time) []Event {
	if m.LastAttentionState == a.State {
		return nil
	}
	prev := m.LastAttentionState
	m.LastAttentionState = a.State

	switch a.State {
	case AttentionFocused:
		if a.Score < s.th.AttentionHigh {
			return nil
		}
		return []Event{{
			Type: EventAttentionHigh, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
			Confidence: a.Score, FrameID: frameID, Yaw: a.Yaw, Pitch: a.Pitch,
		}}
	case AttentionDistracted:
		m.DistractionCount++
		m.LookingAwayCount++
		return []Event{{
			Type: EventAttentionLow, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
			Confidence: 1 - a.Score, FrameID: frameID, Yaw: a.Yaw, Pitch: a.Pitch,
		}}
	case AttentionDrowsy:
		return []Event{{
			Type: EventDrowsinessDetected, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
			Confidence: 1 - a.EAR, FrameID: frameID, EyeAspectRatio: a.EAR,
		}}
	default:
		m.LastAttentionState = prev
		return nil
	}
}

func (s *EventSynthesizer) checkPosture(tr *Track, m *TrackMetrics, p *PostureResult, frameID int, now time.Time) []Event {
	if m.LastPostureState == p.State {
		return nil
	}
	prevWasPoor := m.LastPostureState == PostureSlouching || m.LastPostureState == PostureLeaning
	m.LastPostureState = p.State

	if p.State == PostureSlouching || p.State == PostureLeaning {
		return []Event{{
			Type: EventPosturePoor, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
			Confidence: 1 - p.Score, FrameID: frameID, PostureScore: p.Score, PostureState: p.State,
		}}
	}

	if prevWasPoor {
		return []Event{{
			Type: EventPostureGood, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
			Confidence: p.Score, FrameID: frameID, PostureScore: p.Score, PostureState: p.State,
		}}
	}
	return nil
}

// checkPhone implements the hysteresis counter of spec.md §4.6: the
// counter increments on every frame a phone is associated with this
// track and decays by one (floored at zero) otherwise, firing exactly
// once when the counter reaches the threshold — not on every frame it
// stays there — matching
// original_source/ai_service/pipeline.py's _check_phone_events, which
// fires only when phone_detected_frames == phone_detection_frames.
func (s *EventSynthesizer) checkPhone(tr *Track, m *TrackMetrics, phoneNearby bool, frameID int, now time.Time) []Event {
	if phoneNearby {
		if m.PhoneDetectedFrames < s.th.PhoneDetectionFrames+1 {
			m.PhoneDetectedFrames++
		}
	} else if m.PhoneDetectedFrames > 0 {
		m.PhoneDetectedFrames--
	}

	if m.PhoneDetectedFrames != s.th.PhoneDetectionFrames {
		return nil
	}
	if !phoneNearby {
		return nil
	}

	m.PhoneUsageCount++
	return []Event{{
		Type: EventPhoneDetected, Timestamp: now, TrackID: tr.ID, StudentID: tr.StudentID,
		Confidence: 1, FrameID: frameID,
	}}
}
