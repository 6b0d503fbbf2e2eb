package classroom

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// attentionWindowSize bounds the rolling per-track attention/posture
// score windows kept for session-level averaging, matching the
// teacher's preference for bounded in-memory state over unbounded
// accumulation.
const attentionWindowSize = 300

// SessionAggregator owns the live SessionMetrics for one monitoring
// session and compiles the final SessionAnalytics report on stop. It
// is invoked exclusively from the pipeline orchestrator goroutine.
type SessionAggregator struct {
	metrics *SessionMetrics
}

// NewSessionAggregator starts a new session's metrics, grounded on
// original_source/ai_service/pipeline.py's start_session.
func NewSessionAggregator(now time.Time) *SessionAggregator {
	return &SessionAggregator{
		metrics: &SessionMetrics{
			SessionID:    newSessionID(),
			StartTime:    now,
			TrackMetrics: make(map[int]*TrackMetrics),
		},
	}
}

// SessionID returns this session's identifier.
func (a *SessionAggregator) SessionID() string { return a.metrics.SessionID }

// TrackMetricsFor returns the mutable per-track metrics record for
// trackID, creating it on first use.
func (a *SessionAggregator) TrackMetricsFor(trackID int) *TrackMetrics {
	m, ok := a.metrics.TrackMetrics[trackID]
	if !ok {
		m = &TrackMetrics{TrackID: trackID}
		a.metrics.TrackMetrics[trackID] = m
	}
	return m
}

// RecordFrame folds one frame's live track count and average attention
// into the session timeline, matching
// original_source/ai_service/pipeline.py's _update_session_metrics.
func (a *SessionAggregator) RecordFrame(now time.Time, liveTrackCount int, attentionScores []float32) {
	a.metrics.FrameCount++
	if liveTrackCount > a.metrics.PeakConcurrentTracks {
		a.metrics.PeakConcurrentTracks = liveTrackCount
	}

	avg := averageFloat32(attentionScores)
	a.metrics.AttentionTimeline = append(a.metrics.AttentionTimeline, AttentionPoint{
		Timestamp:        now,
		AverageAttention: avg,
		TrackCount:       liveTrackCount,
	})
}

// RecordAttentionScore appends a sample to a track's rolling attention
// window, trimming to attentionWindowSize.
func (m *TrackMetrics) RecordAttentionScore(score float32) {
	m.AttentionScores = append(m.AttentionScores, score)
	if len(m.AttentionScores) > attentionWindowSize {
		m.AttentionScores = m.AttentionScores[len(m.AttentionScores)-attentionWindowSize:]
	}
}

// RecordPostureScore appends a sample to a track's rolling posture
// window, trimming to attentionWindowSize.
func (m *TrackMetrics) RecordPostureScore(score float32) {
	m.PostureScores = append(m.PostureScores, score)
	if len(m.PostureScores) > attentionWindowSize {
		m.PostureScores = m.PostureScores[len(m.PostureScores)-attentionWindowSize:]
	}
}

// Compile produces the final SessionAnalytics report, using
// gonum.org/v1/gonum/stat for the mean reductions and minMax for the
// min/max reductions, grounded on
// the velocity.report example's internal/db/db.go and on
// original_source/ai_service/pipeline.py's _compile_session_analytics.
func (a *SessionAggregator) Compile(now time.Time) SessionAnalytics {
	m := a.metrics
	elapsed := now.Sub(m.StartTime).Seconds()

	report := SessionAnalytics{
		SessionID:        m.SessionID,
		TotalFrames:      m.FrameCount,
		PeakStudentCount: m.PeakConcurrentTracks,
	}

	if elapsed > 0 {
		report.AverageFPS = float64(m.FrameCount) / elapsed
	}

	if len(m.AttentionTimeline) > 0 {
		avgAttn := make([]float64, len(m.AttentionTimeline))
		var trackCountSum float64
		for i, p := range m.AttentionTimeline {
			avgAttn[i] = p.AverageAttention
			trackCountSum += float64(p.TrackCount)
		}
		report.AttentionAverage = stat.Mean(avgAttn, nil)
		report.AttentionMin, report.AttentionMax = minMax(avgAttn)
		report.AverageStudentCount = trackCountSum / float64(len(m.AttentionTimeline))
	}

	for _, tm := range m.TrackMetrics {
		report.Students = append(report.Students, compileStudent(tm, now))
	}
	sortStudentsByTrackID(report.Students)

	return report
}

func compileStudent(tm *TrackMetrics, now time.Time) StudentAnalytics {
	sa := StudentAnalytics{
		TrackID:          tm.TrackID,
		StudentID:        tm.StudentID,
		DistractionCount: tm.DistractionCount,
		PhoneUsageCount:  tm.PhoneUsageCount,
		FirstSeen:        tm.FirstSeen,
		LastSeen:         tm.LastSeen,
	}
	if !tm.FirstSeen.IsZero() {
		last := tm.LastSeen
		if last.IsZero() {
			last = now
		}
		sa.TotalTimePresentSec = last.Sub(tm.FirstSeen).Seconds()
	}
	if len(tm.AttentionScores) > 0 {
		scores := make([]float64, len(tm.AttentionScores))
		for i, s := range tm.AttentionScores {
			scores[i] = float64(s)
		}
		avg := stat.Mean(scores, nil)
		sa.AverageAttention = &avg
	}
	return sa
}

func averageFloat32(scores []float32) float64 {
	if len(scores) == 0 {
		return 0
	}
	asF64 := make([]float64, len(scores))
	for i, s := range scores {
		asF64[i] = float64(s)
	}
	return stat.Mean(asF64, nil)
}

func minMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func sortStudentsByTrackID(students []StudentAnalytics) {
	for i := 1; i < len(students); i++ {
		for j := i; j > 0 && students[j-1].TrackID > students[j].TrackID; j-- {
			students[j-1], students[j] = students[j], students[j-1]
		}
	}
}
