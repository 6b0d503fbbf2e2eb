package classroom

import "math"

// PostureState is the classified body posture for one analyzed frame (§4.3).
type PostureState string

const (
	PostureGood      PostureState = "good"
	PostureSlouching PostureState = "slouching"
	PostureLeaning   PostureState = "leaning"
)

// AttentionState is the classified gaze/attention state for one
// analyzed frame (§4.3).
type AttentionState string

const (
	AttentionFocused    AttentionState = "focused"
	AttentionDistracted AttentionState = "distracted"
	AttentionDrowsy     AttentionState = "drowsy"
)

// PoseGazeThresholds holds the classification constants from §4.3.
// Values mirror config.ClassroomConfig; the pipeline passes its
// configured copy to ClassifyAttention on every call.
type PoseGazeThresholds struct {
	EARThreshold   float32 // default 0.2
	YawThreshDeg   float32 // default 30
	PitchThreshDeg float32 // default 20
}

// DefaultPoseGazeThresholds returns the spec's default constants.
func DefaultPoseGazeThresholds() PoseGazeThresholds {
	return PoseGazeThresholds{EARThreshold: 0.2, YawThreshDeg: 30, PitchThreshDeg: 20}
}

// HeadPose is the raw angle/EAR measurement a pose/gaze capability
// produces for a cropped region; classification from these raw values
// into PostureResult/AttentionResult is pure domain logic (below) so it
// is testable without a model in the loop.
type HeadPose struct {
	ShoulderAngle float32 // degrees
	SpineAngle    float32 // degrees, 0 = vertical
	HeadTilt      float32 // degrees

	Yaw, Pitch, Roll float32 // degrees
	EyeAspectRatio   float32
}

// PostureResult is the classified posture output of the pose/gaze capability.
type PostureResult struct {
	State         PostureState
	Score         float32
	ShoulderAngle float32
	HeadTilt      float32
}

// AttentionResult is the classified attention output of the pose/gaze capability.
type AttentionResult struct {
	State AttentionState
	Score float32
	Yaw   float32
	Pitch float32
	Roll  float32
	EAR   float32
}

// ClassifyPosture implements the posture scoring policy of spec §4.3:
// score starts at 1.0, is penalized per-component (each capped at its
// weight, floor 0), then classified by the strictest-first rule
// leaning > slouching > good.
func ClassifyPosture(h HeadPose) PostureResult {
	shoulderPenalty := capped(absf(h.ShoulderAngle)/45*0.3, 0.3)
	spinePenalty := capped(absf(h.SpineAngle)/30*0.4, 0.4)
	headPenalty := capped(absf(h.HeadTilt)/30*0.3, 0.3)

	score := 1.0 - shoulderPenalty - spinePenalty - headPenalty
	if score < 0 {
		score = 0
	}

	var state PostureState
	switch {
	case absf(h.SpineAngle) > 20:
		state = PostureLeaning
	case absf(h.ShoulderAngle) > 15 || score < 0.5:
		state = PostureSlouching
	default:
		state = PostureGood
	}

	return PostureResult{
		State:         state,
		Score:         score,
		ShoulderAngle: h.ShoulderAngle,
		HeadTilt:      h.HeadTilt,
	}
}

// ClassifyAttention implements the attention/drowsiness scoring policy
// of spec §4.3.
func ClassifyAttention(h HeadPose, th PoseGazeThresholds) AttentionResult {
	var state AttentionState
	switch {
	case h.EyeAspectRatio < th.EARThreshold:
		state = AttentionDrowsy
	case absf(h.Yaw) > th.YawThreshDeg || absf(h.Pitch) > th.PitchThreshDeg:
		state = AttentionDistracted
	default:
		state = AttentionFocused
	}

	yawScore := maxf(0, 1-absf(h.Yaw)/th.YawThreshDeg)
	pitchScore := maxf(0, 1-absf(h.Pitch)/th.PitchThreshDeg)
	earScore := minf(1, h.EyeAspectRatio/0.3)
	score := 0.6*yawScore + 0.3*pitchScore + 0.1*earScore

	return AttentionResult{
		State: state,
		Score: score,
		Yaw:   h.Yaw,
		Pitch: h.Pitch,
		Roll:  h.Roll,
		EAR:   h.EyeAspectRatio,
	}
}

func absf(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// capped returns min(v, cap), floored at 0.
func capped(v, cap float32) float32 {
	if v < 0 {
		v = 0
	}
	if v > cap {
		return cap
	}
	return v
}
