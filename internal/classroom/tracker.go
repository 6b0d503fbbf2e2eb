package classroom

import (
	"sync"
	"time"
)

// TrackerConfig holds the cascaded-association thresholds of spec.md
// §4.4, named and defaulted exactly as
// original_source/ai_service/trackers/bytetrack.py's ByteTracker.
type TrackerConfig struct {
	TrackThresh       float32 // detections scoring below this are "low confidence"
	HighMatchThresh   float32 // max cost (1-iou) accepted in the first association pass
	LowMatchThresh    float32 // max cost accepted in the second (low-conf) pass
	ReviveMatchThresh float32 // max cost accepted when confirming brand-new tracks
	TrackBuffer       int     // frames a lost track survives before removal
	MinBoxArea        float32
}

// DefaultTrackerConfig returns the thresholds used throughout spec.md §4.4.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		TrackThresh:       0.5,
		HighMatchThresh:   0.8,
		LowMatchThresh:    0.5,
		ReviveMatchThresh: 0.7,
		TrackBuffer:       30,
		MinBoxArea:        100,
	}
}

// Tracker implements the ByteTrack-style cascaded association tracker:
// detections are split by confidence, matched against tracked and lost
// tracks in three gated passes, and unmatched high-confidence
// detections spawn new tracks. Owned exclusively by the pipeline
// orchestrator goroutine; Update is not safe to call concurrently with
// itself but is safe to call from a different goroutine than the one
// that constructed it (the mutex guards that handoff only).
type Tracker struct {
	mu sync.Mutex

	cfg TrackerConfig
	kf  *KalmanFilter

	tracked []*Track
	lost    []*Track

	nextID  int
	frameID int
}

// NewTracker constructs a Tracker with the given thresholds.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg, kf: NewKalmanFilter()}
}

// Update advances the tracker by one frame given the person detections
// in that frame (§4.4 steps 1-9). The returned slice holds every track
// considered live this frame (state Tracked), in ascending ID order.
func (t *Tracker) Update(detections []Detection, now time.Time) []*Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frameID++

	filtered := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.BBox.Area() >= t.cfg.MinBoxArea {
			filtered = append(filtered, d)
		}
	}

	var high, low []Detection
	for _, d := range filtered {
		if d.Score >= t.cfg.TrackThresh {
			high = append(high, d)
		} else {
			low = append(low, d)
		}
	}

	for _, tr := range t.tracked {
		t.kf.Predict(tr.Mean)
	}
	for _, tr := range t.lost {
		t.kf.Predict(tr.Mean)
	}

	pool := make([]*Track, 0, len(t.tracked)+len(t.lost))
	pool = append(pool, t.tracked...)
	pool = append(pool, t.lost...)

	poolMatched, highMatched := t.associate(pool, high, t.cfg.HighMatchThresh, true)

	unmatchedPool := unmatchedTracks(pool, poolMatched)
	unmatchedHigh := unmatchedDetections(high, highMatched)

	// Second pass: low-confidence detections against tracks that were
	// in the Tracked state but missed the first pass. Kalman is NOT
	// updated here (mirrors bytetrack.py's update(): the low-score
	// association only refreshes bbox/score, never calls kalman update),
	// since a low-confidence box is too noisy to trust for motion fitting.
	var secondCandidates []*Track
	for _, tr := range unmatchedPool {
		if tr.State == TrackTracked {
			secondCandidates = append(secondCandidates, tr)
		}
	}
	secondMatched, _ := t.associate(secondCandidates, low, t.cfg.LowMatchThresh, false)

	stillUnmatched := unmatchedTracks(unmatchedPool, secondMatched)
	for _, tr := range stillUnmatched {
		if tr.State == TrackTracked {
			tr.State = TrackLost
			tr.isActivated = false
		}
	}

	// Third pass: Tracked tracks that are not yet activated, matched
	// against whatever high-score detections remain. Every Tracked track
	// has been through the pool by this point and is either activated or
	// now Lost, so this set is empty in practice; a track spawned in one
	// frame is confirmed by the first pass of the next frame.
	var unconfirmed []*Track
	for _, tr := range t.tracked {
		if tr.State == TrackTracked && !tr.isActivated {
			unconfirmed = append(unconfirmed, tr)
		}
	}
	thirdMatched, thirdDetMatched := t.associate(unconfirmed, unmatchedHigh, t.cfg.ReviveMatchThresh, true)

	for _, tr := range unmatchedTracks(unconfirmed, thirdMatched) {
		t.removeTrack(tr.ID)
	}

	finalUnmatchedHigh := unmatchedDetections(unmatchedHigh, thirdDetMatched)
	for _, d := range finalUnmatchedHigh {
		t.spawnTrack(d)
	}

	t.expireLost()
	t.rebuildBuckets()

	live := make([]*Track, 0, len(t.tracked))
	for _, tr := range t.tracked {
		tr.BBox = tr.Mean.BBox()
		live = append(live, tr)
	}
	sortTracksByID(live)
	return live
}

// associate runs one gated IoU-distance association pass, updating
// matched tracks in place (bbox, score, Kalman unless updateKalman is
// false, lifecycle bookkeeping). Returns the sets of matched tracks and
// matched detections, keyed by their position in the input slices.
func (t *Tracker) associate(tracks []*Track, dets []Detection, gate float32, updateKalman bool) (matchedTracks map[int]bool, matchedDets map[int]bool) {
	matchedTracks = make(map[int]bool)
	matchedDets = make(map[int]bool)
	if len(tracks) == 0 || len(dets) == 0 {
		return matchedTracks, matchedDets
	}

	cost := make([][]float64, len(tracks))
	for i, tr := range tracks {
		cost[i] = make([]float64, len(dets))
		for j, d := range dets {
			cost[i][j] = 1 - float64(iou(tr.BBox, d.BBox))
		}
	}

	rowToCol, _ := solveAssignment(cost)
	for i, j := range rowToCol {
		if j < 0 {
			continue
		}
		if cost[i][j] > float64(gate) {
			continue
		}
		tr := tracks[i]
		d := dets[j]

		tr.BBox = d.BBox
		tr.Score = d.Score
		tr.FrameID = t.frameID
		tr.TrackletLen++

		wasLost := tr.State == TrackLost
		tr.State = TrackTracked
		tr.isActivated = true

		if updateKalman {
			if wasLost {
				tr.Mean = t.kf.Initiate(d.BBox)
			} else {
				t.kf.Update(tr.Mean, d.BBox)
			}
		}

		matchedTracks[i] = true
		matchedDets[j] = true
	}
	return matchedTracks, matchedDets
}

func unmatchedTracks(tracks []*Track, matched map[int]bool) []*Track {
	out := make([]*Track, 0, len(tracks))
	for i, tr := range tracks {
		if !matched[i] {
			out = append(out, tr)
		}
	}
	return out
}

func unmatchedDetections(dets []Detection, matched map[int]bool) []Detection {
	out := make([]Detection, 0, len(dets))
	for i, d := range dets {
		if !matched[i] {
			out = append(out, d)
		}
	}
	return out
}

func (t *Tracker) spawnTrack(d Detection) {
	t.nextID++
	tr := &Track{
		ID:          t.nextID,
		State:       TrackTracked,
		ClassID:     ClassPerson,
		Mean:        t.kf.Initiate(d.BBox),
		BBox:        d.BBox,
		Score:       d.Score,
		FrameID:     t.frameID,
		StartFrame:  t.frameID,
		TrackletLen: 1,
		isActivated: false,
	}
	t.tracked = append(t.tracked, tr)
}

func (t *Tracker) removeTrack(id int) {
	t.tracked = removeByID(t.tracked, id)
	t.lost = removeByID(t.lost, id)
}

func removeByID(tracks []*Track, id int) []*Track {
	out := tracks[:0]
	for _, tr := range tracks {
		if tr.ID != id {
			out = append(out, tr)
		}
	}
	return out
}

// expireLost removes lost tracks that have exceeded the track buffer.
func (t *Tracker) expireLost() {
	kept := t.lost[:0]
	for _, tr := range t.lost {
		if t.frameID-tr.FrameID > t.cfg.TrackBuffer {
			tr.State = TrackRemoved
			continue
		}
		kept = append(kept, tr)
	}
	t.lost = kept
}

// rebuildBuckets repartitions every known track into tracked/lost by
// its current State, dropping removed tracks entirely.
func (t *Tracker) rebuildBuckets() {
	all := make([]*Track, 0, len(t.tracked)+len(t.lost))
	all = append(all, t.tracked...)
	all = append(all, t.lost...)

	t.tracked = t.tracked[:0]
	t.lost = t.lost[:0]
	for _, tr := range all {
		switch tr.State {
		case TrackTracked:
			t.tracked = append(t.tracked, tr)
		case TrackLost:
			t.lost = append(t.lost, tr)
		}
	}
}

func sortTracksByID(tracks []*Track) {
	for i := 1; i < len(tracks); i++ {
		for j := i; j > 0 && tracks[j-1].ID > tracks[j].ID; j-- {
			tracks[j-1], tracks[j] = tracks[j], tracks[j-1]
		}
	}
}
