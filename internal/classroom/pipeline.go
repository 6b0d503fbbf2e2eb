package classroom

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PipelineState is the explicit lifecycle state of a Pipeline, mirrored
// on pkg/miface/tracker.go's TrackerState.
type PipelineState int

const (
	PipelineIdle PipelineState = iota
	PipelineRunning
	PipelinePaused
	PipelineClosed
)

func (s PipelineState) String() string {
	switch s {
	case PipelineIdle:
		return "idle"
	case PipelineRunning:
		return "running"
	case PipelinePaused:
		return "paused"
	case PipelineClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config bundles every tunable named across spec.md §4 and §6.
type Config struct {
	TargetFPS           float64
	Tracker             TrackerConfig
	Identity            IdentityConfig
	PoseGaze            PoseGazeThresholds
	Events              EventThresholds
	PhoneAssociationMax float32 // max center-distance (px) for a phone to count as "near" a track
	DetectionMinScore   float32
}

// DefaultConfig returns the pipeline defaults used throughout spec.md.
func DefaultConfig() Config {
	return Config{
		TargetFPS:           8,
		Tracker:             DefaultTrackerConfig(),
		Identity:            DefaultIdentityConfig(),
		PoseGaze:            DefaultPoseGazeThresholds(),
		Events:              DefaultEventThresholds(),
		PhoneAssociationMax: 150,
		DetectionMinScore:   0.5,
	}
}

// Pipeline is the single-threaded cooperative orchestrator of spec.md
// §4.8: one goroutine owns the tracker and session state, pulling
// frames at a governed rate and driving every capability synchronously
// in sequence. Fan-out to sinks happens on dedicated per-sink
// goroutines so a slow consumer cannot stall frame processing; within
// a frame, ordering across sinks is not guaranteed, but ordering
// *within* a sink's stream is (§5).
type Pipeline struct {
	cfg Config
	log *slog.Logger

	detector   Detector
	faces      FaceRecognizer
	poseGaze   PoseGazeAnalyzer
	source     FrameSource
	eventSink  EventSink
	frameSink  FrameSink
	knownFaces KnownEmbeddingProvider

	tracker   *Tracker
	identity  *IdentityResolver
	synth     *EventSynthesizer
	session   *SessionAggregator

	mu    sync.Mutex
	state PipelineState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventCh chan Event
	frameCh chan FrameResult

	frameCount int
	startedAt  time.Time

	lastFrameAt  time.Time
	fpsIntervals []float64 // rolling window of the last fpsWindowSize inter-frame intervals, seconds
}

// fpsWindowSize is the rolling-average window spec.md §4.8 names for the
// reported metrics.fps observation.
const fpsWindowSize = 30

// NewPipeline constructs a Pipeline wired to the given capabilities.
// None of the capability arguments may be nil.
func NewPipeline(
	cfg Config,
	detector Detector,
	faces FaceRecognizer,
	poseGaze PoseGazeAnalyzer,
	source FrameSource,
	eventSink EventSink,
	frameSink FrameSink,
	knownFaces KnownEmbeddingProvider,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		log:        log,
		detector:   detector,
		faces:      faces,
		poseGaze:   poseGaze,
		source:     source,
		eventSink:  eventSink,
		frameSink:  frameSink,
		knownFaces: knownFaces,
		tracker:    NewTracker(cfg.Tracker),
		identity:   NewIdentityResolver(cfg.Identity),
		synth:      NewEventSynthesizer(cfg.Events),
		state:      PipelineIdle,
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the active session's identifier, empty if none.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.SessionID()
}

// Start begins a new monitoring session and launches the orchestrator
// goroutine. Returns ErrSessionRunning if already running, or
// ErrSessionClosed if the pipeline has been closed.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PipelineRunning, PipelinePaused:
		return ErrSessionRunning
	case PipelineClosed:
		return ErrSessionClosed
	}

	if faces, err := p.knownFaces.KnownFaces(ctx); err != nil {
		p.log.Warn("loading known faces failed, starting with empty catalog", "error", err)
	} else {
		p.identity.UpdateKnownEmbeddings(faces)
	}

	now := time.Now()
	p.session = NewSessionAggregator(now)
	p.startedAt = now
	p.frameCount = 0
	p.lastFrameAt = time.Time{}
	p.fpsIntervals = nil

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.eventCh = make(chan Event, 256)
	p.frameCh = make(chan FrameResult, 64)
	p.state = PipelineRunning

	p.wg.Add(3)
	go p.runEventSink()
	go p.runFrameSink()
	go p.run()

	p.log.Info("session started", "session_id", p.session.SessionID(), "target_fps", p.cfg.TargetFPS)
	return nil
}

// Pause suspends frame processing without ending the session.
func (p *Pipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelineRunning {
		return ErrSessionNotRunning
	}
	p.state = PipelinePaused
	return nil
}

// Resume continues a paused session.
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PipelinePaused {
		return ErrSessionNotRunning
	}
	p.state = PipelineRunning
	return nil
}

// Stop ends the session, compiles final analytics, and returns them.
func (p *Pipeline) Stop() (SessionAnalytics, error) {
	p.mu.Lock()
	if p.state != PipelineRunning && p.state != PipelinePaused {
		p.mu.Unlock()
		return SessionAnalytics{}, ErrSessionNotRunning
	}
	session := p.session
	p.cancel()
	p.state = PipelineIdle
	p.mu.Unlock()

	p.wg.Wait()

	report := session.Compile(time.Now())
	p.log.Info("session stopped", "session_id", report.SessionID, "total_frames", report.TotalFrames)
	return report, nil
}

// Close stops any active session and permanently retires the pipeline.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.state == PipelineClosed {
		p.mu.Unlock()
		return ErrSessionClosed
	}
	running := p.state == PipelineRunning || p.state == PipelinePaused
	if running {
		p.cancel()
	}
	p.state = PipelineClosed
	p.mu.Unlock()

	if running {
		p.wg.Wait()
	}
	return nil
}

// run is the orchestrator's main loop: a ticker paced at 1/TargetFPS
// pulls the latest frame and processes it synchronously, mirroring
// pkg/miface/tracker.go's trackingLoop.
func (p *Pipeline) run() {
	defer p.wg.Done()

	interval := time.Second
	if p.cfg.TargetFPS > 0 {
		interval = time.Duration(float64(time.Second) / p.cfg.TargetFPS)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	latest := make(chan Frame, 1)
	p.wg.Add(1)
	go p.pullFrames(latest)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if p.State() != PipelineRunning {
				continue
			}
			select {
			case frame := <-latest:
				p.processFrame(frame)
			default:
				// No new frame since the last tick; nothing to do.
			}
		}
	}
}

// pullFrames reads from the frame source as fast as it will deliver
// and keeps only the most recent frame in a single-slot channel,
// dropping any frame the orchestrator hasn't consumed yet ("latest
// frame wins", §5).
func (p *Pipeline) pullFrames(latest chan<- Frame) {
	defer p.wg.Done()
	for {
		frame, err := p.source.Next(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.log.Warn("frame source error", "error", err)
			continue
		}
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- frame:
		case <-p.ctx.Done():
			return
		}
	}
}

// processFrame runs the full per-frame sequence of spec.md §4.8: detect
// → track → associate phones → per-track identity/pose-gaze/event
// synthesis → aggregate → dispatch.
func (p *Pipeline) processFrame(frame Frame) {
	start := time.Now()
	p.frameCount++
	frameID := p.frameCount

	result := FrameResult{
		SessionID: p.SessionID(),
		Timestamp: frame.Timestamp,
	}

	detections, err := p.detector.Detect(p.ctx, frame.Image)
	if err != nil {
		p.log.Warn("detection failed, skipping frame", "frame_id", frameID, "error", transient(err))
		result.Error = err.Error()
		p.dispatchFrame(result)
		return
	}

	result.PersonCount = len(detections.Persons)
	for _, o := range detections.Objects {
		result.ObjectSummaries = append(result.ObjectSummaries, ObjectSummary{Class: o.ClassID, BBox: o.BBox})
	}

	tracks := p.tracker.Update(detections.Persons, frame.Timestamp)
	phoneNear := associatePhones(tracks, detections.Objects, p.cfg.PhoneAssociationMax)

	var allEvents []Event
	var attentionScores []float32

	for _, tr := range tracks {
		isNew := tr.TrackletLen == 1 && tr.StartFrame == tr.FrameID
		metrics := p.session.TrackMetricsFor(tr.ID)
		if metrics.StudentID == "" {
			metrics.StudentID = tr.StudentID
		}

		justIdentified := false
		if p.identity.ShouldRecognize(tr, frame.Timestamp) {
			if crop := cropRegionPadded(frame.Image, tr.BBox); crop != nil {
				if embedding, ok, err := p.faces.Embed(p.ctx, crop); err == nil && ok {
					matched, face, _ := p.identity.Resolve(tr, embedding, frame.Timestamp)
					if matched {
						justIdentified = true
						metrics.StudentID = face.StudentID
					}
				} else if err != nil {
					p.log.Debug("face embedding failed", "track_id", tr.ID, "error", err)
				}
			}
		}

		var attentionPtr *AttentionResult
		var posturePtr *PostureResult
		if crop := cropRegionPadded(frame.Image, tr.BBox); crop != nil {
			if pose, err := p.poseGaze.Analyze(p.ctx, crop); err == nil {
				attention := ClassifyAttention(pose, p.cfg.PoseGaze)
				posture := ClassifyPosture(pose)
				attentionPtr = &attention
				posturePtr = &posture
				metrics.RecordAttentionScore(attention.Score)
				metrics.RecordPostureScore(posture.Score)
				attentionScores = append(attentionScores, attention.Score)
			} else {
				p.log.Debug("pose/gaze analysis failed", "track_id", tr.ID, "error", err)
			}
		}

		phoneNearby := phoneNear[tr.ID]
		events := p.synth.ProcessTrack(tr, metrics, isNew, justIdentified, attentionPtr, posturePtr, phoneNearby, frameID, frame.Timestamp)
		allEvents = append(allEvents, events...)

		result.Tracks = append(result.Tracks, TrackSummary{
			TrackID:       tr.ID,
			BBox:          tr.BBox,
			Score:         tr.Score,
			StudentID:     tr.StudentID,
			Attention:     attentionPtr,
			Posture:       posturePtr,
			PhoneDetected: phoneNearby,
			Events:        events,
		})
	}

	sortEvents(allEvents)
	result.Events = allEvents

	studentCount := 0
	for _, tr := range tracks {
		if tr.HasStudent() {
			studentCount++
		}
	}
	result.StudentCount = studentCount
	result.AverageAttention = averageFloat32(attentionScores)
	elapsed := time.Since(start)
	result.ProcessingTimeMS = float64(elapsed.Microseconds()) / 1000
	result.FPS = p.recordFrameInterval(frame.Timestamp)

	p.session.RecordFrame(frame.Timestamp, len(tracks), attentionScores)

	for _, ev := range allEvents {
		p.dispatchEvent(ev)
	}
	p.dispatchFrame(result)
}

// recordFrameInterval appends this frame's inter-frame interval (time
// since the previous frame's timestamp) to the rolling window and
// returns the window's arithmetic-mean-derived FPS, per spec.md §4.8.
func (p *Pipeline) recordFrameInterval(ts time.Time) float64 {
	if !p.lastFrameAt.IsZero() {
		delta := ts.Sub(p.lastFrameAt).Seconds()
		if delta > 0 {
			p.fpsIntervals = append(p.fpsIntervals, delta)
			if len(p.fpsIntervals) > fpsWindowSize {
				p.fpsIntervals = p.fpsIntervals[len(p.fpsIntervals)-fpsWindowSize:]
			}
		}
	}
	p.lastFrameAt = ts

	if len(p.fpsIntervals) == 0 {
		return 0
	}
	var sum float64
	for _, d := range p.fpsIntervals {
		sum += d
	}
	mean := sum / float64(len(p.fpsIntervals))
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}

// sortEvents enforces the category ordering required by §5: entry,
// attention/identification, posture, phone — ascending track_id within
// each category.
func sortEvents(events []Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && lessEvent(events[j], events[j-1]); j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
}

func lessEvent(a, b Event) bool {
	ra, rb := a.Type.eventRank(), b.Type.eventRank()
	if ra != rb {
		return ra < rb
	}
	return a.TrackID < b.TrackID
}

func (p *Pipeline) dispatchEvent(ev Event) {
	select {
	case p.eventCh <- ev:
	case <-p.ctx.Done():
	}
}

func (p *Pipeline) dispatchFrame(fr FrameResult) {
	select {
	case p.frameCh <- fr:
	case <-p.ctx.Done():
	}
}

func (p *Pipeline) runEventSink() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.eventCh:
			if err := p.eventSink.PublishEvent(p.ctx, ev); err != nil {
				p.log.Warn("event sink publish failed", "error", err)
			}
		}
	}
}

func (p *Pipeline) runFrameSink() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case fr := <-p.frameCh:
			if err := p.frameSink.PublishFrameResult(p.ctx, fr); err != nil {
				p.log.Warn("frame sink publish failed", "error", err)
			}
		}
	}
}
