package classroom

import (
	"math"
	"sync/atomic"
	"time"
)

// EmbeddingDimension is the expected length of a face embedding vector,
// matching the teacher's ArcFace embedder (vision/embed.go).
const EmbeddingDimension = 512

// IdentityConfig holds the thresholds spec.md §4.5 names.
type IdentityConfig struct {
	MatchThreshold      float32       // minimum cosine similarity to accept a match
	RecognitionInterval time.Duration // cooldown between recognition attempts per track
}

// DefaultIdentityConfig returns the defaults used throughout the pipeline.
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{MatchThreshold: 0.4, RecognitionInterval: 2 * time.Second}
}

// IdentityResolver matches a track's face embedding against a snapshot
// of known students, swapped atomically so the pipeline's single
// orchestrator goroutine never blocks on a catalog refresh triggered
// from elsewhere (§5 "Shared resources").
type IdentityResolver struct {
	cfg  IdentityConfig
	known atomic.Pointer[[]KnownFace]
}

// NewIdentityResolver constructs a resolver with an empty catalog.
func NewIdentityResolver(cfg IdentityConfig) *IdentityResolver {
	r := &IdentityResolver{cfg: cfg}
	empty := []KnownFace{}
	r.known.Store(&empty)
	return r
}

// UpdateKnownEmbeddings atomically replaces the known-face catalog.
// Safe to call from any goroutine.
func (r *IdentityResolver) UpdateKnownEmbeddings(faces []KnownFace) {
	snapshot := make([]KnownFace, len(faces))
	copy(snapshot, faces)
	r.known.Store(&snapshot)
}

// ShouldRecognize reports whether the track is due for a recognition
// attempt: it has never been recognized, or the cooldown has elapsed
// and it is still unidentified. Once a track has a StudentID, it is
// never re-recognized (§4.5 "StudentID, once set, is immutable").
func (r *IdentityResolver) ShouldRecognize(tr *Track, now time.Time) bool {
	if tr.HasStudent() {
		return false
	}
	if tr.RecognitionCooldownUntil.IsZero() {
		return true
	}
	return !now.Before(tr.RecognitionCooldownUntil)
}

// MatchEmbedding finds the best-scoring known face for the given
// embedding, returning ok=false if the catalog is empty or no score is
// strictly above the configured threshold.
func (r *IdentityResolver) MatchEmbedding(embedding []float32) (face KnownFace, score float32, ok bool) {
	known := *r.known.Load()
	var best KnownFace
	bestScore := r.cfg.MatchThreshold
	matched := false
	for _, k := range known {
		s := CosineSimilarity(embedding, k.Embedding)
		if s > bestScore {
			bestScore = s
			best = k
			matched = true
		}
	}
	if !matched {
		return KnownFace{}, bestScore, false
	}
	return best, bestScore, true
}

// Resolve attempts recognition for a track due for it, assigning
// StudentID on success and always resetting the cooldown, matching
// original_source/ai_service/pipeline.py's _try_face_recognition.
func (r *IdentityResolver) Resolve(tr *Track, embedding []float32, now time.Time) (matched bool, face KnownFace, score float32) {
	tr.RecognitionCooldownUntil = now.Add(r.cfg.RecognitionInterval)

	face, score, ok := r.MatchEmbedding(embedding)
	if !ok {
		return false, KnownFace{}, score
	}
	if !tr.HasStudent() {
		tr.StudentID = face.StudentID
	}
	return true, face, score
}

// CosineSimilarity computes cosine similarity between two vectors and
// rescales it from [-1, 1] to [0, 1] via (cos+1)/2, matching
// original_source/ai_service/models/detection.py's embedding comparison,
// grounded structurally on the teacher's vision/track.go::CosineSimilarity
// (generalized here to unnormalized inputs via an explicit norm divide,
// since the teacher's embeddings are always pre-normalized but the
// identity resolver makes no such assumption about callers).
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cos = math.Min(1.0, math.Max(-1.0, cos))
	return float32((cos + 1) / 2)
}
