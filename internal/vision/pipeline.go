package vision

import (
	"fmt"
	"log/slog"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classroom/internal/config"
)

// Adapters bundles the four ONNX Runtime-backed models the
// classroom pipeline depends on, constructed once at startup exactly
// as the teacher's vision.NewPipeline loads its three models: the
// detector, pose/gaze and attribute models get their own SessionOptions
// capping intra/inter-op thread usage, the face embedder runs with ORT's
// default session options, and partial construction failure tears down
// everything already loaded.
type Adapters struct {
	Detector   *ObjectDetector
	Faces      *FaceEmbedder
	PoseGaze   *PoseGazeModel
	Attributes *AttributePredictor // optional demographic telemetry, never required by the domain
}

// NewAdapters loads every model under cfg.ModelsDir.
func NewAdapters(cfg config.VisionConfig) (*Adapters, error) {
	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	detPath := filepath.Join(cfg.ModelsDir, "detector.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	poseGazePath := filepath.Join(cfg.ModelsDir, "pose_gaze.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")

	slog.Info("loading detection model", "path", detPath,
		"intra_op_threads", cfg.IntraOpThreads, "inter_op_threads", cfg.InterOpThreads)
	detOpts, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	detector, err := NewObjectDetector(detPath, float32(cfg.DetectionThreshold), detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading face embedding model", "path", embPath)
	faces, err := NewFaceEmbedder(embPath)
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("load face embedder: %w", err)
	}

	slog.Info("loading pose/gaze model", "path", poseGazePath)
	poseGazeOpts, err := newSessionOptions()
	if err != nil {
		detector.Close()
		faces.Close()
		return nil, err
	}
	poseGaze, err := NewPoseGazeModel(poseGazePath, poseGazeOpts)
	poseGazeOpts.Destroy()
	if err != nil {
		detector.Close()
		faces.Close()
		return nil, fmt.Errorf("load pose/gaze model: %w", err)
	}

	attrOpts, err := newSessionOptions()
	if err != nil {
		detector.Close()
		faces.Close()
		poseGaze.Close()
		return nil, err
	}
	attributes, err := NewAttributePredictor(attrPath, attrOpts)
	attrOpts.Destroy()
	if err != nil {
		// Demographic telemetry is optional: log and continue without it
		// rather than failing startup over a model nothing in the domain
		// requires.
		slog.Warn("attribute model unavailable, demographic telemetry disabled", "error", err)
		attributes = nil
	}

	return &Adapters{
		Detector:   detector,
		Faces:      faces,
		PoseGaze:   poseGaze,
		Attributes: attributes,
	}, nil
}

// Close releases every loaded model's ONNX Runtime resources.
func (a *Adapters) Close() {
	if a.Detector != nil {
		a.Detector.Close()
	}
	if a.Faces != nil {
		a.Faces.Close()
	}
	if a.PoseGaze != nil {
		a.PoseGaze.Close()
	}
	if a.Attributes != nil {
		a.Attributes.Close()
	}
}
