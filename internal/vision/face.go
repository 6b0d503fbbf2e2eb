package vision

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classroom/internal/classroom"
)

// FaceEmbedder wraps the ArcFace embedding model behind
// classroom.FaceRecognizer, resizing and normalizing the crop before
// extraction. Grounded on the teacher's vision/embed.go, unchanged
// except for the addition of the preprocessing + interface-satisfying
// wrapper (the teacher calls its embedder from vision/pipeline.go,
// which already did the resize/normalize step inline).
type FaceEmbedder struct {
	embedder *Embedder
}

// NewFaceEmbedder loads the ArcFace ONNX model.
func NewFaceEmbedder(modelPath string) (*FaceEmbedder, error) {
	e, err := NewEmbedder(modelPath)
	if err != nil {
		return nil, err
	}
	return &FaceEmbedder{embedder: e}, nil
}

// Embed implements classroom.FaceRecognizer. A face is considered
// found whenever the crop is non-nil and the embedder succeeds; the
// ArcFace model itself has no explicit "no face" output, and no crop
// size check is applied here or by the pipeline before calling Embed.
func (f *FaceEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, bool, error) {
	if crop == nil {
		return nil, false, nil
	}
	w, h := f.embedder.InputSize()
	resized := resizeImage(crop, w, h)
	data := imageToFloat32CHW(resized, w, h, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	embedding, err := f.embedder.Extract(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", classroom.ErrEmbeddingFailed, err)
	}
	return embedding, true, nil
}

func (f *FaceEmbedder) Close() { f.embedder.Close() }
