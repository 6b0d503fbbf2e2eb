package vision

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classroom/internal/classroom"
)

// PoseGazeModel runs a small head-pose/eye-openness regressor over a
// cropped person region, implementing classroom.PoseGazeAnalyzer.
// Structured exactly like the teacher's vision/attributes.go
// AttributePredictor (small fixed-input auxiliary model, single output
// tensor decoded by hand) since no teacher model does head pose, and
// this is the closest shape in the pack to imitate.
type PoseGazeModel struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// poseGazeOutputDim is the regressor's output width:
// [yaw, pitch, roll, ear, shoulder_angle, spine_angle, head_tilt],
// all in degrees except ear.
const poseGazeOutputDim = 7

// NewPoseGazeModel loads the head-pose/gaze ONNX model. opts may be
// nil or a pre-configured *ort.SessionOptions.
func NewPoseGazeModel(modelPath string, opts *ort.SessionOptions) (*PoseGazeModel, error) {
	inputW, inputH := 96, 96

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, poseGazeOutputDim)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"pose_gaze_out"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create pose/gaze session: %w", err)
	}

	return &PoseGazeModel{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Analyze implements classroom.PoseGazeAnalyzer.
func (m *PoseGazeModel) Analyze(ctx context.Context, crop image.Image) (classroom.HeadPose, error) {
	resized := resizeImage(crop, m.inputW, m.inputH)
	data := imageToFloat32CHW(resized, m.inputW, m.inputH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	inputSlice := m.inputTensor.GetData()
	copy(inputSlice, data)

	if err := m.session.Run(); err != nil {
		return classroom.HeadPose{}, fmt.Errorf("%w: %v", classroom.ErrPoseGazeFailed, err)
	}

	out := m.outputTensor.GetData()
	if len(out) < poseGazeOutputDim {
		return classroom.HeadPose{}, fmt.Errorf("%w: unexpected output size %d", classroom.ErrPoseGazeFailed, len(out))
	}

	return classroom.HeadPose{
		Yaw:            out[0],
		Pitch:          out[1],
		Roll:           out[2],
		EyeAspectRatio: out[3],
		ShoulderAngle:  out[4],
		SpineAngle:     out[5],
		HeadTilt:       out[6],
	}, nil
}

func (m *PoseGazeModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
}
