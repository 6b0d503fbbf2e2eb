package vision

import (
	"context"
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classroom/internal/classroom"
)

// cocoClass is a class index in the 80-class COCO label set the
// detector was trained on.
type cocoClass int

const (
	cocoPerson cocoClass = 0
	cocoLaptop cocoClass = 63
	cocoBook   cocoClass = 73
	cocoPhone  cocoClass = 67
)

// relevantClasses maps the COCO ids spec.md §4.1 cares about onto the
// domain's ClassID, grounded on
// original_source/ai_service/models/detection.py's RELEVANT_CLASSES table.
var relevantClasses = map[cocoClass]classroom.ClassID{
	cocoPerson: classroom.ClassPerson,
	cocoPhone:  classroom.ClassPhone,
	cocoLaptop: classroom.ClassLaptop,
	cocoBook:   classroom.ClassBook,
}

const numCOCOClasses = 80

// ObjectDetector runs a YOLO-style anchor-free detector (box
// regression + per-class scores in a single [1, 4+numClasses, N]
// output tensor) over a frame and partitions the result into persons
// and relevant objects, implementing classroom.Detector. Generalized
// from the teacher's RetinaFace-specific vision/detect.go: the ONNX
// session lifecycle, NMS and bbox clamping are kept, the anchor decode
// is replaced with a single-stage grid decode since the underlying
// model family changed from anchor-based face detection to anchor-free
// object detection.
type ObjectDetector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	threshold float32
	nmsIoU    float32
	inputW    int
	inputH    int
	numBoxes  int
}

// NewObjectDetector loads a YOLO-style detection model. opts may be
// nil (ORT defaults) or a pre-configured *ort.SessionOptions capping
// thread usage, exactly as the teacher's NewDetector accepts.
func NewObjectDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*ObjectDetector, error) {
	inputW, inputH := 640, 640
	numBoxes := 8400 // 80x80 + 40x40 + 20x20 grid cells, standard for 640x640 input

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(4+numCOCOClasses), int64(numBoxes))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &ObjectDetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		threshold:    threshold,
		nmsIoU:       0.45,
		inputW:       inputW,
		inputH:       inputH,
		numBoxes:     numBoxes,
	}, nil
}

// Detect implements classroom.Detector.
func (d *ObjectDetector) Detect(ctx context.Context, img image.Image) (classroom.Detections, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	resized := resizeImage(img, d.inputW, d.inputH)
	chw := imageToFloat32CHW(resized, d.inputW, d.inputH, [3]float32{0, 0, 0}, [3]float32{255, 255, 255})

	inputSlice := d.inputTensor.GetData()
	copy(inputSlice, chw)

	if err := d.session.Run(); err != nil {
		return classroom.Detections{}, fmt.Errorf("%w: %v", classroom.ErrDetectionFailed, err)
	}

	raw := d.parseDetections(origW, origH)

	var out classroom.Detections
	for classID, dets := range groupByClass(raw) {
		kept := nmsDetections(dets, d.nmsIoU)
		for _, det := range kept {
			if classID == classroom.ClassPerson {
				out.Persons = append(out.Persons, det)
			} else {
				out.Objects = append(out.Objects, det)
			}
		}
	}
	return out, nil
}

// parseDetections decodes the [4+numClasses, numBoxes] output into
// per-class candidate detections above threshold, scaled back to the
// original image dimensions.
func (d *ObjectDetector) parseDetections(origW, origH int) []classroom.Detection {
	data := d.outputTensor.GetData()
	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	var out []classroom.Detection
	n := d.numBoxes

	for i := 0; i < n; i++ {
		bestScore := float32(0)
		var bestClass cocoClass = -1
		for c := 0; c < numCOCOClasses; c++ {
			cls := cocoClass(c)
			if _, relevant := relevantClasses[cls]; !relevant {
				continue
			}
			score := data[(4+c)*n+i]
			if score > bestScore {
				bestScore = score
				bestClass = cls
			}
		}
		if bestClass < 0 || bestScore < d.threshold {
			continue
		}

		cx := data[0*n+i] * scaleW
		cy := data[1*n+i] * scaleH
		w := data[2*n+i] * scaleW
		h := data[3*n+i] * scaleH

		bbox := classroom.BBox{cx - w/2, cy - h/2, cx + w/2, cy + h/2}.Clamp(float32(origW), float32(origH))

		out = append(out, classroom.Detection{
			BBox:    bbox,
			Score:   bestScore,
			ClassID: relevantClasses[bestClass],
		})
	}
	return out
}

func groupByClass(dets []classroom.Detection) map[classroom.ClassID][]classroom.Detection {
	groups := make(map[classroom.ClassID][]classroom.Detection)
	for _, d := range dets {
		groups[d.ClassID] = append(groups[d.ClassID], d)
	}
	return groups
}

// nmsDetections performs per-class non-maximum suppression, grounded
// on the teacher's vision/detect.go::nms.
func nmsDetections(detections []classroom.Detection, iouThreshold float32) []classroom.Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if boxIoU(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []classroom.Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func boxIoU(a, b classroom.BBox) float32 {
	x1 := maxF(a.Left(), b.Left())
	y1 := maxF(a.Top(), b.Top())
	x2 := minF(a.Right(), b.Right())
	y2 := minF(a.Bottom(), b.Bottom())

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func (d *ObjectDetector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *ObjectDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
}
