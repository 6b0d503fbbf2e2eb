package classroom

import "gonum.org/v1/gonum/mat"

// kalmanDim is the state dimension: center x, center y, width, height,
// and their velocities. Matches the 8-state constant
// velocity model of spec.md §4.4.
const kalmanDim = 8
const kalmanMeasDim = 4

// stdWeightPosition and stdWeightVelocity scale process/measurement
// noise by the track's own height, exactly as
// original_source/ai_service/trackers/bytetrack.py's KalmanFilter does
// (std_weight_position=1/20, std_weight_velocity=1/160).
const (
	stdWeightPosition = 1.0 / 20
	stdWeightVelocity = 1.0 / 160
)

// KalmanState is the Gaussian belief over a track's motion state:
// [cx, cy, w, h, vcx, vcy, vw, vh]. Mean and Covariance are owned
// exclusively by the Tracker that produced them via Initiate.
type KalmanState struct {
	Mean       *mat.VecDense  // 8x1
	Covariance *mat.Dense     // 8x8
}

// KalmanFilter implements the linear constant-velocity motion model used
// by the tracker to predict a track's bbox between detections and to
// fuse a new observation into its belief. It holds no per-track state;
// all state lives in KalmanState, one per Track.
type KalmanFilter struct {
	motionMat *mat.Dense // 8x8, identity + dt on the velocity block
	updateMat *mat.Dense // 4x8, selects [cx,cy,w,h] from the 8-state vector
}

// NewKalmanFilter builds the motion/measurement matrices for dt=1 frame,
// matching bytetrack.py's KalmanFilter.__init__ exactly.
func NewKalmanFilter() *KalmanFilter {
	motion := mat.NewDense(kalmanDim, kalmanDim, nil)
	for i := 0; i < kalmanDim; i++ {
		motion.Set(i, i, 1)
	}
	for i := 0; i < kalmanMeasDim; i++ {
		motion.Set(i, i+kalmanMeasDim, 1) // dt=1
	}

	update := mat.NewDense(kalmanMeasDim, kalmanDim, nil)
	for i := 0; i < kalmanMeasDim; i++ {
		update.Set(i, i, 1)
	}

	return &KalmanFilter{motionMat: motion, updateMat: update}
}

// Initiate creates a KalmanState from a first observation, velocities
// zeroed, matching bytetrack.py's KalmanFilter.initiate.
func (kf *KalmanFilter) Initiate(bbox BBox) *KalmanState {
	cx, cy := bbox.Center()
	w, h := bbox.Width(), bbox.Height()

	mean := mat.NewVecDense(kalmanDim, []float64{
		float64(cx), float64(cy), float64(w), float64(h), 0, 0, 0, 0,
	})

	stdPos := stdWeightPosition * float64(h)
	stdVel := stdWeightVelocity * float64(h)
	diag := []float64{
		2 * stdPos, 2 * stdPos, 2 * stdPos, 2 * stdPos,
		10 * stdVel, 10 * stdVel, 10 * stdVel, 10 * stdVel,
	}
	cov := mat.NewDense(kalmanDim, kalmanDim, nil)
	for i, v := range diag {
		cov.Set(i, i, v*v)
	}

	return &KalmanState{Mean: mean, Covariance: cov}
}

// Predict advances the state one frame under the constant-velocity
// model, height-scaled process noise added per bytetrack.py's predict.
func (kf *KalmanFilter) Predict(s *KalmanState) {
	h := s.Mean.AtVec(3)

	stdPos := stdWeightPosition * h
	stdVel := stdWeightVelocity * h
	diag := []float64{
		stdPos, stdPos, stdPos, stdPos,
		stdVel, stdVel, stdVel, stdVel,
	}
	q := mat.NewDense(kalmanDim, kalmanDim, nil)
	for i, v := range diag {
		q.Set(i, i, v*v)
	}

	var newMean mat.VecDense
	newMean.MulVec(kf.motionMat, s.Mean)
	s.Mean = &newMean

	var tmp, newCov mat.Dense
	tmp.Mul(kf.motionMat, s.Covariance)
	newCov.Mul(&tmp, kf.motionMat.T())
	newCov.Add(&newCov, q)
	s.Covariance = &newCov
}

// Update fuses a new bbox observation into the predicted state via the
// standard Kalman gain update, height-scaled measurement noise matching
// bytetrack.py's update/project.
func (kf *KalmanFilter) Update(s *KalmanState, bbox BBox) {
	cx, cy := bbox.Center()
	w, h := bbox.Width(), bbox.Height()
	measurement := mat.NewVecDense(kalmanMeasDim, []float64{
		float64(cx), float64(cy), float64(w), float64(h),
	})

	stateH := s.Mean.AtVec(3)
	stdMeas := stdWeightPosition * stateH
	r := mat.NewDense(kalmanMeasDim, kalmanMeasDim, nil)
	for i := 0; i < kalmanMeasDim; i++ {
		r.Set(i, i, stdMeas*stdMeas)
	}

	// Project state into measurement space: Hx, HPH^T + R
	var projMean mat.VecDense
	projMean.MulVec(kf.updateMat, s.Mean)

	var tmp, projCov mat.Dense
	tmp.Mul(kf.updateMat, s.Covariance)
	projCov.Mul(&tmp, kf.updateMat.T())
	projCov.Add(&projCov, r)

	// Kalman gain K = P H^T (HPH^T + R)^-1
	var projCovInv mat.Dense
	if err := projCovInv.Inverse(&projCov); err != nil {
		// Singular innovation covariance: skip the update rather than
		// propagate NaNs into the track's belief.
		return
	}

	var pht mat.Dense
	pht.Mul(s.Covariance, kf.updateMat.T())

	var gain mat.Dense
	gain.Mul(&pht, &projCovInv)

	var innovation mat.VecDense
	innovation.SubVec(measurement, &projMean)

	var correction mat.VecDense
	correction.MulVec(&gain, &innovation)

	var newMean mat.VecDense
	newMean.AddVec(s.Mean, &correction)
	s.Mean = &newMean

	var gainH mat.Dense
	gainH.Mul(&gain, kf.updateMat)

	ident := mat.NewDense(kalmanDim, kalmanDim, nil)
	for i := 0; i < kalmanDim; i++ {
		ident.Set(i, i, 1)
	}
	var iMinusGainH mat.Dense
	iMinusGainH.Sub(ident, &gainH)

	var newCov mat.Dense
	newCov.Mul(&iMinusGainH, s.Covariance)
	s.Covariance = &newCov
}

// BBox reconstructs the current bbox (corner form) from the state mean.
func (s *KalmanState) BBox() BBox {
	cx, cy, w, h := s.Mean.AtVec(0), s.Mean.AtVec(1), s.Mean.AtVec(2), s.Mean.AtVec(3)
	return BBox{
		float32(cx - w/2), float32(cy - h/2),
		float32(cx + w/2), float32(cy + h/2),
	}
}
