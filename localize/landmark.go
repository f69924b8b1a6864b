package localize

import "math"

// Landmark is a fixed map feature with a unique id and map-frame position in meters.
type Landmark struct {
	ID int
	X  float64
	Y  float64
}

// Map holds the known landmark set, static for the duration of a run.
type Map struct {
	Landmarks []Landmark
}

// LandmarkObs is a single range observation of a landmark. Before Transform
// the coordinates are sensor-local; after Transform they are map-frame.
// ID stays UnsetLandmarkID until DataAssociation assigns a landmark.
type LandmarkObs struct {
	ID int
	X  float64
	Y  float64
}

// Transform maps sensor-local observations into the map frame for a candidate
// pose (x, y, theta) via 2D rotation then translation. The input slice is not
// modified; ids pass through unchanged.
func Transform(observations []LandmarkObs, x, y, theta float64) []LandmarkObs {
	sinT := math.Sin(theta)
	cosT := math.Cos(theta)
	out := make([]LandmarkObs, len(observations))
	for i, obs := range observations {
		out[i] = LandmarkObs{
			ID: obs.ID,
			X:  x + obs.X*cosT - obs.Y*sinT,
			Y:  y + obs.X*sinT + obs.Y*cosT,
		}
	}
	return out
}

// DataAssociation assigns each observation the id of its nearest-neighbor
// candidate in predicted, overwriting observation ids in place. Ties go to the
// first candidate in predicted order. With an empty predicted set the
// observations are left untouched; the caller decides how to handle that.
func DataAssociation(predicted []LandmarkObs, observations []LandmarkObs) {
	if len(predicted) == 0 {
		return
	}
	for i := range observations {
		best := predicted[0].ID
		bestDist := Dist(observations[i].X, observations[i].Y, predicted[0].X, predicted[0].Y)
		for _, p := range predicted[1:] {
			d := Dist(observations[i].X, observations[i].Y, p.X, p.Y)
			if d < bestDist {
				bestDist = d
				best = p.ID
			}
		}
		observations[i].ID = best
	}
}

// FindLandmarksInRange returns the landmarks within rng meters of (x, y) as
// predicted observations, ids preserved, map order preserved.
func FindLandmarksInRange(x, y, rng float64, landmarks []Landmark) []LandmarkObs {
	inRange := make([]LandmarkObs, 0, len(landmarks))
	for _, lm := range landmarks {
		if Dist(x, y, lm.X, lm.Y) <= rng {
			inRange = append(inRange, LandmarkObs{ID: lm.ID, X: lm.X, Y: lm.Y})
		}
	}
	return inRange
}

// MultivGaussianProb evaluates the axis-independent bivariate Gaussian density
// centered on prediction at the observation point. stdLandmark must have
// non-zero components; that contract is enforced by UpdateWeights before the
// per-observation loop runs.
func MultivGaussianProb(prediction, observation LandmarkObs, stdLandmark [2]float64) float64 {
	sx := stdLandmark[0]
	sy := stdLandmark[1]
	dx := observation.X - prediction.X
	dy := observation.Y - prediction.Y
	norm := 1.0 / (2.0 * math.Pi * sx * sy)
	expo := dx*dx/(2.0*sx*sx) + dy*dy/(2.0*sy*sy)
	return norm * math.Exp(-expo)
}
