package localize

import "math"

const (
	// YawRateEpsilon separates straight-line motion from the curved motion
	// model in Prediction. Below this the v/yawrate term is numerically unusable.
	YawRateEpsilon = 1e-5

	// UnsetLandmarkID marks an observation that has not been associated yet.
	UnsetLandmarkID = -1

	// DefaultNumParticles matches the reference deployment.
	DefaultNumParticles = 100

	// DefaultSensorRange is the landmark visibility radius in meters.
	DefaultSensorRange = 50.0

	// MaxCycleGapMs resets the pipeline when the telemetry stream stalls.
	MaxCycleGapMs = 30000

	// MaxCoordinate is a sanity bound on filter output. Estimates beyond it
	// indicate divergence and trigger a reset.
	MaxCoordinate = 1e6
)

// Default measurement and process standard deviations (x m, y m, theta rad).
var (
	DefaultStdInit     = [3]float64{0.3, 0.3, 0.01}
	DefaultStdPos      = [3]float64{0.3, 0.3, 0.01}
	DefaultStdLandmark = [2]float64{0.3, 0.3}
)

// Dist returns the Euclidean distance between (x1,y1) and (x2,y2).
func Dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// NormalizeAngle wraps an angle difference into [0, pi] for error reporting.
func NormalizeAngle(a float64) float64 {
	a = math.Abs(math.Mod(a, 2.0*math.Pi))
	if a > math.Pi {
		a = 2.0*math.Pi - a
	}
	return a
}

func allFinite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
