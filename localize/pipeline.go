package localize

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Control is one cycle of odometry: forward velocity (m/s) and yaw rate (rad/s).
type Control struct {
	Velocity float64
	YawRate  float64
}

// Fix is a noisy absolute pose estimate, used to seed the filter and as
// ground truth during evaluation.
type Fix struct {
	X     float64
	Y     float64
	Theta float64
}

// Result is the per-cycle output of the pipeline. Flag follows the engine
// convention: 2 = measurement-updated estimate, 1 = prediction only (no
// observations this cycle), -1 = waiting for an initial fix, -2 = filter was
// reset this cycle.
type Result struct {
	TimestampMs  int64
	X            float64
	Y            float64
	Theta        float64
	Flag         int
	BestWeight   float64
	Associations string
	SenseX       string
	SenseY       string
}

// PipelineConfig holds the tuning parameters of a localization run.
type PipelineConfig struct {
	NumParticles int
	SensorRange  float64
	StdInit      [3]float64 // initial fix uncertainty (x m, y m, theta rad)
	StdPos       [3]float64 // process noise per prediction step
	StdLandmark  [2]float64 // landmark measurement uncertainty
	Seed         uint64     // non-zero seeds the noise source for reproducible runs
}

// DefaultPipelineConfig returns the reference deployment tuning.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		NumParticles: DefaultNumParticles,
		SensorRange:  DefaultSensorRange,
		StdInit:      DefaultStdInit,
		StdPos:       DefaultStdPos,
		StdLandmark:  DefaultStdLandmark,
	}
}

// LocalizerPipeline drives one particle filter through the per-cycle
// Prediction -> UpdateWeights -> Resample flow, owning timestamp bookkeeping,
// lazy initialization from the first fix, and divergence watchdogs.
type LocalizerPipeline struct {
	m      Map
	cfg    PipelineConfig
	pf     *ParticleFilter
	lastTS *int64

	// ground-truth error accumulation
	errSum   [3]float64
	errCount int
	lastBest Particle
	hasBest  bool
}

// NewLocalizerPipeline creates a pipeline over the given landmark map.
func NewLocalizerPipeline(m Map, cfg PipelineConfig) (*LocalizerPipeline, error) {
	if len(m.Landmarks) == 0 {
		return nil, fmt.Errorf("empty landmark map")
	}
	if cfg.SensorRange <= 0 {
		return nil, fmt.Errorf("invalid sensor range: %v", cfg.SensorRange)
	}
	pf, err := newFilter(cfg)
	if err != nil {
		return nil, err
	}
	return &LocalizerPipeline{m: m, cfg: cfg, pf: pf}, nil
}

func newFilter(cfg PipelineConfig) (*ParticleFilter, error) {
	var src rand.Source
	if cfg.Seed != 0 {
		src = rand.NewPCG(cfg.Seed, cfg.Seed)
	}
	return NewParticleFilter(cfg.NumParticles, src)
}

// Initialized reports whether the underlying filter has been seeded.
func (lp *LocalizerPipeline) Initialized() bool {
	return lp.pf.Initialized()
}

// Filter exposes the underlying estimator for read access.
func (lp *LocalizerPipeline) Filter() *ParticleFilter {
	return lp.pf
}

// InitFromFix seeds the filter around an absolute pose estimate.
func (lp *LocalizerPipeline) InitFromFix(tsMs int64, fix Fix) error {
	if err := lp.pf.Init(fix.X, fix.Y, fix.Theta, lp.cfg.StdInit); err != nil {
		return err
	}
	lp.lastTS = new(int64)
	*lp.lastTS = tsMs
	return nil
}

func (lp *LocalizerPipeline) reset() {
	pf, err := newFilter(lp.cfg)
	if err == nil {
		lp.pf = pf
	}
	lp.lastTS = nil
	lp.hasBest = false
}

// Process runs one filter cycle. The filter must have been seeded by
// InitFromFix (or a fix must arrive through the telemetry layer first);
// before that it reports Flag -1. A stalled stream or a non-finite estimate
// resets the filter and reports Flag -2; the particle population is never
// left half-mutated.
func (lp *LocalizerPipeline) Process(tsMs int64, ctl Control, observations []LandmarkObs) (Result, error) {
	if !lp.pf.Initialized() {
		return Result{TimestampMs: tsMs, Flag: -1}, nil
	}

	if tsMs <= *lp.lastTS {
		tsMs = *lp.lastTS + 1
	}
	if tsMs-*lp.lastTS > MaxCycleGapMs {
		lp.reset()
		return Result{TimestampMs: tsMs, Flag: -2}, nil
	}
	dt := float64(tsMs-*lp.lastTS) / 1000.0

	if err := lp.pf.Prediction(dt, lp.cfg.StdPos, ctl.Velocity, ctl.YawRate); err != nil {
		return Result{}, err
	}

	flag := 1
	if len(observations) > 0 {
		if err := lp.pf.UpdateWeights(lp.cfg.SensorRange, lp.cfg.StdLandmark, observations, lp.m); err != nil {
			return Result{}, err
		}
		if err := lp.pf.Resample(); err != nil {
			return Result{}, err
		}
		flag = 2
	}
	*lp.lastTS = tsMs

	best := lp.pf.Best()
	if !allFinite(best.X, best.Y, best.Theta) ||
		best.X > MaxCoordinate || best.X < -MaxCoordinate ||
		best.Y > MaxCoordinate || best.Y < -MaxCoordinate {
		lp.reset()
		return Result{TimestampMs: tsMs, Flag: -2}, nil
	}
	lp.lastBest = best
	lp.hasBest = true

	return Result{
		TimestampMs:  tsMs,
		X:            best.X,
		Y:            best.Y,
		Theta:        best.Theta,
		Flag:         flag,
		BestWeight:   best.Weight,
		Associations: GetAssociations(best),
		SenseX:       GetSenseX(best),
		SenseY:       GetSenseY(best),
	}, nil
}

// TrackError accumulates absolute error of the latest best estimate against a
// ground-truth pose. Yaw error is wrapped into [0, pi].
func (lp *LocalizerPipeline) TrackError(gt Fix) {
	if !lp.hasBest {
		return
	}
	lp.errSum[0] += absF(lp.lastBest.X - gt.X)
	lp.errSum[1] += absF(lp.lastBest.Y - gt.Y)
	lp.errSum[2] += NormalizeAngle(lp.lastBest.Theta - gt.Theta)
	lp.errCount++
}

// AvgError returns the running mean absolute error (x, y, yaw) accumulated by
// TrackError, and how many cycles contributed.
func (lp *LocalizerPipeline) AvgError() ([3]float64, int) {
	if lp.errCount == 0 {
		return [3]float64{}, 0
	}
	n := float64(lp.errCount)
	return [3]float64{lp.errSum[0] / n, lp.errSum[1] / n, lp.errSum[2] / n}, lp.errCount
}

// CloudStats summarizes the particle cloud: weighted mean pose and the 3x3
// weighted covariance of (x, y, theta). Useful as a spread/convergence
// diagnostic in the offline tools.
type CloudStats struct {
	MeanX     float64
	MeanY     float64
	MeanTheta float64
	Cov       *mat.SymDense
}

// CloudStats computes the current cloud summary. With an all-zero weight
// vector the particles are weighted uniformly.
func (lp *LocalizerPipeline) CloudStats() CloudStats {
	particles := lp.pf.Particles()
	n := len(particles)
	if n == 0 {
		return CloudStats{}
	}

	weights := lp.pf.Weights()
	if floats.Sum(weights) <= 0 {
		weights = nil
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	ts := make([]float64, n)
	data := make([]float64, 0, n*3)
	for i, p := range particles {
		xs[i] = p.X
		ys[i] = p.Y
		ts[i] = p.Theta
		data = append(data, p.X, p.Y, p.Theta)
	}

	cov := mat.NewSymDense(3, nil)
	stat.CovarianceMatrix(cov, mat.NewDense(n, 3, data), weights)

	return CloudStats{
		MeanX:     stat.Mean(xs, weights),
		MeanY:     stat.Mean(ys, weights),
		MeanTheta: stat.Mean(ts, weights),
		Cov:       cov,
	}
}

func absF(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
