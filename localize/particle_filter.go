package localize

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Particle is one hypothesis of the agent's pose plus a likelihood weight.
// IDs are generation-scoped: Resample assigns fresh sequential ids, so an id
// must never be carried across a resample as a stable handle.
type Particle struct {
	ID     int
	X      float64
	Y      float64
	Theta  float64
	Weight float64

	// Diagnostic trace from the last weighting pass: the landmark matched to
	// each observation and the observation's map-frame position. All three
	// are parallel-indexed.
	Associations []int
	SenseX       []float64
	SenseY       []float64
}

// ParticleFilter is a sequential Monte Carlo estimator of a 2D pose
// (x, y, theta) driven by noisy motion controls and range observations of
// known landmarks. It exclusively owns its particle population; accessors
// return copies.
type ParticleFilter struct {
	numParticles int
	initialized  bool
	particles    []Particle
	weights      []float64
	src          rand.Source
	rng          *rand.Rand
}

// NewParticleFilter creates a filter with n particles drawing noise from src.
// A nil src falls back to an unseeded PCG source.
func NewParticleFilter(n int, src rand.Source) (*ParticleFilter, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &ParticleFilter{
		numParticles: n,
		src:          src,
		rng:          rand.New(src),
	}, nil
}

func (pf *ParticleFilter) normal(mu, sigma float64) distuv.Normal {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: pf.src}
}

func validStd(std []float64) error {
	for i, s := range std {
		if s < 0 || math.IsNaN(s) {
			return fmt.Errorf("invalid standard deviation std[%d]=%v", i, s)
		}
	}
	return nil
}

// Init seeds the particle population around the pose estimate (x, y, theta)
// with independent Gaussian spread std (x m, y m, theta rad). A zero component
// is deterministic in that dimension. Init replaces any prior population.
func (pf *ParticleFilter) Init(x, y, theta float64, std [3]float64) error {
	if err := validStd(std[:]); err != nil {
		return err
	}

	nx := pf.normal(x, std[0])
	ny := pf.normal(y, std[1])
	nt := pf.normal(theta, std[2])

	pf.particles = make([]Particle, pf.numParticles)
	pf.weights = make([]float64, pf.numParticles)
	for i := range pf.particles {
		pf.particles[i] = Particle{
			ID:     i,
			X:      nx.Rand(),
			Y:      ny.Rand(),
			Theta:  nt.Rand(),
			Weight: 1.0,
		}
		pf.weights[i] = 1.0
	}
	pf.initialized = true
	return nil
}

// Prediction advances every particle through the bicycle motion model over
// deltaT seconds at the given velocity and yaw rate, then adds independent
// Gaussian process noise with deviations stdPos. Theta is left unwrapped;
// downstream trigonometry tolerates angles outside (-pi, pi].
func (pf *ParticleFilter) Prediction(deltaT float64, stdPos [3]float64, velocity, yawRate float64) error {
	if !pf.initialized {
		return fmt.Errorf("prediction called before init")
	}
	if err := validStd(stdPos[:]); err != nil {
		return err
	}

	nx := pf.normal(0, stdPos[0])
	ny := pf.normal(0, stdPos[1])
	nt := pf.normal(0, stdPos[2])

	for i := range pf.particles {
		p := &pf.particles[i]
		if math.Abs(yawRate) < YawRateEpsilon {
			p.X += velocity * deltaT * math.Cos(p.Theta)
			p.Y += velocity * deltaT * math.Sin(p.Theta)
		} else {
			thetaNew := p.Theta + yawRate*deltaT
			p.X += velocity / yawRate * (math.Sin(thetaNew) - math.Sin(p.Theta))
			p.Y += velocity / yawRate * (math.Cos(p.Theta) - math.Cos(thetaNew))
			p.Theta = thetaNew
		}
		p.X += nx.Rand()
		p.Y += ny.Rand()
		p.Theta += nt.Rand()
	}
	return nil
}

// UpdateWeights rescores every particle against the current observation set.
// Per particle: landmarks within sensorRange of its pose become candidates,
// the sensor-local observations are transformed into the map frame at its
// pose, nearest-neighbor association runs, and the weight becomes the product
// of the bivariate Gaussian densities of each matched pair. A particle that
// sees no candidate landmark gets weight 0 and an empty trace.
func (pf *ParticleFilter) UpdateWeights(sensorRange float64, stdLandmark [2]float64, observations []LandmarkObs, m Map) error {
	if !pf.initialized {
		return fmt.Errorf("updateWeights called before init")
	}
	if stdLandmark[0] <= 0 || stdLandmark[1] <= 0 {
		return fmt.Errorf("degenerate landmark deviations: %v", stdLandmark)
	}

	for i := range pf.particles {
		p := &pf.particles[i]

		inRange := FindLandmarksInRange(p.X, p.Y, sensorRange, m.Landmarks)
		if len(inRange) == 0 && len(observations) > 0 {
			p.Weight = 0
			p.Associations = nil
			p.SenseX = nil
			p.SenseY = nil
			pf.weights[i] = 0
			continue
		}

		mapped := Transform(observations, p.X, p.Y, p.Theta)
		DataAssociation(inRange, mapped)

		predByID := make(map[int]LandmarkObs, len(inRange))
		for _, pred := range inRange {
			predByID[pred.ID] = pred
		}

		weight := 1.0
		assoc := make([]int, len(mapped))
		senseX := make([]float64, len(mapped))
		senseY := make([]float64, len(mapped))
		for j, obs := range mapped {
			weight *= MultivGaussianProb(predByID[obs.ID], obs, stdLandmark)
			assoc[j] = obs.ID
			senseX[j] = obs.X
			senseY[j] = obs.Y
		}

		p.Weight = weight
		p.Associations = assoc
		p.SenseX = senseX
		p.SenseY = senseY
		pf.weights[i] = weight
	}
	return nil
}

// Resample draws a fresh generation of numParticles particles with
// replacement, selection probability proportional to weight, using systematic
// (low-variance) resampling. An all-zero weight vector degrades to uniform
// selection so a fully starved population survives rather than vanishing.
// The drawn particles get fresh sequential ids.
func (pf *ParticleFilter) Resample() error {
	if !pf.initialized {
		return fmt.Errorf("resample called before init")
	}

	n := pf.numParticles
	total := floats.Sum(pf.weights)

	cum := make([]float64, n)
	if total <= 0 {
		// Uniform fallback: every particle equally likely.
		for i := range cum {
			cum[i] = float64(i+1) / float64(n)
		}
	} else {
		run := 0.0
		for i, w := range pf.weights {
			run += w / total
			cum[i] = run
		}
	}

	step := 1.0 / float64(n)
	start := pf.rng.Float64() * step

	resampled := make([]Particle, n)
	idx := 0
	for i := 0; i < n; i++ {
		target := start + float64(i)*step
		for idx < n-1 && cum[idx] < target {
			idx++
		}
		resampled[i] = copyParticle(pf.particles[idx], i)
	}

	pf.particles = resampled
	for i := range pf.weights {
		pf.weights[i] = pf.particles[i].Weight
	}
	return nil
}

func copyParticle(src Particle, id int) Particle {
	out := src
	out.ID = id
	out.Associations = append([]int(nil), src.Associations...)
	out.SenseX = append([]float64(nil), src.SenseX...)
	out.SenseY = append([]float64(nil), src.SenseY...)
	return out
}

// Initialized reports whether Init has completed.
func (pf *ParticleFilter) Initialized() bool {
	return pf.initialized
}

// NumParticles returns the fixed population size.
func (pf *ParticleFilter) NumParticles() int {
	return pf.numParticles
}

// Particles returns a copy of the current population.
func (pf *ParticleFilter) Particles() []Particle {
	out := make([]Particle, len(pf.particles))
	for i, p := range pf.particles {
		out[i] = copyParticle(p, p.ID)
	}
	return out
}

// Weights returns a copy of the current weight vector.
func (pf *ParticleFilter) Weights() []float64 {
	return append([]float64(nil), pf.weights...)
}

// Best returns a copy of the highest-weight particle of the current
// generation, the filter's single best pose estimate.
func (pf *ParticleFilter) Best() Particle {
	if len(pf.particles) == 0 {
		return Particle{}
	}
	best := 0
	for i, p := range pf.particles {
		if p.Weight > pf.particles[best].Weight {
			best = i
		}
	}
	return copyParticle(pf.particles[best], pf.particles[best].ID)
}

// GetAssociations renders a particle's association trace as a space-delimited string.
func GetAssociations(best Particle) string {
	parts := make([]string, len(best.Associations))
	for i, id := range best.Associations {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// GetSenseX renders a particle's map-frame observation x trace.
func GetSenseX(best Particle) string {
	return joinFloats(best.SenseX)
}

// GetSenseY renders a particle's map-frame observation y trace.
func GetSenseY(best Particle) string {
	return joinFloats(best.SenseY)
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
